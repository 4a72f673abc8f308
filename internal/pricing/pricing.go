// Package pricing resolves the price a fan pays for a ticket. Event
// creation, price updates and purchases all go through the same Resolver so
// a listing never advertises a price the checkout would refuse.
package pricing

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/stagepass/internal/config"
)

var (
	ErrHappyHourSlot    = errors.New("happy_hour_slot_invalid")
	ErrPriceOutOfBounds = errors.New("price_out_of_bounds")
	ErrUnknownTier      = errors.New("unknown_tier")
	ErrInvalidPrice     = errors.New("invalid_price")
)

// Rules supplies the current settlement rules; *config.SettlementConfigHolder
// satisfies it.
type Rules interface {
	Get() config.SettlementConfig
}

type Request struct {
	// BasePrice is the artist-chosen price in cents.
	BasePrice int64
	HappyHour bool
	Tier      string
	// Slot is the event start time.
	Slot time.Time
}

type Quote struct {
	Price   int64
	IsPromo bool
}

type Resolver struct {
	rules Rules
	loc   *time.Location
}

func NewResolver(cfg config.Config, rules *config.SettlementConfigHolder) *Resolver {
	return New(rules, cfg.Location())
}

func New(rules Rules, loc *time.Location) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	return &Resolver{rules: rules, loc: loc}
}

func (r *Resolver) Resolve(req Request) (Quote, error) {
	pricing := r.rules.Get().Pricing

	if req.HappyHour {
		ok, err := r.isHappyHourSlot(pricing, req.Slot)
		if err != nil {
			return Quote{}, err
		}
		if !ok {
			return Quote{}, ErrHappyHourSlot
		}
		return Quote{Price: pricing.HappyHourPrice, IsPromo: true}, nil
	}

	if req.BasePrice <= 0 {
		return Quote{}, ErrInvalidPrice
	}
	bound, ok := pricing.Bounds[strings.ToLower(strings.TrimSpace(req.Tier))]
	if !ok {
		return Quote{}, ErrUnknownTier
	}
	if req.BasePrice < bound.Min || req.BasePrice > bound.Max {
		return Quote{}, fmt.Errorf("%w: %d not in [%d, %d] for tier %s",
			ErrPriceOutOfBounds, req.BasePrice, bound.Min, bound.Max, req.Tier)
	}
	return Quote{Price: req.BasePrice}, nil
}

// IsHappyHourSlot reports whether t falls on the weekly promo slot in the
// platform time zone.
func (r *Resolver) IsHappyHourSlot(t time.Time) bool {
	ok, err := r.isHappyHourSlot(r.rules.Get().Pricing, t)
	return err == nil && ok
}

func (r *Resolver) isHappyHourSlot(pricing config.PricingConfig, t time.Time) (bool, error) {
	if t.IsZero() {
		return false, nil
	}
	weekday, err := pricing.Weekday()
	if err != nil {
		return false, err
	}
	local := t.In(r.loc)
	return local.Weekday() == weekday &&
		local.Hour() == pricing.HappyHourHour &&
		local.Minute() == pricing.HappyHourMinute, nil
}
