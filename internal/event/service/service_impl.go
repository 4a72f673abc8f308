package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	artistdomain "github.com/smallbiznis/stagepass/internal/artist/domain"
	"github.com/smallbiznis/stagepass/internal/clock"
	"github.com/smallbiznis/stagepass/internal/event/domain"
	"github.com/smallbiznis/stagepass/internal/pricing"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	ArtistRepo artistdomain.Repository
	Pricing    *pricing.Resolver
	Clock      clock.Clock
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	artistRepo artistdomain.Repository
	pricing    *pricing.Resolver
	clock      clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("event.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		artistRepo: p.ArtistRepo,
		pricing:    p.Pricing,
		clock:      p.Clock,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateEventRequest) (domain.Event, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return domain.Event{}, domain.ErrInvalidTitle
	}
	if req.ScheduledAt.IsZero() {
		return domain.Event{}, domain.ErrInvalidSchedule
	}
	if req.Capacity != nil && *req.Capacity <= 0 {
		return domain.Event{}, domain.ErrInvalidCapacity
	}

	artist, err := s.artistRepo.FindByID(ctx, s.db, req.ArtistID)
	if err != nil {
		return domain.Event{}, err
	}
	if artist == nil {
		return domain.Event{}, artistdomain.ErrNotFound
	}

	ticketPrice, happyHourPrice, err := s.resolvePrice(*artist, req.TicketPrice, req.HappyHour, req.ScheduledAt)
	if err != nil {
		return domain.Event{}, err
	}

	now := s.clock.Now()
	event := domain.Event{
		ID:             s.genID.Generate(),
		ArtistID:       artist.ID,
		Title:          title,
		TicketPrice:    ticketPrice,
		HappyHourPrice: happyHourPrice,
		ScheduledAt:    req.ScheduledAt.UTC(),
		Capacity:       req.Capacity,
		Status:         domain.StatusScheduled,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Insert(ctx, s.db, &event); err != nil {
		return domain.Event{}, err
	}

	s.log.Info("event.created",
		zap.String("event_id", event.ID.String()),
		zap.String("artist_id", artist.ID.String()),
		zap.Int64("ticket_price", event.TicketPrice),
		zap.Bool("happy_hour", event.IsHappyHour()),
	)
	return event, nil
}

func (s *Service) UpdatePrice(ctx context.Context, req domain.UpdatePriceRequest) (domain.Event, error) {
	var updated domain.Event
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		event, err := s.ownedEvent(ctx, tx, req.EventID, req.ArtistID)
		if err != nil {
			return err
		}
		if event.Status != domain.StatusScheduled {
			return domain.ErrNotEditable
		}

		artist, err := s.artistRepo.FindByID(ctx, tx, event.ArtistID)
		if err != nil {
			return err
		}
		if artist == nil {
			return artistdomain.ErrNotFound
		}

		ticketPrice, happyHourPrice, err := s.resolvePrice(*artist, req.TicketPrice, req.HappyHour, event.ScheduledAt)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if err := s.repo.UpdatePrice(ctx, tx, event.ID, ticketPrice, happyHourPrice, now); err != nil {
			return err
		}
		event.TicketPrice = ticketPrice
		event.HappyHourPrice = happyHourPrice
		event.UpdatedAt = now
		updated = *event
		return nil
	})
	if err != nil {
		return domain.Event{}, err
	}
	return updated, nil
}

func (s *Service) Transition(ctx context.Context, req domain.TransitionRequest) (domain.Event, error) {
	event, err := s.ownedEvent(ctx, s.db, req.EventID, req.ArtistID)
	if err != nil {
		return domain.Event{}, err
	}
	if !domain.CanTransition(event.Status, req.To) {
		return domain.Event{}, domain.ErrInvalidTransition
	}

	now := s.clock.Now()
	var endedAt *time.Time
	if req.To == domain.StatusEnded {
		endedAt = &now
	}

	ok, err := s.repo.UpdateStatus(ctx, s.db, event.ID, event.Status, req.To, endedAt, now)
	if err != nil {
		return domain.Event{}, err
	}
	if !ok {
		// Lost a race with another transition.
		return domain.Event{}, domain.ErrInvalidTransition
	}

	s.log.Info("event.status.changed",
		zap.String("event_id", event.ID.String()),
		zap.String("from", string(event.Status)),
		zap.String("to", string(req.To)),
	)

	event.Status = req.To
	if endedAt != nil && event.EndedAt == nil {
		event.EndedAt = endedAt
	}
	event.UpdatedAt = now
	return *event, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.Event, error) {
	event, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Event{}, err
	}
	if event == nil {
		return domain.Event{}, domain.ErrNotFound
	}
	return *event, nil
}

func (s *Service) ownedEvent(ctx context.Context, tx *gorm.DB, eventID, artistID snowflake.ID) (*domain.Event, error) {
	event, err := s.repo.FindByID(ctx, tx, eventID)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, domain.ErrNotFound
	}
	if event.ArtistID != artistID {
		return nil, domain.ErrNotOwner
	}
	return event, nil
}

// resolvePrice validates the artist's chosen price with the same resolver the
// purchase path uses. A happy-hour event stores the promo price in both
// columns so the listing and checkout agree.
func (s *Service) resolvePrice(artist artistdomain.Artist, basePrice int64, happyHour bool, slot time.Time) (int64, *int64, error) {
	quote, err := s.pricing.Resolve(pricing.Request{
		BasePrice: basePrice,
		HappyHour: happyHour,
		Tier:      string(artist.SubscriptionTier),
		Slot:      slot,
	})
	if err != nil {
		return 0, nil, err
	}
	if quote.IsPromo {
		promo := quote.Price
		return quote.Price, &promo, nil
	}
	return quote.Price, nil, nil
}
