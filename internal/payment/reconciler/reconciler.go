// Package reconciler applies verified processor events to tickets, tips and
// artists exactly once.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	artistdomain "github.com/smallbiznis/stagepass/internal/artist/domain"
	"github.com/smallbiznis/stagepass/internal/clock"
	eventdomain "github.com/smallbiznis/stagepass/internal/event/domain"
	obsmetrics "github.com/smallbiznis/stagepass/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/stagepass/internal/payment/domain"
	ticketdomain "github.com/smallbiznis/stagepass/internal/ticket/domain"
	tipdomain "github.com/smallbiznis/stagepass/internal/tip/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Repo       paymentdomain.Repository
	Tickets    ticketdomain.Repository
	Events     eventdomain.Repository
	Tips       tipdomain.Repository
	Artists    artistdomain.Repository
	Clock      clock.Clock
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// handler mutates state for one event type inside the reconciliation
// transaction.
type handler func(ctx context.Context, tx *gorm.DB, event *paymentdomain.PaymentEvent, now time.Time) error

type Reconciler struct {
	db         *gorm.DB
	log        *zap.Logger
	repo       paymentdomain.Repository
	tickets    ticketdomain.Repository
	events     eventdomain.Repository
	tips       tipdomain.Repository
	artists    artistdomain.Repository
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics
	handlers   map[string]handler
}

func New(p Params) paymentdomain.Reconciler {
	r := &Reconciler{
		db:         p.DB,
		log:        p.Log.Named("payment.reconciler"),
		repo:       p.Repo,
		tickets:    p.Tickets,
		events:     p.Events,
		tips:       p.Tips,
		artists:    p.Artists,
		clock:      p.Clock,
		obsMetrics: p.ObsMetrics,
	}
	r.handlers = map[string]handler{
		paymentdomain.EventTypePaymentSucceeded:    r.paymentOutcome(ticketdomain.OutcomeSucceeded),
		paymentdomain.EventTypePaymentFailed:       r.paymentOutcome(ticketdomain.OutcomeFailed),
		paymentdomain.EventTypeRefunded:            r.paymentOutcome(ticketdomain.OutcomeRefunded),
		paymentdomain.EventTypeSubscriptionUpdated: r.applySubscription,
		paymentdomain.EventTypeSubscriptionDeleted: r.applySubscription,
		paymentdomain.EventTypeAccountUpdated:      r.applyAccount,
	}
	return r
}

// Apply records the event id and runs its handler in one transaction, so a
// redelivered event is either fully applied once or not at all.
func (r *Reconciler) Apply(ctx context.Context, event *paymentdomain.PaymentEvent) error {
	if event == nil || strings.TrimSpace(event.ProviderEventID) == "" || strings.TrimSpace(event.Type) == "" {
		return paymentdomain.ErrInvalidEvent
	}
	handle, ok := r.handlers[event.Type]
	if !ok {
		return paymentdomain.ErrEventIgnored
	}

	now := r.clock.Now()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inserted, err := r.repo.InsertIdempotencyRecord(ctx, tx, &paymentdomain.IdempotencyRecord{
			ExternalEventID: event.ProviderEventID,
			Provider:        event.Provider,
			EventType:       event.Type,
			Payload:         datatypes.JSON(event.RawPayload),
			ProcessedAt:     now,
		})
		if err != nil {
			return err
		}
		if !inserted {
			return paymentdomain.ErrIdempotencyViolation
		}
		return handle(ctx, tx, event, now)
	})

	r.obsMetrics.RecordPaymentEvent(ctx, event.Provider, event.Type, applyOutcome(err))
	switch {
	case err == nil:
		r.log.Info("reconciler.event.applied",
			zap.String("provider_event_id", event.ProviderEventID),
			zap.String("event_type", event.Type),
		)
	case errors.Is(err, paymentdomain.ErrIdempotencyViolation):
		r.log.Debug("reconciler.event.duplicate", zap.String("provider_event_id", event.ProviderEventID))
	default:
		r.log.Warn("reconciler.event.failed",
			zap.String("provider_event_id", event.ProviderEventID),
			zap.String("event_type", event.Type),
			zap.Error(err),
		)
	}
	return err
}

func (r *Reconciler) paymentOutcome(outcome ticketdomain.Outcome) handler {
	return func(ctx context.Context, tx *gorm.DB, event *paymentdomain.PaymentEvent, now time.Time) error {
		if event.Kind == paymentdomain.KindTip || event.TipID != nil {
			return r.applyTip(ctx, tx, event, outcome, now)
		}
		return r.applyTicket(ctx, tx, event, outcome, now)
	}
}

func (r *Reconciler) applyTicket(ctx context.Context, tx *gorm.DB, event *paymentdomain.PaymentEvent, outcome ticketdomain.Outcome, now time.Time) error {
	ticket, err := r.tickets.FindForUpdate(ctx, tx, idOrZero(event.TicketID), event.ProviderPaymentID)
	if err != nil {
		return err
	}
	if ticket == nil {
		return paymentdomain.ErrTicketNotFound
	}

	log := r.log.With(
		zap.String("ticket_id", ticket.ID.String()),
		zap.String("event_id", ticket.EventID.String()),
	)
	decision := ticketdomain.Decide(outcome, ticket.Status)
	if !decision.Changed {
		log.Debug("reconciler.ticket.noop",
			zap.String("status", string(ticket.Status)),
			zap.String("outcome", string(outcome)),
		)
		return nil
	}

	next := decision.Next
	var confirmedAt *time.Time
	if decision.IncrementAttendees {
		err := r.events.IncrementAttendees(ctx, tx, ticket.EventID, now)
		switch {
		case errors.Is(err, eventdomain.ErrCapacityReached):
			next = ticketdomain.StatusCancelled
			log.Warn("reconciler.ticket.over_capacity",
				zap.String("payment_intent_ref", ticket.PaymentIntentRef),
				zap.Int64("amount", ticket.PurchasePrice),
			)
			r.obsMetrics.RecordOverCapacity(ctx)
		case err != nil:
			return err
		default:
			confirmedAt = &now
		}
	}

	updated, err := r.tickets.UpdateStatus(ctx, tx, ticket.ID, ticket.Status, next, confirmedAt, now)
	if err != nil {
		return err
	}
	if !updated {
		return fmt.Errorf("ticket %s left status %s concurrently", ticket.ID, ticket.Status)
	}
	log.Info("reconciler.ticket.transitioned",
		zap.String("from", string(ticket.Status)),
		zap.String("to", string(next)),
	)
	return nil
}

func (r *Reconciler) applyTip(ctx context.Context, tx *gorm.DB, event *paymentdomain.PaymentEvent, outcome ticketdomain.Outcome, now time.Time) error {
	tip, err := r.tips.FindForUpdate(ctx, tx, idOrZero(event.TipID), event.ProviderPaymentID)
	if err != nil {
		return err
	}
	if tip == nil {
		return paymentdomain.ErrTipNotFound
	}

	var next tipdomain.Status
	switch outcome {
	case ticketdomain.OutcomeSucceeded:
		next = tipdomain.StatusCompleted
	case ticketdomain.OutcomeFailed:
		next = tipdomain.StatusFailed
	}
	if tip.Status != tipdomain.StatusPending || next == "" {
		r.log.Debug("reconciler.tip.noop",
			zap.String("tip_id", tip.ID.String()),
			zap.String("status", string(tip.Status)),
			zap.String("outcome", string(outcome)),
		)
		return nil
	}

	if _, err := r.tips.UpdateStatus(ctx, tx, tip.ID, tipdomain.StatusPending, next, now); err != nil {
		return err
	}
	r.log.Info("reconciler.tip.transitioned", zap.String("tip_id", tip.ID.String()), zap.String("to", string(next)))
	return nil
}

func (r *Reconciler) applySubscription(ctx context.Context, tx *gorm.DB, event *paymentdomain.PaymentEvent, now time.Time) error {
	sub := event.Subscription
	if sub == nil {
		return paymentdomain.ErrInvalidEvent
	}
	if sub.ArtistID == nil {
		r.log.Warn("reconciler.subscription.unmatched", zap.String("subscription_id", sub.ProviderSubscriptionID))
		return nil
	}

	tier := artistdomain.TierStarter
	expiresAt := sub.CurrentPeriodEnd
	if event.Type == paymentdomain.EventTypeSubscriptionDeleted || sub.Downgrades() {
		expiresAt = nil
	} else {
		parsed, err := artistdomain.ParseTier(sub.Tier)
		if err != nil {
			r.log.Warn("reconciler.subscription.unknown_tier",
				zap.String("subscription_id", sub.ProviderSubscriptionID),
				zap.String("tier", sub.Tier),
			)
			return nil
		}
		tier = parsed
	}

	updated, err := r.artists.UpdateSubscription(ctx, tx, *sub.ArtistID, tier, expiresAt, now)
	if err != nil {
		return err
	}
	if !updated {
		r.log.Warn("reconciler.subscription.unmatched", zap.String("artist_id", sub.ArtistID.String()))
		return nil
	}
	r.log.Info("reconciler.subscription.applied",
		zap.String("artist_id", sub.ArtistID.String()),
		zap.String("tier", string(tier)),
	)
	return nil
}

func (r *Reconciler) applyAccount(ctx context.Context, tx *gorm.DB, event *paymentdomain.PaymentEvent, now time.Time) error {
	account := event.Account
	if account == nil || strings.TrimSpace(account.AccountRef) == "" {
		return paymentdomain.ErrInvalidEvent
	}
	if !account.OnboardingCompleted() {
		return nil
	}
	updated, err := r.artists.MarkConnectCompleted(ctx, tx, account.AccountRef, now)
	if err != nil {
		return err
	}
	if !updated {
		r.log.Warn("reconciler.account.unmatched")
		return nil
	}
	r.log.Info("reconciler.account.connected")
	return nil
}

func idOrZero(id *snowflake.ID) snowflake.ID {
	if id == nil {
		return 0
	}
	return *id
}

func applyOutcome(err error) string {
	switch {
	case err == nil:
		return "applied"
	case errors.Is(err, paymentdomain.ErrIdempotencyViolation):
		return "duplicate"
	case errors.Is(err, paymentdomain.ErrTicketNotFound), errors.Is(err, paymentdomain.ErrTipNotFound):
		return "unmatched"
	}
	return "error"
}
