package reconciler

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	artistrepository "github.com/smallbiznis/stagepass/internal/artist/repository"
	"github.com/smallbiznis/stagepass/internal/clock"
	eventrepository "github.com/smallbiznis/stagepass/internal/event/repository"
	paymentdomain "github.com/smallbiznis/stagepass/internal/payment/domain"
	paymentrepository "github.com/smallbiznis/stagepass/internal/payment/repository"
	"github.com/smallbiznis/stagepass/internal/testutil/dbtest"
	ticketrepository "github.com/smallbiznis/stagepass/internal/ticket/repository"
	tiprepository "github.com/smallbiznis/stagepass/internal/tip/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

func setup(t *testing.T) (paymentdomain.Reconciler, *gorm.DB) {
	t.Helper()
	db := dbtest.Open(t)
	r := New(Params{
		DB:      db,
		Log:     zaptest.NewLogger(t),
		Repo:    paymentrepository.Provide(),
		Tickets: ticketrepository.Provide(),
		Events:  eventrepository.Provide(),
		Tips:    tiprepository.Provide(),
		Artists: artistrepository.Provide(),
		Clock:   clock.NewFakeClock(time.Date(2026, 3, 6, 22, 0, 0, 0, time.UTC)),
	})
	dbtest.SeedArtist(t, db, 1, "starter", "acct_1", true)
	return r, db
}

func ticketEvent(id, eventType string, ticketID int64) *paymentdomain.PaymentEvent {
	tid := snowflake.ID(ticketID)
	return &paymentdomain.PaymentEvent{
		Provider:        "stripe",
		ProviderEventID: id,
		Type:            eventType,
		Kind:            paymentdomain.KindTicket,
		TicketID:        &tid,
		Amount:          1000,
		Currency:        "eur",
		OccurredAt:      time.Date(2026, 3, 6, 21, 30, 0, 0, time.UTC),
		RawPayload:      []byte(`{"id":"` + id + `"}`),
	}
}

func ticketStatus(t *testing.T, db *gorm.DB, id int64) string {
	t.Helper()
	var status string
	require.NoError(t, db.Raw(`SELECT status FROM tickets WHERE id = ?`, id).Scan(&status).Error)
	return status
}

func attendees(t *testing.T, db *gorm.DB, eventID int64) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Raw(`SELECT current_attendees FROM events WHERE id = ?`, eventID).Scan(&n).Error)
	return n
}

func TestApplyIsIdempotent(t *testing.T) {
	r, db := setup(t)
	dbtest.SeedEvent(t, db, dbtest.EventFixture{ID: 10, ArtistID: 1})
	dbtest.SeedTicket(t, db, 500, 10, "fan-1", 1000, "pending", "pi_1")
	ctx := context.Background()

	require.NoError(t, r.Apply(ctx, ticketEvent("evt_1", paymentdomain.EventTypePaymentSucceeded, 500)))
	for i := 0; i < 3; i++ {
		err := r.Apply(ctx, ticketEvent("evt_1", paymentdomain.EventTypePaymentSucceeded, 500))
		assert.ErrorIs(t, err, paymentdomain.ErrIdempotencyViolation)
	}

	assert.Equal(t, "confirmed", ticketStatus(t, db, 500))
	assert.Equal(t, int64(1), attendees(t, db, 10))
	assert.Equal(t, int64(1), dbtest.Count(t, db, "idempotency_records", "external_event_id = ?", "evt_1"))
	assert.Equal(t, int64(1), dbtest.Count(t, db, "tickets", "id = ? AND confirmed_at IS NOT NULL", 500))
}

func TestApplyTicketTransitions(t *testing.T) {
	r, db := setup(t)
	dbtest.SeedEvent(t, db, dbtest.EventFixture{ID: 10, ArtistID: 1})
	dbtest.SeedTicket(t, db, 500, 10, "fan-1", 1000, "pending", "pi_1")
	dbtest.SeedTicket(t, db, 501, 10, "fan-2", 1000, "pending", "pi_2")
	ctx := context.Background()

	require.NoError(t, r.Apply(ctx, ticketEvent("evt_fail", paymentdomain.EventTypePaymentFailed, 501)))
	assert.Equal(t, "failed", ticketStatus(t, db, 501))

	// A success after failure leaves the terminal state alone.
	require.NoError(t, r.Apply(ctx, ticketEvent("evt_late", paymentdomain.EventTypePaymentSucceeded, 501)))
	assert.Equal(t, "failed", ticketStatus(t, db, 501))
	assert.Equal(t, int64(0), attendees(t, db, 10))

	require.NoError(t, r.Apply(ctx, ticketEvent("evt_ok", paymentdomain.EventTypePaymentSucceeded, 500)))
	require.NoError(t, r.Apply(ctx, ticketEvent("evt_refund", paymentdomain.EventTypeRefunded, 500)))
	assert.Equal(t, "refunded", ticketStatus(t, db, 500))
	assert.Equal(t, int64(1), attendees(t, db, 10), "refunds keep the attendee count")
}

func TestApplyMatchesTicketByPaymentIntent(t *testing.T) {
	r, db := setup(t)
	dbtest.SeedEvent(t, db, dbtest.EventFixture{ID: 10, ArtistID: 1})
	dbtest.SeedTicket(t, db, 500, 10, "fan-1", 1000, "confirmed", "pi_1")

	event := &paymentdomain.PaymentEvent{
		Provider:          "stripe",
		ProviderEventID:   "evt_refund",
		ProviderPaymentID: "pi_1",
		Type:              paymentdomain.EventTypeRefunded,
	}
	require.NoError(t, r.Apply(context.Background(), event))
	assert.Equal(t, "refunded", ticketStatus(t, db, 500))
}

func TestApplyOverCapacityCancelsTicket(t *testing.T) {
	r, db := setup(t)
	dbtest.SeedEvent(t, db, dbtest.EventFixture{ID: 10, ArtistID: 1, Capacity: dbtest.Int64(1), CurrentAttendees: 1})
	dbtest.SeedTicket(t, db, 500, 10, "fan-1", 1000, "pending", "pi_1")

	require.NoError(t, r.Apply(context.Background(), ticketEvent("evt_1", paymentdomain.EventTypePaymentSucceeded, 500)))
	assert.Equal(t, "cancelled", ticketStatus(t, db, 500))
	assert.Equal(t, int64(1), attendees(t, db, 10))
}

func TestApplyUnknownTicketRollsBackRecord(t *testing.T) {
	r, db := setup(t)

	err := r.Apply(context.Background(), ticketEvent("evt_1", paymentdomain.EventTypePaymentSucceeded, 999))
	assert.ErrorIs(t, err, paymentdomain.ErrTicketNotFound)
	assert.Equal(t, int64(0), dbtest.Count(t, db, "idempotency_records", ""))
}

func TestApplyIgnoresUnhandledTypes(t *testing.T) {
	r, db := setup(t)

	err := r.Apply(context.Background(), &paymentdomain.PaymentEvent{ProviderEventID: "evt_1", Type: "invoice_paid"})
	assert.ErrorIs(t, err, paymentdomain.ErrEventIgnored)
	assert.ErrorIs(t, r.Apply(context.Background(), &paymentdomain.PaymentEvent{Type: "payment_succeeded"}), paymentdomain.ErrInvalidEvent)
	assert.Equal(t, int64(0), dbtest.Count(t, db, "idempotency_records", ""))
}

func TestApplyTip(t *testing.T) {
	r, db := setup(t)
	dbtest.SeedTip(t, db, 700, 1, "fan-1", 300, "pi_tip")
	dbtest.SeedTip(t, db, 701, 1, "fan-2", 300, "pi_tip_2")
	ctx := context.Background()

	tipID := snowflake.ID(700)
	require.NoError(t, r.Apply(ctx, &paymentdomain.PaymentEvent{
		Provider:        "stripe",
		ProviderEventID: "evt_tip",
		Type:            paymentdomain.EventTypePaymentSucceeded,
		Kind:            paymentdomain.KindTip,
		TipID:           &tipID,
	}))
	require.NoError(t, r.Apply(ctx, &paymentdomain.PaymentEvent{
		Provider:          "stripe",
		ProviderEventID:   "evt_tip_2",
		ProviderPaymentID: "pi_tip_2",
		Type:              paymentdomain.EventTypePaymentFailed,
		Kind:              paymentdomain.KindTip,
	}))

	assert.Equal(t, int64(1), dbtest.Count(t, db, "tips", "id = ? AND status = ?", 700, "completed"))
	assert.Equal(t, int64(1), dbtest.Count(t, db, "tips", "id = ? AND status = ?", 701, "failed"))
}

func TestApplySubscription(t *testing.T) {
	r, db := setup(t)
	ctx := context.Background()
	artistID := snowflake.ID(1)
	periodEnd := time.Date(2026, 4, 6, 0, 0, 0, 0, time.UTC)

	require.NoError(t, r.Apply(ctx, &paymentdomain.PaymentEvent{
		Provider:        "stripe",
		ProviderEventID: "evt_sub_1",
		Type:            paymentdomain.EventTypeSubscriptionUpdated,
		Subscription: &paymentdomain.SubscriptionChange{
			ProviderSubscriptionID: "sub_1",
			ArtistID:               &artistID,
			Tier:                   "elite",
			Status:                 "active",
			CurrentPeriodEnd:       &periodEnd,
		},
	}))
	assert.Equal(t, int64(1), dbtest.Count(t, db, "artists", "id = 1 AND subscription_tier = 'elite' AND tier_expires_at IS NOT NULL"))

	require.NoError(t, r.Apply(ctx, &paymentdomain.PaymentEvent{
		Provider:        "stripe",
		ProviderEventID: "evt_sub_2",
		Type:            paymentdomain.EventTypeSubscriptionUpdated,
		Subscription: &paymentdomain.SubscriptionChange{
			ProviderSubscriptionID: "sub_1",
			ArtistID:               &artistID,
			Tier:                   "elite",
			Status:                 "unpaid",
		},
	}))
	assert.Equal(t, int64(1), dbtest.Count(t, db, "artists", "id = 1 AND subscription_tier = 'starter' AND tier_expires_at IS NULL"))
}

func TestApplyAccountUpdated(t *testing.T) {
	r, db := setup(t)
	dbtest.SeedArtist(t, db, 2, "pro", "acct_2", false)
	ctx := context.Background()

	require.NoError(t, r.Apply(ctx, &paymentdomain.PaymentEvent{
		Provider:        "stripe",
		ProviderEventID: "evt_acct_1",
		Type:            paymentdomain.EventTypeAccountUpdated,
		Account:         &paymentdomain.AccountChange{AccountRef: "acct_2", ChargesEnabled: true},
	}))
	assert.Equal(t, int64(1), dbtest.Count(t, db, "artists", "id = 2 AND connect_completed = FALSE"))

	require.NoError(t, r.Apply(ctx, &paymentdomain.PaymentEvent{
		Provider:        "stripe",
		ProviderEventID: "evt_acct_2",
		Type:            paymentdomain.EventTypeAccountUpdated,
		Account: &paymentdomain.AccountChange{
			AccountRef:       "acct_2",
			ChargesEnabled:   true,
			PayoutsEnabled:   true,
			DetailsSubmitted: true,
		},
	}))
	assert.Equal(t, int64(1), dbtest.Count(t, db, "artists", "id = 2 AND connect_completed = TRUE"))

	// Unknown accounts are acknowledged.
	require.NoError(t, r.Apply(ctx, &paymentdomain.PaymentEvent{
		Provider:        "stripe",
		ProviderEventID: "evt_acct_3",
		Type:            paymentdomain.EventTypeAccountUpdated,
		Account:         &paymentdomain.AccountChange{AccountRef: "acct_unknown", ChargesEnabled: true, PayoutsEnabled: true, DetailsSubmitted: true},
	}))
}
