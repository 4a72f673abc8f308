package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	affiliaterepository "github.com/smallbiznis/stagepass/internal/affiliate/repository"
	affiliateservice "github.com/smallbiznis/stagepass/internal/affiliate/service"
	artistrepository "github.com/smallbiznis/stagepass/internal/artist/repository"
	"github.com/smallbiznis/stagepass/internal/clock"
	"github.com/smallbiznis/stagepass/internal/config"
	eventdomain "github.com/smallbiznis/stagepass/internal/event/domain"
	eventrepository "github.com/smallbiznis/stagepass/internal/event/repository"
	paymentdomain "github.com/smallbiznis/stagepass/internal/payment/domain"
	"github.com/smallbiznis/stagepass/internal/pricing"
	"github.com/smallbiznis/stagepass/internal/testutil/dbtest"
	"github.com/smallbiznis/stagepass/internal/testutil/paymenttest"
	"github.com/smallbiznis/stagepass/internal/ticket/domain"
	"github.com/smallbiznis/stagepass/internal/ticket/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type purchaseFixture struct {
	svc       domain.Service
	db        *gorm.DB
	processor *paymenttest.Processor
}

func setupPurchase(t *testing.T) purchaseFixture {
	t.Helper()
	db := dbtest.Open(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zaptest.NewLogger(t)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	processor := new(paymenttest.Processor)

	svc := New(Params{
		DB:         db,
		Log:        log,
		GenID:      node,
		Repo:       repository.Provide(),
		EventRepo:  eventrepository.Provide(),
		ArtistRepo: artistrepository.Provide(),
		Affiliates: affiliateservice.New(affiliateservice.Params{
			DB:    db,
			Log:   log,
			GenID: node,
			Repo:  affiliaterepository.Provide(),
			Clock: clk,
		}),
		Pricing:   pricing.New(config.NewStaticSettlementConfigHolder(config.DefaultSettlementConfig()), time.UTC),
		Processor: processor,
		Clock:     clk,
	})

	dbtest.SeedArtist(t, db, 1, "starter", "acct_artist", true)
	return purchaseFixture{svc: svc, db: db, processor: processor}
}

func (f purchaseFixture) expectAuthorization(ref string) *mock.Call {
	return f.processor.On("CreateAuthorization", mock.Anything, mock.AnythingOfType("domain.AuthorizationRequest")).
		Return(paymentdomain.Authorization{ID: ref, ClientToken: ref + "_secret"}, nil).Once()
}

func TestPurchaseWithReferralChain(t *testing.T) {
	f := setupPurchase(t)
	dbtest.SeedEvent(t, f.db, dbtest.EventFixture{ID: 10, ArtistID: 1, TicketPrice: 1000})
	dbtest.SeedAffiliate(t, f.db, 100, "aff-root", "ROOT0001", nil, nil, 1, true)
	dbtest.SeedAffiliate(t, f.db, 101, "aff-mid", "MID00001", dbtest.SnowflakeID(100), nil, 2, true)
	dbtest.SeedAffiliate(t, f.db, 102, "aff-leaf", "LEAF0001", dbtest.SnowflakeID(101), dbtest.SnowflakeID(100), 3, true)

	var captured paymentdomain.AuthorizationRequest
	f.expectAuthorization("pi_1").Run(func(args mock.Arguments) {
		captured = args.Get(1).(paymentdomain.AuthorizationRequest)
	})

	res, err := f.svc.Purchase(context.Background(), domain.PurchaseRequest{EventID: 10, UserID: "fan-1", ReferralCode: "leaf0001"})
	require.NoError(t, err)
	assert.Equal(t, "pi_1_secret", res.ClientToken)
	assert.Equal(t, int64(1000), res.Price)
	assert.False(t, res.IsPromo)

	assert.Equal(t, int64(1000), captured.Amount)
	assert.Equal(t, "acct_artist", captured.DestinationAccount)
	assert.Equal(t, int64(50), captured.ApplicationFee)
	assert.Equal(t, res.TicketID.String(), captured.Metadata[paymentdomain.MetadataTicketID])
	assert.Equal(t, "10", captured.Metadata[paymentdomain.MetadataEventID])
	assert.Equal(t, "fan-1", captured.Metadata[paymentdomain.MetadataUserID])
	assert.Equal(t, "1", captured.Metadata[paymentdomain.MetadataArtistID])

	ticket, err := repository.Provide().FindByID(context.Background(), f.db, res.TicketID)
	require.NoError(t, err)
	require.NotNil(t, ticket)
	assert.Equal(t, domain.StatusPending, ticket.Status)
	assert.Equal(t, "pi_1", ticket.PaymentIntentRef)
	require.NotNil(t, ticket.AffiliateID)
	assert.Equal(t, snowflake.ID(102), *ticket.AffiliateID)

	commissions, err := repository.Provide().ListCommissions(context.Background(), f.db, res.TicketID)
	require.NoError(t, err)
	require.Len(t, commissions, 3)
	assert.Equal(t, snowflake.ID(102), commissions[0].AffiliateID)
	assert.Equal(t, int64(25), commissions[0].CommissionAmount)
	assert.Equal(t, snowflake.ID(101), commissions[1].AffiliateID)
	assert.Equal(t, int64(15), commissions[1].CommissionAmount)
	assert.Equal(t, snowflake.ID(100), commissions[2].AffiliateID)
	assert.Equal(t, int64(10), commissions[2].CommissionAmount)
	for _, c := range commissions {
		assert.Equal(t, domain.CommissionPending, c.Status)
	}
	f.processor.AssertExpectations(t)
}

func TestPurchaseWithoutOrUnknownReferralHasNoCommissions(t *testing.T) {
	f := setupPurchase(t)
	dbtest.SeedEvent(t, f.db, dbtest.EventFixture{ID: 10, ArtistID: 1, TicketPrice: 800})
	dbtest.SeedAffiliate(t, f.db, 100, "aff-off", "OFF00001", nil, nil, 1, false)

	f.expectAuthorization("pi_a")
	f.expectAuthorization("pi_b")

	_, err := f.svc.Purchase(context.Background(), domain.PurchaseRequest{EventID: 10, UserID: "fan-1"})
	require.NoError(t, err)
	_, err = f.svc.Purchase(context.Background(), domain.PurchaseRequest{EventID: 10, UserID: "fan-2", ReferralCode: "OFF00001"})
	require.NoError(t, err)

	assert.Equal(t, int64(0), dbtest.Count(t, f.db, "commissions", ""))
	assert.Equal(t, int64(2), dbtest.Count(t, f.db, "tickets", "status = ?", "pending"))
}

func TestPurchaseHappyHourPrice(t *testing.T) {
	f := setupPurchase(t)
	promo := int64(499)
	dbtest.SeedEvent(t, f.db, dbtest.EventFixture{
		ID:             10,
		ArtistID:       1,
		TicketPrice:    499,
		HappyHourPrice: &promo,
		ScheduledAt:    time.Date(2026, 3, 4, 20, 0, 0, 0, time.UTC),
	})
	f.expectAuthorization("pi_hh")

	res, err := f.svc.Purchase(context.Background(), domain.PurchaseRequest{EventID: 10, UserID: "fan-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(499), res.Price)
	assert.True(t, res.IsPromo)
}

func TestPurchasePreconditionsInOrder(t *testing.T) {
	f := setupPurchase(t)
	dbtest.SeedArtist(t, f.db, 2, "pro", "", false)
	dbtest.SeedEvent(t, f.db, dbtest.EventFixture{ID: 10, ArtistID: 1, Status: "ended"})
	// Sold out and owned by an unpayable artist: sold out wins.
	dbtest.SeedEvent(t, f.db, dbtest.EventFixture{ID: 11, ArtistID: 2, Capacity: dbtest.Int64(1), CurrentAttendees: 1})
	dbtest.SeedEvent(t, f.db, dbtest.EventFixture{ID: 12, ArtistID: 2, TicketPrice: 1000})
	dbtest.SeedEvent(t, f.db, dbtest.EventFixture{ID: 13, ArtistID: 1, Status: "live"})
	dbtest.SeedTicket(t, f.db, 500, 13, "fan-1", 1000, "confirmed", "pi_existing")
	ctx := context.Background()

	_, err := f.svc.Purchase(ctx, domain.PurchaseRequest{EventID: 99, UserID: "fan-1"})
	assert.ErrorIs(t, err, eventdomain.ErrNotFound)

	_, err = f.svc.Purchase(ctx, domain.PurchaseRequest{EventID: 10, UserID: "fan-1"})
	assert.ErrorIs(t, err, domain.ErrEventNotOnSale)

	_, err = f.svc.Purchase(ctx, domain.PurchaseRequest{EventID: 11, UserID: "fan-1"})
	assert.ErrorIs(t, err, domain.ErrSoldOut)

	_, err = f.svc.Purchase(ctx, domain.PurchaseRequest{EventID: 12, UserID: "fan-1"})
	assert.ErrorIs(t, err, domain.ErrArtistNotPayable)

	_, err = f.svc.Purchase(ctx, domain.PurchaseRequest{EventID: 13, UserID: "fan-1"})
	assert.ErrorIs(t, err, domain.ErrDuplicateTicket)

	_, err = f.svc.Purchase(ctx, domain.PurchaseRequest{EventID: 13, UserID: " "})
	assert.ErrorIs(t, err, domain.ErrInvalidUser)

	f.processor.AssertNotCalled(t, "CreateAuthorization", mock.Anything, mock.Anything)
}

func TestPurchaseAllowedAfterFailedTicket(t *testing.T) {
	f := setupPurchase(t)
	dbtest.SeedEvent(t, f.db, dbtest.EventFixture{ID: 10, ArtistID: 1})
	dbtest.SeedTicket(t, f.db, 500, 10, "fan-1", 1000, "failed", "pi_failed")
	f.expectAuthorization("pi_retry")

	res, err := f.svc.Purchase(context.Background(), domain.PurchaseRequest{EventID: 10, UserID: "fan-1"})
	require.NoError(t, err)
	assert.NotZero(t, res.TicketID)
	assert.Equal(t, int64(2), dbtest.Count(t, f.db, "tickets", "event_id = ? AND user_id = ?", 10, "fan-1"))
}

func TestPurchaseAuthorizationFailurePersistsNothing(t *testing.T) {
	f := setupPurchase(t)
	dbtest.SeedEvent(t, f.db, dbtest.EventFixture{ID: 10, ArtistID: 1})
	dbtest.SeedAffiliate(t, f.db, 100, "aff-root", "ROOT0001", nil, nil, 1, true)
	f.processor.On("CreateAuthorization", mock.Anything, mock.Anything).
		Return(paymentdomain.Authorization{}, fmt.Errorf("%w: card network timeout", paymentdomain.ErrUpstream)).Once()

	_, err := f.svc.Purchase(context.Background(), domain.PurchaseRequest{EventID: 10, UserID: "fan-1", ReferralCode: "ROOT0001"})
	assert.ErrorIs(t, err, paymentdomain.ErrUpstream)
	assert.Equal(t, int64(0), dbtest.Count(t, f.db, "tickets", ""))
	assert.Equal(t, int64(0), dbtest.Count(t, f.db, "commissions", ""))
}

func TestPurchasePersistenceFailureCancelsAuthorization(t *testing.T) {
	f := setupPurchase(t)
	dbtest.SeedEvent(t, f.db, dbtest.EventFixture{ID: 10, ArtistID: 1})
	// A foreign ticket already holds the payment intent reference.
	dbtest.SeedEvent(t, f.db, dbtest.EventFixture{ID: 11, ArtistID: 1})
	dbtest.SeedTicket(t, f.db, 500, 11, "fan-9", 1000, "pending", "pi_taken")

	f.expectAuthorization("pi_taken")
	f.processor.On("CancelAuthorization", mock.Anything, "pi_taken").Return(nil).Once()

	_, err := f.svc.Purchase(context.Background(), domain.PurchaseRequest{EventID: 10, UserID: "fan-1"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrDuplicateTicket)
	assert.Equal(t, int64(0), dbtest.Count(t, f.db, "tickets", "event_id = ?", 10))
	f.processor.AssertExpectations(t)
}

func TestPurchaseConcurrentLiveTicketIsDuplicate(t *testing.T) {
	f := setupPurchase(t)
	dbtest.SeedEvent(t, f.db, dbtest.EventFixture{ID: 10, ArtistID: 1})

	// The competing purchase lands while the authorization is in flight.
	f.expectAuthorization("pi_late").Run(func(mock.Arguments) {
		dbtest.SeedTicket(t, f.db, 500, 10, "fan-1", 1000, "pending", "pi_first")
	})
	f.processor.On("CancelAuthorization", mock.Anything, "pi_late").Return(nil).Once()

	_, err := f.svc.Purchase(context.Background(), domain.PurchaseRequest{EventID: 10, UserID: "fan-1"})
	assert.ErrorIs(t, err, domain.ErrDuplicateTicket)
	assert.Equal(t, int64(1), dbtest.Count(t, f.db, "tickets", "event_id = ? AND user_id = ?", 10, "fan-1"))
	assert.Equal(t, int64(0), dbtest.Count(t, f.db, "tickets", "payment_intent_ref = ?", "pi_late"))
	f.processor.AssertExpectations(t)
}
