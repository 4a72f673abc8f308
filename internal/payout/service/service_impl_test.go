package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	artistrepository "github.com/smallbiznis/stagepass/internal/artist/repository"
	"github.com/smallbiznis/stagepass/internal/clock"
	"github.com/smallbiznis/stagepass/internal/config"
	eventrepository "github.com/smallbiznis/stagepass/internal/event/repository"
	paymentdomain "github.com/smallbiznis/stagepass/internal/payment/domain"
	"github.com/smallbiznis/stagepass/internal/payout/domain"
	"github.com/smallbiznis/stagepass/internal/payout/repository"
	"github.com/smallbiznis/stagepass/internal/testutil/dbtest"
	"github.com/smallbiznis/stagepass/internal/testutil/paymenttest"
	"github.com/smallbiznis/stagepass/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

var (
	runAt   = time.Date(2026, 3, 28, 2, 0, 0, 0, time.UTC)
	endedAt = time.Date(2026, 3, 7, 22, 30, 0, 0, time.UTC)
)

type fixture struct {
	svc       domain.Service
	db        *gorm.DB
	processor *paymenttest.Processor
}

func setup(t *testing.T) fixture {
	t.Helper()
	db := dbtest.Open(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	processor := new(paymenttest.Processor)
	svc := New(Params{
		DB:         db,
		Log:        zaptest.NewLogger(t),
		Cfg:        config.Config{Timezone: "UTC"},
		Rules:      config.NewStaticSettlementConfigHolder(config.DefaultSettlementConfig()),
		GenID:      node,
		Repo:       repository.Provide(),
		EventRepo:  eventrepository.Provide(),
		ArtistRepo: artistrepository.Provide(),
		Processor:  processor,
		Clock:      clock.NewFakeClock(runAt),
	})
	return fixture{svc: svc, db: db, processor: processor}
}

// seedEndedEvent creates an ended event with n confirmed tickets priced at
// price cents, returning the ticket ids.
func (f fixture) seedEndedEvent(t *testing.T, eventID, artistID int64, n int, price int64) []int64 {
	t.Helper()
	ended := endedAt
	dbtest.SeedEvent(t, f.db, dbtest.EventFixture{ID: eventID, ArtistID: artistID, TicketPrice: price, Status: "ended", EndedAt: &ended})
	ids := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		id := eventID*1000 + int64(i)
		dbtest.SeedTicket(t, f.db, id, eventID, fmt.Sprintf("fan-%d", i), price, "confirmed", fmt.Sprintf("pi_%d", id))
		ids = append(ids, id)
	}
	return ids
}

func (f fixture) expectTransfer(amount int64, ref string) *mock.Call {
	return f.processor.On("CreateTransfer", mock.Anything, mock.MatchedBy(func(req paymentdomain.TransferRequest) bool {
		return req.Amount == amount
	})).Return(paymentdomain.Transfer{ID: ref}, nil)
}

func (f fixture) payout(t *testing.T, eventID int64) domain.Payout {
	t.Helper()
	var p domain.Payout
	require.NoError(t, f.db.Raw(`SELECT * FROM payouts WHERE event_id = ?`, eventID).Scan(&p).Error)
	require.NotZero(t, p.ID)
	return p
}

func TestRunSettlementStarterWithCommissions(t *testing.T) {
	f := setup(t)
	dbtest.SeedArtist(t, f.db, 1, "starter", "acct_1", true)
	tickets := f.seedEndedEvent(t, 10, 1, 5, 1000)
	dbtest.SeedAffiliate(t, f.db, 100, "aff-1", "AFF00001", nil, nil, 1, true)
	for i, ticketID := range tickets[:3] {
		dbtest.SeedCommission(t, f.db, int64(900+i), ticketID, 100, 1, 250, 50, "pending")
	}

	var captured paymentdomain.TransferRequest
	f.expectTransfer(2350, "tr_1").Run(func(args mock.Arguments) {
		captured = args.Get(1).(paymentdomain.TransferRequest)
	}).Once()

	report, err := f.svc.RunSettlement(context.Background(), runAt)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-07", report.Day)
	assert.Equal(t, 1, report.Transferred)
	assert.Equal(t, int64(2350), report.AmountTransferred)

	p := f.payout(t, 10)
	assert.Equal(t, int64(5000), p.TotalRevenue)
	assert.Equal(t, int64(2500), p.ArtistRevenue)
	assert.Equal(t, int64(150), p.TotalCommissions)
	assert.Equal(t, int64(2350), p.Amount)
	assert.Equal(t, domain.StatusProcessing, p.Status)
	require.NotNil(t, p.ExternalTransferRef)
	assert.Equal(t, "tr_1", *p.ExternalTransferRef)

	assert.Equal(t, "acct_1", captured.DestinationAccount)
	assert.Equal(t, p.ID.String(), captured.CorrelationID)
	assert.Equal(t, "payout:"+p.ID.String(), captured.IdempotencyKey)
	assert.Equal(t, int64(3), dbtest.Count(t, f.db, "commissions", "status = 'paid' AND payout_id = ? AND paid_at IS NOT NULL", p.ID))
}

func TestRunSettlementConsumesCommissionsOfEveryTicket(t *testing.T) {
	f := setup(t)
	dbtest.SeedArtist(t, f.db, 1, "starter", "acct_1", true)
	f.seedEndedEvent(t, 10, 1, 5, 1000)
	dbtest.SeedTicket(t, f.db, 1, 10, "fan-refunded", 1000, "refunded", "pi_refunded")
	dbtest.SeedAffiliate(t, f.db, 100, "aff-1", "AFF00001", nil, nil, 1, true)
	dbtest.SeedCommission(t, f.db, 900, 1, 100, 1, 250, 25, "pending")
	f.expectTransfer(2475, "tr_1").Once()

	report, err := f.svc.RunSettlement(context.Background(), runAt)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Transferred)

	p := f.payout(t, 10)
	assert.Equal(t, int64(5000), p.TotalRevenue)
	assert.Equal(t, int64(25), p.TotalCommissions)
	assert.Equal(t, int64(2475), p.Amount)
	assert.Equal(t, int64(0), dbtest.Count(t, f.db, "commissions", "status = 'pending'"))
	f.processor.AssertExpectations(t)
}

func TestRunSettlementTwiceCreatesOnePayout(t *testing.T) {
	f := setup(t)
	dbtest.SeedArtist(t, f.db, 1, "starter", "acct_1", true)
	f.seedEndedEvent(t, 10, 1, 2, 1000)
	f.expectTransfer(1000, "tr_1").Once()

	_, err := f.svc.RunSettlement(context.Background(), runAt)
	require.NoError(t, err)
	report, err := f.svc.RunSettlement(context.Background(), runAt)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, domain.SkipAlreadySettled, report.Results[0].Reason)
	assert.Equal(t, int64(1), dbtest.Count(t, f.db, "payouts", "event_id = 10"))
	f.processor.AssertNumberOfCalls(t, "CreateTransfer", 1)
}

func TestRunSettlementSkipsZeroRevenue(t *testing.T) {
	f := setup(t)
	dbtest.SeedArtist(t, f.db, 1, "starter", "acct_1", true)
	f.seedEndedEvent(t, 10, 1, 0, 1000)
	dbtest.SeedTicket(t, f.db, 1, 10, "fan-x", 1000, "refunded", "pi_refunded")
	dbtest.SeedTicket(t, f.db, 2, 10, "fan-y", 1000, "pending", "pi_pending")

	report, err := f.svc.RunSettlement(context.Background(), runAt)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, domain.SkipNoRevenue, report.Results[0].Reason)
	assert.Equal(t, int64(0), dbtest.Count(t, f.db, "payouts", ""))
	f.processor.AssertNotCalled(t, "CreateTransfer", mock.Anything, mock.Anything)
}

func TestRunSettlementTierShares(t *testing.T) {
	f := setup(t)
	dbtest.SeedArtist(t, f.db, 1, "pro", "acct_pro", true)
	dbtest.SeedArtist(t, f.db, 2, "elite", "acct_elite", true)
	f.seedEndedEvent(t, 10, 1, 10, 1000)
	f.seedEndedEvent(t, 11, 2, 20, 1000)
	f.expectTransfer(6000, "tr_pro").Once()
	f.expectTransfer(14000, "tr_elite").Once()

	report, err := f.svc.RunSettlement(context.Background(), runAt)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Transferred)
	assert.Equal(t, int64(6000), f.payout(t, 10).Amount)
	assert.Equal(t, int64(14000), f.payout(t, 11).Amount)
	f.processor.AssertExpectations(t)
}

func TestRunSettlementRetriesFailedPayout(t *testing.T) {
	f := setup(t)
	dbtest.SeedArtist(t, f.db, 1, "starter", "acct_1", true)
	tickets := f.seedEndedEvent(t, 10, 1, 2, 1000)
	dbtest.SeedAffiliate(t, f.db, 100, "aff-1", "AFF00001", nil, nil, 1, true)
	dbtest.SeedCommission(t, f.db, 900, tickets[0], 100, 1, 250, 25, "pending")

	f.processor.On("CreateTransfer", mock.Anything, mock.Anything).
		Return(paymentdomain.Transfer{}, fmt.Errorf("%w: account restricted", paymentdomain.ErrUpstream)).Once()

	report, err := f.svc.RunSettlement(context.Background(), runAt)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	failed := f.payout(t, 10)
	assert.Equal(t, domain.StatusFailed, failed.Status)
	require.NotNil(t, failed.ErrorMessage)
	assert.Contains(t, *failed.ErrorMessage, "account restricted")
	assert.Equal(t, int64(1), dbtest.Count(t, f.db, "commissions", "status = 'pending'"))

	var retryKey string
	f.processor.On("CreateTransfer", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { retryKey = args.Get(1).(paymentdomain.TransferRequest).IdempotencyKey }).
		Return(paymentdomain.Transfer{ID: "tr_2"}, nil).Once()

	report, err = f.svc.RunSettlement(context.Background(), runAt)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Transferred)

	retried := f.payout(t, 10)
	assert.Equal(t, failed.ID, retried.ID)
	assert.Equal(t, 2, retried.Attempts)
	assert.Equal(t, domain.StatusProcessing, retried.Status)
	assert.Nil(t, retried.ErrorMessage)
	assert.Equal(t, int64(975), retried.Amount)
	assert.Equal(t, "payout:"+failed.ID.String(), retryKey)
	assert.Equal(t, int64(1), dbtest.Count(t, f.db, "commissions", "status = 'paid'"))
	assert.Equal(t, int64(1), dbtest.Count(t, f.db, "payouts", ""))
}

func TestRunSettlementRetryAfterTimeoutReusesIdempotencyKey(t *testing.T) {
	f := setup(t)
	dbtest.SeedArtist(t, f.db, 1, "starter", "acct_1", true)
	f.seedEndedEvent(t, 10, 1, 2, 1000)

	var keys []string
	recordKey := func(args mock.Arguments) {
		keys = append(keys, args.Get(1).(paymentdomain.TransferRequest).IdempotencyKey)
	}
	f.processor.On("CreateTransfer", mock.Anything, mock.Anything).Run(recordKey).
		Return(paymentdomain.Transfer{}, fmt.Errorf("%w: %w", paymentdomain.ErrUpstream, context.DeadlineExceeded)).Once()
	f.processor.On("CreateTransfer", mock.Anything, mock.Anything).Run(recordKey).
		Return(paymentdomain.Transfer{ID: "tr_1"}, nil).Once()

	report, err := f.svc.RunSettlement(context.Background(), runAt)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)

	report, err = f.svc.RunSettlement(context.Background(), runAt)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Transferred)

	p := f.payout(t, 10)
	require.Len(t, keys, 2)
	assert.Equal(t, "payout:"+p.ID.String(), keys[0])
	assert.Equal(t, keys[0], keys[1])
	assert.Equal(t, 2, p.Attempts)
}

func TestTransferErrorType(t *testing.T) {
	assert.Equal(t, "timeout", transferErrorType(fmt.Errorf("%w: %w", paymentdomain.ErrUpstream, context.DeadlineExceeded)))
	assert.Equal(t, "timeout", transferErrorType(&net.DNSError{Err: "i/o timeout", IsTimeout: true}))
	assert.Equal(t, "upstream", transferErrorType(fmt.Errorf("%w: account restricted", paymentdomain.ErrUpstream)))
	assert.Equal(t, "internal", transferErrorType(errors.New("boom")))
}

func TestRunSettlementSkipsAndContinues(t *testing.T) {
	f := setup(t)
	dbtest.SeedArtist(t, f.db, 1, "starter", "", false)
	dbtest.SeedArtist(t, f.db, 2, "starter", "acct_2", true)
	f.seedEndedEvent(t, 10, 1, 2, 1000)
	f.seedEndedEvent(t, 11, 2, 2, 1000)

	// Ended a day later than the bucket.
	otherDay := endedAt.AddDate(0, 0, 1)
	dbtest.SeedEvent(t, f.db, dbtest.EventFixture{ID: 12, ArtistID: 2, Status: "ended", EndedAt: &otherDay})
	dbtest.SeedTicket(t, f.db, 1, 12, "fan-z", 1000, "confirmed", "pi_other_day")

	f.processor.On("CreateTransfer", mock.Anything, mock.MatchedBy(func(req paymentdomain.TransferRequest) bool {
		return req.DestinationAccount == "acct_2"
	})).Return(paymentdomain.Transfer{ID: "tr_2"}, nil).Once()

	report, err := f.svc.RunSettlement(context.Background(), runAt)
	require.NoError(t, err)
	assert.Equal(t, 2, report.EventsScanned)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Transferred)
	assert.Equal(t, int64(0), dbtest.Count(t, f.db, "payouts", "event_id IN (10, 12)"))
	f.processor.AssertExpectations(t)
}

func TestDayBucket(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)

	// 00:30 in Paris is still the previous UTC day.
	now := time.Date(2026, 3, 27, 23, 30, 0, 0, time.UTC)
	start, end := DayBucket(now, 21, paris)
	assert.Equal(t, "2026-03-07", start.Format(dayLayout))
	assert.Equal(t, time.Date(2026, 3, 7, 0, 0, 0, 0, paris), start)
	assert.Equal(t, start.AddDate(0, 0, 1), end)
}

func TestArtistShareRoundsHalfUp(t *testing.T) {
	assert.Equal(t, int64(2500), ArtistShare(5000, 5000))
	assert.Equal(t, int64(500), ArtistShare(999, 5000))
	assert.Equal(t, int64(699), ArtistShare(999, 7000))
	assert.Equal(t, int64(6000), ArtistShare(10000, 6000))
}

func TestListPaginates(t *testing.T) {
	f := setup(t)
	dbtest.SeedArtist(t, f.db, 1, "starter", "acct_1", true)
	for i := int64(0); i < 3; i++ {
		f.seedEndedEvent(t, 10+i, 1, 1, 1000)
	}
	f.expectTransfer(500, "tr")

	_, err := f.svc.RunSettlement(context.Background(), runAt)
	require.NoError(t, err)

	first, err := f.svc.List(context.Background(), domain.ListRequest{Pagination: pagination.Pagination{PageSize: 2}})
	require.NoError(t, err)
	require.Len(t, first.Payouts, 2)
	assert.True(t, first.PageInfo.HasMore)

	second, err := f.svc.List(context.Background(), domain.ListRequest{
		Status:     "processing",
		Pagination: pagination.Pagination{PageSize: 2, PageToken: first.PageInfo.NextPageToken},
	})
	require.NoError(t, err)
	require.Len(t, second.Payouts, 1)
	assert.False(t, second.PageInfo.HasMore)
	assert.Less(t, int64(second.Payouts[0].ID), int64(first.Payouts[1].ID))

	_, err = f.svc.List(context.Background(), domain.ListRequest{Status: "paid"})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}
