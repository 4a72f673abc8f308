package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	artistdomain "github.com/smallbiznis/stagepass/internal/artist/domain"
	artistrepository "github.com/smallbiznis/stagepass/internal/artist/repository"
	"github.com/smallbiznis/stagepass/internal/clock"
	"github.com/smallbiznis/stagepass/internal/config"
	"github.com/smallbiznis/stagepass/internal/event/domain"
	"github.com/smallbiznis/stagepass/internal/event/repository"
	"github.com/smallbiznis/stagepass/internal/pricing"
	"github.com/smallbiznis/stagepass/internal/testutil/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

func setupEventService(t *testing.T) (domain.Service, *gorm.DB, *clock.FakeClock) {
	t.Helper()
	db := dbtest.Open(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	svc := New(Params{
		DB:         db,
		Log:        zaptest.NewLogger(t),
		GenID:      node,
		Repo:       repository.Provide(),
		ArtistRepo: artistrepository.Provide(),
		Pricing:    pricing.New(config.NewStaticSettlementConfigHolder(config.DefaultSettlementConfig()), time.UTC),
		Clock:      clk,
	})
	return svc, db, clk
}

func TestCreateEventValidatesTierBounds(t *testing.T) {
	svc, db, _ := setupEventService(t)
	dbtest.SeedArtist(t, db, 1, "starter", "acct_1", true)
	ctx := context.Background()
	slot := time.Date(2026, 3, 6, 21, 0, 0, 0, time.UTC)

	_, err := svc.Create(ctx, domain.CreateEventRequest{ArtistID: 1, Title: "Show", TicketPrice: 1300, ScheduledAt: slot})
	assert.ErrorIs(t, err, pricing.ErrPriceOutOfBounds)
	assert.Equal(t, int64(0), dbtest.Count(t, db, "events", ""))

	capacity := int64(100)
	event, err := svc.Create(ctx, domain.CreateEventRequest{ArtistID: 1, Title: "Show", TicketPrice: 1200, ScheduledAt: slot, Capacity: &capacity})
	require.NoError(t, err)
	assert.Equal(t, int64(1200), event.TicketPrice)
	assert.Nil(t, event.HappyHourPrice)
	assert.Equal(t, domain.StatusScheduled, event.Status)

	_, err = svc.Create(ctx, domain.CreateEventRequest{ArtistID: 42, Title: "Show", TicketPrice: 1000, ScheduledAt: slot})
	assert.ErrorIs(t, err, artistdomain.ErrNotFound)
}

func TestCreateHappyHourEvent(t *testing.T) {
	svc, db, _ := setupEventService(t)
	dbtest.SeedArtist(t, db, 1, "elite", "acct_1", true)
	ctx := context.Background()

	wednesday := time.Date(2026, 3, 4, 20, 0, 0, 0, time.UTC)
	event, err := svc.Create(ctx, domain.CreateEventRequest{ArtistID: 1, Title: "Happy", HappyHour: true, ScheduledAt: wednesday})
	require.NoError(t, err)
	require.NotNil(t, event.HappyHourPrice)
	assert.Equal(t, int64(499), *event.HappyHourPrice)
	assert.Equal(t, int64(499), event.TicketPrice)

	_, err = svc.Create(ctx, domain.CreateEventRequest{ArtistID: 1, Title: "Late", HappyHour: true, ScheduledAt: wednesday.Add(time.Hour)})
	assert.ErrorIs(t, err, pricing.ErrHappyHourSlot)
}

func TestUpdatePriceOnlyWhileScheduled(t *testing.T) {
	svc, db, _ := setupEventService(t)
	dbtest.SeedArtist(t, db, 1, "pro", "acct_1", true)
	dbtest.SeedEvent(t, db, dbtest.EventFixture{ID: 10, ArtistID: 1, TicketPrice: 1000})
	dbtest.SeedEvent(t, db, dbtest.EventFixture{ID: 11, ArtistID: 1, TicketPrice: 1000, Status: "live"})
	ctx := context.Background()

	event, err := svc.UpdatePrice(ctx, domain.UpdatePriceRequest{EventID: 10, ArtistID: 1, TicketPrice: 1800})
	require.NoError(t, err)
	assert.Equal(t, int64(1800), event.TicketPrice)

	stored, err := svc.Get(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1800), stored.TicketPrice)

	_, err = svc.UpdatePrice(ctx, domain.UpdatePriceRequest{EventID: 10, ArtistID: 1, TicketPrice: 1900})
	assert.ErrorIs(t, err, pricing.ErrPriceOutOfBounds)

	_, err = svc.UpdatePrice(ctx, domain.UpdatePriceRequest{EventID: 10, ArtistID: 2, TicketPrice: 900})
	assert.ErrorIs(t, err, domain.ErrNotOwner)

	_, err = svc.UpdatePrice(ctx, domain.UpdatePriceRequest{EventID: 11, ArtistID: 1, TicketPrice: 900})
	assert.ErrorIs(t, err, domain.ErrNotEditable)
}

func TestTransitionLifecycle(t *testing.T) {
	svc, db, clk := setupEventService(t)
	dbtest.SeedArtist(t, db, 1, "starter", "acct_1", true)
	dbtest.SeedEvent(t, db, dbtest.EventFixture{ID: 10, ArtistID: 1})
	ctx := context.Background()

	_, err := svc.Transition(ctx, domain.TransitionRequest{EventID: 10, ArtistID: 1, To: domain.StatusEnded})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	live, err := svc.Transition(ctx, domain.TransitionRequest{EventID: 10, ArtistID: 1, To: domain.StatusLive})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusLive, live.Status)

	clk.Advance(2 * time.Hour)
	ended, err := svc.Transition(ctx, domain.TransitionRequest{EventID: 10, ArtistID: 1, To: domain.StatusEnded})
	require.NoError(t, err)
	require.NotNil(t, ended.EndedAt)
	assert.True(t, clk.Now().Equal(*ended.EndedAt))

	stored, err := svc.Get(ctx, 10)
	require.NoError(t, err)
	require.NotNil(t, stored.EndedAt)
	assert.True(t, ended.EndedAt.Equal(*stored.EndedAt))

	_, err = svc.Transition(ctx, domain.TransitionRequest{EventID: 10, ArtistID: 1, To: domain.StatusCancelled})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = svc.Get(ctx, 404)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIncrementAttendeesRespectsCapacity(t *testing.T) {
	_, db, _ := setupEventService(t)
	dbtest.SeedArtist(t, db, 1, "starter", "acct_1", true)
	dbtest.SeedEvent(t, db, dbtest.EventFixture{ID: 10, ArtistID: 1, Capacity: dbtest.Int64(2)})
	dbtest.SeedEvent(t, db, dbtest.EventFixture{ID: 11, ArtistID: 1})
	repo := repository.Provide()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.IncrementAttendees(ctx, db, 10, now))
	require.NoError(t, repo.IncrementAttendees(ctx, db, 10, now))
	assert.ErrorIs(t, repo.IncrementAttendees(ctx, db, 10, now), domain.ErrCapacityReached)

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.IncrementAttendees(ctx, db, 11, now))
	}

	event, err := repo.FindByID(ctx, db, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), event.CurrentAttendees)
	assert.True(t, event.SoldOut())
}

func TestListEndedBetween(t *testing.T) {
	_, db, _ := setupEventService(t)
	dbtest.SeedArtist(t, db, 1, "starter", "acct_1", true)
	inside := time.Date(2026, 2, 8, 22, 0, 0, 0, time.UTC)
	before := time.Date(2026, 2, 7, 23, 59, 0, 0, time.UTC)
	after := time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC)
	dbtest.SeedEvent(t, db, dbtest.EventFixture{ID: 10, ArtistID: 1, Status: "ended", EndedAt: &inside})
	dbtest.SeedEvent(t, db, dbtest.EventFixture{ID: 11, ArtistID: 1, Status: "ended", EndedAt: &before})
	dbtest.SeedEvent(t, db, dbtest.EventFixture{ID: 12, ArtistID: 1, Status: "ended", EndedAt: &after})
	dbtest.SeedEvent(t, db, dbtest.EventFixture{ID: 13, ArtistID: 1, Status: "cancelled", EndedAt: &inside})

	events, err := repository.Provide().ListEndedBetween(context.Background(), db,
		time.Date(2026, 2, 8, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC),
	)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, snowflake.ID(10), events[0].ID)
}
