package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/stagepass/internal/affiliate/domain"
	"github.com/smallbiznis/stagepass/internal/affiliate/repository"
	"github.com/smallbiznis/stagepass/internal/clock"
	"github.com/smallbiznis/stagepass/internal/testutil/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func setupAffiliateService(t *testing.T) domain.Service {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return New(Params{
		DB:    dbtest.Open(t),
		Log:   zaptest.NewLogger(t),
		GenID: node,
		Repo:  repository.Provide(),
		Clock: clock.NewFakeClock(time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)),
	})
}

func TestRegisterBuildsHierarchy(t *testing.T) {
	svc := setupAffiliateService(t)
	ctx := context.Background()

	root, err := svc.Register(ctx, domain.RegisterRequest{UserID: "user-root"})
	require.NoError(t, err)
	assert.Equal(t, 1, root.Level)
	assert.Nil(t, root.ParentAffiliateID)
	assert.Len(t, root.ReferralCode, 8)

	child, err := svc.Register(ctx, domain.RegisterRequest{UserID: "user-child", ParentCode: root.ReferralCode})
	require.NoError(t, err)
	assert.Equal(t, 2, child.Level)
	require.NotNil(t, child.ParentAffiliateID)
	assert.Equal(t, root.ID, *child.ParentAffiliateID)
	assert.Nil(t, child.GrandparentAffiliateID)

	grandchild, err := svc.Register(ctx, domain.RegisterRequest{UserID: "user-grandchild", ParentCode: child.ReferralCode})
	require.NoError(t, err)
	assert.Equal(t, 3, grandchild.Level)
	require.NotNil(t, grandchild.GrandparentAffiliateID)
	assert.Equal(t, root.ID, *grandchild.GrandparentAffiliateID)

	deeper, err := svc.Register(ctx, domain.RegisterRequest{UserID: "user-deeper", ParentCode: grandchild.ReferralCode})
	require.NoError(t, err)
	assert.Equal(t, domain.MaxLevel, deeper.Level)
	assert.Equal(t, child.ID, *deeper.GrandparentAffiliateID)
}

func TestRegisterRejectsDuplicatesAndUnknownParents(t *testing.T) {
	svc := setupAffiliateService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, domain.RegisterRequest{UserID: " "})
	assert.ErrorIs(t, err, domain.ErrInvalidUser)

	_, err = svc.Register(ctx, domain.RegisterRequest{UserID: "user-1", ParentCode: "NOPE1234"})
	assert.ErrorIs(t, err, domain.ErrParentNotFound)

	_, err = svc.Register(ctx, domain.RegisterRequest{UserID: "user-1"})
	require.NoError(t, err)
	_, err = svc.Register(ctx, domain.RegisterRequest{UserID: "user-1"})
	assert.ErrorIs(t, err, domain.ErrAlreadyAffiliate)
}

func TestFindActiveByCodeIgnoresInactive(t *testing.T) {
	db := dbtest.Open(t)
	dbtest.SeedAffiliate(t, db, 10, "user-a", "ACTIVE01", nil, nil, 1, true)
	dbtest.SeedAffiliate(t, db, 11, "user-b", "SLEEPY01", nil, nil, 1, false)

	node, _ := snowflake.NewNode(1)
	svc := New(Params{DB: db, Log: zaptest.NewLogger(t), GenID: node, Repo: repository.Provide(), Clock: clock.SystemClock{}})
	ctx := context.Background()

	found, err := svc.FindActiveByCode(ctx, " active01 ")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, snowflake.ID(10), found.ID)

	inactive, err := svc.FindActiveByCode(ctx, "SLEEPY01")
	require.NoError(t, err)
	assert.Nil(t, inactive)

	unknown, err := svc.FindActiveByCode(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, unknown)

	_, err = svc.Register(ctx, domain.RegisterRequest{UserID: "user-c", ParentCode: "SLEEPY01"})
	assert.ErrorIs(t, err, domain.ErrParentInactive)
}
