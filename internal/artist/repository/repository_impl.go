package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/stagepass/internal/artist/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, artist *domain.Artist) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO artists (id, subscription_tier, tier_expires_at, payout_account_ref, connect_completed, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		artist.ID,
		artist.SubscriptionTier,
		artist.TierExpiresAt,
		artist.PayoutAccountRef,
		artist.ConnectCompleted,
		artist.CreatedAt,
		artist.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Artist, error) {
	return r.findOne(ctx, db, `WHERE id = ?`, id)
}

func (r *repo) FindByPayoutAccount(ctx context.Context, db *gorm.DB, accountRef string) (*domain.Artist, error) {
	return r.findOne(ctx, db, `WHERE payout_account_ref = ?`, accountRef)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, where string, args ...any) (*domain.Artist, error) {
	var artist domain.Artist
	err := db.WithContext(ctx).Raw(
		`SELECT id, subscription_tier, tier_expires_at, payout_account_ref, connect_completed, created_at, updated_at
		 FROM artists `+where,
		args...,
	).Scan(&artist).Error
	if err != nil {
		return nil, err
	}
	if artist.ID == 0 {
		return nil, nil
	}
	return &artist, nil
}

func (r *repo) UpdateSubscription(ctx context.Context, db *gorm.DB, id snowflake.ID, tier domain.Tier, expiresAt *time.Time, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE artists SET subscription_tier = ?, tier_expires_at = ?, updated_at = ? WHERE id = ?`,
		tier,
		expiresAt,
		now,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkConnectCompleted(ctx context.Context, db *gorm.DB, accountRef string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE artists SET connect_completed = TRUE, updated_at = ? WHERE payout_account_ref = ?`,
		now,
		accountRef,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
