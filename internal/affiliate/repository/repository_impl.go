package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/stagepass/internal/affiliate/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const selectAffiliate = `SELECT id, user_id, referral_code, parent_affiliate_id, grandparent_affiliate_id,
	level, is_active, created_at FROM affiliates`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, affiliate *domain.Affiliate) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO affiliates (id, user_id, referral_code, parent_affiliate_id, grandparent_affiliate_id, level, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		affiliate.ID,
		affiliate.UserID,
		affiliate.ReferralCode,
		affiliate.ParentAffiliateID,
		affiliate.GrandparentAffiliateID,
		affiliate.Level,
		affiliate.IsActive,
		affiliate.CreatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Affiliate, error) {
	return r.findOne(ctx, db, selectAffiliate+` WHERE id = ?`, id)
}

func (r *repo) FindByReferralCode(ctx context.Context, db *gorm.DB, code string) (*domain.Affiliate, error) {
	return r.findOne(ctx, db, selectAffiliate+` WHERE referral_code = ?`, code)
}

func (r *repo) FindByUserID(ctx context.Context, db *gorm.DB, userID string) (*domain.Affiliate, error) {
	return r.findOne(ctx, db, selectAffiliate+` WHERE user_id = ?`, userID)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.Affiliate, error) {
	var affiliate domain.Affiliate
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&affiliate).Error; err != nil {
		return nil, err
	}
	if affiliate.ID == 0 {
		return nil, nil
	}
	return &affiliate, nil
}
