package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/stagepass/internal/tip/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const selectTip = `SELECT id, artist_id, user_id, amount, payment_intent_ref, status, created_at, updated_at FROM tips`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, tip *domain.Tip) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO tips (id, artist_id, user_id, amount, payment_intent_ref, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		tip.ID,
		tip.ArtistID,
		tip.UserID,
		tip.Amount,
		tip.PaymentIntentRef,
		tip.Status,
		tip.CreatedAt,
		tip.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Tip, error) {
	return r.findOne(ctx, db, selectTip+` WHERE id = ?`, id)
}

func (r *repo) FindForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID, paymentIntentRef string) (*domain.Tip, error) {
	if id != 0 {
		tip, err := r.findOne(ctx, db, selectTip+` WHERE id = ? FOR UPDATE`, id)
		if err != nil || tip != nil {
			return tip, err
		}
	}
	if paymentIntentRef == "" {
		return nil, nil
	}
	return r.findOne(ctx, db, selectTip+` WHERE payment_intent_ref = ? FOR UPDATE`, paymentIntentRef)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.Tip, error) {
	var tip domain.Tip
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&tip).Error; err != nil {
		return nil, err
	}
	if tip.ID == 0 {
		return nil, nil
	}
	return &tip, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to domain.Status, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE tips SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to,
		now,
		id,
		from,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
