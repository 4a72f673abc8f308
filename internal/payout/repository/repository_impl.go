package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/stagepass/internal/payout/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const selectPayout = `SELECT id, artist_id, event_id, amount, total_revenue, artist_revenue, total_commissions,
	status, external_transfer_ref, error_message, attempts, created_at, updated_at FROM payouts`

func (r *repo) FindByArtistEvent(ctx context.Context, db *gorm.DB, artistID, eventID snowflake.ID) (*domain.Payout, error) {
	var payout domain.Payout
	err := db.WithContext(ctx).Raw(
		selectPayout+` WHERE artist_id = ? AND event_id = ?`,
		artistID,
		eventID,
	).Scan(&payout).Error
	if err != nil {
		return nil, err
	}
	if payout.ID == 0 {
		return nil, nil
	}
	return &payout, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, payout *domain.Payout) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payouts (id, artist_id, event_id, amount, total_revenue, artist_revenue, total_commissions,
			status, external_transfer_ref, error_message, attempts, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payout.ID,
		payout.ArtistID,
		payout.EventID,
		payout.Amount,
		payout.TotalRevenue,
		payout.ArtistRevenue,
		payout.TotalCommissions,
		payout.Status,
		payout.ExternalTransferRef,
		payout.ErrorMessage,
		payout.Attempts,
		payout.CreatedAt,
		payout.UpdatedAt,
	).Error
}

func (r *repo) Retry(ctx context.Context, db *gorm.DB, payout *domain.Payout, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payouts
		 SET status = ?, amount = ?, total_revenue = ?, artist_revenue = ?, total_commissions = ?,
			error_message = NULL, attempts = attempts + 1, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusProcessing,
		payout.Amount,
		payout.TotalRevenue,
		payout.ArtistRevenue,
		payout.TotalCommissions,
		now,
		payout.ID,
		domain.StatusFailed,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) MarkTransferred(ctx context.Context, db *gorm.DB, id snowflake.ID, transferRef string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payouts SET external_transfer_ref = ?, error_message = NULL, updated_at = ? WHERE id = ?`,
		transferRef,
		now,
		id,
	).Error
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, message string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payouts SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		domain.StatusFailed,
		message,
		now,
		id,
	).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Payout, error) {
	query := selectPayout + ` WHERE 1 = 1`
	args := []any{}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	if filter.BeforeID != 0 {
		query += ` AND id < ?`
		args = append(args, filter.BeforeID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, filter.Limit)

	var payouts []*domain.Payout
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&payouts).Error; err != nil {
		return nil, err
	}
	return payouts, nil
}

func (r *repo) SumConfirmedRevenue(ctx context.Context, db *gorm.DB, eventID snowflake.ID) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(purchase_price), 0) FROM tickets WHERE event_id = ? AND status = 'confirmed'`,
		eventID,
	).Scan(&total).Error
	return total, err
}

func (r *repo) ListPendingCommissions(ctx context.Context, db *gorm.DB, eventID snowflake.ID) ([]domain.PendingCommission, error) {
	var rows []domain.PendingCommission
	err := db.WithContext(ctx).Raw(
		`SELECT c.id, c.commission_amount
		 FROM commissions c
		 JOIN tickets t ON t.id = c.ticket_id
		 WHERE t.event_id = ? AND c.status = 'pending'
		 ORDER BY c.id ASC`,
		eventID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) MarkCommissionsPaid(ctx context.Context, db *gorm.DB, ids []snowflake.ID, payoutID snowflake.ID, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).Exec(
		`UPDATE commissions SET status = 'paid', payout_id = ?, paid_at = ? WHERE id IN ? AND status = 'pending'`,
		payoutID,
		now,
		ids,
	)
	return res.RowsAffected, res.Error
}
