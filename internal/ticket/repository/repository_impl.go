package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/stagepass/internal/ticket/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const selectTicket = `SELECT id, event_id, user_id, purchase_price, is_happy_hour, payment_intent_ref,
	affiliate_id, status, confirmed_at, created_at, updated_at FROM tickets`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, ticket *domain.Ticket) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO tickets (id, event_id, user_id, purchase_price, is_happy_hour, payment_intent_ref,
			affiliate_id, status, confirmed_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ticket.ID,
		ticket.EventID,
		ticket.UserID,
		ticket.PurchasePrice,
		ticket.IsHappyHour,
		ticket.PaymentIntentRef,
		ticket.AffiliateID,
		ticket.Status,
		ticket.ConfirmedAt,
		ticket.CreatedAt,
		ticket.UpdatedAt,
	).Error
}

func (r *repo) InsertCommissions(ctx context.Context, db *gorm.DB, commissions []domain.Commission) error {
	for _, c := range commissions {
		err := db.WithContext(ctx).Exec(
			`INSERT INTO commissions (id, ticket_id, affiliate_id, commission_level, commission_rate,
				commission_amount, status, payout_id, paid_at, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID,
			c.TicketID,
			c.AffiliateID,
			c.CommissionLevel,
			c.CommissionRate,
			c.CommissionAmount,
			c.Status,
			c.PayoutID,
			c.PaidAt,
			c.CreatedAt,
		).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Ticket, error) {
	return r.findOne(ctx, db, selectTicket+` WHERE id = ?`, id)
}

func (r *repo) FindForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID, paymentIntentRef string) (*domain.Ticket, error) {
	if id != 0 {
		ticket, err := r.findOne(ctx, db, selectTicket+` WHERE id = ? FOR UPDATE`, id)
		if err != nil || ticket != nil {
			return ticket, err
		}
	}
	if paymentIntentRef == "" {
		return nil, nil
	}
	return r.findOne(ctx, db, selectTicket+` WHERE payment_intent_ref = ? FOR UPDATE`, paymentIntentRef)
}

func (r *repo) FindLive(ctx context.Context, db *gorm.DB, eventID snowflake.ID, userID string) (*domain.Ticket, error) {
	return r.findOne(ctx, db,
		selectTicket+` WHERE event_id = ? AND user_id = ? AND status NOT IN (?, ?) LIMIT 1`,
		eventID,
		userID,
		domain.StatusFailed,
		domain.StatusCancelled,
	)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&ticket).Error; err != nil {
		return nil, err
	}
	if ticket.ID == 0 {
		return nil, nil
	}
	return &ticket, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to domain.Status, confirmedAt *time.Time, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE tickets SET status = ?, confirmed_at = COALESCE(?, confirmed_at), updated_at = ?
		 WHERE id = ? AND status = ?`,
		to,
		confirmedAt,
		now,
		id,
		from,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) ListCommissions(ctx context.Context, db *gorm.DB, ticketID snowflake.ID) ([]domain.Commission, error) {
	var commissions []domain.Commission
	err := db.WithContext(ctx).Raw(
		`SELECT id, ticket_id, affiliate_id, commission_level, commission_rate, commission_amount,
			status, payout_id, paid_at, created_at
		 FROM commissions WHERE ticket_id = ? ORDER BY commission_level ASC`,
		ticketID,
	).Scan(&commissions).Error
	if err != nil {
		return nil, err
	}
	return commissions, nil
}
