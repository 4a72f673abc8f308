package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	Status   Status
	BeforeID snowflake.ID
	Limit    int
}

type Repository interface {
	FindByArtistEvent(ctx context.Context, db *gorm.DB, artistID, eventID snowflake.ID) (*Payout, error)
	Insert(ctx context.Context, db *gorm.DB, payout *Payout) error
	// Retry moves a failed payout back to processing with fresh amounts and
	// bumps its attempt counter. It reports false when the row is no longer
	// failed.
	Retry(ctx context.Context, db *gorm.DB, payout *Payout, now time.Time) (bool, error)
	MarkTransferred(ctx context.Context, db *gorm.DB, id snowflake.ID, transferRef string, now time.Time) error
	MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, message string, now time.Time) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Payout, error)

	// SumConfirmedRevenue totals purchase_price over the event's confirmed
	// tickets.
	SumConfirmedRevenue(ctx context.Context, db *gorm.DB, eventID snowflake.ID) (int64, error)
	// ListPendingCommissions returns unpaid commissions of the event's
	// confirmed tickets.
	ListPendingCommissions(ctx context.Context, db *gorm.DB, eventID snowflake.ID) ([]PendingCommission, error)
	MarkCommissionsPaid(ctx context.Context, db *gorm.DB, ids []snowflake.ID, payoutID snowflake.ID, now time.Time) (int64, error)
}
