package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, ticket *Ticket) error
	InsertCommissions(ctx context.Context, db *gorm.DB, commissions []Commission) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Ticket, error)
	// FindForUpdate locks the ticket row by id, falling back to the payment
	// intent reference when id is zero.
	FindForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID, paymentIntentRef string) (*Ticket, error)
	// FindLive returns the ticket for (event, user) that is neither failed nor
	// cancelled.
	FindLive(ctx context.Context, db *gorm.DB, eventID snowflake.ID, userID string) (*Ticket, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to Status, confirmedAt *time.Time, now time.Time) (bool, error)
	ListCommissions(ctx context.Context, db *gorm.DB, ticketID snowflake.ID) ([]Commission, error)
}
