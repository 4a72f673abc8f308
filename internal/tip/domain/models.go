package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// MinAmount is the smallest accepted tip, in cents.
const MinAmount int64 = 100

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

type Tip struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	ArtistID         snowflake.ID `gorm:"not null" json:"artist_id"`
	UserID           string       `gorm:"not null" json:"user_id"`
	Amount           int64        `gorm:"not null" json:"amount"`
	PaymentIntentRef string       `gorm:"not null;uniqueIndex" json:"payment_intent_ref"`
	Status           Status       `gorm:"not null" json:"status"`
	CreatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, tip *Tip) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Tip, error)
	FindForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID, paymentIntentRef string) (*Tip, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to Status, now time.Time) (bool, error)
}

type CreateRequest struct {
	ArtistID snowflake.ID
	UserID   string
	Amount   int64
}

type CreateResult struct {
	ClientToken string       `json:"clientToken"`
	TipID       snowflake.ID `json:"tipId"`
	Amount      int64        `json:"amountCents"`
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (CreateResult, error)
}

var (
	ErrInvalidUser      = errors.New("invalid_user")
	ErrInvalidArtist    = errors.New("invalid_artist")
	ErrAmountTooSmall   = errors.New("tip_amount_too_small")
	ErrArtistNotPayable = errors.New("artist_not_payable")
)
