package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
	StatusCancelled Status = "cancelled"
)

type Ticket struct {
	ID               snowflake.ID  `gorm:"primaryKey" json:"id"`
	EventID          snowflake.ID  `gorm:"not null;index" json:"event_id"`
	UserID           string        `gorm:"not null" json:"user_id"`
	PurchasePrice    int64         `gorm:"not null" json:"purchase_price"`
	IsHappyHour      bool          `gorm:"not null" json:"is_happy_hour"`
	PaymentIntentRef string        `gorm:"not null;uniqueIndex" json:"payment_intent_ref"`
	AffiliateID      *snowflake.ID `json:"affiliate_id,omitempty"`
	Status           Status        `gorm:"not null" json:"status"`
	ConfirmedAt      *time.Time    `json:"confirmed_at,omitempty"`
	CreatedAt        time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

type CommissionStatus string

const (
	CommissionPending CommissionStatus = "pending"
	CommissionPaid    CommissionStatus = "paid"
)

type Commission struct {
	ID               snowflake.ID     `gorm:"primaryKey" json:"id"`
	TicketID         snowflake.ID     `gorm:"not null" json:"ticket_id"`
	AffiliateID      snowflake.ID     `gorm:"not null" json:"affiliate_id"`
	CommissionLevel  int              `gorm:"not null" json:"commission_level"`
	CommissionRate   int64            `gorm:"not null" json:"commission_rate"`
	CommissionAmount int64            `gorm:"not null" json:"commission_amount"`
	Status           CommissionStatus `gorm:"not null" json:"status"`
	PayoutID         *snowflake.ID    `json:"payout_id,omitempty"`
	PaidAt           *time.Time       `json:"paid_at,omitempty"`
	CreatedAt        time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}
