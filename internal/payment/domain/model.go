package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// IdempotencyRecord marks a processor event id as applied. It is written in
// the same transaction as the event's side effects.
type IdempotencyRecord struct {
	ExternalEventID string         `json:"external_event_id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"type:text;not null"`
	EventType       string         `json:"event_type" gorm:"type:text;not null"`
	Payload         datatypes.JSON `json:"payload" gorm:"type:jsonb"`
	ProcessedAt     time.Time      `json:"processed_at" gorm:"not null"`
}

func (IdempotencyRecord) TableName() string { return "idempotency_records" }

const (
	EventTypePaymentSucceeded    = "payment_succeeded"
	EventTypePaymentFailed       = "payment_failed"
	EventTypeRefunded            = "refunded"
	EventTypeSubscriptionUpdated = "subscription_updated"
	EventTypeSubscriptionDeleted = "subscription_deleted"
	EventTypeAccountUpdated      = "account_updated"
)

// Values of the "kind" metadata key on payment authorizations.
const (
	KindTicket = "ticket"
	KindTip    = "tip"
)

// Metadata keys attached to authorizations and echoed back on events.
const (
	MetadataKind     = "kind"
	MetadataTicketID = "ticket_id"
	MetadataTipID    = "tip_id"
	MetadataEventID  = "event_id"
	MetadataUserID   = "user_id"
	MetadataArtistID = "artist_id"
	MetadataTier     = "tier"
)

// PaymentEvent is the canonical processor event produced by adapters.
type PaymentEvent struct {
	Provider          string
	ProviderEventID   string
	ProviderPaymentID string
	Type              string
	Kind              string
	TicketID          *snowflake.ID
	TipID             *snowflake.ID
	Amount            int64
	Currency          string
	OccurredAt        time.Time
	RawPayload        []byte

	Subscription *SubscriptionChange
	Account      *AccountChange
}

type SubscriptionChange struct {
	ProviderSubscriptionID string
	ArtistID               *snowflake.ID
	Tier                   string
	Status                 string
	CurrentPeriodEnd       *time.Time
}

// Downgrades reports whether the subscription no longer grants its tier.
func (s SubscriptionChange) Downgrades() bool {
	switch s.Status {
	case "canceled", "unpaid", "incomplete_expired":
		return true
	}
	return false
}

type AccountChange struct {
	AccountRef       string
	ChargesEnabled   bool
	PayoutsEnabled   bool
	DetailsSubmitted bool
}

// OnboardingCompleted reports whether the connected account can receive
// destination charges and transfers.
func (a AccountChange) OnboardingCompleted() bool {
	return a.ChargesEnabled && a.PayoutsEnabled && a.DetailsSubmitted
}
