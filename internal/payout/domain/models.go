package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusProcessing Status = "processing"
	StatusFailed     Status = "failed"
)

// Payout is one transfer of an event's settled revenue to its artist. At
// most one row exists per (artist, event); failed rows are retried in place.
type Payout struct {
	ID                  snowflake.ID `gorm:"primaryKey" json:"id"`
	ArtistID            snowflake.ID `gorm:"not null" json:"artist_id"`
	EventID             snowflake.ID `gorm:"not null" json:"event_id"`
	Amount              int64        `gorm:"not null" json:"amount"`
	TotalRevenue        int64        `gorm:"not null" json:"total_revenue"`
	ArtistRevenue       int64        `gorm:"not null" json:"artist_revenue"`
	TotalCommissions    int64        `gorm:"not null" json:"total_commissions"`
	Status              Status       `gorm:"not null" json:"status"`
	ExternalTransferRef *string      `json:"external_transfer_ref,omitempty"`
	ErrorMessage        *string      `json:"error_message,omitempty"`
	Attempts            int          `gorm:"not null" json:"attempts"`
	CreatedAt           time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt           time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// PendingCommission is an unpaid commission owed out of an event's revenue.
type PendingCommission struct {
	ID               snowflake.ID
	CommissionAmount int64
}

// Outcome values reported per event in a settlement Report.
const (
	OutcomeTransferred = "transferred"
	OutcomeFailed      = "failed"
	OutcomeSkipped     = "skipped"
)

// Skip reasons.
const (
	SkipAlreadySettled  = "already_settled"
	SkipNoRevenue       = "no_revenue"
	SkipNonPositive     = "non_positive_amount"
	SkipNoPayoutAccount = "no_payout_account"
	SkipArtistMissing   = "artist_not_found"
	SkipNotSettleable   = "event_not_settleable"
)

type EventResult struct {
	EventID  snowflake.ID  `json:"event_id"`
	ArtistID snowflake.ID  `json:"artist_id"`
	PayoutID *snowflake.ID `json:"payout_id,omitempty"`
	Outcome  string        `json:"outcome"`
	Reason   string        `json:"reason,omitempty"`
	Amount   int64         `json:"amount"`
}

type Report struct {
	Day               string        `json:"day"`
	EventsScanned     int           `json:"events_scanned"`
	Transferred       int           `json:"transferred"`
	Failed            int           `json:"failed"`
	Skipped           int           `json:"skipped"`
	AmountTransferred int64         `json:"amount_transferred"`
	Results           []EventResult `json:"results"`
}

// Add appends result and updates the counters.
func (r *Report) Add(result EventResult) {
	r.Results = append(r.Results, result)
	switch result.Outcome {
	case OutcomeTransferred:
		r.Transferred++
		r.AmountTransferred += result.Amount
	case OutcomeFailed:
		r.Failed++
	case OutcomeSkipped:
		r.Skipped++
	}
}
