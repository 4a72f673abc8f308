package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusLive      Status = "live"
	StatusEnded     Status = "ended"
	StatusCancelled Status = "cancelled"
)

type Event struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	ArtistID         snowflake.ID `gorm:"not null;index" json:"artist_id"`
	Title            string       `gorm:"not null" json:"title"`
	TicketPrice      int64        `gorm:"not null" json:"ticket_price"`
	HappyHourPrice   *int64       `json:"happy_hour_price,omitempty"`
	ScheduledAt      time.Time    `gorm:"not null" json:"scheduled_at"`
	Capacity         *int64       `json:"capacity,omitempty"`
	CurrentAttendees int64        `gorm:"not null" json:"current_attendees"`
	Status           Status       `gorm:"not null" json:"status"`
	EndedAt          *time.Time   `json:"ended_at,omitempty"`
	CreatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (e Event) OnSale() bool {
	return e.Status == StatusScheduled || e.Status == StatusLive
}

func (e Event) SoldOut() bool {
	return e.Capacity != nil && e.CurrentAttendees >= *e.Capacity
}

func (e Event) IsHappyHour() bool {
	return e.HappyHourPrice != nil
}

// CanTransition enforces scheduled -> live -> ended, with cancellation from
// any state that has not ended.
func CanTransition(from, to Status) bool {
	switch to {
	case StatusLive:
		return from == StatusScheduled
	case StatusEnded:
		return from == StatusLive
	case StatusCancelled:
		return from == StatusScheduled || from == StatusLive
	}
	return false
}
