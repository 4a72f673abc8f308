package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, event *Event) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Event, error)
	UpdatePrice(ctx context.Context, db *gorm.DB, id snowflake.ID, ticketPrice int64, happyHourPrice *int64, now time.Time) error
	// UpdateStatus moves an event from one status to another and reports
	// false when the event was no longer in from.
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to Status, endedAt *time.Time, now time.Time) (bool, error)
	// IncrementAttendees adds one attendee unless capacity is reached, in
	// which case it returns ErrCapacityReached.
	IncrementAttendees(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error
	ListEndedBetween(ctx context.Context, db *gorm.DB, from, to time.Time) ([]Event, error)
}
