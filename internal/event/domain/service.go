package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type CreateEventRequest struct {
	ArtistID    snowflake.ID
	Title       string
	TicketPrice int64
	HappyHour   bool
	ScheduledAt time.Time
	Capacity    *int64
}

type UpdatePriceRequest struct {
	EventID     snowflake.ID
	ArtistID    snowflake.ID
	TicketPrice int64
	HappyHour   bool
}

type TransitionRequest struct {
	EventID  snowflake.ID
	ArtistID snowflake.ID
	To       Status
}

type Service interface {
	Create(context.Context, CreateEventRequest) (Event, error)
	UpdatePrice(context.Context, UpdatePriceRequest) (Event, error)
	Transition(context.Context, TransitionRequest) (Event, error)
	Get(ctx context.Context, id snowflake.ID) (Event, error)
}

var (
	ErrNotFound          = errors.New("event_not_found")
	ErrInvalidTitle      = errors.New("invalid_title")
	ErrInvalidSchedule   = errors.New("invalid_scheduled_at")
	ErrInvalidCapacity   = errors.New("invalid_capacity")
	ErrInvalidTransition = errors.New("invalid_status_transition")
	ErrNotOwner          = errors.New("event_not_owned")
	ErrNotEditable       = errors.New("event_not_editable")
	ErrCapacityReached   = errors.New("capacity_reached")
)
