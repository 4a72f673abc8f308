package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/stagepass/internal/event/domain"
	"github.com/smallbiznis/stagepass/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const selectEvent = `SELECT id, artist_id, title, ticket_price, happy_hour_price, scheduled_at, capacity,
	current_attendees, status, ended_at, created_at, updated_at FROM events`

func (r *repo) Insert(ctx context.Context, tx *gorm.DB, event *domain.Event) error {
	return tx.WithContext(ctx).Exec(
		`INSERT INTO events (id, artist_id, title, ticket_price, happy_hour_price, scheduled_at, capacity,
			current_attendees, status, ended_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.ArtistID,
		event.Title,
		event.TicketPrice,
		event.HappyHourPrice,
		event.ScheduledAt,
		event.Capacity,
		event.CurrentAttendees,
		event.Status,
		event.EndedAt,
		event.CreatedAt,
		event.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Event, error) {
	var event domain.Event
	if err := tx.WithContext(ctx).Raw(selectEvent+` WHERE id = ?`, id).Scan(&event).Error; err != nil {
		return nil, err
	}
	if event.ID == 0 {
		return nil, nil
	}
	return &event, nil
}

func (r *repo) UpdatePrice(ctx context.Context, tx *gorm.DB, id snowflake.ID, ticketPrice int64, happyHourPrice *int64, now time.Time) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE events SET ticket_price = ?, happy_hour_price = ?, updated_at = ? WHERE id = ?`,
		ticketPrice,
		happyHourPrice,
		now,
		id,
	).Error
}

func (r *repo) UpdateStatus(ctx context.Context, tx *gorm.DB, id snowflake.ID, from, to domain.Status, endedAt *time.Time, now time.Time) (bool, error) {
	res := tx.WithContext(ctx).Exec(
		`UPDATE events SET status = ?, ended_at = COALESCE(ended_at, ?), updated_at = ?
		 WHERE id = ? AND status = ?`,
		to,
		endedAt,
		now,
		id,
		from,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) IncrementAttendees(ctx context.Context, tx *gorm.DB, id snowflake.ID, now time.Time) error {
	res := tx.WithContext(ctx).Exec(
		`UPDATE events SET current_attendees = current_attendees + 1, updated_at = ?
		 WHERE id = ? AND (capacity IS NULL OR current_attendees < capacity)`,
		now,
		id,
	)
	if res.Error != nil {
		if db.IsCheckViolation(res.Error) {
			return domain.ErrCapacityReached
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrCapacityReached
	}
	return nil
}

func (r *repo) ListEndedBetween(ctx context.Context, tx *gorm.DB, from, to time.Time) ([]domain.Event, error) {
	var events []domain.Event
	err := tx.WithContext(ctx).Raw(
		selectEvent+` WHERE status = ? AND ended_at >= ? AND ended_at < ? ORDER BY ended_at ASC, id ASC`,
		domain.StatusEnded,
		from.UTC(),
		to.UTC(),
	).Scan(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
