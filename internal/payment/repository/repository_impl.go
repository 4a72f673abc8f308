package repository

import (
	"context"

	"github.com/smallbiznis/stagepass/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertIdempotencyRecord(ctx context.Context, db *gorm.DB, record *domain.IdempotencyRecord) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO idempotency_records (external_event_id, provider, event_type, payload, processed_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (external_event_id) DO NOTHING`,
		record.ExternalEventID,
		record.Provider,
		record.EventType,
		record.Payload,
		record.ProcessedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
