package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	// InsertIdempotencyRecord reports false when the event id was already
	// recorded.
	InsertIdempotencyRecord(ctx context.Context, db *gorm.DB, record *IdempotencyRecord) (bool, error)
}
