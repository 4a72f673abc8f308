package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, artist *Artist) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Artist, error)
	FindByPayoutAccount(ctx context.Context, db *gorm.DB, accountRef string) (*Artist, error)
	// UpdateSubscription sets tier and expiry; it reports whether a row matched.
	UpdateSubscription(ctx context.Context, db *gorm.DB, id snowflake.ID, tier Tier, expiresAt *time.Time, now time.Time) (bool, error)
	MarkConnectCompleted(ctx context.Context, db *gorm.DB, accountRef string, now time.Time) (bool, error)
}
