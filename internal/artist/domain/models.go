package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Tier string

const (
	TierStarter Tier = "starter"
	TierPro     Tier = "pro"
	TierElite   Tier = "elite"
)

var (
	ErrNotFound    = errors.New("artist_not_found")
	ErrInvalidTier = errors.New("invalid_tier")
)

func ParseTier(raw string) (Tier, error) {
	switch Tier(strings.ToLower(strings.TrimSpace(raw))) {
	case TierStarter:
		return TierStarter, nil
	case TierPro:
		return TierPro, nil
	case TierElite:
		return TierElite, nil
	}
	return "", ErrInvalidTier
}

type Artist struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	SubscriptionTier Tier         `gorm:"not null" json:"subscription_tier"`
	TierExpiresAt    *time.Time   `json:"tier_expires_at,omitempty"`
	PayoutAccountRef *string      `gorm:"uniqueIndex" json:"payout_account_ref,omitempty"`
	ConnectCompleted bool         `gorm:"not null" json:"connect_completed"`
	CreatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// PayoutAccount returns the connected account, or "" before onboarding.
func (a Artist) PayoutAccount() string {
	if a.PayoutAccountRef == nil {
		return ""
	}
	return strings.TrimSpace(*a.PayoutAccountRef)
}

// Payable reports whether transfers and destination charges can reach the
// artist.
func (a Artist) Payable() bool {
	return a.ConnectCompleted && a.PayoutAccount() != ""
}
