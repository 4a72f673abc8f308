package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const MaxLevel = 3

type Affiliate struct {
	ID                     snowflake.ID  `gorm:"primaryKey" json:"id"`
	UserID                 string        `gorm:"not null;uniqueIndex" json:"user_id"`
	ReferralCode           string        `gorm:"not null;uniqueIndex" json:"referral_code"`
	ParentAffiliateID      *snowflake.ID `gorm:"column:parent_affiliate_id" json:"parent_affiliate_id,omitempty"`
	GrandparentAffiliateID *snowflake.ID `gorm:"column:grandparent_affiliate_id" json:"grandparent_affiliate_id,omitempty"`
	Level                  int           `gorm:"not null" json:"level"`
	IsActive               bool          `gorm:"not null" json:"is_active"`
	CreatedAt              time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}
