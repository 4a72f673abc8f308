// Package commission computes the three-level referral commission owed on a
// ticket sale.
package commission

import (
	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	affiliatedomain "github.com/smallbiznis/stagepass/internal/affiliate/domain"
)

// Rates in basis points, indexed by level-1.
var levelRates = [affiliatedomain.MaxLevel]int64{250, 150, 100}

var basisPoints = decimal.NewFromInt(10000)

// Breakdown holds per-level amounts in cents. Total is the sum of the
// individually rounded levels.
type Breakdown struct {
	Level1 int64
	Level2 int64
	Level3 int64
	Total  int64
}

func (b Breakdown) level(n int) int64 {
	switch n {
	case 1:
		return b.Level1
	case 2:
		return b.Level2
	case 3:
		return b.Level3
	}
	return 0
}

// Compute applies each level rate to price and rounds half-up to the cent.
func Compute(price int64) Breakdown {
	var out Breakdown
	out.Level1 = amount(price, levelRates[0])
	out.Level2 = amount(price, levelRates[1])
	out.Level3 = amount(price, levelRates[2])
	out.Total = out.Level1 + out.Level2 + out.Level3
	return out
}

// Rate returns the basis-point rate of a level, or 0 beyond the hierarchy.
func Rate(level int) int64 {
	if level < 1 || level > len(levelRates) {
		return 0
	}
	return levelRates[level-1]
}

func amount(price, rate int64) int64 {
	if price <= 0 {
		return 0
	}
	return decimal.NewFromInt(price).
		Mul(decimal.NewFromInt(rate)).
		Div(basisPoints).
		Round(0).
		IntPart()
}

// Hierarchy is the referral chain credited for a sale: the referring
// affiliate, then its parent and grandparent when present.
type Hierarchy struct {
	Level1 snowflake.ID
	Level2 *snowflake.ID
	Level3 *snowflake.ID
}

func ResolveHierarchy(affiliate affiliatedomain.Affiliate) Hierarchy {
	return Hierarchy{
		Level1: affiliate.ID,
		Level2: affiliate.ParentAffiliateID,
		Level3: affiliate.GrandparentAffiliateID,
	}
}

// Share is one pending commission to persist alongside a ticket.
type Share struct {
	AffiliateID snowflake.ID
	Level       int
	Rate        int64
	Amount      int64
}

// Plan fans a breakdown out over the hierarchy, one share per level present.
func Plan(h Hierarchy, b Breakdown) []Share {
	ids := []*snowflake.ID{&h.Level1, h.Level2, h.Level3}
	shares := make([]Share, 0, len(ids))
	for i, id := range ids {
		if id == nil || *id == 0 {
			continue
		}
		level := i + 1
		shares = append(shares, Share{
			AffiliateID: *id,
			Level:       level,
			Rate:        Rate(level),
			Amount:      b.level(level),
		})
	}
	return shares
}

// Sum totals the amounts of a plan.
func Sum(shares []Share) int64 {
	var total int64
	for _, s := range shares {
		total += s.Amount
	}
	return total
}
