// Package dbtest opens in-memory sqlite databases carrying the production
// schema, plus raw-SQL fixtures for settlement tests.
package dbtest

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/stagepass/internal/migration"
	"gorm.io/gorm"
)

// Open returns a schema-initialised database private to the calling test.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	stripRowLocks(db)

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	stmts, err := migration.UpStatements()
	if err != nil {
		t.Fatalf("load migrations: %v", err)
	}
	for _, stmt := range stmts {
		if err := db.Exec(migration.SQLiteCompatible(stmt)).Error; err != nil {
			t.Fatalf("apply schema: %v\n%s", err, stmt)
		}
	}
	return db
}

// sqlite has no row locks; drop FOR UPDATE so repository queries run unchanged.
func stripRowLocks(db *gorm.DB) {
	strip := func(d *gorm.DB) {
		sql := d.Statement.SQL.String()
		if !strings.Contains(sql, "FOR UPDATE") {
			return
		}
		sql = strings.ReplaceAll(sql, "FOR UPDATE SKIP LOCKED", "")
		sql = strings.ReplaceAll(sql, "FOR UPDATE", "")
		d.Statement.SQL.Reset()
		d.Statement.SQL.WriteString(sql)
	}
	_ = db.Callback().Query().Before("gorm:query").Register("sqlite_strip_for_update", strip)
	_ = db.Callback().Row().Before("gorm:row").Register("sqlite_strip_for_update_row", strip)
}

func exec(t testing.TB, db *gorm.DB, sql string, args ...any) {
	t.Helper()
	if err := db.Exec(sql, args...).Error; err != nil {
		t.Fatalf("fixture: %v", err)
	}
}

// SeedArtist inserts an artist; an empty payoutAccount stores NULL.
func SeedArtist(t testing.TB, db *gorm.DB, id int64, tier, payoutAccount string, connectCompleted bool) {
	t.Helper()
	var account any
	if payoutAccount != "" {
		account = payoutAccount
	}
	now := time.Now().UTC()
	exec(t, db,
		`INSERT INTO artists (id, subscription_tier, payout_account_ref, connect_completed, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, tier, account, connectCompleted, now, now,
	)
}

type EventFixture struct {
	ID               int64
	ArtistID         int64
	TicketPrice      int64
	HappyHourPrice   *int64
	ScheduledAt      time.Time
	Capacity         *int64
	CurrentAttendees int64
	Status           string
	EndedAt          *time.Time
}

func SeedEvent(t testing.TB, db *gorm.DB, e EventFixture) {
	t.Helper()
	if e.Status == "" {
		e.Status = "scheduled"
	}
	if e.TicketPrice == 0 {
		e.TicketPrice = 1000
	}
	if e.ScheduledAt.IsZero() {
		e.ScheduledAt = time.Date(2026, 3, 6, 21, 0, 0, 0, time.UTC)
	}
	var endedAt any
	if e.EndedAt != nil {
		endedAt = e.EndedAt.UTC()
	}
	now := time.Now().UTC()
	exec(t, db,
		`INSERT INTO events (id, artist_id, title, ticket_price, happy_hour_price, scheduled_at, capacity,
			current_attendees, status, ended_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ArtistID, fmt.Sprintf("event %d", e.ID), e.TicketPrice, e.HappyHourPrice, e.ScheduledAt.UTC(),
		e.Capacity, e.CurrentAttendees, e.Status, endedAt, now, now,
	)
}

func SeedAffiliate(t testing.TB, db *gorm.DB, id int64, userID, code string, parent, grandparent *snowflake.ID, level int, active bool) {
	t.Helper()
	exec(t, db,
		`INSERT INTO affiliates (id, user_id, referral_code, parent_affiliate_id, grandparent_affiliate_id, level, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, userID, code, parent, grandparent, level, active, time.Now().UTC(),
	)
}

func SeedTicket(t testing.TB, db *gorm.DB, id, eventID int64, userID string, price int64, status, paymentIntentRef string) {
	t.Helper()
	now := time.Now().UTC()
	exec(t, db,
		`INSERT INTO tickets (id, event_id, user_id, purchase_price, is_happy_hour, payment_intent_ref, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, FALSE, ?, ?, ?, ?)`,
		id, eventID, userID, price, paymentIntentRef, status, now, now,
	)
}

func SeedCommission(t testing.TB, db *gorm.DB, id, ticketID, affiliateID int64, level int, rateBP int64, amount int64, status string) {
	t.Helper()
	exec(t, db,
		`INSERT INTO commissions (id, ticket_id, affiliate_id, commission_level, commission_rate, commission_amount, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, ticketID, affiliateID, level, rateBP, amount, status, time.Now().UTC(),
	)
}

func SeedTip(t testing.TB, db *gorm.DB, id, artistID int64, userID string, amount int64, paymentIntentRef string) {
	t.Helper()
	now := time.Now().UTC()
	exec(t, db,
		`INSERT INTO tips (id, artist_id, user_id, amount, payment_intent_ref, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 'pending', ?, ?)`,
		id, artistID, userID, amount, paymentIntentRef, now, now,
	)
}

// Count returns COUNT(*) for a table filtered by an optional where clause.
func Count(t testing.TB, db *gorm.DB, table, where string, args ...any) int64 {
	t.Helper()
	sql := "SELECT COUNT(*) FROM " + table
	if where != "" {
		sql += " WHERE " + where
	}
	var n int64
	if err := db.Raw(sql, args...).Scan(&n).Error; err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func Int64(v int64) *int64 { return &v }

func SnowflakeID(v int64) *snowflake.ID {
	id := snowflake.ID(v)
	return &id
}
