package migration

import (
	"fmt"
	"strings"

	"github.com/smallbiznis/stagepass/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(Apply),
)

// Apply migrates the configured database. Postgres goes through
// golang-migrate; sqlite gets the raw statements with postgres-only types
// mapped to their sqlite equivalents.
func Apply(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
	switch cfg.DBType {
	case "sqlite":
		stmts, err := UpStatements()
		if err != nil {
			return err
		}
		for _, stmt := range stmts {
			if err := conn.Exec(SQLiteCompatible(stmt)).Error; err != nil {
				return fmt.Errorf("apply sqlite schema: %w", err)
			}
		}
		log.Info("sqlite schema applied", zap.Int("statements", len(stmts)))
		return nil
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	if err := RunMigrations(sqlDB); err != nil {
		return err
	}
	log.Info("migrations applied")
	return nil
}

// SQLiteCompatible rewrites column types the sqlite driver cannot scan back
// into time.Time.
func SQLiteCompatible(stmt string) string {
	return strings.ReplaceAll(stmt, "TIMESTAMPTZ", "TIMESTAMP")
}
