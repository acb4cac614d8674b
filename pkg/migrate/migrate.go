package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/angelmondragon/farmgate-checkout/pkg/config"
	"github.com/angelmondragon/farmgate-checkout/pkg/db"
	"github.com/angelmondragon/farmgate-checkout/pkg/logger"
	"github.com/pressly/goose/v3"
)

const DefaultDir = "pkg/migrate/migrations"

var dialects = map[string]string{
	"":                      "postgres",
	config.DBDriverPostgres: "postgres",
	config.DBDriverSQLite:   "sqlite3",
}

// Dialect maps the configured db driver onto goose's dialect names.
func Dialect(driver string) (string, error) {
	dialect, ok := dialects[driver]
	if !ok {
		return "", fmt.Errorf("no goose dialect for driver %q", driver)
	}
	return dialect, nil
}

func prepare(sqlDB *sql.DB, driver, dir string) error {
	switch {
	case sqlDB == nil:
		return errors.New("db is required")
	case dir == "":
		return errors.New("dir is required")
	}
	dialect, err := Dialect(driver)
	if err != nil {
		return err
	}
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	return nil
}

// Run executes a goose command (up, down, status, ...) against sqlDB.
func Run(ctx context.Context, sqlDB *sql.DB, driver, dir, command string, args ...string) error {
	if err := prepare(sqlDB, driver, dir); err != nil {
		return err
	}
	if err := goose.RunContext(ctx, command, sqlDB, dir, args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// MigrateToVersion moves the schema up or down to version (YYYYMMDDHHMMSS).
func MigrateToVersion(ctx context.Context, sqlDB *sql.DB, driver, dir, version string) error {
	target, err := strconv.ParseInt(version, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", version, err)
	}
	if err := prepare(sqlDB, driver, dir); err != nil {
		return err
	}
	current, err := goose.GetDBVersionContext(ctx, sqlDB)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}

	switch {
	case current < target:
		err = goose.UpToContext(ctx, sqlDB, dir, target)
	case current > target:
		err = goose.DownToContext(ctx, sqlDB, dir, target)
	}
	if err != nil {
		return fmt.Errorf("goose migrate %d -> %d: %w", current, target, err)
	}
	return nil
}

// MaybeRunDev applies pending migrations on boot when running in dev with
// FARMGATE_AUTO_MIGRATE set. Other environments migrate through cmd/migrate.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	sqlDB, err := client.SQL()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	ctx = logg.WithFields(ctx, map[string]any{"dir": DefaultDir, "driver": cfg.DB.Driver})
	if err := Run(ctx, sqlDB, cfg.DB.Driver, DefaultDir, "up"); err != nil {
		return err
	}
	if version, err := goose.GetDBVersionContext(ctx, sqlDB); err == nil {
		ctx = logg.WithField(ctx, "schema_version", version)
	}
	logg.Info(ctx, "dev auto-migrate finished")
	return nil
}
