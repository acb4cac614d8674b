package migrate_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/angelmondragon/farmgate-checkout/pkg/config"
	"github.com/angelmondragon/farmgate-checkout/pkg/migrate"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestCheckoutAttemptsMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_checkout_attempts.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no checkout attempts migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS checkout_attempts",
		"idempotency_key TEXT NOT NULL UNIQUE",
		"CHECK (amount_cents >= 0)",
		"idx_checkout_attempts_state_updated",
		"DROP TABLE IF EXISTS checkout_attempts",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestValidateDirAcceptsShippedMigrations(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("expected shipped migrations to validate: %v", err)
	}
}

func TestValidateDirRejectsBadFilename(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "create_things.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := migrate.ValidateDir(dir); err == nil {
		t.Fatal("expected invalid filename error")
	}
}

func TestRunUpOnSQLite(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	defer sqlDB.Close()

	if err := migrate.Run(context.Background(), sqlDB, config.DBDriverSQLite, "migrations", "up"); err != nil {
		t.Fatalf("goose up: %v", err)
	}
	if !conn.Migrator().HasTable("checkout_attempts") {
		t.Fatal("expected checkout_attempts table after migration")
	}
}

func TestDialect(t *testing.T) {
	if got, _ := migrate.Dialect(config.DBDriverSQLite); got != "sqlite3" {
		t.Fatalf("expected sqlite3 dialect, got %q", got)
	}
	if got, _ := migrate.Dialect(""); got != "postgres" {
		t.Fatalf("expected postgres default, got %q", got)
	}
	if _, err := migrate.Dialect("oracle"); err == nil {
		t.Fatal("expected unsupported driver error")
	}
}
