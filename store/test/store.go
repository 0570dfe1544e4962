// Package test provides helpers for tests that need a real database.
package test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hrygo/intellichat/internal/profile"
	"github.com/hrygo/intellichat/internal/version"
	"github.com/hrygo/intellichat/store"
	"github.com/hrygo/intellichat/store/db"
)

// NewTestingStore returns a migrated store on a fresh database.
//
// SQLite in a temporary directory is used by default. Set DRIVER=postgres and
// POSTGRES_TEST_DSN to run against PostgreSQL with pgvector instead.
func NewTestingStore(ctx context.Context, t *testing.T) *store.Store {
	t.Helper()

	prof := getTestingProfile(t)
	dbDriver, err := db.NewDBDriver(prof)
	if err != nil {
		t.Fatalf("failed to create db driver: %v", err)
	}

	s := store.New(dbDriver, prof)
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate db: %v", err)
	}
	t.Cleanup(func() {
		if prof.Driver == "postgres" {
			resetPostgres(dbDriver)
		}
		s.Close()
	})
	return s
}

func getTestingProfile(t *testing.T) *profile.Profile {
	t.Helper()

	driver := getDriverFromEnv()
	prof := &profile.Profile{
		Mode:    "dev",
		Driver:  driver,
		Version: version.GetCurrentVersion("dev"),
	}

	switch driver {
	case "postgres":
		dsn := os.Getenv("POSTGRES_TEST_DSN")
		if dsn == "" {
			t.Skip("POSTGRES_TEST_DSN is not set")
		}
		prof.DSN = dsn
	default:
		dir := t.TempDir()
		prof.Data = dir
		prof.DSN = filepath.Join(dir, "intellichat_test.db")
	}
	return prof
}

func getDriverFromEnv() string {
	driver := os.Getenv("DRIVER")
	if driver == "" {
		driver = "sqlite"
	}
	return driver
}

// resetPostgres drops the tables so the next test starts from an empty schema.
func resetPostgres(driver store.Driver) {
	_, _ = driver.GetDB().Exec(`DROP TABLE IF EXISTS message_embedding, message, chat, system_setting CASCADE`)
}
