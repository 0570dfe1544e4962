package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"
	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/hrygo/intellichat/internal/profile"
	"github.com/hrygo/intellichat/store"
)

// SQLite is meant for development, tests and single-user installs. Vector
// search scans the caller's rows and scores them in Go.

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens db connection.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	// Pragmas:
	// - busy_timeout waits on a locked database instead of failing right away.
	// - journal_mode(WAL) lets readers run while the writer commits.
	sep := "?"
	if strings.Contains(profile.DSN, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite", profile.DSN+sep+"_pragma=foreign_keys(0)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}
	// A single writer connection keeps appends strictly ordered.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping database")
	}

	driver := DB{db: db, profile: profile}
	return &driver, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) IsInitialized(ctx context.Context) (bool, error) {
	var exists bool
	err := d.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = 'chat')").Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "failed to check if database is initialized")
	}
	return exists, nil
}
