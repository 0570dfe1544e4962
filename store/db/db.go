package db

import (
	"github.com/pkg/errors"

	"github.com/hrygo/intellichat/internal/profile"
	"github.com/hrygo/intellichat/store"
	"github.com/hrygo/intellichat/store/db/postgres"
	"github.com/hrygo/intellichat/store/db/sqlite"
)

// NewDBDriver creates new db driver based on profile.
//
// PostgreSQL runs similarity search in the database with pgvector.
// SQLite stores vectors as text and scores them in process.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	var driver store.Driver
	var err error

	switch profile.Driver {
	case "sqlite":
		driver, err = sqlite.NewDB(profile)
	case "postgres":
		driver, err = postgres.NewDB(profile)
	default:
		return nil, errors.New("unknown db driver: only 'postgres' and 'sqlite' are supported")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to create db driver")
	}
	return driver, nil
}
