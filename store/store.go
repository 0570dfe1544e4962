package store

import (
	"context"
	"strconv"
	"time"

	"github.com/hrygo/intellichat/internal/profile"
	"github.com/hrygo/intellichat/plugin/ai/cache"
)

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver

	// chatCache holds chat rows by id; message counts are not cached.
	chatCache *cache.LRU[*Chat]
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:    driver,
		profile:   profile,
		chatCache: cache.NewLRU[*Chat](1000, 10*time.Minute),
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	s.chatCache.Clear()
	return s.driver.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.driver.GetDB().PingContext(ctx)
}

func chatCacheKey(id int32) string {
	return strconv.FormatInt(int64(id), 10)
}
