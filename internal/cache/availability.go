// Package cache keeps the public availability list of each book in Redis.
// Entries are written on read and deleted whenever a reservation of the
// book changes, so a hit is never older than the last committed write.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/library-reservation/internal/model"
)

// Availability is a read-through cache keyed by book id. A nil Redis
// client turns every call into a miss or a no-op.
type Availability struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewAvailability returns a cache storing entries under prefix for ttl.
func NewAvailability(rdb *redis.Client, prefix string, ttl time.Duration) *Availability {
	if prefix == "" {
		prefix = "cache"
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Availability{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (a *Availability) key(bookID uint64) string {
	return a.prefix + ":availability:book:" + strconv.FormatUint(bookID, 10)
}

// Get returns the cached ranges of bookID and whether there was a hit.
func (a *Availability) Get(ctx context.Context, bookID uint64) ([]model.DateRange, bool, error) {
	if a.rdb == nil {
		return nil, false, nil
	}
	bs, err := a.rdb.Get(ctx, a.key(bookID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var out []model.DateRange
	if err := json.Unmarshal(bs, &out); err != nil {
		// A corrupt entry is dropped and treated as a miss.
		_ = a.rdb.Del(ctx, a.key(bookID)).Err()
		return nil, false, nil
	}
	return out, true, nil
}

// Set stores ranges for bookID.
func (a *Availability) Set(ctx context.Context, bookID uint64, ranges []model.DateRange) error {
	if a.rdb == nil {
		return nil
	}
	if ranges == nil {
		ranges = []model.DateRange{}
	}
	bs, err := json.Marshal(ranges)
	if err != nil {
		return err
	}
	return a.rdb.Set(ctx, a.key(bookID), bs, a.ttl).Err()
}

// Invalidate drops the entry of bookID.
func (a *Availability) Invalidate(ctx context.Context, bookID uint64) error {
	if a.rdb == nil {
		return nil
	}
	return a.rdb.Del(ctx, a.key(bookID)).Err()
}
