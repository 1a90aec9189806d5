package utils

import (
	"context"
	"errors"
	"sort"
	"time"

	"bitbucket.org/mmdatafocus/bloodstock_backend/config"
	"github.com/bsm/redislock"
)

// ErrStockLockNotObtained is returned when a Redis pair lock could not be taken before the deadline.
var ErrStockLockNotObtained = errors.New("could not obtain stock lock")

// StockLocks holds Redis locks obtained by AcquireStockLocks.
type StockLocks struct {
	locks []*redislock.Lock
}

// Release releases every held lock. Safe on a nil receiver.
func (l *StockLocks) Release(ctx context.Context) {
	if l == nil {
		return
	}
	for i := len(l.locks) - 1; i >= 0; i-- {
		_ = l.locks[i].Release(ctx)
	}
	l.locks = nil
}

// AcquireStockLocks obtains one Redis lock per key, in sorted key order so two
// callers sharing keys cannot deadlock. It blocks with linear backoff until the
// lock is free or ctx (or the lock TTL, when ctx has no deadline) expires.
//
// When Redis is not connected it returns an empty StockLocks and no error;
// the database row locks remain the source of truth.
func AcquireStockLocks(ctx context.Context, keys ...string) (*StockLocks, error) {
	held := &StockLocks{}
	locker := config.GetRedisLock()
	if locker == nil || !config.RedisStockLocksEnabled() || len(keys) == 0 {
		return held, nil
	}

	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	ttl := config.StockLockTTL()
	var prev string
	for i, key := range sorted {
		if i > 0 && key == prev {
			continue
		}
		prev = key
		lock, err := locker.Obtain(ctx, "stockLock:"+key, ttl, &redislock.Options{
			RetryStrategy: redislock.LinearBackoff(50 * time.Millisecond),
		})
		if err != nil {
			held.Release(ctx)
			if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) {
				return nil, ErrStockLockNotObtained
			}
			return nil, err
		}
		held.locks = append(held.locks, lock)
	}
	return held, nil
}
