package quota

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// LimiterBackend keeps one token bucket per caller. A bucket holds up to
// credits tokens and refills credits tokens per interval. Buckets idle for
// a full interval are dropped; a new bucket starts full, which is what the
// dropped one would have refilled to.
type LimiterBackend struct {
	mu       sync.Mutex
	limiters *cache.Cache
	limit    rate.Limit
	burst    int
	now      func() time.Time
}

func NewLimiterBackend(credits int, interval time.Duration) *LimiterBackend {
	var limit rate.Limit
	if credits > 0 && interval > 0 {
		limit = rate.Limit(float64(credits) / interval.Seconds())
	}
	return &LimiterBackend{
		limiters: cache.New(interval, interval),
		limit:    limit,
		burst:    credits,
		now:      time.Now,
	}
}

func (b *LimiterBackend) Take(ctx context.Context, key string, cost int) (int, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	lim := b.limiter(key)
	now := b.now()
	ok := lim.AllowN(now, cost)
	return int(lim.TokensAt(now)), ok, nil
}

func (b *LimiterBackend) limiter(key string) *rate.Limiter {
	b.mu.Lock()
	defer b.mu.Unlock()
	if v, found := b.limiters.Get(key); found {
		b.limiters.SetDefault(key, v)
		return v.(*rate.Limiter)
	}
	lim := rate.NewLimiter(b.limit, b.burst)
	b.limiters.SetDefault(key, lim)
	return lim
}
