package scheduling

import (
	"net/http"
	"sync"
	"time"

	"github.com/carebridge/hms/pkg/types"
)

// clientLimiter throttles requests per acting user with a token bucket per
// X-User-ID (falling back to the remote address for unidentified callers).
type clientLimiter struct {
	mu      sync.RWMutex
	buckets map[string]*tokenBucket
	limit   int
	period  time.Duration
}

type tokenBucket struct {
	mu         sync.Mutex
	tokens     int
	lastRefill time.Time
}

func newClientLimiter(limit int, period time.Duration) *clientLimiter {
	return &clientLimiter{
		buckets: make(map[string]*tokenBucket),
		limit:   limit,
		period:  period,
	}
}

// allow consumes one token from the caller's bucket, refilling
// proportionally to the time elapsed since the last refill.
func (l *clientLimiter) allow(key string) bool {
	bucket := l.bucket(key)

	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(bucket.lastRefill)
	if elapsed >= l.period {
		bucket.tokens = l.limit
		bucket.lastRefill = now
	} else if refill := int(elapsed.Nanoseconds() * int64(l.limit) / l.period.Nanoseconds()); refill > 0 {
		bucket.tokens = min(bucket.tokens+refill, l.limit)
		bucket.lastRefill = now
	}

	if bucket.tokens > 0 {
		bucket.tokens--
		return true
	}
	return false
}

func (l *clientLimiter) bucket(key string) *tokenBucket {
	l.mu.RLock()
	bucket, ok := l.buckets[key]
	l.mu.RUnlock()
	if ok {
		return bucket
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if bucket, ok := l.buckets[key]; ok {
		return bucket
	}
	bucket = &tokenBucket{tokens: l.limit, lastRefill: time.Now()}
	l.buckets[key] = bucket
	return bucket
}

// dropIdle removes buckets that have not been touched since the cutoff, so
// one-off callers do not accumulate forever.
func (l *clientLimiter) dropIdle(cutoff time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, bucket := range l.buckets {
		bucket.mu.Lock()
		if bucket.lastRefill.Before(cutoff) {
			delete(l.buckets, key)
		}
		bucket.mu.Unlock()
	}
}

// startCleanup periodically evicts idle buckets until stop is closed.
func (l *clientLimiter) startCleanup(interval, maxIdle time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.dropIdle(time.Now().Add(-maxIdle))
			case <-stop:
				return
			}
		}
	}()
}

// middleware rejects over-limit requests with 429 before they reach the
// handlers.
func (l *clientLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-User-ID")
		if key == "" {
			key = r.RemoteAddr
		}
		if !l.allow(key) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate limit exceeded","code":"` + types.ErrCodeRateLimited + `"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
