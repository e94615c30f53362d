package httpapi

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jackchouchani/inventoryApp-sub001/internal/auth"
)

// Verdict is the outcome of one token request
type Verdict struct {
	Allowed   bool
	Remaining int
	RetryAt   time.Time // next token; drives Retry-After
	ResetAt   time.Time // bucket full again; drives X-RateLimit-Reset
}

// TokenBucket refills continuously at rate tokens per second up to capacity
type TokenBucket struct {
	mu       sync.Mutex
	tokens   float64
	capacity float64
	rate     float64
	last     time.Time
}

// NewTokenBucket creates a full bucket
func NewTokenBucket(capacity int, rate float64, now time.Time) *TokenBucket {
	return &TokenBucket{
		tokens:   float64(capacity),
		capacity: float64(capacity),
		rate:     rate,
		last:     now,
	}
}

// Take consumes one token at now when available
func (tb *TokenBucket) Take(now time.Time) Verdict {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if elapsed := now.Sub(tb.last).Seconds(); elapsed > 0 {
		tb.tokens = min(tb.capacity, tb.tokens+elapsed*tb.rate)
	}
	tb.last = now

	v := Verdict{RetryAt: now}
	if tb.tokens >= 1 {
		tb.tokens--
		v.Allowed = true
		v.Remaining = int(tb.tokens)
	} else {
		v.RetryAt = now.Add(secondsToDuration((1 - tb.tokens) / tb.rate))
	}
	v.ResetAt = now.Add(secondsToDuration((tb.capacity - tb.tokens) / tb.rate))
	return v
}

func (tb *TokenBucket) idleSince(now time.Time) time.Duration {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return now.Sub(tb.last)
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// RateLimiter keeps one bucket per key and evicts buckets idle for an hour
type RateLimiter struct {
	config RateLimitInfo
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*TokenBucket

	stop chan struct{}
	once sync.Once
}

// NewRateLimiter starts a limiter; Close stops its eviction loop
func NewRateLimiter(config RateLimitInfo) *RateLimiter {
	rl := &RateLimiter{
		config:  config,
		now:     time.Now,
		buckets: make(map[string]*TokenBucket),
		stop:    make(chan struct{}),
	}
	go rl.evictLoop(10*time.Minute, time.Hour)
	return rl
}

// Allow takes a token from key's bucket
func (rl *RateLimiter) Allow(key string) Verdict {
	now := rl.now()

	rl.mu.Lock()
	b, ok := rl.buckets[key]
	if !ok {
		rate := float64(rl.config.MaxRequests) / float64(rl.config.WindowSeconds)
		b = NewTokenBucket(rl.config.Burst, rate, now)
		rl.buckets[key] = b
	}
	rl.mu.Unlock()

	return b.Take(now)
}

func (rl *RateLimiter) evict(maxIdle time.Duration) int {
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	n := 0
	for key, b := range rl.buckets {
		if b.idleSince(now) > maxIdle {
			delete(rl.buckets, key)
			n++
		}
	}
	return n
}

func (rl *RateLimiter) evictLoop(every, maxIdle time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.evict(maxIdle)
		}
	}
}

// Close stops the eviction loop
func (rl *RateLimiter) Close() {
	rl.once.Do(func() { close(rl.stop) })
}

// RateLimitMiddleware limits requests per authenticated subject, or per
// client address when the API runs without auth. MaxRequests or
// WindowSeconds <= 0 disables limiting.
func RateLimitMiddleware(config RateLimitInfo) func(http.Handler) http.Handler {
	if config.MaxRequests <= 0 || config.WindowSeconds <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if config.Burst <= 0 {
		config.Burst = config.MaxRequests
	}
	limiter := NewRateLimiter(config)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := auth.Subject(r.Context())
			if key == "" {
				key = "addr:" + r.RemoteAddr
			}

			v := limiter.Allow(key)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(config.MaxRequests))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(v.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(v.ResetAt.Unix(), 10))
			w.Header().Set("X-RateLimit-Burst", strconv.Itoa(config.Burst))

			if !v.Allowed {
				retryAfter := int(time.Until(v.RetryAt).Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

				log.Ctx(r.Context()).Warn().
					Str("key", key).
					Str("path", r.URL.Path).
					Int("retryAfter", retryAfter).
					Msg("rate limit exceeded")

				writeError(w, r, http.StatusTooManyRequests,
					"rate limit exceeded, retry after "+strconv.Itoa(retryAfter)+" seconds")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
