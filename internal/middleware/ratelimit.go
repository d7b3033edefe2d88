package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/teknolabs/vocameet-server/internal/audit"
	"github.com/teknolabs/vocameet-server/internal/config"
	apperrors "github.com/teknolabs/vocameet-server/internal/errors"
	"github.com/teknolabs/vocameet-server/internal/metrics"
	"github.com/teknolabs/vocameet-server/internal/util"
)

const (
	maxEntries      = 10000
	cleanupInterval = time.Minute
	entryTTL        = 5 * time.Minute
	windowDuration  = time.Minute
)

// Limiter is a per-key sliding window over one minute.
type Limiter interface {
	Check(ctx context.Context, key string, limit int) (allowed bool, remaining int, resetAt int64)
}

type rateLimitEntry struct {
	timestamps []time.Time
	lastAccess time.Time
}

// MemoryRateLimiter is a single-instance Limiter, used when redis is not
// shared between replicas and in tests.
type MemoryRateLimiter struct {
	mu          sync.Mutex
	store       map[string]*rateLimitEntry
	lastCleanup time.Time
	now         func() time.Time
}

func NewMemoryRateLimiter() *MemoryRateLimiter {
	return &MemoryRateLimiter{
		store:       make(map[string]*rateLimitEntry),
		lastCleanup: time.Now(),
		now:         time.Now,
	}
}

func (rl *MemoryRateLimiter) cleanup(now time.Time) {
	if now.Sub(rl.lastCleanup) < cleanupInterval {
		return
	}
	rl.lastCleanup = now

	for key, entry := range rl.store {
		if now.Sub(entry.lastAccess) > entryTTL {
			delete(rl.store, key)
		}
	}

	if len(rl.store) > maxEntries {
		drop := len(rl.store) / 5
		for key := range rl.store {
			if drop == 0 {
				break
			}
			delete(rl.store, key)
			drop--
		}
	}
}

func (rl *MemoryRateLimiter) Check(_ context.Context, key string, limit int) (allowed bool, remaining int, resetAt int64) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.cleanup(now)
	windowStart := now.Add(-windowDuration)

	entry, exists := rl.store[key]
	if !exists {
		entry = &rateLimitEntry{}
		rl.store[key] = entry
	}
	entry.lastAccess = now

	filtered := entry.timestamps[:0]
	for _, ts := range entry.timestamps {
		if ts.After(windowStart) {
			filtered = append(filtered, ts)
		}
	}
	entry.timestamps = filtered

	if len(entry.timestamps) > 0 {
		resetAt = entry.timestamps[0].Add(windowDuration).Unix()
	} else {
		resetAt = now.Add(windowDuration).Unix()
	}

	if len(entry.timestamps) >= limit {
		return false, 0, resetAt
	}

	entry.timestamps = append(entry.timestamps, now)
	return true, limit - len(entry.timestamps), resetAt
}

// RateLimitMiddleware limits authenticated callers by email. Requests
// without a caller pass through.
type RateLimitMiddleware struct {
	limiter    Limiter
	limit      int
	name       string
	metrics    *metrics.Metrics
	writeError ErrorWriter
}

func NewRateLimitMiddleware(limiter Limiter, name string, limit int, m *metrics.Metrics) *RateLimitMiddleware {
	if limit <= 0 {
		limit = config.DefaultRateLimitPerMin
	}
	return &RateLimitMiddleware{limiter: limiter, limit: limit, name: name, metrics: m, writeError: JSONErrors}
}

func (m *RateLimitMiddleware) WithErrorWriter(write ErrorWriter) *RateLimitMiddleware {
	c := *m
	c.writeError = write
	return &c
}

func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := GetCaller(r.Context())
		if caller == nil {
			next.ServeHTTP(w, r)
			return
		}

		allowed, remaining, resetAt := m.limiter.Check(r.Context(), m.name+":"+util.HashToken(caller.Email), m.limit)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(m.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt, 10))

		if !allowed {
			m.record("denied")
			log.Warn().Str("limiter", m.name).Msg("rate limit exceeded")
			audit.LogFromRequest(r, audit.Event{Type: audit.EventRateLimitExceed, Email: caller.Email, Details: map[string]interface{}{"limiter": m.name}})
			w.Header().Set("Retry-After", "60")
			m.writeError(w, apperrors.RateLimitExceeded())
			return
		}

		m.record("allowed")
		next.ServeHTTP(w, r)
	})
}

func (m *RateLimitMiddleware) record(result string) {
	if m.metrics != nil {
		m.metrics.RateLimitDecisions.WithLabelValues(m.name, result).Inc()
	}
}
