package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/teknolabs/vocameet-server/internal/audit"
	apperrors "github.com/teknolabs/vocameet-server/internal/errors"
	"github.com/teknolabs/vocameet-server/internal/httputil"
	"github.com/teknolabs/vocameet-server/internal/metrics"
)

const ipLimiterSweepInterval = 3 * time.Minute

// IPRateLimiter is a token bucket per client IP, used on unauthenticated
// routes such as login.
type IPRateLimiter struct {
	mu      sync.RWMutex
	limits  map[string]*rate.Limiter
	r       rate.Limit
	b       int
	name    string
	metrics *metrics.Metrics
}

func NewIPRateLimiter(r rate.Limit, b int, name string, m *metrics.Metrics) *IPRateLimiter {
	return &IPRateLimiter{
		limits:  make(map[string]*rate.Limiter),
		r:       r,
		b:       b,
		name:    name,
		metrics: m,
	}
}

func (i *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	i.mu.RLock()
	limiter, exists := i.limits[ip]
	i.mu.RUnlock()
	if exists {
		return limiter
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	limiter, exists = i.limits[ip]
	if !exists {
		limiter = rate.NewLimiter(i.r, i.b)
		i.limits[ip] = limiter
	}
	return limiter
}

// Sweep drops limiters whose bucket has refilled, until ctx is done.
func (i *IPRateLimiter) Sweep(ctx context.Context) {
	ticker := time.NewTicker(ipLimiterSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, active := i.sweep(time.Now())
			log.Debug().Str("limiter", i.name).Int("removed", removed).Int("active", active).Msg("ip rate limiter sweep")
		}
	}
}

func (i *IPRateLimiter) sweep(now time.Time) (removed, active int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for ip, limiter := range i.limits {
		if limiter.TokensAt(now) >= float64(limiter.Burst()) {
			delete(i.limits, ip)
			removed++
		}
	}
	return removed, len(i.limits)
}

func (i *IPRateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := audit.ClientIP(r)
		if ip == "" {
			ip = "unknown_ip"
		}

		limiter := i.GetLimiter(ip)
		if !limiter.Allow() {
			if i.metrics != nil {
				i.metrics.RateLimitDecisions.WithLabelValues(i.name, "denied").Inc()
			}
			audit.LogFromRequest(r, audit.Event{Type: audit.EventRateLimitExceed, Details: map[string]interface{}{"limiter": i.name}})
			retry := time.Duration(float64(time.Second) / float64(i.r))
			w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())+1))
			httputil.WriteError(w, apperrors.RateLimitExceeded())
			return
		}

		if i.metrics != nil {
			i.metrics.RateLimitDecisions.WithLabelValues(i.name, "allowed").Inc()
		}
		next.ServeHTTP(w, r)
	})
}
