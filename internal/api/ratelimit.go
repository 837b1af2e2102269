package api

import (
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

var rateLimitExceeded = promauto.NewCounter(prometheus.CounterOpts{
	Name: "pdf_intake_ratelimit_exceeded_total",
	Help: "Total number of submissions rejected by the per-IP rate limit.",
})

// IPRateLimiter keeps one token bucket per client IP. It implements
// middleware.RateLimiterStore.
type IPRateLimiter struct {
	rate  rate.Limit
	burst int
	ttl   time.Duration

	mu          sync.Mutex
	limiters    map[string]*ipLimiter
	lastCleanup time.Time
	now         func() time.Time
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewIPRateLimiter creates a limiter allowing perSecond requests per IP with
// the given burst. Idle entries are forgotten after ttl.
func NewIPRateLimiter(perSecond float64, burst int, ttl time.Duration) *IPRateLimiter {
	if burst <= 0 {
		burst = 1
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &IPRateLimiter{
		rate:        rate.Limit(perSecond),
		burst:       burst,
		ttl:         ttl,
		limiters:    make(map[string]*ipLimiter),
		lastCleanup: time.Now(),
		now:         time.Now,
	}
}

// Allow reports whether a request from identifier may proceed.
func (l *IPRateLimiter) Allow(identifier string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastCleanup) > l.ttl {
		for ip, e := range l.limiters {
			if now.Sub(e.lastSeen) > l.ttl {
				delete(l.limiters, ip)
			}
		}
		l.lastCleanup = now
	}

	e, ok := l.limiters[identifier]
	if !ok {
		e = &ipLimiter{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[identifier] = e
	}
	e.lastSeen = now

	if !e.limiter.AllowN(now, 1) {
		rateLimitExceeded.Inc()
		return false, nil
	}
	return true, nil
}

// Len returns the number of tracked IPs.
func (l *IPRateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// RateLimitMiddleware rejects requests over the limit with a RATE_LIMITED
// APIError.
func RateLimitMiddleware(store middleware.RateLimiterStore) echo.MiddlewareFunc {
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return NewBadRequestError("cannot identify client", err)
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return NewTooManyRequestsError()
		},
	})
}
