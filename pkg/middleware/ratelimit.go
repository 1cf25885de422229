package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/portalgate/pkg/observability"
)

// RateLimitConfig defines guest rate limiting configuration
type RateLimitConfig struct {
	// Limit is the number of requests allowed per window
	Limit int
	// Window is the fixed window length
	Window time.Duration
	// SweepInterval is how often expired windows are dropped
	SweepInterval time.Duration
}

// DefaultRateLimitConfig returns 10 requests per 60 second window, swept
// every 5 minutes
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Limit:         10,
		Window:        time.Minute,
		SweepInterval: 5 * time.Minute,
	}
}

// Validate checks the configuration
func (c RateLimitConfig) Validate() error {
	if c.Limit < 1 {
		return fmt.Errorf("rate limit must be at least 1, got %d", c.Limit)
	}
	if c.Window <= 0 {
		return fmt.Errorf("rate limit window must be positive, got %s", c.Window)
	}
	return nil
}

// RateLimitResult is the outcome of one CheckAndIncrement call
type RateLimitResult struct {
	Allowed bool
	// Count is the number of requests seen in the current window,
	// including this one
	Count   int
	Limit   int
	ResetAt time.Time
}

// GuestLimiter caps request rate per key (typically a client IP)
type GuestLimiter interface {
	CheckAndIncrement(ctx context.Context, key string) (RateLimitResult, error)
}

type window struct {
	count   int
	resetAt time.Time
}

// RateLimiter is an in-process fixed-window rate limiter. State is lost on
// restart and is not shared between instances.
type RateLimiter struct {
	logger  logrus.FieldLogger
	metrics *observability.Metrics
	now     func() time.Time

	mu            sync.Mutex
	windows       map[string]*window
	limit         int
	window        time.Duration
	sweepInterval time.Duration

	sched *cron.Cron
}

// RateLimiterOption configures a RateLimiter
type RateLimiterOption func(*RateLimiter)

// WithClock replaces time.Now
func WithClock(now func() time.Time) RateLimiterOption {
	return func(rl *RateLimiter) {
		rl.now = now
	}
}

// WithMetrics records limiter activity
func WithMetrics(m *observability.Metrics) RateLimiterOption {
	return func(rl *RateLimiter) {
		rl.metrics = m
	}
}

// NewRateLimiter creates a limiter. Invalid config fields fall back to the
// defaults.
func NewRateLimiter(config RateLimitConfig, logger logrus.FieldLogger, opts ...RateLimiterOption) *RateLimiter {
	def := DefaultRateLimitConfig()
	if config.Limit < 1 {
		config.Limit = def.Limit
	}
	if config.Window <= 0 {
		config.Window = def.Window
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = def.SweepInterval
	}

	rl := &RateLimiter{
		logger:        logger,
		now:           time.Now,
		windows:       make(map[string]*window),
		limit:         config.Limit,
		window:        config.Window,
		sweepInterval: config.SweepInterval,
	}
	for _, opt := range opts {
		opt(rl)
	}
	return rl
}

// CheckAndIncrement counts a request for key. The first request of a window
// opens it with count 1; later requests increment the count, and once the
// count exceeds the limit the request is denied. Denied requests still
// count. It never returns an error.
func (rl *RateLimiter) CheckAndIncrement(ctx context.Context, key string) (RateLimitResult, error) {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{count: 1, resetAt: now.Add(rl.window)}
		rl.windows[key] = w
	} else {
		w.count++
	}

	res := RateLimitResult{
		Allowed: w.count <= rl.limit,
		Count:   w.count,
		Limit:   rl.limit,
		ResetAt: w.resetAt,
	}
	if !res.Allowed {
		rl.metrics.IncGuestRateLimited()
	}
	return res, nil
}

// SetLimit changes the per-window limit. Open windows keep their counts and
// are judged against the new limit from the next request on.
func (rl *RateLimiter) SetLimit(limit int) error {
	if limit < 1 {
		return fmt.Errorf("rate limit must be at least 1, got %d", limit)
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.limit = limit
	return nil
}

// Limit returns the current per-window limit
func (rl *RateLimiter) Limit() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.limit
}

// Sweep removes expired windows and returns how many were removed
func (rl *RateLimiter) Sweep() int {
	now := rl.now()

	rl.mu.Lock()
	removed := 0
	for key, w := range rl.windows {
		if !now.Before(w.resetAt) {
			delete(rl.windows, key)
			removed++
		}
	}
	remaining := len(rl.windows)
	rl.mu.Unlock()

	rl.metrics.SetGuestWindows(remaining)
	return removed
}

// Len returns the number of tracked windows
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.windows)
}

// Start schedules Sweep every SweepInterval. Calling Start twice is a no-op.
func (rl *RateLimiter) Start() error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.sched != nil {
		return nil
	}

	sched := cron.New()
	spec := fmt.Sprintf("@every %s", rl.sweepInterval)
	if _, err := sched.AddFunc(spec, func() {
		if removed := rl.Sweep(); removed > 0 {
			rl.logger.WithField("removed", removed).Debug("Swept expired guest rate limit windows")
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule rate limit sweep: %w", err)
	}
	sched.Start()
	rl.sched = sched
	return nil
}

// Stop halts the sweep schedule and waits for a running sweep to finish
func (rl *RateLimiter) Stop() {
	rl.mu.Lock()
	sched := rl.sched
	rl.sched = nil
	rl.mu.Unlock()

	if sched != nil {
		<-sched.Stop().Done()
	}
}
