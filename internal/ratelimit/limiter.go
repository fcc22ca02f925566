// Package ratelimit throttles expensive calls with a fixed-window counter
// per caller identity.
//
// Every call consumes a slot, including calls that end up denied, so a client
// retrying in a loop cannot reset its own budget. Window edges are not
// smoothed: a client can spend a full budget at the end of one window and
// another at the start of the next.
package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Config is a per-use-case limit.
type Config struct {
	MaxRequests int
	Window      time.Duration
}

var (
	// Anonymous applies to callers without a session, keyed by client IP.
	Anonymous = Config{MaxRequests: 5, Window: time.Hour}
	// Authenticated applies to signed-in callers, keyed by user id.
	Authenticated = Config{MaxRequests: 20, Window: time.Hour}
)

// Result is the decision for one call.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	// ResetIn is the time left until the current window rolls over.
	ResetIn time.Duration
}

// RetryAfterSeconds rounds ResetIn up to whole seconds, the unit of the
// Retry-After header.
func (r Result) RetryAfterSeconds() int {
	return int((r.ResetIn + time.Second - 1) / time.Second)
}

// Limiter applies Config limits against a Store.
type Limiter struct {
	store Store
	now   func() time.Time
}

type Option func(*Limiter)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

func New(store Store, opts ...Option) *Limiter {
	l := &Limiter{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check records one call for identifier and reports whether it may proceed.
// It never fails: if the store errors the call is allowed and the error
// logged.
func (l *Limiter) Check(ctx context.Context, identifier string, cfg Config) Result {
	now := l.now()
	count, resetAt, err := l.store.Increment(ctx, identifier, cfg.Window, now)
	if err != nil {
		zap.L().Error("rate limit store failed, allowing request",
			zap.String("identifier", identifier), zap.Error(err))
		return Result{Allowed: true, Limit: cfg.MaxRequests, Remaining: cfg.MaxRequests, ResetIn: cfg.Window}
	}

	return Result{
		Allowed:   count <= cfg.MaxRequests,
		Limit:     cfg.MaxRequests,
		Remaining: max(0, cfg.MaxRequests-count),
		ResetIn:   max(0, resetAt.Sub(now)),
	}
}

// Prune evicts identifiers whose window ended more than grace ago.
func (l *Limiter) Prune(ctx context.Context, grace time.Duration) (int, error) {
	return l.store.Prune(ctx, l.now().Add(-grace))
}

// StartJanitor prunes stale entries every interval until ctx is done.
func (l *Limiter) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := l.Prune(ctx, 0)
				if err != nil {
					zap.L().Warn("rate limit prune failed", zap.Error(err))
					continue
				}
				if removed > 0 {
					zap.L().Debug("rate limit entries pruned", zap.Int("removed", removed))
				}
			}
		}
	}()
}
