package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLimiter() (*Limiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	return New(NewMemoryStore(), WithClock(clock.Now)), clock
}

func TestCheckFixedWindow(t *testing.T) {
	limiter, clock := newTestLimiter()
	cfg := Config{MaxRequests: 3, Window: time.Hour}
	ctx := context.Background()

	for i, want := range []int{2, 1, 0} {
		res := limiter.Check(ctx, "user-1", cfg)
		assert.True(t, res.Allowed, "call %d should be allowed", i+1)
		assert.Equal(t, want, res.Remaining)
		clock.Advance(10 * time.Minute)
	}

	res := limiter.Check(ctx, "user-1", cfg)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, 30*time.Minute, res.ResetIn)
	assert.Equal(t, 1800, res.RetryAfterSeconds())
}

func TestDeniedCallsStillConsumeSlots(t *testing.T) {
	limiter, clock := newTestLimiter()
	cfg := Config{MaxRequests: 1, Window: time.Minute}
	ctx := context.Background()

	require.True(t, limiter.Check(ctx, "ip:1.2.3.4", cfg).Allowed)
	for i := 0; i < 5; i++ {
		clock.Advance(5 * time.Second)
		assert.False(t, limiter.Check(ctx, "ip:1.2.3.4", cfg).Allowed)
	}

	// Retrying did not move the window: it still rolls over one minute after the first call.
	clock.Advance(35 * time.Second)
	assert.True(t, limiter.Check(ctx, "ip:1.2.3.4", cfg).Allowed)
}

func TestWindowRollover(t *testing.T) {
	limiter, clock := newTestLimiter()
	cfg := Config{MaxRequests: 2, Window: time.Hour}
	ctx := context.Background()

	limiter.Check(ctx, "user:9", cfg)
	limiter.Check(ctx, "user:9", cfg)
	require.False(t, limiter.Check(ctx, "user:9", cfg).Allowed)

	clock.Advance(time.Hour)
	res := limiter.Check(ctx, "user:9", cfg)
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Remaining)
	assert.Equal(t, time.Hour, res.ResetIn)
}

func TestIdentitiesAreIsolated(t *testing.T) {
	limiter, _ := newTestLimiter()
	cfg := Config{MaxRequests: 2, Window: time.Hour}
	ctx := context.Background()

	limiter.Check(ctx, "user:a", cfg)
	limiter.Check(ctx, "user:a", cfg)
	assert.False(t, limiter.Check(ctx, "user:a", cfg).Allowed)

	res := limiter.Check(ctx, "user:b", cfg)
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Remaining)
	assert.Equal(t, time.Hour, res.ResetIn)
}

func TestConcurrentChecksCountEveryCall(t *testing.T) {
	limiter := New(NewMemoryStore())
	cfg := Config{MaxRequests: 50, Window: time.Hour}
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.Check(ctx, "user:shared", cfg).Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, allowed)
}

type failingStore struct{}

func (failingStore) Increment(context.Context, string, time.Duration, time.Time) (int, time.Time, error) {
	return 0, time.Time{}, errors.New("connection refused")
}

func (failingStore) Prune(context.Context, time.Time) (int, error) {
	return 0, errors.New("connection refused")
}

func TestCheckFailsOpen(t *testing.T) {
	limiter := New(failingStore{})
	res := limiter.Check(context.Background(), "user:1", Authenticated)
	assert.True(t, res.Allowed)
	assert.Equal(t, Authenticated.MaxRequests, res.Remaining)
}

func TestPruneEvictsEndedWindows(t *testing.T) {
	store := NewMemoryStore()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	limiter := New(store, WithClock(clock.Now))
	ctx := context.Background()

	limiter.Check(ctx, "ip:old", Config{MaxRequests: 5, Window: time.Minute})
	limiter.Check(ctx, "ip:new", Config{MaxRequests: 5, Window: 2 * time.Hour})
	require.Equal(t, 2, store.Len())

	clock.Advance(time.Hour)
	removed, err := limiter.Prune(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, store.Len())
}

func TestIdentifier(t *testing.T) {
	assert.Equal(t, "user:42", Identifier("42", "10.0.0.1"))
	assert.Equal(t, "ip:10.0.0.1", Identifier("", "10.0.0.1"))
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"forwarded first entry", map[string]string{"X-Forwarded-For": " 203.0.113.7 , 10.0.0.2", "X-Real-IP": "10.0.0.3"}, "203.0.113.7"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.4"}, "198.51.100.4"},
		{"empty forwarded falls through", map[string]string{"X-Forwarded-For": " , ", "X-Real-IP": "198.51.100.5"}, "198.51.100.5"},
		{"no headers", nil, "127.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ctx fasthttp.RequestCtx
			for k, v := range tt.headers {
				ctx.Request.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(&ctx))
		})
	}
}

func TestRetryAfterSecondsRoundsUp(t *testing.T) {
	assert.Equal(t, 1, Result{ResetIn: 1 * time.Millisecond}.RetryAfterSeconds())
	assert.Equal(t, 2, Result{ResetIn: 1001 * time.Millisecond}.RetryAfterSeconds())
	assert.Equal(t, 0, Result{}.RetryAfterSeconds())
}
