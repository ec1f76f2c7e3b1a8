package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/relaydocs/relaydocs/internal/config"
)

type fakeCounter struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func newFakeCounter() *fakeCounter {
	return &fakeCounter{counts: make(map[string]int64)}
}

func (f *fakeCounter) Incr(_ context.Context, key string, _ time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.counts[key]++
	return f.counts[key], nil
}

type staticClock struct {
	now time.Time
}

func (c *staticClock) Now() time.Time { return c.now }

func newTestLimiter(t *testing.T) (*GatewayLimiter, *fakeCounter, *staticClock) {
	t.Helper()
	counter := newFakeCounter()
	clock := &staticClock{now: time.Date(2026, 3, 1, 12, 0, 30, 0, time.UTC)}
	limiter := NewGatewayLimiterWithCounter(counter, nil).WithClock(clock)
	return limiter, counter, clock
}

func TestRepositoryCeilingWithinOneWindow(t *testing.T) {
	limiter, _, clock := newTestLimiter(t)
	ctx := context.Background()

	limit := config.DefaultGatewayConfig().RepositoryLimit
	for i := 0; i < limit; i++ {
		result := limiter.AllowRepository(ctx, "docs")
		if !result.Allowed {
			t.Fatalf("request %d unexpectedly denied", i+1)
		}
	}

	denied := limiter.AllowRepository(ctx, "docs")
	if denied.Allowed {
		t.Fatal("expected request over the ceiling to be denied")
	}
	if denied.Remaining != 0 {
		t.Fatalf("expected zero remaining, got %d", denied.Remaining)
	}
	if !denied.Reset.After(clock.now) {
		t.Fatalf("expected reset after now, got %v", denied.Reset)
	}

	// A new window clears the counter.
	clock.now = clock.now.Add(time.Minute)
	if result := limiter.AllowRepository(ctx, "docs"); !result.Allowed {
		t.Fatal("expected request in the next window to be allowed")
	}
}

func TestClientCeilingIsIndependentPerClient(t *testing.T) {
	limiter, _, _ := newTestLimiter(t)
	ctx := context.Background()

	limit := config.DefaultGatewayConfig().ClientLimit
	for i := 0; i < limit; i++ {
		if result := limiter.AllowClient(ctx, "docs", "rd_ci_a"); !result.Allowed {
			t.Fatalf("client a request %d unexpectedly denied", i+1)
		}
	}
	if result := limiter.AllowClient(ctx, "docs", "rd_ci_a"); result.Allowed {
		t.Fatal("expected client a to be over its ceiling")
	}
	if result := limiter.AllowClient(ctx, "docs", "rd_ci_b"); !result.Allowed {
		t.Fatal("expected client b to have its own counter")
	}
}

func TestFailOpenWhenStoreUnreachable(t *testing.T) {
	limiter, counter, _ := newTestLimiter(t)
	counter.err = errors.New("connection refused")

	result := limiter.AllowRepository(context.Background(), "docs")
	if !result.Allowed {
		t.Fatal("expected fail-open allow when store is unreachable")
	}
	if !result.FailedOpen {
		t.Fatal("expected result to be marked failed-open")
	}
}

func TestNilLimiterAllowsEverything(t *testing.T) {
	var limiter *GatewayLimiter
	if limiter.Enabled() {
		t.Fatal("nil limiter must report disabled")
	}
}
