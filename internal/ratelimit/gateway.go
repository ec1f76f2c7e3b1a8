package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/relaydocs/relaydocs/internal/config"
	"github.com/relaydocs/relaydocs/internal/observability/logger"
	"go.uber.org/zap"
)

const (
	keyGatewayRepository = "gw:repo:%s:%d"
	keyGatewayClient     = "gw:client:%s:%s:%d"

	// ScopeRepository and ScopeClient label which ceiling produced a result.
	ScopeRepository = "repository"
	ScopeClient     = "client"
)

// Result describes one fixed-window check.
type Result struct {
	Allowed   bool
	Scope     string
	Limit     int
	Remaining int
	Reset     time.Time
	// FailedOpen marks a result that was allowed only because the
	// counting store was unreachable.
	FailedOpen bool
}

type Clock interface {
	Now() time.Time
}

type defaultClock struct{}

func (defaultClock) Now() time.Time { return time.Now().UTC() }

// GatewayLimiter enforces per-repository and per-client ceilings over
// fixed windows. Store failures fail open.
type GatewayLimiter struct {
	counter Counter
	holder  *config.GatewayConfigHolder
	clock   Clock
}

// NewGatewayLimiter builds the limiter from the app config. Returns nil
// when no counting store is configured, which disables enforcement.
func NewGatewayLimiter(cfg config.Config, holder *config.GatewayConfigHolder) *GatewayLimiter {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})
	return NewGatewayLimiterWithCounter(NewRedisCounter(client), holder)
}

// NewGatewayLimiterWithCounter wires an explicit counter. Used by tests.
func NewGatewayLimiterWithCounter(counter Counter, holder *config.GatewayConfigHolder) *GatewayLimiter {
	return &GatewayLimiter{
		counter: counter,
		holder:  holder,
		clock:   defaultClock{},
	}
}

// WithClock overrides the time source. Intended for tests.
func (l *GatewayLimiter) WithClock(clock Clock) *GatewayLimiter {
	l.clock = clock
	return l
}

func (l *GatewayLimiter) Enabled() bool {
	return l != nil && l.counter != nil
}

// AllowRepository checks the coarse per-repository ceiling.
func (l *GatewayLimiter) AllowRepository(ctx context.Context, slug string) *Result {
	cfg := l.config()
	key := fmt.Sprintf(keyGatewayRepository, strings.TrimSpace(slug), l.windowID(cfg.Window))
	return l.check(ctx, key, ScopeRepository, cfg.RepositoryLimit, cfg.Window)
}

// AllowClient checks the finer per-client ceiling within a repository.
func (l *GatewayLimiter) AllowClient(ctx context.Context, slug, clientID string) *Result {
	cfg := l.config()
	key := fmt.Sprintf(keyGatewayClient, strings.TrimSpace(slug), strings.TrimSpace(clientID), l.windowID(cfg.Window))
	return l.check(ctx, key, ScopeClient, cfg.ClientLimit, cfg.Window)
}

func (l *GatewayLimiter) check(ctx context.Context, key, scope string, limit int, window time.Duration) *Result {
	reset := l.windowReset(window)
	result := &Result{
		Scope: scope,
		Limit: limit,
		Reset: reset,
	}
	if !l.Enabled() || limit <= 0 {
		result.Allowed = true
		result.Remaining = limit
		return result
	}

	count, err := l.counter.Incr(ctx, key, window)
	if err != nil {
		// Availability wins over strict enforcement when the store is
		// unreachable.
		logger.FromContext(ctx).Warn("rate limit store unreachable",
			zap.String("scope", scope),
			zap.Error(err),
		)
		result.Allowed = true
		result.Remaining = limit
		result.FailedOpen = true
		return result
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	result.Allowed = count <= int64(limit)
	result.Remaining = remaining
	return result
}

func (l *GatewayLimiter) config() config.GatewayConfig {
	if l == nil || l.holder == nil {
		return config.DefaultGatewayConfig()
	}
	return l.holder.Get()
}

func (l *GatewayLimiter) windowID(window time.Duration) int64 {
	seconds := int64(window.Seconds())
	if seconds <= 0 {
		seconds = 60
	}
	return l.clock.Now().Unix() / seconds
}

func (l *GatewayLimiter) windowReset(window time.Duration) time.Time {
	seconds := int64(window.Seconds())
	if seconds <= 0 {
		seconds = 60
	}
	next := (l.clock.Now().Unix()/seconds + 1) * seconds
	return time.Unix(next, 0).UTC()
}
