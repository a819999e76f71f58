// Package ratelimit enforces per-client, per-category request budgets over
// fixed windows. State lives behind the Store interface so single-instance
// deployments can use process memory while multi-instance deployments share
// counters through Redis.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/allisson/guardrail/internal/errors"
)

// Category names a bucket of endpoints sharing one threshold and window.
type Category string

const (
	CategoryAuth    Category = "auth"
	CategoryAPI     Category = "api"
	CategoryBooking Category = "booking"
	CategorySearch  Category = "search"
	CategoryUpload  Category = "upload"
	CategoryAdmin   Category = "admin"
)

// Config holds the threshold for one category.
// Valid values: Limit > 0 and Window > 0.
type Config struct {
	Limit  int
	Window time.Duration
}

// Validate checks that the Config has valid values.
func (c Config) Validate() error {
	if c.Limit <= 0 {
		return fmt.Errorf("limit must be > 0 (got %d)", c.Limit)
	}
	if c.Window <= 0 {
		return fmt.Errorf("window must be > 0 (got %s)", c.Window)
	}
	return nil
}

// DefaultConfigs returns the default per-category thresholds. Auth is the
// strictest; read-heavy categories get more headroom.
func DefaultConfigs() map[Category]Config {
	return map[Category]Config{
		CategoryAuth:    {Limit: 10, Window: time.Minute},
		CategoryAPI:     {Limit: 100, Window: time.Minute},
		CategoryBooking: {Limit: 30, Window: time.Minute},
		CategorySearch:  {Limit: 60, Window: time.Minute},
		CategoryUpload:  {Limit: 20, Window: time.Minute},
		CategoryAdmin:   {Limit: 50, Window: time.Minute},
	}
}

// Decision is the outcome of one rate-limit check.
type Decision struct {
	Allowed   bool
	Remaining int
	Reset     time.Time
}

// Store tracks request counts per key. Take atomically performs the
// check-and-increment for one request: a request that would push the count
// past the limit is rejected without being counted.
type Store interface {
	Take(ctx context.Context, key string, cfg Config) (Decision, error)
}

// Limiter resolves categories to configured thresholds and consults the store.
type Limiter struct {
	store   Store
	configs map[Category]Config
}

// NewLimiter creates a Limiter. Categories missing from configs fall back to
// the defaults; invalid configs are rejected.
func NewLimiter(store Store, configs map[Category]Config) (*Limiter, error) {
	merged := DefaultConfigs()
	for category, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return nil, apperrors.Wrapf(err, "invalid rate limit config for category %q", category)
		}
		merged[category] = cfg
	}

	return &Limiter{store: store, configs: merged}, nil
}

// Config returns the resolved threshold for a category. Unknown categories
// use the api config.
func (l *Limiter) Config(c Category) Config {
	if cfg, ok := l.configs[c]; ok {
		return cfg
	}
	return l.configs[CategoryAPI]
}

// Check records one request for (clientID, category) and reports whether it
// is allowed, the remaining budget and the window reset time.
func (l *Limiter) Check(ctx context.Context, clientID string, c Category) (Decision, error) {
	cfg := l.Config(c)
	key := fmt.Sprintf("ratelimit:%s:%s", c, clientID)

	decision, err := l.store.Take(ctx, key, cfg)
	if err != nil {
		return Decision{}, apperrors.Wrap(err, "rate limit store failed")
	}

	return decision, nil
}
