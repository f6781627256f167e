// Package timeouts provides centralized timeout values for store calls,
// provider calls and handler operations.
//
// Guidelines for choosing a timeout:
//   - Ping: health checks
//   - Short: single-document reads and writes
//   - Medium: list queries and aggregate reads (collection stats, feeds)
//   - Long: cascading deletes and other multi-collection writes
//   - Provider: calls to the external place search / geocoding provider
package timeouts

import (
	"context"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Default timeout values (used if Configure is not called).
const (
	DefaultPing     = 2 * time.Second
	DefaultShort    = 5 * time.Second
	DefaultMedium   = 10 * time.Second
	DefaultLong     = 30 * time.Second
	DefaultProvider = 8 * time.Second
)

var mu sync.RWMutex

var current = Config{
	Ping:     DefaultPing,
	Short:    DefaultShort,
	Medium:   DefaultMedium,
	Long:     DefaultLong,
	Provider: DefaultProvider,
}

// Config holds timeout configuration values.
// Zero values are ignored (defaults are kept).
type Config struct {
	Ping     time.Duration
	Short    time.Duration
	Medium   time.Duration
	Long     time.Duration
	Provider time.Duration
}

func get(pick func(Config) time.Duration) time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return pick(current)
}

// Ping returns the timeout for health checks.
func Ping() time.Duration { return get(func(c Config) time.Duration { return c.Ping }) }

// Short returns the timeout for single-document operations.
func Short() time.Duration { return get(func(c Config) time.Duration { return c.Short }) }

// Medium returns the timeout for list and aggregate queries.
func Medium() time.Duration { return get(func(c Config) time.Duration { return c.Medium }) }

// Long returns the timeout for cascading, multi-collection writes.
func Long() time.Duration { return get(func(c Config) time.Duration { return c.Long }) }

// Provider returns the timeout for place search and geocoding requests.
func Provider() time.Duration { return get(func(c Config) time.Duration { return c.Provider }) }

// Configure sets custom timeout values. Zero values in cfg are ignored.
// Call it during startup before handlers are built.
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	if cfg.Ping > 0 {
		current.Ping = cfg.Ping
	}
	if cfg.Short > 0 {
		current.Short = cfg.Short
	}
	if cfg.Medium > 0 {
		current.Medium = cfg.Medium
	}
	if cfg.Long > 0 {
		current.Long = cfg.Long
	}
	if cfg.Provider > 0 {
		current.Provider = cfg.Provider
	}
}

// Reset restores all timeouts to their default values. Useful for testing.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	current = Config{
		Ping:     DefaultPing,
		Short:    DefaultShort,
		Medium:   DefaultMedium,
		Long:     DefaultLong,
		Provider: DefaultProvider,
	}
}

// ConfigureFromEnv reads PINMAP_TIMEOUT_{PING,SHORT,MEDIUM,LONG,PROVIDER}
// (Go duration strings). Unset or invalid values are skipped. It returns
// the number of values applied.
func ConfigureFromEnv() int {
	var cfg Config
	targets := []struct {
		env string
		dst *time.Duration
	}{
		{"PINMAP_TIMEOUT_PING", &cfg.Ping},
		{"PINMAP_TIMEOUT_SHORT", &cfg.Short},
		{"PINMAP_TIMEOUT_MEDIUM", &cfg.Medium},
		{"PINMAP_TIMEOUT_LONG", &cfg.Long},
		{"PINMAP_TIMEOUT_PROVIDER", &cfg.Provider},
	}

	configured := 0
	for _, t := range targets {
		v := os.Getenv(t.env)
		if v == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			*t.dst = d
			configured++
		}
	}
	Configure(cfg)
	return configured
}

// Current returns the current timeout configuration.
func Current() Config {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// WithTimeout creates a context with timeout and returns a cancel function
// that logs a warning if the deadline was exceeded.
//
//	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Long(), h.Log, "delete collection")
//	defer cancel()
func WithTimeout(parent context.Context, timeout time.Duration, log *zap.Logger, operation string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	return ctx, func() {
		if ctx.Err() == context.DeadlineExceeded && log != nil {
			log.Warn("operation timed out",
				zap.String("operation", operation),
				zap.Duration("timeout", timeout),
			)
		}
		cancel()
	}
}
