// Package cache provides content-addressable memoization of job outputs.
package cache

import (
	"context"
	"time"
)

// Entry is one cached job output.
type Entry struct {
	Output      map[string]interface{} `json:"output"`
	CreatedAt   time.Time              `json:"created_at"`
	AccessCount int64                  `json:"access_count"`
}

// Cache stores completed job outputs keyed by content hash. Implementations
// must be safe for concurrent use by in-flight job tasks. Failures are
// non-fatal to callers: the engine logs them and proceeds as a miss.
type Cache interface {
	// Get returns the entry for key, or ok=false on a miss.
	Get(ctx context.Context, key string) (*Entry, bool, error)

	// Set stores the output for key. Only outputs of completed jobs are
	// ever written.
	Set(ctx context.Context, key string, output map[string]interface{}) error

	// Stats returns diagnostic counters.
	Stats(ctx context.Context) (map[string]interface{}, error)

	Close() error
}

// Config bounds a cache instance.
type Config struct {
	// MaxEntries caps the entry count before eviction (0 = unbounded).
	MaxEntries int

	// TTL expires entries after this duration (0 = no expiry).
	TTL time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxEntries: 10000,
		TTL:        24 * time.Hour,
	}
}
