package requester

import (
	"time"

	"github.com/benbjohnson/clock"
)

// Config holds the tunables of the part requester engine.
type Config struct {
	// DispatchInterval is how often pending requests are checked for
	// qualifying retries.
	DispatchInterval time.Duration
	// RetryMinimum is the retry interval applied after the first attempt.
	RetryMinimum time.Duration
	// RetryMaximum caps the exponentially growing retry interval.
	RetryMaximum time.Duration
	// RetryMultiplier is the factor the retry interval grows by per attempt.
	RetryMultiplier float64
	// RetryAttempts is the number of dispatch attempts before a chunk is
	// abandoned and reported unavailable.
	RetryAttempts uint64
	// CompletedCacheSize bounds the cache of already-reconstructed chunks
	// used to keep completion callbacks exactly-once.
	CompletedCacheSize int
	// Clock drives the dispatch ticker and retry timestamps; injectable
	// for tests.
	Clock clock.Clock
}

func DefaultConfig() Config {
	return Config{
		DispatchInterval:   1 * time.Second,
		RetryMinimum:       2 * time.Second,
		RetryMaximum:       2 * time.Minute,
		RetryMultiplier:    2,
		RetryAttempts:      3,
		CompletedCacheSize: 1000,
		Clock:              clock.New(),
	}
}

// Option can be used to override the default engine configuration.
type Option func(*Config)

func WithDispatchInterval(interval time.Duration) Option {
	return func(cfg *Config) {
		cfg.DispatchInterval = interval
	}
}

func WithRetryInterval(minimum time.Duration, maximum time.Duration, multiplier float64) Option {
	return func(cfg *Config) {
		cfg.RetryMinimum = minimum
		cfg.RetryMaximum = maximum
		cfg.RetryMultiplier = multiplier
	}
}

func WithRetryAttempts(attempts uint64) Option {
	return func(cfg *Config) {
		cfg.RetryAttempts = attempts
	}
}

func WithClock(c clock.Clock) Option {
	return func(cfg *Config) {
		cfg.Clock = c
	}
}
