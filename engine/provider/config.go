package provider

import (
	"time"

	"github.com/benbjohnson/clock"
)

// Config holds the tunables of the part provider engine.
type Config struct {
	// Workers is the number of goroutines draining the inbound request
	// queue.
	Workers uint
	// ProcessInterval is how often an idle worker checks the queue.
	ProcessInterval time.Duration
	// QueueLimit bounds the inbound request queue.
	QueueLimit uint
	// PushWorkers bounds the concurrent pushes during chunk distribution.
	PushWorkers int
	// Clock drives the worker ticker; injectable for tests.
	Clock clock.Clock
}

func DefaultConfig() Config {
	return Config{
		Workers:         2,
		ProcessInterval: 100 * time.Millisecond,
		QueueLimit:      500,
		PushWorkers:     8,
		Clock:           clock.New(),
	}
}

// Option can be used to override the default engine configuration.
type Option func(*Config)

func WithWorkers(workers uint) Option {
	return func(cfg *Config) {
		cfg.Workers = workers
	}
}

func WithProcessInterval(interval time.Duration) Option {
	return func(cfg *Config) {
		cfg.ProcessInterval = interval
	}
}

func WithQueueLimit(limit uint) Option {
	return func(cfg *Config) {
		cfg.QueueLimit = limit
	}
}

func WithPushWorkers(workers int) Option {
	return func(cfg *Config) {
		cfg.PushWorkers = workers
	}
}

func WithClock(c clock.Clock) Option {
	return func(cfg *Config) {
		cfg.Clock = c
	}
}
