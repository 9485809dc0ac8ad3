package synchronization

import (
	"time"

	"golang.org/x/time/rate"
)

type Config struct {
	SyncCheckInterval time.Duration // how often we ask peers for their ledger status
	StatusTimeout     time.Duration // how long we collect status responses
	SyncCheckMaxPeers int           // the number of peers asked for their status
	RequestTimeout    time.Duration // the time we wait for a SyncResponse
	MaxBatchSize      uint64        // the maximum number of commands served in one SyncResponse
	BreakerFailures   uint32        // consecutive faults after which a peer is avoided
	BreakerTimeout    time.Duration // how long a faulty peer is avoided
	InboundRateLimit  rate.Limit    // sync and status requests per second we serve for a single requester
	InboundBurst      int           // sync and status requests we serve for a single requester at once
	InboundLockout    time.Duration // how long a requester that hit the limit is reported as rate limited
}

func DefaultConfig() Config {
	return Config{
		SyncCheckInterval: 10 * time.Second,
		StatusTimeout:     2 * time.Second,
		SyncCheckMaxPeers: 3,
		RequestTimeout:    2 * time.Second,
		MaxBatchSize:      500,
		BreakerFailures:   3,
		BreakerTimeout:    30 * time.Second,
		InboundRateLimit:  20,
		InboundBurst:      10,
		InboundLockout:    10 * time.Second,
	}
}

type OptionFunc func(*Config)

// WithSyncCheckInterval sets the interval of the periodic status check.
func WithSyncCheckInterval(interval time.Duration) OptionFunc {
	return func(cfg *Config) {
		cfg.SyncCheckInterval = interval
	}
}

// WithRequestTimeout sets how long a SyncRequest may stay unanswered before
// the next candidate is asked.
func WithRequestTimeout(timeout time.Duration) OptionFunc {
	return func(cfg *Config) {
		cfg.RequestTimeout = timeout
	}
}

// WithMaxBatchSize sets the number of commands served in one response.
func WithMaxBatchSize(size uint64) OptionFunc {
	return func(cfg *Config) {
		cfg.MaxBatchSize = size
	}
}

// WithInboundRateLimit sets the token bucket of served requests per requester.
func WithInboundRateLimit(limit rate.Limit, burst int) OptionFunc {
	return func(cfg *Config) {
		cfg.InboundRateLimit = limit
		cfg.InboundBurst = burst
	}
}

// NewConfig returns the default configuration with the options applied.
func NewConfig(opts ...OptionFunc) Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
