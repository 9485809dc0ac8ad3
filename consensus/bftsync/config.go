package bftsync

import (
	"time"

	"golang.org/x/time/rate"
)

type Config struct {
	RequestTimeout   time.Duration // the time we wait for a GetVerticesResponse before asking another peer
	MaxAttempts      uint          // the maximum number of peers a request is sent to before the sync is abandoned
	RequestRateLimit rate.Limit    // requests per second we send to a single peer
	RequestBurst     int           // requests we send to a single peer at once
	InboundRateLimit rate.Limit    // requests per second we serve for a single requester
	InboundBurst     int           // requests we serve for a single requester at once
	RateLimitLockout time.Duration // how long a peer that hit a limit is reported as rate limited
	MaxResponseSize  uint32        // the maximum number of vertices served in one response
}

func DefaultConfig() Config {
	return Config{
		RequestTimeout:   time.Second,
		MaxAttempts:      5,
		RequestRateLimit: 50,
		RequestBurst:     10,
		InboundRateLimit: 100,
		InboundBurst:     20,
		RateLimitLockout: 10 * time.Second,
		MaxResponseSize:  64,
	}
}

type OptionFunc func(*Config)

// WithRequestTimeout sets how long a request may stay unanswered before it
// is sent to another peer.
func WithRequestTimeout(timeout time.Duration) OptionFunc {
	return func(cfg *Config) {
		cfg.RequestTimeout = timeout
	}
}

// WithMaxAttempts sets the number of peers a request is tried with.
func WithMaxAttempts(attempts uint) OptionFunc {
	return func(cfg *Config) {
		cfg.MaxAttempts = attempts
	}
}

// WithRequestRateLimit sets the token bucket of outbound requests per peer.
func WithRequestRateLimit(limit rate.Limit, burst int) OptionFunc {
	return func(cfg *Config) {
		cfg.RequestRateLimit = limit
		cfg.RequestBurst = burst
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
