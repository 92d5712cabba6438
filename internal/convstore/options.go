package convstore

import (
	"os"
	"time"
)

// Opts holds configuration options for conversation store construction.
type Opts struct {
	// RedisURL selects the Redis backend when non-empty.
	RedisURL string
	// MaxIdle is the idle window after which a conversation expires.
	MaxIdle time.Duration
}

// Option configures conversation store options.
type Option func(*Opts)

// WithRedisURL sets the Redis connection URL, falling back to the REDIS_URL
// environment variable when empty.
func WithRedisURL(url string) Option {
	return func(o *Opts) {
		if url == "" {
			url = os.Getenv("REDIS_URL")
		}
		o.RedisURL = url
	}
}

// WithMaxIdle sets the conversation idle expiry window.
func WithMaxIdle(d time.Duration) Option {
	return func(o *Opts) {
		o.MaxIdle = d
	}
}
