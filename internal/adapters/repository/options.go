package repository

import (
	"time"

	"github.com/okian/fedrec/pkg/logger"
)

// Default store configuration constants.
const (
	defaultBreakerFailures = 5
	defaultBreakerTimeout  = 30 * time.Second
)

type settings struct {
	logger          logger.Logger
	breakerFailures uint32
	breakerTimeout  time.Duration
	syncWrites      bool
}

func newSettings(opts []Option) settings {
	s := settings{
		breakerFailures: defaultBreakerFailures,
		breakerTimeout:  defaultBreakerTimeout,
		syncWrites:      true,
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = logger.Named("store")
	}
	return s
}

// Option applies a configuration option to a store or breaker.
type Option func(*settings)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithBreakerFailures sets how many consecutive save failures open the breaker.
func WithBreakerFailures(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.breakerFailures = uint32(n)
		}
	}
}

// WithBreakerTimeout sets how long the breaker stays open before probing again.
func WithBreakerTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.breakerTimeout = d
		}
	}
}

// WithSyncWrites toggles fsync on every badger write.
func WithSyncWrites(enabled bool) Option {
	return func(s *settings) {
		s.syncWrites = enabled
	}
}
