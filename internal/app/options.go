package service

import (
	"time"

	"github.com/okian/fedrec/internal/adapters/catalog"
	repository "github.com/okian/fedrec/internal/adapters/repository"
	"github.com/okian/fedrec/internal/config"
	"github.com/okian/fedrec/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig sets the configuration the service is assembled from.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithStore uses store instead of opening the configured driver.
// The service takes ownership and closes it on Stop.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithCatalog uses src instead of opening the configured catalog driver.
func WithCatalog(src catalog.Source) Option {
	return func(s *Service) {
		s.catalog = src
	}
}

// WithClock overrides the time source used for model timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}
