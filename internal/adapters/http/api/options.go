package api

import (
	"time"

	"github.com/okian/fedrec/pkg/logger"
)

// Option configures a Server.
type Option func(*Server)

// WithSubmitRateLimit limits POST /update_model to n requests per minute per
// client IP. Zero or negative disables the limit.
func WithSubmitRateLimit(n int) Option {
	return func(s *Server) {
		s.submitRateLimit = n
	}
}

// WithMaxBodyBytes caps request bodies. Non-positive values are ignored.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// WithDefaultTopK sets the top_k used when a recommend request omits it.
func WithDefaultTopK(k int) Option {
	return func(s *Server) {
		if k > 0 {
			s.defaultTopK = k
		}
	}
}

// WithClock overrides the receive timestamp source for contributions.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger for the server.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}
