package round

import (
	"time"

	"github.com/okian/fedrec/internal/domain/aggregation"
	"github.com/okian/fedrec/pkg/logger"
)

// Option applies a configuration option to the Aggregator.
type Option func(*Aggregator)

// WithPolicy sets the round completion policy.
func WithPolicy(p Policy) Option {
	return func(a *Aggregator) {
		if p.Valid() {
			a.policy = p
		}
	}
}

// WithQuorum sets the number of distinct clients a quorum round waits for.
func WithQuorum(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.quorum = n
		}
	}
}

// WithInitialTrust sets the trust given to a client on its first submission.
func WithInitialTrust(t float64) Option {
	return func(a *Aggregator) {
		if t >= 0 && t <= 1 {
			a.initialTrust = t
		}
	}
}

// WithPersister hands every published snapshot to p.
func WithPersister(p Persister) Option {
	return func(a *Aggregator) {
		a.persister = p
	}
}

// WithSimulation enables synthetic noisy contributions. Never enable this
// for production traffic.
func WithSimulation(n *aggregation.NoiseInjector, trust float64) Option {
	return func(a *Aggregator) {
		if n != nil {
			a.noise = n
			a.syntheticTrust = trust
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

// WithLogger sets a custom logger for the aggregator.
func WithLogger(l logger.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}
