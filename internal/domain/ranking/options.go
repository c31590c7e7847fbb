package ranking

import (
	"github.com/okian/fedrec/pkg/logger"
)

// Option applies a configuration option to the Ranker.
type Option func(*Ranker)

// WithDimension sets the expected user and item vector length.
func WithDimension(d int) Option {
	return func(r *Ranker) {
		if d > 0 {
			r.dim = d
		}
	}
}

// WithExplorationRate sets the share of each result replaced by random picks.
func WithExplorationRate(rate float64) Option {
	return func(r *Ranker) {
		if rate >= 0 && rate <= 1 {
			r.explorationRate = rate
		}
	}
}

// WithMaxTopK caps top_k. Zero disables the cap.
func WithMaxTopK(n int) Option {
	return func(r *Ranker) {
		if n >= 0 {
			r.maxTopK = n
		}
	}
}

// WithSeed seeds the sampling RNG. Zero keeps the time-based seed.
func WithSeed(seed int64) Option {
	return func(r *Ranker) {
		if seed != 0 {
			r.seed = seed
		}
	}
}

// WithScorerBuilder overrides how a scorer is derived from the global model.
func WithScorerBuilder(b ScorerBuilder) Option {
	return func(r *Ranker) {
		if b != nil {
			r.build = b
		}
	}
}

// WithLogger sets a custom logger for the ranker.
func WithLogger(l logger.Logger) Option {
	return func(r *Ranker) {
		if l != nil {
			r.logger = l
		}
	}
}
