// Package ranking turns a user vector and the current global model into an
// ordered list of recommendations.
package ranking

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/okian/fedrec/internal/domain/model"
	"github.com/okian/fedrec/internal/domain/scoring"
	"github.com/okian/fedrec/pkg/logger"
	"github.com/okian/fedrec/pkg/metrics"
)

// Default ranker configuration constants.
const (
	defaultDimension       = 16
	defaultExplorationRate = 0.2
	defaultMaxTopK         = 100
)

// CandidateSource lists the recommendable items.
type CandidateSource interface {
	ListCandidates(ctx context.Context) ([]model.Candidate, error)
}

// ModelSource exposes the published global model. Current returns nil when
// no model exists yet.
type ModelSource interface {
	Current() *model.GlobalModelState
}

// ScorerBuilder derives a scoring function for vectors of length dim.
type ScorerBuilder func(state *model.GlobalModelState, dim int) scoring.Func

// Ranker scores candidates and mixes in exploration.
type Ranker struct {
	candidates CandidateSource
	models     ModelSource
	build      ScorerBuilder

	dim             int
	explorationRate float64
	maxTopK         int
	seed            int64

	mu  sync.Mutex
	rng *rand.Rand

	logger logger.Logger
}

// New creates a ranker over the given catalog and model.
func New(candidates CandidateSource, models ModelSource, opts ...Option) *Ranker {
	r := &Ranker{
		candidates:      candidates,
		models:          models,
		build:           scoring.Build,
		dim:             defaultDimension,
		explorationRate: defaultExplorationRate,
		maxTopK:         defaultMaxTopK,
		seed:            time.Now().UnixNano(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.rng = rand.New(rand.NewSource(r.seed)) //nolint:gosec // sampling for exploration, not security sensitive
	if r.logger == nil {
		r.logger = logger.Named("ranker")
	}
	return r
}

// Dimension returns the expected vector length.
func (r *Ranker) Dimension() int {
	return r.dim
}

// Recommend returns at most topK items for user.
//
// An all-zero user vector is treated as a user without history: items are
// sampled uniformly from the whole catalog. Otherwise candidates with the
// expected dimension are scored, stable-sorted by descending score and the
// tail of the top-k is replaced by random picks from the remaining eligible
// candidates.
func (r *Ranker) Recommend(ctx context.Context, user []float64, topK int) ([]model.Recommendation, error) {
	start := time.Now()
	if len(user) != r.dim {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, r.dim, len(user))
	}
	if topK < 1 || (r.maxTopK > 0 && topK > r.maxTopK) {
		return nil, fmt.Errorf("%w: %d (allowed 1..%d)", ErrInvalidTopK, topK, r.maxTopK)
	}

	catalog, err := r.candidates.ListCandidates(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCatalog, err)
	}
	metrics.UpdateCatalogSize(len(catalog))

	var out []model.Recommendation
	if isZero(user) {
		out = r.coldStart(catalog, topK)
		metrics.RecordColdStart()
	} else {
		out = r.rank(ctx, user, catalog, topK)
	}

	metrics.RecordRecommendation()
	metrics.RecordRecommendLatency(float64(time.Since(start).Microseconds()) / 1000)
	return out, nil
}

func (r *Ranker) coldStart(catalog []model.Candidate, k int) []model.Recommendation {
	n := min(k, len(catalog))
	r.mu.Lock()
	picks := r.rng.Perm(len(catalog))[:n]
	r.mu.Unlock()

	out := make([]model.Recommendation, n)
	for i, p := range picks {
		out[i] = model.Recommendation{ID: catalog[p].ID, URL: catalog[p].URL}
	}
	return out
}

type scored struct {
	c     *model.Candidate
	score float64
}

func (r *Ranker) rank(ctx context.Context, user []float64, catalog []model.Candidate, k int) []model.Recommendation {
	score := r.build(r.models.Current(), r.dim)

	eligible := make([]scored, 0, len(catalog))
	skipped := 0
	for i := range catalog {
		c := &catalog[i]
		if len(c.FeatureVector) != r.dim {
			skipped++
			continue
		}
		s := score.Score(user, c.FeatureVector)
		if math.IsNaN(s) {
			s = math.Inf(-1)
		}
		eligible = append(eligible, scored{c: c, score: s})
	}
	if skipped > 0 {
		metrics.RecordSkippedCandidates(skipped)
		r.logger.Debug(ctx, "skipped candidates with mismatched dimension", logger.Int("count", skipped))
	}

	sort.SliceStable(eligible, func(i, j int) bool { return eligible[i].score > eligible[j].score })

	n := min(k, len(eligible))
	out := make([]model.Recommendation, n)
	for i := 0; i < n; i++ {
		out[i] = model.Recommendation{ID: eligible[i].c.ID, URL: eligible[i].c.URL, Score: eligible[i].score}
	}

	pool := eligible[n:]
	q := min(int(math.Round(r.explorationRate*float64(n))), len(pool))
	if q == 0 {
		return out
	}

	r.mu.Lock()
	picks := r.rng.Perm(len(pool))[:q]
	r.mu.Unlock()
	for i, p := range picks {
		e := pool[p]
		out[n-q+i] = model.Recommendation{ID: e.c.ID, URL: e.c.URL, Score: e.score, Explored: true}
	}
	metrics.RecordExploredItems(q)
	return out
}

func isZero(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
