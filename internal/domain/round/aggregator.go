// Package round buffers client contributions and closes federated rounds.
//
// All mutable round state (buffer, trust registration on the submit path and
// publication of a new model version) lives behind a single mutex, so a
// satisfied quorum is aggregated exactly once. Readers get the published
// snapshot through an atomic pointer and never block writers.
package round

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/fedrec/internal/domain/aggregation"
	"github.com/okian/fedrec/internal/domain/model"
	"github.com/okian/fedrec/internal/domain/trust"
	"github.com/okian/fedrec/pkg/logger"
	"github.com/okian/fedrec/pkg/metrics"
)

// Default aggregator configuration constants.
const (
	defaultQuorum       = 2
	defaultInitialTrust = 1.0
)

// Policy decides when a round is complete.
type Policy string

// Supported completion policies.
const (
	// PolicyQuorum closes the round once N distinct clients have submitted.
	PolicyQuorum Policy = "quorum"
	// PolicyAllRegistered closes the round once every known client has submitted.
	PolicyAllRegistered Policy = "all_registered"
)

// Valid reports whether p is a supported policy.
func (p Policy) Valid() bool {
	return p == PolicyQuorum || p == PolicyAllRegistered
}

// ParsePolicy converts a configuration string into a Policy.
func ParsePolicy(s string) (Policy, error) {
	p := Policy(s)
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPolicy, s)
	}
	return p, nil
}

// Persister accepts published snapshots for durable storage. Persist must not
// block; it reports false when the snapshot could not be accepted.
type Persister interface {
	Persist(ctx context.Context, state *model.GlobalModelState) bool
}

// Loader restores the latest persisted snapshot.
type Loader interface {
	LoadLatest(ctx context.Context) (*model.GlobalModelState, bool, error)
}

// Status is the outcome of one submission.
type Status struct {
	Aggregated bool
	Version    uint64 // new model version when Aggregated
	WaitingFor int    // distinct clients still required when not Aggregated
	Round      uint64 // round the submission was buffered into
}

// Aggregator owns the round buffer and the published global model.
type Aggregator struct {
	mu     sync.Mutex
	trust  *trust.Graph
	buffer map[model.ClientID][]model.Contribution
	order  []model.ClientID // distinct clients in first-submission order
	round  uint64

	current atomic.Pointer[model.GlobalModelState]

	policy         Policy
	quorum         int
	initialTrust   float64
	persister      Persister
	noise          *aggregation.NoiseInjector
	syntheticTrust float64
	now            func() time.Time

	aggregations atomic.Int64
	logger       logger.Logger
}

// New creates an aggregator weighting contributions by g.
func New(g *trust.Graph, opts ...Option) *Aggregator {
	a := &Aggregator{
		trust:        g,
		buffer:       make(map[model.ClientID][]model.Contribution),
		round:        1,
		policy:       PolicyQuorum,
		quorum:       defaultQuorum,
		initialTrust: defaultInitialTrust,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = logger.Named("round")
	}
	return a
}

// Current returns the published model or nil if none exists yet.
func (a *Aggregator) Current() *model.GlobalModelState {
	return a.current.Load()
}

// Submit validates and buffers c. When the completion policy is satisfied the
// round is aggregated synchronously and the new version is returned.
// Rejected submissions leave the buffer and the trust graph untouched.
func (a *Aggregator) Submit(ctx context.Context, c model.Contribution) (Status, error) { //nolint:gocritic // hugeParam: contribution is copied into the buffer
	if err := validate(&c); err != nil {
		metrics.RecordSubmission("rejected")
		return Status{}, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if expected := a.expectedSignatureLocked(); expected != nil {
		if d := expected.Diff(c.Weights.Signature()); d != "" {
			metrics.RecordSubmission("shape_mismatch")
			return Status{}, fmt.Errorf("%w: %s", ErrShapeMismatch, d)
		}
	}

	a.trust.AddClient(ctx, c.ClientID, a.initialTrust)
	if c.ValidationSignal != nil {
		if _, err := a.trust.Update(ctx, c.ClientID, *c.ValidationSignal); err != nil {
			return Status{}, fmt.Errorf("apply validation signal: %w", err)
		}
	}

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.SubmittedAt.IsZero() {
		c.SubmittedAt = a.now()
	}
	c.Round = a.round
	c.Weights = c.Weights.Clone()

	if _, seen := a.buffer[c.ClientID]; !seen {
		a.order = append(a.order, c.ClientID)
	}
	a.buffer[c.ClientID] = append(a.buffer[c.ClientID], c)
	metrics.RecordSubmission("accepted")
	metrics.UpdateBufferedClients(len(a.order))

	a.logger.Debug(ctx, "contribution buffered",
		logger.String("contribution", c.ID),
		logger.String("client", string(c.ClientID)),
		logger.Any("round", c.Round),
		logger.Int("clients", len(a.order)),
	)

	required := a.requiredLocked()
	if len(a.order) < required {
		return Status{WaitingFor: required - len(a.order), Round: c.Round}, nil
	}

	state, err := a.aggregateLocked(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{Aggregated: true, Version: state.Version, Round: c.Round}, nil
}

// CloseRound aggregates whatever is buffered regardless of the policy.
func (a *Aggregator) CloseRound(ctx context.Context) (*model.GlobalModelState, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.aggregateLocked(ctx)
}

// Restore publishes the latest snapshot from l if nothing is published yet.
func (a *Aggregator) Restore(ctx context.Context, l Loader) (bool, error) {
	state, ok, err := l.LoadLatest(ctx)
	if err != nil {
		return false, fmt.Errorf("load latest model: %w", err)
	}
	if !ok {
		return false, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current.Load() != nil {
		return false, nil
	}
	a.current.Store(state)
	metrics.UpdateModelVersion(state.Version)
	a.logger.Info(ctx, "restored global model", logger.Any("version", state.Version))
	return true, nil
}

// Bootstrap publishes w as version 1 when no model exists yet.
func (a *Aggregator) Bootstrap(ctx context.Context, w model.Weights) (*model.GlobalModelState, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current.Load() != nil {
		return nil, ErrAlreadySeeded
	}
	state := model.NewGlobalModelState(1, w, a.now())
	a.publishLocked(ctx, state)
	a.logger.Info(ctx, "initialized global model", logger.Int("layers", len(w)))
	return state, nil
}

// Round returns the number of the round currently being buffered.
func (a *Aggregator) Round() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.round
}

// Pending returns the number of distinct clients buffered in the open round.
func (a *Aggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.order)
}

// Aggregations returns the number of completed rounds.
func (a *Aggregator) Aggregations() int64 {
	return a.aggregations.Load()
}

// Policy returns the configured completion policy.
func (a *Aggregator) Policy() Policy {
	return a.policy
}

// aggregateLocked folds the buffer into a new version. On failure nothing is
// published and the buffer is kept so the round can be retried.
func (a *Aggregator) aggregateLocked(ctx context.Context) (*model.GlobalModelState, error) {
	start := time.Now()
	if len(a.order) == 0 {
		metrics.RecordErrorByComponent("round", "empty_round")
		a.logger.Error(ctx, "aggregation attempted on an empty round", logger.Any("round", a.round))
		return nil, ErrEmptyRound
	}

	inputs := make([]aggregation.Input, 0, len(a.order)+1)
	for _, id := range a.order {
		subs := make([]model.Weights, len(a.buffer[id]))
		for i, c := range a.buffer[id] {
			subs[i] = c.Weights
		}
		mean, err := aggregation.LocalMean(subs)
		if err != nil {
			return nil, fmt.Errorf("local mean for %q: %w", id, err)
		}
		t, err := a.trust.TrustOf(ctx, id)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, aggregation.Input{Client: id, Trust: t, Weights: mean})
	}

	if a.noise != nil {
		t := a.trust.AddClient(ctx, aggregation.SyntheticClient, a.syntheticTrust)
		inputs = append(inputs, aggregation.Input{
			Client:  aggregation.SyntheticClient,
			Trust:   t,
			Weights: a.noise.Perturb(inputs[0].Weights),
		})
		metrics.RecordSyntheticContribution()
	}

	res, err := aggregation.TrustWeightedMean(inputs)
	if err != nil {
		metrics.RecordErrorByComponent("round", "aggregation_failed")
		a.logger.Error(ctx, "aggregation failed", logger.Any("round", a.round), logger.Error(err))
		return nil, fmt.Errorf("aggregate round %d: %w", a.round, err)
	}
	if res.Unweighted {
		metrics.RecordZeroTrustFallback()
		a.logger.Warn(ctx, "total trust is zero; using unweighted mean", logger.Any("round", a.round))
	}

	version := uint64(1)
	if cur := a.current.Load(); cur != nil {
		version = cur.Version + 1
	}
	state := &model.GlobalModelState{
		Version:   version,
		Weights:   res.Weights,
		Signature: res.Weights.Signature(),
		CreatedAt: a.now().UTC(),
	}
	a.publishLocked(ctx, state)

	closed := a.round
	clients := len(a.order)
	a.buffer = make(map[model.ClientID][]model.Contribution)
	a.order = nil
	a.round++
	a.aggregations.Add(1)

	metrics.RecordRoundAggregated()
	metrics.RecordAggregationLatency(float64(time.Since(start).Microseconds()) / 1000)
	metrics.UpdateBufferedClients(0)
	a.logger.Info(ctx, "round aggregated",
		logger.Any("round", closed),
		logger.Any("version", version),
		logger.Int("clients", clients),
		logger.Float64("total_trust", res.TotalTrust),
	)
	return state, nil
}

// publishLocked swaps in state and hands it to the persister.
func (a *Aggregator) publishLocked(ctx context.Context, state *model.GlobalModelState) {
	a.current.Store(state)
	metrics.UpdateModelVersion(state.Version)
	if a.persister == nil {
		return
	}
	if !a.persister.Persist(ctx, state) {
		metrics.RecordPersistenceFailure()
		a.logger.Warn(ctx, "snapshot not queued for persistence; in-memory model stays authoritative",
			logger.Any("version", state.Version))
	}
}

// expectedSignatureLocked returns the signature submissions must match: the
// published model's, or the first buffered contribution's before any model
// exists. Nil means anything goes.
func (a *Aggregator) expectedSignatureLocked() model.ShapeSignature {
	if cur := a.current.Load(); cur != nil {
		return cur.Signature
	}
	if len(a.order) > 0 {
		return a.buffer[a.order[0]][0].Weights.Signature()
	}
	return nil
}

// requiredLocked returns how many distinct clients complete the round.
func (a *Aggregator) requiredLocked() int {
	if a.policy == PolicyAllRegistered {
		n := 0
		for _, id := range a.trust.Clients() {
			if id != aggregation.SyntheticClient {
				n++
			}
		}
		return n
	}
	return a.quorum
}

func validate(c *model.Contribution) error {
	if c.ClientID == "" {
		return ErrInvalidClient
	}
	if c.ClientID == aggregation.SyntheticClient {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidClient, c.ClientID)
	}
	if len(c.Weights) == 0 {
		return fmt.Errorf("%w: no layers", ErrShapeMismatch)
	}
	for i, l := range c.Weights {
		if len(l.Values) != l.Size() {
			return fmt.Errorf("%w: layer %d has %d values for shape %v", ErrShapeMismatch, i, len(l.Values), l.Shape)
		}
		for _, v := range l.Values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: layer %d", ErrNonFinite, i)
			}
		}
	}
	if s := c.ValidationSignal; s != nil && (math.IsNaN(*s) || *s < 0 || *s > 1) {
		return ErrInvalidSignal
	}
	return nil
}
