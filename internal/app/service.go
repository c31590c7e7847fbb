// Package service composes the federated recommendation components and
// implements the dependencies required by the HTTP API.
package service

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/okian/fedrec/internal/adapters/catalog"
	persistqueue "github.com/okian/fedrec/internal/adapters/mq/queue"
	persistpool "github.com/okian/fedrec/internal/adapters/mq/worker"
	repository "github.com/okian/fedrec/internal/adapters/repository"
	"github.com/okian/fedrec/internal/config"
	"github.com/okian/fedrec/internal/domain/aggregation"
	"github.com/okian/fedrec/internal/domain/model"
	"github.com/okian/fedrec/internal/domain/ranking"
	"github.com/okian/fedrec/internal/domain/round"
	"github.com/okian/fedrec/internal/domain/scoring"
	"github.com/okian/fedrec/internal/domain/trust"
	"github.com/okian/fedrec/pkg/logger"
	"github.com/okian/fedrec/pkg/metrics"
)

// Service owns the trust graph, the round aggregator and the ranker, plus
// the asynchronous persistence pipeline behind them.
type Service struct {
	mu sync.RWMutex

	cfg *config.Config
	now func() time.Time

	// Core components
	graph      *trust.Graph
	aggregator *round.Aggregator
	ranker     *ranking.Ranker

	// Persistence and catalog
	store   repository.Store
	breaker *repository.Breaker
	queue   *persistqueue.InMemoryQueue
	pool    *persistpool.Pool
	catalog catalog.Source

	// State
	started     bool
	ownsStore   bool
	ownsCatalog bool
	cancelRun   context.CancelFunc

	logger logger.Logger
}

// New constructs a Service. Components are created by Start.
func New(opts ...Option) *Service {
	s := &Service{
		cfg: config.New(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start assembles the components, restores or bootstraps the global model
// and starts the persistence workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Named("service")
	}
	cfg := s.cfg
	s.logger.Info(ctx, "starting federated recommendation service...")

	policy, err := round.ParsePolicy(cfg.QuorumPolicy)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStart, err)
	}

	s.graph = trust.New(
		trust.WithSmoothing(cfg.TrustSmoothing),
		trust.WithDefaultInitialTrust(cfg.InitialTrust),
		trust.WithAuditEdges(cfg.TrustEdges),
	)

	if s.store == nil {
		store, err := repository.Open(ctx, cfg.StoreDriver, cfg.StorePath, repository.WithLogger(logger.Named("store")))
		if err != nil {
			return fmt.Errorf("%w: open store: %w", ErrStart, err)
		}
		s.store = store
		s.ownsStore = true
	}
	s.breaker = repository.NewBreaker(s.store,
		repository.WithBreakerFailures(cfg.BreakerFailures),
		repository.WithBreakerTimeout(cfg.BreakerTimeout()),
	)

	// Persistence outlives the start context; Stop drains it.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancelRun = cancel
	s.queue = persistqueue.NewInMemoryQueue(persistqueue.WithCapacity(cfg.PersistQueueSize))
	s.pool = persistpool.NewPool(cfg.PersistWorkers, s.queue, s.breaker)
	s.pool.Start(runCtx)

	opts := []round.Option{
		round.WithPolicy(policy),
		round.WithQuorum(cfg.QuorumSize),
		round.WithInitialTrust(cfg.InitialTrust),
		round.WithPersister(s.queue),
		round.WithClock(s.now),
	}
	if cfg.SimulationMode {
		opts = append(opts, round.WithSimulation(
			aggregation.NewNoiseInjector(cfg.SimulationNoiseStd, seedOr(cfg.SimulationSeed)),
			cfg.SimulationTrust,
		))
		s.logger.Warn(ctx, "simulation mode enabled; a synthetic noisy client joins every round",
			logger.Float64("noise_std", cfg.SimulationNoiseStd),
			logger.Float64("trust", cfg.SimulationTrust),
		)
	}
	s.aggregator = round.New(s.graph, opts...)

	if err := s.initModel(ctx); err != nil {
		s.teardown(ctx)
		return fmt.Errorf("%w: %w", ErrStart, err)
	}

	if s.catalog == nil {
		src, err := catalog.Open(ctx, cfg.CatalogDriver, cfg.CatalogPath)
		if err != nil {
			s.teardown(ctx)
			return fmt.Errorf("%w: open catalog: %w", ErrStart, err)
		}
		s.catalog = src
		s.ownsCatalog = true
	}

	rankerOpts := []ranking.Option{
		ranking.WithDimension(cfg.Dimension),
		ranking.WithExplorationRate(cfg.ExplorationRate),
		ranking.WithMaxTopK(cfg.MaxTopK),
	}
	if cfg.RankerSeed != 0 {
		rankerOpts = append(rankerOpts, ranking.WithSeed(cfg.RankerSeed))
	}
	s.ranker = ranking.New(s.catalog, s.aggregator, rankerOpts...)

	s.started = true
	s.logger.Info(ctx, "federated recommendation service started",
		logger.String("policy", string(policy)),
		logger.Int("quorum", cfg.QuorumSize),
		logger.String("store", cfg.StoreDriver),
		logger.String("catalog", cfg.CatalogDriver),
		logger.Int("dimension", cfg.Dimension),
	)
	return nil
}

// initModel restores the latest persisted version or, when the store is
// empty and bootstrapping is enabled, publishes a freshly initialized MLP.
func (s *Service) initModel(ctx context.Context) error {
	restored, err := s.aggregator.Restore(ctx, s.store)
	if err != nil {
		// the store being unreadable must not keep the service down
		s.logger.Warn(ctx, "could not restore global model; starting empty", logger.Error(err))
		metrics.RecordErrorByComponent("service", "restore_failed")
	}
	if restored || !s.cfg.BootstrapModel {
		return nil
	}
	w := scoring.InitMLP(s.cfg.Dimension, s.cfg.HiddenDim, s.cfg.ModelSeed)
	if _, err := s.aggregator.Bootstrap(ctx, w); err != nil {
		return fmt.Errorf("bootstrap model: %w", err)
	}
	return nil
}

// Stop drains pending snapshots and releases the store and catalog.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping federated recommendation service...")
	s.teardown(ctx)
	s.aggregator = nil
	s.ranker = nil
	s.started = false
	s.logger.Info(ctx, "federated recommendation service stopped")
}

func (s *Service) teardown(ctx context.Context) {
	if s.pool != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout())
		if err := s.pool.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn(ctx, "persistence workers did not drain", logger.Error(err))
		}
		cancel()
		s.pool = nil
	}
	if s.cancelRun != nil {
		s.cancelRun()
		s.cancelRun = nil
	}
	if s.ownsStore && s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error(ctx, "error closing store", logger.Error(err))
		}
		s.store = nil
		s.ownsStore = false
	}
	if closer, ok := s.catalog.(io.Closer); ok && s.ownsCatalog {
		if err := closer.Close(); err != nil {
			s.logger.Error(ctx, "error closing catalog", logger.Error(err))
		}
		s.catalog = nil
		s.ownsCatalog = false
	}
}

// Submit buffers a client contribution into the open round.
func (s *Service) Submit(ctx context.Context, c model.Contribution) (round.Status, error) { //nolint:gocritic // hugeParam: passed through by value
	agg, err := s.aggregatorOrErr()
	if err != nil {
		return round.Status{}, err
	}
	return agg.Submit(ctx, c)
}

// CloseRound aggregates whatever is buffered in the open round.
func (s *Service) CloseRound(ctx context.Context) (*model.GlobalModelState, error) {
	agg, err := s.aggregatorOrErr()
	if err != nil {
		return nil, err
	}
	return agg.CloseRound(ctx)
}

// CurrentModel returns the published global model, or nil.
func (s *Service) CurrentModel() *model.GlobalModelState {
	agg, err := s.aggregatorOrErr()
	if err != nil {
		return nil
	}
	return agg.Current()
}

// Recommend ranks catalog items for user.
func (s *Service) Recommend(ctx context.Context, user []float64, topK int) ([]model.Recommendation, error) {
	s.mu.RLock()
	r := s.ranker
	s.mu.RUnlock()
	if r == nil {
		return nil, ErrNotStarted
	}
	return r.Recommend(ctx, user, topK)
}

// TrustGraph returns a snapshot of client trust.
func (s *Service) TrustGraph(ctx context.Context) trust.Snapshot {
	s.mu.RLock()
	g := s.graph
	s.mu.RUnlock()
	if g == nil {
		return trust.Snapshot{Nodes: []trust.Node{}, Edges: []trust.Edge{}}
	}
	return g.Snapshot(ctx)
}

func (s *Service) aggregatorOrErr() (*round.Aggregator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.aggregator == nil {
		return nil, ErrNotStarted
	}
	return s.aggregator, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]any{
		"started":         s.started,
		"quorumPolicy":    s.cfg.QuorumPolicy,
		"quorumSize":      s.cfg.QuorumSize,
		"simulationMode":  s.cfg.SimulationMode,
		"storeDriver":     s.cfg.StoreDriver,
		"catalogDriver":   s.cfg.CatalogDriver,
		"dimension":       s.cfg.Dimension,
		"explorationRate": s.cfg.ExplorationRate,
	}
	if !s.started {
		return stats
	}

	stats["round"] = s.aggregator.Round()
	stats["pendingClients"] = s.aggregator.Pending()
	stats["roundsAggregated"] = s.aggregator.Aggregations()
	stats["registeredClients"] = s.graph.Len()
	stats["trustUpdates"] = s.graph.Updates()
	if cur := s.aggregator.Current(); cur != nil {
		stats["modelVersion"] = cur.Version
		stats["modelCreatedAt"] = cur.CreatedAt
	}

	queueLen := s.queue.Len(ctx)
	stats["persistQueueLength"] = queueLen
	stats["persistWorkers"] = s.pool.Size()
	stats["persisted"] = s.pool.Processed()
	stats["persistFailures"] = s.pool.Failed()
	stats["breakerState"] = s.breaker.State()
	if n, err := s.store.Count(ctx); err == nil {
		stats["storedVersions"] = n
	}

	metrics.UpdateQueueSize(queueLen)
	metrics.UpdateRegisteredClients(s.graph.Len())
	metrics.UpdateWorkerCount(s.pool.Size())
	return stats
}

func seedOr(seed int64) int64 {
	if seed != 0 {
		return seed
	}
	return time.Now().UnixNano()
}
