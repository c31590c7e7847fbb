// Package trust maintains a smoothed reputation score per federated client.
//
// The graph is a plain map from client id to a trust record plus an optional
// adjacency map of audit edges keyed by ordered id pairs. Aggregation only
// ever reads per-node trust; edges exist for observability.
package trust

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/okian/fedrec/internal/domain/model"
	"github.com/okian/fedrec/pkg/logger"
	"github.com/okian/fedrec/pkg/metrics"
)

// Node is one client's trust record as exposed by Snapshot.
type Node struct {
	ID    model.ClientID `json:"id"`
	Trust float64        `json:"trust"`
}

// Edge is a directed audit link between two clients.
type Edge struct {
	Source model.ClientID `json:"source"`
	Target model.ClientID `json:"target"`
	Trust  float64        `json:"trust"`
}

// Snapshot is an immutable view of the graph.
type Snapshot struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

type edgeKey struct {
	source model.ClientID
	target model.ClientID
}

// Graph tracks trust per client. It is safe for concurrent use.
type Graph struct {
	mu    sync.RWMutex
	trust map[model.ClientID]float64
	order []model.ClientID // join order, for stable snapshots

	edges     map[edgeKey]float64
	edgeOrder []edgeKey

	smoothing    float64
	initialTrust float64
	edgesEnabled bool

	updates atomic.Int64
	logger  logger.Logger
}

// New creates an empty trust graph.
func New(opts ...Option) *Graph {
	g := &Graph{
		trust:        make(map[model.ClientID]float64),
		edges:        make(map[edgeKey]float64),
		smoothing:    defaultSmoothing,
		initialTrust: defaultInitialTrust,
		edgesEnabled: true,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = logger.Named("trust")
	}
	return g
}

// AddClient registers id with the given initial trust. If id is already
// known its current trust is returned unchanged, so a reconnecting client
// never has its reputation reset.
func (g *Graph) AddClient(ctx context.Context, id model.ClientID, initial float64) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	if t, ok := g.trust[id]; ok {
		return t
	}

	initial = clamp(initial)
	if math.IsNaN(initial) {
		initial = g.initialTrust
	}
	if g.edgesEnabled {
		for _, peer := range g.order {
			g.addEdge(edgeKey{source: id, target: peer}, initial)
			g.addEdge(edgeKey{source: peer, target: id}, initial)
		}
	}
	g.trust[id] = initial
	g.order = append(g.order, id)

	metrics.UpdateRegisteredClients(len(g.order))
	metrics.ObserveTrust(initial)
	g.logger.Debug(ctx, "client registered",
		logger.String("client", string(id)),
		logger.Float64("trust", initial),
	)
	return initial
}

// Register adds id with the graph's default initial trust.
func (g *Graph) Register(ctx context.Context, id model.ClientID) float64 {
	return g.AddClient(ctx, id, g.initialTrust)
}

// Update folds a validation signal into id's trust:
//
//	trust' = clamp(α·trust + (1−α)·signal, 0, 1)
//
// Unknown clients fail with ErrNotFound. Signals outside [0,1] are clamped.
func (g *Graph) Update(ctx context.Context, id model.ClientID, signal float64) (float64, error) {
	if math.IsNaN(signal) {
		return 0, fmt.Errorf("%w: NaN", ErrInvalidSignal)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	old, ok := g.trust[id]
	if !ok {
		return 0, fmt.Errorf("update %q: %w", id, ErrNotFound)
	}
	next := clamp(g.smoothing*old + (1-g.smoothing)*clamp(signal))
	g.trust[id] = next
	g.updates.Add(1)

	metrics.RecordTrustUpdate()
	metrics.ObserveTrust(next)
	g.logger.Debug(ctx, "trust updated",
		logger.String("client", string(id)),
		logger.Float64("old", old),
		logger.Float64("new", next),
		logger.Float64("signal", signal),
	)
	return next, nil
}

// TrustOf returns id's current trust.
func (g *Graph) TrustOf(_ context.Context, id model.ClientID) (float64, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	t, ok := g.trust[id]
	if !ok {
		return 0, fmt.Errorf("trust of %q: %w", id, ErrNotFound)
	}
	return t, nil
}

// Snapshot returns a copy of all nodes (join order) and audit edges.
func (g *Graph) Snapshot(_ context.Context) Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	s := Snapshot{
		Nodes: make([]Node, len(g.order)),
		Edges: make([]Edge, len(g.edgeOrder)),
	}
	for i, id := range g.order {
		s.Nodes[i] = Node{ID: id, Trust: g.trust[id]}
	}
	for i, k := range g.edgeOrder {
		s.Edges[i] = Edge{Source: k.source, Target: k.target, Trust: g.edges[k]}
	}
	return s
}

// Clients returns every registered client in join order.
func (g *Graph) Clients() []model.ClientID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]model.ClientID(nil), g.order...)
}

// Len returns the number of registered clients.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.order)
}

// Updates returns the number of applied trust updates.
func (g *Graph) Updates() int64 {
	return g.updates.Load()
}

// addEdge must be called with g.mu held.
func (g *Graph) addEdge(k edgeKey, trust float64) {
	if _, ok := g.edges[k]; ok {
		return
	}
	g.edges[k] = trust
	g.edgeOrder = append(g.edgeOrder, k)
}

func clamp(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}
