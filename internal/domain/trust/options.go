package trust

import "github.com/okian/fedrec/pkg/logger"

// Default trust configuration constants.
const (
	defaultSmoothing    = 0.9
	defaultInitialTrust = 1.0
)

// Option applies a configuration option to the Graph.
type Option func(*Graph)

// WithSmoothing sets α in trust' = α·trust + (1−α)·signal. Values outside
// [0,1] are ignored.
func WithSmoothing(alpha float64) Option {
	return func(g *Graph) {
		if alpha >= 0 && alpha <= 1 {
			g.smoothing = alpha
		}
	}
}

// WithDefaultInitialTrust sets the trust given to clients registered without
// an explicit value.
func WithDefaultInitialTrust(trust float64) Option {
	return func(g *Graph) {
		if trust >= 0 && trust <= 1 {
			g.initialTrust = trust
		}
	}
}

// WithAuditEdges toggles the fully connected audit edge view.
func WithAuditEdges(enabled bool) Option {
	return func(g *Graph) {
		g.edgesEnabled = enabled
	}
}

// WithLogger sets a custom logger for the graph.
func WithLogger(l logger.Logger) Option {
	return func(g *Graph) {
		if l != nil {
			g.logger = l
		}
	}
}
