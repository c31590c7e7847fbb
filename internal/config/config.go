// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers a YAML file and FEDREC_ environment variables over New().
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn error"`
	// LogFormat selects the slog handler: text or json.
	LogFormat string `koanf:"log_format" validate:"oneof=text json"`

	// Addr configures the HTTP listen address, e.g. ":8000".
	Addr string `koanf:"addr" validate:"required"`
	// SubmitRateLimit caps POST /update_model per client IP per minute. 0 disables it.
	SubmitRateLimit int `koanf:"submit_rate_limit" validate:"gte=0"`
	// MaxBodyBytes caps request bodies.
	MaxBodyBytes int64 `koanf:"max_body_bytes" validate:"gt=0"`
	// ShutdownTimeoutMS bounds graceful shutdown.
	ShutdownTimeoutMS int `koanf:"shutdown_timeout_ms" validate:"gt=0"`

	// QuorumPolicy is "quorum" or "all_registered".
	QuorumPolicy string `koanf:"quorum_policy" validate:"oneof=quorum all_registered"`
	// QuorumSize is the number of distinct clients closing a round under "quorum".
	QuorumSize int `koanf:"quorum_size" validate:"gte=1"`

	// TrustSmoothing is the weight kept by the old trust value on update.
	TrustSmoothing float64 `koanf:"trust_smoothing" validate:"gte=0,lte=1"`
	// InitialTrust is assigned to clients on first submission.
	InitialTrust float64 `koanf:"initial_trust" validate:"gte=0,lte=1"`
	// TrustEdges mirrors audit edges between every pair of clients.
	TrustEdges bool `koanf:"trust_edges"`

	// Dimension is the length of user and item vectors.
	Dimension int `koanf:"dimension" validate:"gte=1"`
	// BootstrapModel publishes a seeded MLP as version 1 when the store is empty.
	BootstrapModel bool `koanf:"bootstrap_model"`
	// HiddenDim is the hidden layer width of the bootstrap MLP.
	HiddenDim int `koanf:"hidden_dim" validate:"gte=1"`
	// ModelSeed seeds the bootstrap MLP initializer.
	ModelSeed int64 `koanf:"model_seed"`

	// ExplorationRate is the share of each recommendation list drawn at random.
	ExplorationRate float64 `koanf:"exploration_rate" validate:"gte=0,lte=1"`
	// MaxTopK caps the top_k accepted by /recommend.
	MaxTopK int `koanf:"max_top_k" validate:"gte=1"`
	// RankerSeed seeds exploration sampling. 0 seeds from the clock.
	RankerSeed int64 `koanf:"ranker_seed"`

	// StoreDriver selects the model store: memory, badger or sqlite.
	StoreDriver string `koanf:"store_driver" validate:"oneof=memory badger sqlite"`
	// StorePath is the badger directory or sqlite file.
	StorePath string `koanf:"store_path"`
	// PersistQueueSize bounds the snapshot persistence queue.
	PersistQueueSize int `koanf:"persist_queue_size" validate:"gte=1"`
	// PersistWorkers is the number of persistence workers.
	PersistWorkers int `koanf:"persist_workers" validate:"gte=1"`
	// BreakerFailures is the consecutive save failures that open the breaker.
	BreakerFailures int `koanf:"breaker_failures" validate:"gte=1"`
	// BreakerTimeoutMS is how long an open breaker rejects saves.
	BreakerTimeoutMS int `koanf:"breaker_timeout_ms" validate:"gte=1"`

	// CatalogDriver selects the candidate source: memory, yaml or sqlite.
	CatalogDriver string `koanf:"catalog_driver" validate:"oneof=memory yaml sqlite"`
	// CatalogPath is the yaml file or sqlite database holding candidates.
	CatalogPath string `koanf:"catalog_path" validate:"required_unless=CatalogDriver memory"`

	// SimulationMode enables the synthetic noisy client.
	SimulationMode bool `koanf:"simulation_mode"`
	// SimulationNoiseStd is the Gaussian noise applied to the synthetic contribution.
	SimulationNoiseStd float64 `koanf:"simulation_noise_std" validate:"gte=0"`
	// SimulationTrust is the fixed trust of the synthetic client.
	SimulationTrust float64 `koanf:"simulation_trust" validate:"gte=0,lte=1"`
	// SimulationSeed seeds the noise source. 0 seeds from the clock.
	SimulationSeed int64 `koanf:"simulation_seed"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:           "info",
		LogFormat:          "text",
		Addr:               ":8000",
		SubmitRateLimit:    0,
		MaxBodyBytes:       8 << 20,
		ShutdownTimeoutMS:  5000,
		QuorumPolicy:       "quorum",
		QuorumSize:         2,
		TrustSmoothing:     0.9,
		InitialTrust:       1.0,
		TrustEdges:         true,
		Dimension:          16,
		BootstrapModel:     true,
		HiddenDim:          128,
		ModelSeed:          42,
		ExplorationRate:    0.2,
		MaxTopK:            100,
		StoreDriver:        "memory",
		PersistQueueSize:   64,
		PersistWorkers:     1,
		BreakerFailures:    5,
		BreakerTimeoutMS:   30_000,
		CatalogDriver:      "memory",
		SimulationNoiseStd: 0.5,
		SimulationTrust:    0.0,
	}
}

// BreakerTimeout returns BreakerTimeoutMS as a duration.
func (c *Config) BreakerTimeout() time.Duration {
	return time.Duration(c.BreakerTimeoutMS) * time.Millisecond
}

// ShutdownTimeout returns ShutdownTimeoutMS as a duration.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutMS) * time.Millisecond
}

// Validate checks every field against its constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.StoreDriver != "memory" && c.StorePath == "" {
		return fmt.Errorf("%w: store_path is required for store_driver %q", ErrInvalidConfig, c.StoreDriver)
	}
	return nil
}
