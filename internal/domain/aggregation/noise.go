package aggregation

import (
	"math/rand"
	"sync"

	"github.com/okian/fedrec/internal/domain/model"
)

// SyntheticClient is the fixed identity under which simulated noisy
// contributions are registered.
const SyntheticClient model.ClientID = "simulated-noisy-client"

// NoiseInjector derives synthetic adversarial contributions by adding
// zero-mean Gaussian noise to a real one. It is only wired when the
// service runs in simulation mode.
type NoiseInjector struct {
	mu  sync.Mutex
	rng *rand.Rand
	std float64
}

// NewNoiseInjector creates an injector with the given standard deviation.
func NewNoiseInjector(std float64, seed int64) *NoiseInjector {
	if std < 0 {
		std = -std
	}
	return &NoiseInjector{
		rng: rand.New(rand.NewSource(seed)), //nolint:gosec // simulation noise, not security sensitive
		std: std,
	}
}

// Perturb returns a noisy copy of w.
func (n *NoiseInjector) Perturb(w model.Weights) model.Weights {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := w.Clone()
	for li := range out {
		for vi := range out[li].Values {
			out[li].Values[vi] += n.rng.NormFloat64() * n.std
		}
	}
	return out
}

// StdDev returns the configured noise level.
func (n *NoiseInjector) StdDev() float64 {
	return n.std
}
