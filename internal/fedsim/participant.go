package fedsim

import (
	"math/rand"
	"sync"

	"github.com/google/uuid"

	"github.com/okian/fedrec/internal/domain/model"
)

// Participant is one simulated federated client.
type Participant struct {
	ID          string
	Adversarial bool

	mu  sync.Mutex
	rng *rand.Rand
	std float64
}

// NewParticipant creates a participant with a random id. Honest participants
// jitter the model by std; adversarial ones by their attack std.
func NewParticipant(adversarial bool, std float64, seed int64) *Participant {
	prefix := "honest-"
	if adversarial {
		prefix = "adversary-"
	}
	return &Participant{
		ID:          prefix + uuid.NewString()[:8],
		Adversarial: adversarial,
		rng:         rand.New(rand.NewSource(seed)), //nolint:gosec // simulation, not security sensitive
		std:         std,
	}
}

// Train derives a local update from the global weights and returns it with
// the participant's self-reported validation signal.
func (p *Participant) Train(global model.Weights) (model.Weights, float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := global.Clone()
	for li := range out {
		for vi := range out[li].Values {
			out[li].Values[vi] += p.rng.NormFloat64() * p.std
		}
	}
	if p.Adversarial {
		return out, 0.2 * p.rng.Float64()
	}
	return out, 0.8 + 0.2*p.rng.Float64()
}
