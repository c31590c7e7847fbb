// Package model contains domain models passed between layers.
package model

import "time"

// ClientID identifies a federated participant.
type ClientID string

// Contribution is one submission of trained weights by a client.
type Contribution struct {
	ID               string    // unique id for audit logs
	ClientID         ClientID  // submitting client
	Round            uint64    // round the contribution was buffered into
	Weights          Weights   // trained weights, one entry per layer
	ValidationSignal *float64  // optional validation accuracy in [0,1]
	SubmittedAt      time.Time // server receive time
}

// GlobalModelState is an immutable, versioned snapshot of the aggregated model.
// Readers must never mutate Weights.
type GlobalModelState struct {
	Version   uint64         `json:"version"`
	Weights   Weights        `json:"weights"`
	Signature ShapeSignature `json:"signature"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewGlobalModelState builds a snapshot owning a private copy of w.
func NewGlobalModelState(version uint64, w Weights, at time.Time) *GlobalModelState {
	owned := w.Clone()
	return &GlobalModelState{
		Version:   version,
		Weights:   owned,
		Signature: owned.Signature(),
		CreatedAt: at.UTC(),
	}
}

// Candidate is an item the ranker may recommend.
type Candidate struct {
	ID            string    `json:"id" yaml:"id"`
	FeatureVector []float64 `json:"video_vector" yaml:"video_vector"`
	URL           string    `json:"url" yaml:"url"`
}

// Recommendation is one ranked result.
type Recommendation struct {
	ID       string
	URL      string
	Score    float64
	Explored bool // sampled by exploration mixing rather than ranked in
}
