// Package types contains the response shapes returned by the HTTP API.
package types

import "time"

// Submission statuses.
const (
	StatusWaiting    = "waiting"
	StatusAggregated = "aggregated"
)

// SubmitResponse reports where a contribution landed.
type SubmitResponse struct {
	Status     string `json:"status"`
	Version    uint64 `json:"version,omitempty"`
	WaitingFor int    `json:"waiting_for,omitempty"`
	Round      uint64 `json:"round,omitempty"`
}

// GlobalModel is the published model in nested-array form.
type GlobalModel struct {
	Initialized bool       `json:"initialized"`
	Version     uint64     `json:"version,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	Weights     []any      `json:"weights"`
}

// RecommendedItem is one entry of a recommendation list.
type RecommendedItem struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// RecommendResponse wraps a recommendation list.
type RecommendResponse struct {
	Recommendations []RecommendedItem `json:"recommendations"`
}
