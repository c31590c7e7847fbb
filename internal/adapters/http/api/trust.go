package api

import "net/http"

// TrustHandler exposes the trust graph.
type TrustHandler struct {
	deps Dependencies
}

// NewTrustHandler creates a new trust handler.
func NewTrustHandler(deps Dependencies) *TrustHandler {
	return &TrustHandler{deps: deps}
}

// HandleTrustGraph handles GET /trust_graph requests.
func (h *TrustHandler) HandleTrustGraph(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.TrustGraph(r.Context()))
}
