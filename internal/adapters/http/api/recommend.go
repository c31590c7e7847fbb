package api

import (
	"net/http"

	"github.com/okian/fedrec/internal/domain/types"
)

// recommendRequest mirrors the OpenAPI schema for POST /recommend.
type recommendRequest struct {
	UserVector []float64 `json:"user_vector" validate:"required,min=1"`
	TopK       *int      `json:"top_k,omitempty"`
}

// RecommendHandler handles recommendation requests.
type RecommendHandler struct {
	deps   Dependencies
	server *Server
}

// NewRecommendHandler creates a new recommend handler.
func NewRecommendHandler(deps Dependencies, s *Server) *RecommendHandler {
	return &RecommendHandler{deps: deps, server: s}
}

// HandleRecommend handles POST /recommend requests.
func (h *RecommendHandler) HandleRecommend(w http.ResponseWriter, r *http.Request) {
	const op = "api.recommend"
	var req recommendRequest
	if err := h.server.decode(w, r, op, &req); err != nil {
		h.server.fail(w, r, err)
		return
	}
	k := h.server.defaultTopK
	if req.TopK != nil {
		k = *req.TopK
	}

	recs, err := h.deps.Recommend(r.Context(), req.UserVector, k)
	if err != nil {
		h.server.fail(w, r, Wrap(op, err))
		return
	}
	out := types.RecommendResponse{Recommendations: make([]types.RecommendedItem, len(recs))}
	for i, rec := range recs {
		out.Recommendations[i] = types.RecommendedItem{ID: rec.ID, URL: rec.URL}
	}
	writeJSON(w, http.StatusOK, out)
}
