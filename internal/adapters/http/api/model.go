package api

import (
	"net/http"

	"github.com/okian/fedrec/internal/domain/model"
	"github.com/okian/fedrec/internal/domain/types"
)

// submitRequest mirrors the OpenAPI schema for POST /update_model.
type submitRequest struct {
	ClientID         string   `json:"client_id" validate:"required,max=256"`
	Weights          []any    `json:"weights" validate:"required,min=1"`
	ValidationSignal *float64 `json:"validation_signal,omitempty"`
}

// ModelHandler serves round submission and global model reads.
type ModelHandler struct {
	deps   Dependencies
	server *Server
}

// NewModelHandler creates a new model handler.
func NewModelHandler(deps Dependencies, s *Server) *ModelHandler {
	return &ModelHandler{deps: deps, server: s}
}

// HandleSubmit handles POST /update_model requests.
func (h *ModelHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit"
	var req submitRequest
	if err := h.server.decode(w, r, op, &req); err != nil {
		h.server.fail(w, r, err)
		return
	}
	weights, err := model.WeightsFromNested(req.Weights)
	if err != nil {
		h.server.fail(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}

	status, err := h.deps.Submit(r.Context(), model.Contribution{
		ClientID:         model.ClientID(req.ClientID),
		Weights:          weights,
		ValidationSignal: req.ValidationSignal,
		SubmittedAt:      h.server.now(),
	})
	if err != nil {
		h.server.fail(w, r, Wrap(op, err))
		return
	}
	if status.Aggregated {
		writeJSON(w, http.StatusOK, types.SubmitResponse{Status: types.StatusAggregated, Version: status.Version})
		return
	}
	writeJSON(w, http.StatusOK, types.SubmitResponse{
		Status:     types.StatusWaiting,
		WaitingFor: status.WaitingFor,
		Round:      status.Round,
	})
}

// HandleGetModel handles GET /get_global_model requests.
func (h *ModelHandler) HandleGetModel(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, globalModel(h.deps.CurrentModel()))
}

// HandleCloseRound handles POST /rounds/close requests.
func (h *ModelHandler) HandleCloseRound(w http.ResponseWriter, r *http.Request) {
	const op = "api.close_round"
	state, err := h.deps.CloseRound(r.Context())
	if err != nil {
		h.server.fail(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, types.SubmitResponse{Status: types.StatusAggregated, Version: state.Version})
}

func globalModel(state *model.GlobalModelState) types.GlobalModel {
	if state == nil {
		return types.GlobalModel{Weights: []any{}}
	}
	created := state.CreatedAt
	return types.GlobalModel{
		Initialized: true,
		Version:     state.Version,
		CreatedAt:   &created,
		Weights:     state.Weights.Nested(),
	}
}
