// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/okian/fedrec/internal/domain/model"
	"github.com/okian/fedrec/internal/domain/ranking"
	"github.com/okian/fedrec/internal/domain/round"
	"github.com/okian/fedrec/internal/domain/trust"
	"github.com/okian/fedrec/pkg/logger"
)

const (
	defaultMaxBodyBytes = 8 << 20
	defaultTopK         = 5
)

var validate = validator.New()

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Submit buffers one client contribution into the open round.
	Submit(ctx context.Context, c model.Contribution) (round.Status, error)
	// CloseRound aggregates whatever is buffered.
	CloseRound(ctx context.Context) (*model.GlobalModelState, error)
	// CurrentModel returns the published model or nil.
	CurrentModel() *model.GlobalModelState

	Recommend(ctx context.Context, user []float64, topK int) ([]model.Recommendation, error)
	TrustGraph(ctx context.Context) trust.Snapshot
}

// Server wires HTTP routes for the business API.
type Server struct {
	modelHandler     *ModelHandler
	recommendHandler *RecommendHandler
	trustHandler     *TrustHandler
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	dashboardHandler *dashboardHandler

	submitRateLimit int
	maxBodyBytes    int64
	defaultTopK     int
	now             func() time.Time
	logger          logger.Logger
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{
		maxBodyBytes: defaultMaxBodyBytes,
		defaultTopK:  defaultTopK,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Named("api")
	}
	s.modelHandler = NewModelHandler(deps, s)
	s.recommendHandler = NewRecommendHandler(deps, s)
	s.trustHandler = NewTrustHandler(deps)
	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(statsProvider)
	s.dashboardHandler = newDashboardHandler()
	return s
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(_ context.Context, r chi.Router) {
	var submit http.Handler = http.HandlerFunc(s.modelHandler.HandleSubmit)
	if s.submitRateLimit > 0 {
		submit = httprate.Limit(
			s.submitRateLimit,
			time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
				writeError(w, http.StatusTooManyRequests, "rate_limited", NewKind("api.submit", ErrRateLimited))
			}),
		)(submit)
	}

	r.Post("/update_model", MetricsMiddleware(submit.ServeHTTP, "update_model"))
	r.Get("/get_global_model", MetricsMiddleware(s.modelHandler.HandleGetModel, "get_global_model"))
	r.Post("/rounds/close", MetricsMiddleware(s.modelHandler.HandleCloseRound, "close_round"))
	r.Post("/recommend", MetricsMiddleware(s.recommendHandler.HandleRecommend, "recommend"))
	r.Get("/trust_graph", MetricsMiddleware(s.trustHandler.HandleTrustGraph, "trust_graph"))
	r.Get("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	r.Get("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	r.Get("/dashboard", s.dashboardHandler.HandleDashboard)
}

// decode reads a size-limited JSON body into v and validates it.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, op string, v any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return WrapKind(op, ErrTooLarge, err)
		}
		return WrapKind(op, ErrBadRequest, err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return WrapKind(op, ErrBadRequest, err)
	}
	if err := validate.Struct(v); err != nil {
		return WrapKind(op, ErrBadRequest, err)
	}
	return nil
}

// fail maps err to a status code, writes it and logs server-side failures.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed",
			logger.String("path", r.URL.Path),
			logger.Error(err))
	}
	writeError(w, status, code, err)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "too_large"
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, round.ErrEmptyRound):
		return http.StatusConflict, "empty_round"
	case errors.Is(err, trust.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, model.ErrRaggedTensor),
		errors.Is(err, model.ErrInvalidTensor),
		errors.Is(err, round.ErrShapeMismatch),
		errors.Is(err, round.ErrNonFinite),
		errors.Is(err, round.ErrInvalidClient),
		errors.Is(err, round.ErrInvalidSignal),
		errors.Is(err, trust.ErrInvalidSignal),
		errors.Is(err, ranking.ErrDimensionMismatch),
		errors.Is(err, ranking.ErrInvalidTopK):
		return http.StatusBadRequest, "bad_request"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
