package fedsim

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/okian/fedrec/internal/domain/trust"
	"github.com/okian/fedrec/internal/domain/types"
)

// HTTPClient talks to the server's JSON API.
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

// NewHTTPClient creates a client for baseURL with a per-request timeout.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// SubmitRequest is the body of POST /update_model.
type SubmitRequest struct {
	ClientID         string   `json:"client_id"`
	Weights          []any    `json:"weights"`
	ValidationSignal *float64 `json:"validation_signal,omitempty"`
}

type recommendRequest struct {
	UserVector []float64 `json:"user_vector"`
	TopK       int       `json:"top_k"`
}

// Health checks GET /healthz.
func (c *HTTPClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnhealthy, resp.StatusCode)
	}
	return nil
}

// GlobalModel fetches GET /get_global_model.
func (c *HTTPClient) GlobalModel(ctx context.Context) (types.GlobalModel, error) {
	var out types.GlobalModel
	err := c.do(ctx, http.MethodGet, "/get_global_model", nil, &out)
	return out, err
}

// Submit posts one contribution.
func (c *HTTPClient) Submit(ctx context.Context, body SubmitRequest) (types.SubmitResponse, error) {
	var out types.SubmitResponse
	err := c.do(ctx, http.MethodPost, "/update_model", body, &out)
	return out, err
}

// CloseRound forces aggregation of the open round.
func (c *HTTPClient) CloseRound(ctx context.Context) (types.SubmitResponse, error) {
	var out types.SubmitResponse
	err := c.do(ctx, http.MethodPost, "/rounds/close", nil, &out)
	return out, err
}

// Recommend requests topK items for user.
func (c *HTTPClient) Recommend(ctx context.Context, user []float64, topK int) (types.RecommendResponse, error) {
	var out types.RecommendResponse
	err := c.do(ctx, http.MethodPost, "/recommend", recommendRequest{UserVector: user, TopK: topK}, &out)
	return out, err
}

// TrustGraph fetches GET /trust_graph.
func (c *HTTPClient) TrustGraph(ctx context.Context) (trust.Snapshot, error) {
	var out trust.Snapshot
	err := c.do(ctx, http.MethodGet, "/trust_graph", nil, &out)
	return out, err
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: string(bytes.TrimSpace(data))}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}
