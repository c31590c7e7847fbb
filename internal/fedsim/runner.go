package fedsim

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"github.com/okian/fedrec/internal/domain/model"
	"github.com/okian/fedrec/internal/domain/scoring"
	"github.com/okian/fedrec/internal/domain/types"
	"github.com/okian/fedrec/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0o750
	reportPermission    = 0o600
)

// Run plays cfg.Rounds federated rounds against the server and reports how
// trust settled.
func Run(ctx context.Context, cfg Config) (*Report, error) {
	cfg = cfg.withDefaults()
	log := logger.Named("fedsim")
	if cfg.Honest+cfg.Adversarial <= 0 {
		return nil, ErrNoClients
	}

	rng := rand.New(rand.NewSource(cfg.Seed)) //nolint:gosec // simulation, not security sensitive
	participants := make([]*Participant, 0, cfg.Honest+cfg.Adversarial)
	for i := 0; i < cfg.Honest; i++ {
		participants = append(participants, NewParticipant(false, cfg.HonestStd, rng.Int63()))
	}
	for i := 0; i < cfg.Adversarial; i++ {
		participants = append(participants, NewParticipant(true, cfg.AttackStd, rng.Int63()))
	}

	report := &Report{
		Participants: len(participants),
		Rounds:       cfg.Rounds,
		Trust:        make(map[string]float64, len(participants)),
		StartTime:    time.Now(),
	}
	log.Info(ctx, "starting federated simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("honest", cfg.Honest),
		logger.Int("adversarial", cfg.Adversarial),
		logger.Int("rounds", cfg.Rounds))

	client := NewHTTPClient(cfg.BaseURL, cfg.Timeout)
	if err := client.Health(ctx); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}

	for r := 0; r < cfg.Rounds; r++ {
		global, version, err := currentWeights(ctx, client, cfg)
		if err != nil {
			return nil, err
		}
		if r == 0 {
			report.StartVersion = version
		}
		if err := playRound(ctx, client, cfg, participants, global, report); err != nil {
			return nil, fmt.Errorf("round %d: %w", r+1, err)
		}
	}

	final, err := client.GlobalModel(ctx)
	if err != nil {
		return nil, err
	}
	report.FinalVersion = final.Version

	if err := collectTrust(ctx, client, participants, report); err != nil {
		return nil, err
	}

	user := make([]float64, cfg.Dimension)
	for i := range user {
		user[i] = rng.Float64()
	}
	recs, err := client.Recommend(ctx, user, cfg.TopK)
	if err != nil {
		log.Warn(ctx, "recommendation request failed", logger.Error(err))
	} else {
		for _, it := range recs.Recommendations {
			report.Recommendations = append(report.Recommendations, it.ID)
		}
	}

	report.Duration = time.Since(report.StartTime)
	if cfg.ReportFile != "" {
		if err := saveReport(cfg.ReportFile, report); err != nil {
			log.Warn(ctx, "failed to save report", logger.Error(err))
		}
	}
	displayReport(ctx, log, report)
	return report, verifyTrust(cfg, report)
}

// currentWeights returns the published model, or a freshly initialized MLP
// of the configured size when the server has none yet.
func currentWeights(ctx context.Context, client *HTTPClient, cfg Config) (model.Weights, uint64, error) {
	g, err := client.GlobalModel(ctx)
	if err != nil {
		return nil, 0, err
	}
	if !g.Initialized {
		return scoring.InitMLP(cfg.Dimension, cfg.HiddenDim, cfg.Seed), 0, nil
	}
	w, err := model.WeightsFromNested(g.Weights)
	if err != nil {
		return nil, 0, fmt.Errorf("decode global model: %w", err)
	}
	return w, g.Version, nil
}

// playRound has every participant submit concurrently. If the server did not
// aggregate, the round is closed explicitly.
func playRound(ctx context.Context, client *HTTPClient, cfg Config, participants []*Participant, global model.Weights, report *Report) error {
	log := logger.Named("fedsim")
	var (
		submitted  atomic.Int64
		rejected   atomic.Int64
		aggregated atomic.Int64
		wg         sync.WaitGroup
	)

	for _, p := range participants {
		wg.Add(1)
		go func(p *Participant) {
			defer wg.Done()
			w, signal := p.Train(global)
			resp, err := client.Submit(ctx, SubmitRequest{
				ClientID:         p.ID,
				Weights:          w.Nested(),
				ValidationSignal: &signal,
			})
			submitted.Add(1)
			if err != nil {
				rejected.Add(1)
				log.Warn(ctx, "submission rejected", logger.String("client", p.ID), logger.Error(err))
				return
			}
			if resp.Status == types.StatusAggregated {
				aggregated.Add(1)
			}
			if cfg.Verbose {
				log.Info(ctx, "submitted",
					logger.String("client", p.ID),
					logger.Float64("signal", signal),
					logger.String("status", resp.Status))
			}
		}(p)
	}
	wg.Wait()

	report.Submissions += int(submitted.Load())
	report.Rejected += int(rejected.Load())
	report.Aggregations += int(aggregated.Load())
	if aggregated.Load() > 0 {
		return nil
	}

	resp, err := client.CloseRound(ctx)
	var se *StatusError
	switch {
	case err == nil:
		report.ForcedCloses++
		report.Aggregations++
		log.Debug(ctx, "closed round", logger.Uint64("version", resp.Version))
		return nil
	case errors.As(err, &se) && se.Code == http.StatusConflict:
		// every submission was rejected
		return nil
	default:
		return err
	}
}

func collectTrust(ctx context.Context, client *HTTPClient, participants []*Participant, report *Report) error {
	snap, err := client.TrustGraph(ctx)
	if err != nil {
		return err
	}
	byID := make(map[string]float64, len(snap.Nodes))
	for _, n := range snap.Nodes {
		byID[string(n.ID)] = n.Trust
	}

	var honestSum, advSum float64
	var honestN, advN int
	for _, p := range participants {
		t, ok := byID[p.ID]
		if !ok {
			continue
		}
		report.Trust[p.ID] = t
		if p.Adversarial {
			advSum += t
			advN++
		} else {
			honestSum += t
			honestN++
		}
	}
	if honestN > 0 {
		report.HonestTrust = honestSum / float64(honestN)
	}
	if advN > 0 {
		report.AdversarialTrust = advSum / float64(advN)
	}
	return nil
}

func saveReport(path string, report *Report) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	return os.WriteFile(path, data, reportPermission)
}

func displayReport(ctx context.Context, log logger.Logger, r *Report) {
	log.Info(ctx, "final statistics",
		logger.Int("participants", r.Participants),
		logger.Int("submissions", r.Submissions),
		logger.Int("rejected", r.Rejected),
		logger.Int("aggregations", r.Aggregations),
		logger.Int("forcedCloses", r.ForcedCloses),
		logger.Uint64("startVersion", r.StartVersion),
		logger.Uint64("finalVersion", r.FinalVersion),
		logger.Float64("honestTrust", r.HonestTrust),
		logger.Float64("adversarialTrust", r.AdversarialTrust),
		logger.Any("recommendations", r.Recommendations),
		logger.Duration("duration", r.Duration))
}
