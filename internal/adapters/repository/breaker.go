package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/okian/fedrec/internal/domain/model"
	"github.com/okian/fedrec/pkg/logger"
	"github.com/okian/fedrec/pkg/metrics"
)

const breakerName = "model-store"

// Breaker guards saves with a circuit breaker. Once the breaker is open,
// saves fail fast with ErrPersistence instead of piling up on a dead disk.
// Reads pass straight through.
type Breaker struct {
	Store
	cb     *gobreaker.CircuitBreaker[struct{}]
	logger logger.Logger
}

// NewBreaker wraps inner.
func NewBreaker(inner Store, opts ...Option) *Breaker {
	s := newSettings(opts)
	b := &Breaker{Store: inner, logger: s.logger.Named("breaker")}
	metrics.UpdateBreakerOpen(false)

	b.cb = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     s.breakerTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= s.breakerFailures
		},
		// A duplicate version is a caller mistake, not a sick store.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrVersionExists) || errors.Is(err, ErrInvalidVersion)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.UpdateBreakerOpen(to == gobreaker.StateOpen)
			b.logger.Warn(context.Background(), "circuit breaker state change",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		},
	})
	return b
}

// Save forwards to the wrapped store unless the breaker is open.
func (b *Breaker) Save(ctx context.Context, state *model.GlobalModelState) error {
	start := time.Now()
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, b.Store.Save(ctx, state)
	})
	switch {
	case err == nil:
		metrics.RecordPersistenceSave()
		return nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.RecordErrorByComponent("store", "breaker_open")
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	case errors.Is(err, ErrVersionExists), errors.Is(err, ErrInvalidVersion):
		return err
	default:
		metrics.RecordErrorLatency("store", "save_failed", float64(time.Since(start).Microseconds())/1000)
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
}

// State returns the breaker state, for stats.
func (b *Breaker) State() string {
	return b.cb.State().String()
}
