// Package catalog provides candidate sources for the ranker.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/fedrec/internal/domain/model"
)

// Supported catalog drivers.
const (
	DriverMemory = "memory"
	DriverYAML   = "yaml"
	DriverSQLite = "sqlite"
)

// Sentinel kinds for catalog errors.
var (
	ErrUnknownDriver = errors.New("unknown catalog driver")
	ErrInvalidItem   = errors.New("invalid catalog item")
)

// Source lists recommendable candidates.
type Source interface {
	ListCandidates(ctx context.Context) ([]model.Candidate, error)
}

// Static serves a fixed slice. The zero value is an empty catalog.
type Static struct {
	items []model.Candidate
}

// NewStatic copies items into a static source.
func NewStatic(items ...model.Candidate) *Static {
	return &Static{items: append([]model.Candidate(nil), items...)}
}

// ListCandidates returns the fixed items.
func (s *Static) ListCandidates(context.Context) ([]model.Candidate, error) {
	return s.items, nil
}

// Open creates the source for driver.
func Open(ctx context.Context, driver, path string) (Source, error) {
	switch driver {
	case DriverMemory, "":
		return NewStatic(), nil
	case DriverYAML:
		return NewYAMLSource(path), nil
	case DriverSQLite:
		return OpenSQLiteSource(ctx, path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}

func validate(items []model.Candidate) error {
	for i, it := range items {
		if it.ID == "" {
			return fmt.Errorf("%w: item %d has no id", ErrInvalidItem, i)
		}
	}
	return nil
}
