// Package repository persists global model snapshots.
package repository

import (
	"context"
	"fmt"

	"github.com/okian/fedrec/internal/domain/model"
	"github.com/okian/fedrec/pkg/logger"
)

// Supported store drivers.
const (
	DriverMemory = "memory"
	DriverBadger = "badger"
	DriverSQLite = "sqlite"
)

// Store is an append-only log of global model versions.
type Store interface {
	// Save appends state. Saving an existing version returns ErrVersionExists.
	Save(ctx context.Context, state *model.GlobalModelState) error
	// LoadLatest returns the highest version, or found=false on an empty store.
	LoadLatest(ctx context.Context) (state *model.GlobalModelState, found bool, err error)
	// Count returns the number of stored versions.
	Count(ctx context.Context) (int, error)
	// Close releases underlying resources.
	Close() error
}

// Open creates the store for driver. Path is ignored by the memory driver;
// an empty path opens badger in memory and sqlite as a private database.
func Open(ctx context.Context, driver, path string, opts ...Option) (Store, error) {
	s := newSettings(opts)
	switch driver {
	case DriverMemory, "":
		return NewMemoryStore(), nil
	case DriverBadger:
		return OpenBadgerStore(path, opts...)
	case DriverSQLite:
		return OpenSQLiteStore(ctx, path, opts...)
	default:
		s.logger.Error(ctx, "unknown store driver", logger.String("driver", driver))
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}
