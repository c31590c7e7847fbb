package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/okian/fedrec/internal/domain/model"
	"github.com/okian/fedrec/pkg/logger"
	"github.com/okian/fedrec/pkg/metrics"
)

const (
	badgerKeyPrefix     = "model:"
	badgerValueLogBytes = 64 << 20
)

// BadgerStore keeps one key per version, "model:%020d", so lexical key
// order is version order.
type BadgerStore struct {
	db     *badger.DB
	logger logger.Logger
}

// OpenBadgerStore opens a badger database at path, or in memory when path is empty.
func OpenBadgerStore(path string, opts ...Option) (*BadgerStore, error) {
	s := newSettings(opts)

	bo := badger.DefaultOptions(path)
	if path == "" {
		bo = badger.DefaultOptions("").WithInMemory(true)
	}
	bo.Logger = nil
	bo.ValueLogFileSize = badgerValueLogBytes
	bo.SyncWrites = s.syncWrites && path != ""

	db, err := badger.Open(bo)
	if err != nil {
		return nil, fmt.Errorf("open badger model store: %w", err)
	}
	return &BadgerStore{db: db, logger: s.logger.Named("badger")}, nil
}

func badgerKey(version uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", badgerKeyPrefix, version))
}

// Save writes state under its version key inside one transaction.
func (s *BadgerStore) Save(ctx context.Context, state *model.GlobalModelState) error {
	start := time.Now()
	b, err := encodeState(state)
	if err != nil {
		return err
	}
	key := badgerKey(state.Version)
	err = s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		switch {
		case err == nil:
			return fmt.Errorf("%w: %d", ErrVersionExists, state.Version)
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		return txn.SetEntry(badger.NewEntry(key, b))
	})
	if err != nil {
		return err
	}
	metrics.RecordPersistenceLatency(float64(time.Since(start).Microseconds()) / 1000)
	s.logger.Debug(ctx, "snapshot stored", logger.Any("version", state.Version), logger.Int("bytes", len(b)))
	return nil
}

// LoadLatest seeks to the end of the key range and walks backwards.
func (s *BadgerStore) LoadLatest(_ context.Context) (*model.GlobalModelState, bool, error) {
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(badgerKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		it.Seek(append([]byte(badgerKeyPrefix), 0xFF))
		if !it.ValidForPrefix(opts.Prefix) {
			return nil
		}
		var err error
		raw, err = it.Item().ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("load latest model: %w", err)
	}
	if raw == nil {
		return nil, false, nil
	}
	st, err := decodeState(raw)
	if err != nil {
		return nil, false, err
	}
	return st, true, nil
}

// Count walks the keys without fetching values.
func (s *BadgerStore) Count(_ context.Context) (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(badgerKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count models: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
