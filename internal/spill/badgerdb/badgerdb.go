// Package badgerdb implements the spill store on top of badger. It is the
// default durable backend for state overflow.
package badgerdb

import (
	"errors"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/tarungka/loom/internal/logger"
	"github.com/tarungka/loom/internal/spill"
)

type Config struct {
	// Dir is the database directory. Empty means in-memory, which is
	// useful for tests but defeats the point of spilling.
	Dir string
}

// Store is a badger-backed spill store.
type Store struct {
	open atomic.Bool

	dbPath string
	logger zerolog.Logger

	db *badger.DB
}

var _ spill.Store = (*Store)(nil)

func New(c *Config) *Store {
	return &Store{
		dbPath: c.Dir,
		logger: logger.GetLogger("spilldb"),
	}
}

// Open opens the underlying badger database.
func (s *Store) Open() error {
	if s.open.Load() {
		return ErrDBOpen
	}

	opts := badger.DefaultOptions(s.dbPath)
	if s.dbPath == "" {
		opts = opts.WithInMemory(true)
	}
	// badger's own logger is too chatty for a store that only holds
	// transient spill records
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		s.logger.Err(err).Msgf("error opening spill db at %q", s.dbPath)
		return err
	}
	s.db = db
	s.open.Store(true)
	s.logger.Debug().Msgf("opened spill db at %q", s.dbPath)
	return nil
}

func (s *Store) Put(key, value []byte) error {
	if !s.open.Load() {
		return ErrDBNotOpen
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
	if err != nil {
		s.logger.Err(err).Msgf("error writing spill record %x", key)
		return err
	}
	return nil
}

// Get returns the record for key, or spill.ErrNotFound.
func (s *Store) Get(key []byte) ([]byte, error) {
	if !s.open.Load() {
		return nil, ErrDBNotOpen
	}
	var val []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, spill.ErrNotFound
	}
	if err != nil {
		s.logger.Err(err).Msgf("error reading spill record %x", key)
		return nil, err
	}
	return val, nil
}

func (s *Store) Delete(key []byte) error {
	if !s.open.Load() {
		return ErrDBNotOpen
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

func (s *Store) Close() error {
	if !s.open.Load() {
		return nil
	}
	s.open.Store(false)
	return s.db.Close()
}
