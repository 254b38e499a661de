// Package fsdir implements the spill store as one file per record inside a
// working directory. It has no dependencies and no durability guarantees
// beyond the filesystem's; abandoned records are plain files an operator
// can clean up externally.
package fsdir

import (
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/tarungka/loom/internal/logger"
	"github.com/tarungka/loom/internal/spill"
)

// Store spills each record to <dir>/<hex(key)>.dat.
type Store struct {
	dir    string
	logger zerolog.Logger
}

var _ spill.Store = (*Store)(nil)

// New returns a file-backed spill store rooted at dir. An empty dir creates
// a fresh temporary directory.
func New(dir string) (*Store, error) {
	if dir == "" {
		tmp, err := os.MkdirTemp("", "loom-spill-*")
		if err != nil {
			return nil, err
		}
		dir = tmp
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{
		dir:    dir,
		logger: logger.GetLogger("spillfs"),
	}, nil
}

// Dir returns the working directory records are spilled to.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(key []byte) string {
	return filepath.Join(s.dir, hex.EncodeToString(key)+".dat")
}

func (s *Store) Put(key, value []byte) error {
	if err := os.WriteFile(s.path(key), value, 0o644); err != nil {
		s.logger.Err(err).Msgf("error writing spill file for record %x", key)
		return err
	}
	return nil
}

func (s *Store) Get(key []byte) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return nil, spill.ErrNotFound
	}
	if err != nil {
		s.logger.Err(err).Msgf("error reading spill file for record %x", key)
		return nil, err
	}
	return data, nil
}

func (s *Store) Delete(key []byte) error {
	err := os.Remove(s.path(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Close removes the working directory and every record still in it.
func (s *Store) Close() error {
	return os.RemoveAll(s.dir)
}
