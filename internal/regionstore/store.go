// Package regionstore is the RegionServer-local on-disk representation of
// one region's data: a Pebble instance rooted at the region's directory.
// It stands in for the full storage engine a real RegionServer would run;
// this module only needs enough of it to give the Split Transaction real
// store files to hand off as references rather than a stand-in list.
package regionstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/pebble"
)

// ErrNotFound mirrors pebble.ErrNotFound so callers outside this package
// never need to import pebble directly.
var ErrNotFound = errors.New("regionstore: key not found")

// Store wraps a single Pebble instance rooted at one region's directory.
type Store struct {
	db  *pebble.DB
	dir string
}

// Open opens (or creates) the Pebble instance backing dir.
func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("regionstore: open %s: %w", dir, err)
	}
	return &Store{db: db, dir: dir}, nil
}

// Put writes a key/value pair, durably.
func (s *Store) Put(key, value []byte) error {
	return s.db.Set(key, value, pebble.Sync)
}

// Get reads a key, returning ErrNotFound if it is absent.
func (s *Store) Get(key []byte) ([]byte, error) {
	value, closer, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	out := append([]byte(nil), value...)
	if err := closer.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

// Flush forces buffered writes to disk without closing the store.
func (s *Store) Flush() error {
	if err := s.db.Flush(); err != nil {
		return fmt.Errorf("regionstore: flush %s: %w", s.dir, err)
	}
	return nil
}

// Delete removes a key.
func (s *Store) Delete(key []byte) error {
	return s.db.Delete(key, pebble.Sync)
}

// Close flushes and closes the Pebble instance, then returns the on-disk
// paths of the SST files it left behind — the "store files" a region
// close hands off to a split or a compaction.
func (s *Store) Close() ([]string, error) {
	if err := s.db.Flush(); err != nil {
		return nil, fmt.Errorf("regionstore: flush %s: %w", s.dir, err)
	}
	if err := s.db.Close(); err != nil {
		return nil, fmt.Errorf("regionstore: close %s: %w", s.dir, err)
	}
	return sstFiles(s.dir)
}

func sstFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("regionstore: read dir %s: %w", dir, err)
	}
	files := []string{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sst") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	return files, nil
}
