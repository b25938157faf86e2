// Package catalog implements the logical operations against the two
// system tables that record committed region->server placement
// (-ROOT- and .META.). Physical encoding is a bbolt database, grounded
// in the teacher's bolt-backed metadata stores, but the operations
// below are the only surface the rest of this module is allowed to
// depend on — nothing outside this package touches the bucket layout.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	bolt "go.etcd.io/bbolt"

	"regioncore/pkg/region"
)

// RootTable and MetaTable name the two system tables. Root records the
// location of .META.'s regions; .META. records the location of every
// user region. Both are themselves regions assigned by the same
// Assignment Manager, bootstrapped in that order.
const (
	RootTable = "-ROOT-"
	MetaTable = ".META."
)

const bucketName = "catalog"

// row is the persisted shape of one catalog entry: a region and the
// server currently recorded as hosting it.
type row struct {
	Info   region.Info
	Server region.ServerName
}

// Catalog is the system-table Reader/Writer: the durable record of which
// server last had a region opened, consulted on Master startup and
// written to only after a region's open is confirmed.
type Catalog struct {
	mu       sync.Mutex
	db       *bolt.DB
	tempPath string
}

// Open opens (or creates) the catalog's backing bbolt file at path.
func Open(path string) (*Catalog, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("catalog: init bucket: %w", err)
	}
	return &Catalog{db: db}, nil
}

// OpenMemory opens a catalog backed by a throwaway bbolt file in the
// system temp directory, for tests that don't want to manage a path of
// their own. bbolt has no true in-memory mode; the file is removed on
// Close.
func OpenMemory() (*Catalog, error) {
	f, err := os.CreateTemp("", "catalog-*.bolt")
	if err != nil {
		return nil, fmt.Errorf("catalog: create temp file: %w", err)
	}
	path := f.Name()
	_ = f.Close()
	c, err := Open(path)
	if err != nil {
		_ = os.Remove(path)
		return nil, err
	}
	c.tempPath = path
	return c, nil
}

func (c *Catalog) Close() error {
	err := c.db.Close()
	if c.tempPath != "" {
		_ = os.Remove(c.tempPath)
	}
	return err
}

func rowKey(encodedName string) []byte {
	return []byte(encodedName)
}

// UpdateRegionLocation records that a region is now hosted at server. This
// is the only write the Assignment Manager issues on a region's steady-
// state path, performed strictly after OPENED is observed.
func (c *Catalog) UpdateRegionLocation(info region.Info, server region.ServerName) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		data, err := json.Marshal(row{Info: info, Server: server})
		if err != nil {
			return err
		}
		return b.Put(rowKey(info.EncodedName()), data)
	})
}

// GetRegionsOfTable returns every region recorded for table, in start-key
// order.
func (c *Catalog) GetRegionsOfTable(table string) ([]region.Info, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []region.Info
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		return b.ForEach(func(_, v []byte) error {
			var r row
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			if r.Info.Table == table {
				out = append(out, r.Info)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return string(out[i].Range.Start) < string(out[j].Range.Start) })
	return out, nil
}

// GetAllUserRegions returns every region not belonging to -ROOT- or .META..
func (c *Catalog) GetAllUserRegions() ([]region.Info, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []region.Info
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		return b.ForEach(func(_, v []byte) error {
			var r row
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			if r.Info.Table == RootTable || r.Info.Table == MetaTable {
				return nil
			}
			out = append(out, r.Info)
			return nil
		})
	})
	return out, err
}

// LocationOf returns the server currently recorded for a region, if known.
func (c *Catalog) LocationOf(encodedName string) (region.ServerName, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var r row
	var found bool
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		v := b.Get(rowKey(encodedName))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &r)
	})
	if err != nil {
		return region.ServerName{}, false, err
	}
	return r.Server, found, nil
}

// OfflineParent atomically marks the parent row offline+split and inserts
// rows for the two daughters — the catalog edit that is the split
// transaction's point of no return.
func (c *Catalog) OfflineParent(parent region.Info, daughterA, daughterB region.Info, server region.ServerName) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		parent.Offline = true
		parent.Split = true
		data, err := json.Marshal(row{Info: parent, Server: region.ServerName{}})
		if err != nil {
			return err
		}
		if err := b.Put(rowKey(parent.EncodedName()), data); err != nil {
			return err
		}
		for _, daughter := range []region.Info{daughterA, daughterB} {
			data, err := json.Marshal(row{Info: daughter, Server: server})
			if err != nil {
				return err
			}
			if err := b.Put(rowKey(daughter.EncodedName()), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteRegion removes a region's catalog row entirely (used when a table
// is deleted; not exercised by split/assign paths).
func (c *Catalog) DeleteRegion(encodedName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Delete(rowKey(encodedName))
	})
}
