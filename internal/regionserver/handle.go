package regionserver

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"regioncore/internal/regionstore"
	"regioncore/pkg/region"
)

// regionInfoFile is the on-disk marker HBase itself calls .regioninfo: a
// small JSON descriptor written once per region directory so a restarted
// RegionServer can rediscover what it was hosting without asking the
// Master first.
const regionInfoFile = ".regioninfo"

// RegionHandle is one region hosted by this RegionServer: its descriptor,
// on-disk directory, and the write lock every mutating operation on it
// (close, split, compact) must hold for the duration. It satisfies
// split.ParentRegion.
type RegionHandle struct {
	mu sync.Mutex

	info    region.Info
	dataDir string
	store   *regionstore.Store

	closed  bool
	closing bool
}

// NewRegionHandle creates a handle rooted at dataDir/<table>/<encodedName>,
// creating the directory if this is a freshly assigned region rather than
// one recovered from disk.
func NewRegionHandle(dataDir string, info region.Info) (*RegionHandle, error) {
	dir := filepath.Join(dataDir, info.Table, info.EncodedName())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("regionserver: create region dir %s: %w", dir, err)
	}
	if err := writeRegionInfo(dir, info); err != nil {
		return nil, err
	}
	store, err := regionstore.Open(dir)
	if err != nil {
		return nil, err
	}
	return &RegionHandle{info: info, dataDir: dir, store: store}, nil
}

func writeRegionInfo(dir string, info region.Info) error {
	p := filepath.Join(dir, regionInfoFile)
	if _, err := os.Stat(p); err == nil {
		return nil
	}
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("regionserver: encode region info for %s: %w", dir, err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("regionserver: write region info for %s: %w", dir, err)
	}
	return nil
}

// DiscoverRegions walks dataDir for region directories left by a previous
// run and reads back their .regioninfo markers, so a restarted
// RegionServer can RejoinFromDisk without the Master telling it what it
// used to host.
func DiscoverRegions(dataDir string) ([]region.Info, error) {
	var out []region.Info
	tableEntries, err := os.ReadDir(dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("regionserver: read data dir %s: %w", dataDir, err)
	}
	for _, tableEntry := range tableEntries {
		if !tableEntry.IsDir() {
			continue
		}
		tableDir := filepath.Join(dataDir, tableEntry.Name())
		regionEntries, err := os.ReadDir(tableDir)
		if err != nil {
			continue
		}
		for _, regionEntry := range regionEntries {
			if !regionEntry.IsDir() {
				continue
			}
			data, err := os.ReadFile(filepath.Join(tableDir, regionEntry.Name(), regionInfoFile))
			if err != nil {
				continue
			}
			var info region.Info
			if err := json.Unmarshal(data, &info); err != nil {
				continue
			}
			out = append(out, info)
		}
	}
	return out, nil
}

func (h *RegionHandle) Info() region.Info { return h.info }
func (h *RegionHandle) RegionDir() string { return h.dataDir }

// Lock and Unlock expose the handle's write lock to callers (the RPC
// handler, the split transaction) that must serialize every mutating
// operation against a single region. Closed, Closing, SetClosing, Close,
// and Reopen all assume the caller already holds this lock, the same
// assumption Close and Reopen already made.
func (h *RegionHandle) Lock()   { h.mu.Lock() }
func (h *RegionHandle) Unlock() { h.mu.Unlock() }

func (h *RegionHandle) Closed() bool {
	return h.closed
}

func (h *RegionHandle) Closing() bool {
	return h.closing
}

// SetClosing marks the region as in the process of closing, blocking new
// split attempts from starting against it.
func (h *RegionHandle) SetClosing(v bool) {
	h.closing = v
}

// Put and Get expose the region's Pebble-backed store directly, for the
// data-plane operations this module otherwise only moves around as
// opaque store files.
func (h *RegionHandle) Put(key, value []byte) error { return h.store.Put(key, value) }
func (h *RegionHandle) Get(key []byte) ([]byte, error) { return h.store.Get(key) }

// Flush forces the region's store to durably persist its buffered writes
// without closing it, backing the FlushRegion RPC.
func (h *RegionHandle) Flush() error {
	return h.store.Flush()
}

// Close flushes and closes the region's Pebble store and marks the
// handle closed, returning the resulting SST files so a split can hand
// them off as daughter references via SplitStoreFiles.
func (h *RegionHandle) Close() ([]string, error) {
	h.closed = true
	h.closing = false
	files, err := h.store.Close()
	if err != nil {
		return nil, fmt.Errorf("regionserver: close store for %s: %w", h.dataDir, err)
	}
	return files, nil
}

// Reopen clears the closed flag and reopens the region's store after a
// rollback unwinds a completed close back to "still online".
func (h *RegionHandle) Reopen() error {
	store, err := regionstore.Open(h.dataDir)
	if err != nil {
		return fmt.Errorf("regionserver: reopen store for %s: %w", h.dataDir, err)
	}
	h.store = store
	h.closed = false
	return nil
}
