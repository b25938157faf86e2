package split

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"regioncore/internal/catalog"
	"regioncore/pkg/region"
)

const splitSubdir = "splits"
const splitLockFile = ".split.lock"

// ParentRegion is the RegionServer-side view of the region being split:
// enough to drive prepare/execute without this package depending on the
// full data-plane region implementation.
type ParentRegion interface {
	Info() region.Info
	RegionDir() string
	Closed() bool
	Closing() bool
	// Close flushes and closes the region locally, returning the paths of
	// its store files so they can be split into daughter references.
	Close() ([]string, error)
	// Reopen re-initializes the region after execute failed and rollback
	// is unwinding a completed close.
	Reopen() error
}

// OnlineRegions is the RegionServer's online-regions map, the structural
// collaborator a transaction adds to and removes from.
type OnlineRegions interface {
	Remove(encodedName string)
	Add(info region.Info)
}

// Opener opens a daughter region and runs its post-open deploy tasks
// (the catalog update announcing the daughter's live server), mirroring
// what a RegionServer would do for any newly assigned region.
type Opener func(ctx context.Context, info region.Info) error

// Transaction runs one region split: prepare() validates and computes
// daughter descriptors, Execute() carries the region across the point of
// no return, and Rollback() unwinds everything before it if Execute
// fails partway through.
type Transaction struct {
	parent   ParentRegion
	splitRow []byte
	family   string
	online   OnlineRegions

	journal  Journal
	splitDir string

	daughterA region.Info
	daughterB region.Info

	storeFiles []string

	fileLock *flock.Flock
}

// Prepare validates the split row and computes daughter descriptors. It
// returns false (with no error) for a split that should simply be
// skipped — parent already closed or closing — and an error for an
// invalid split row, matching the source's true/false-returning prepare
// but surfacing the invalid-row case distinctly so callers can log why.
func Prepare(parent ParentRegion, online OnlineRegions, splitRow []byte, family string, now int64) (*Transaction, bool, error) {
	if parent.Closed() || parent.Closing() {
		return nil, false, nil
	}
	info := parent.Info()
	if string(splitRow) == string(info.Range.Start) {
		return nil, false, fmt.Errorf("split: split row equals start key")
	}
	if !info.Range.Contains(splitRow) {
		return nil, false, fmt.Errorf("split: split row %q outside region range", splitRow)
	}

	daughterID := region.NewDaughterID(now, info.ID)
	a := region.Info{Table: info.Table, Range: region.KeyRange{Start: info.Range.Start, End: splitRow}, ID: daughterID}
	b := region.Info{Table: info.Table, Range: region.KeyRange{Start: splitRow, End: info.Range.End}, ID: daughterID}

	t := &Transaction{
		parent:    parent,
		splitRow:  splitRow,
		family:    family,
		online:    online,
		splitDir:  filepath.Join(parent.RegionDir(), splitSubdir),
		daughterA: a,
		daughterB: b,
	}
	return t, true, nil
}

// DaughterA and DaughterB expose the computed descriptors, mirroring the
// source's package-private accessors used by its own tests.
func (t *Transaction) DaughterA() region.Info { return t.daughterA }
func (t *Transaction) DaughterB() region.Info { return t.daughterB }

// Execute runs every step of the split and journals each one:
// CreateSplitDir, ClosedParent and OfflinedParent are appended once
// their step has succeeded, StartedRegionA, StartedRegionB and PONR just
// before their step runs, so a failure mid-step there still leaves the
// journal naming the right inverse. Execute assumes the caller already holds the
// parent's write lock and keeps holding it until Execute returns
// (success or failure) or, on failure, until Rollback has also
// returned — the write lock is the only thing that makes Execute safe to
// call at all.
func (t *Transaction) Execute(ctx context.Context, cat *catalog.Catalog, open Opener) error {
	t.fileLock = flock.New(filepath.Join(t.parent.RegionDir(), splitLockFile))
	held, err := t.fileLock.TryLock()
	if err != nil {
		return fmt.Errorf("split: acquire split lock: %w", err)
	}
	if !held {
		return fmt.Errorf("split: region %s already has a split in progress on this host", t.parent.Info().EncodedName())
	}
	defer t.fileLock.Unlock()

	if err := os.MkdirAll(t.splitDir, 0o755); err != nil {
		return fmt.Errorf("split: create split dir: %w", err)
	}
	t.journal.Append(CreateSplitDir)

	storeFiles, err := t.parent.Close()
	if err != nil {
		return fmt.Errorf("split: close parent: %w", err)
	}
	t.storeFiles = storeFiles
	t.journal.Append(ClosedParent)

	t.online.Remove(t.parent.Info().EncodedName())
	t.journal.Append(OfflinedParent)

	if err := SplitStoreFiles(t.splitDir, storeFiles, t.family, string(t.splitRow), t.daughterA.EncodedName(), t.daughterB.EncodedName()); err != nil {
		return fmt.Errorf("split: split store files: %w", err)
	}

	t.journal.Append(StartedRegionA)
	if err := t.materializeDaughter(t.daughterA); err != nil {
		return fmt.Errorf("split: materialize daughter A: %w", err)
	}

	t.journal.Append(StartedRegionB)
	if err := t.materializeDaughter(t.daughterB); err != nil {
		return fmt.Errorf("split: materialize daughter B: %w", err)
	}

	// Point of no return: journal PONR, then commit the catalog edit. A
	// failure here cannot be rolled back; the caller must abort the process.
	t.journal.Append(PONR)
	owner := region.ServerName{}
	if err := cat.OfflineParent(t.parent.Info(), t.daughterA, t.daughterB, owner); err != nil {
		return fmt.Errorf("split: PONR catalog edit failed, aborting process: %w", err)
	}

	if err := t.openDaughtersInParallel(ctx, open); err != nil {
		// Past PONR: cannot roll back. The caller must abort.
		return fmt.Errorf("split: open daughters after PONR: %w", err)
	}
	return nil
}

// materializeDaughter moves a daughter's reference files out of the split
// staging directory and into its final region directory, a sibling of
// the parent's own directory under the table directory. A region with no
// store files for the split family has no staged directory to move and
// gets an empty region directory instead.
func (t *Transaction) materializeDaughter(info region.Info) error {
	src := filepath.Join(t.splitDir, info.EncodedName())
	dst := filepath.Join(filepath.Dir(t.parent.RegionDir()), info.EncodedName())
	if _, err := os.Stat(src); os.IsNotExist(err) {
		return os.MkdirAll(dst, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.Rename(src, dst)
}

// openDaughtersInParallel opens both daughters concurrently and joins
// before returning, mirroring the source's two joined opener threads.
func (t *Transaction) openDaughtersInParallel(ctx context.Context, open Opener) error {
	var wg sync.WaitGroup
	errs := make([]error, 2)
	daughters := [2]region.Info{t.daughterA, t.daughterB}
	for i, d := range daughters {
		wg.Add(1)
		go func(i int, d region.Info) {
			defer wg.Done()
			if err := open(ctx, d); err != nil {
				errs[i] = err
				return
			}
			t.online.Add(d)
		}(i, d)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Rollback walks the journal in reverse, undoing every completed step.
// It must never be called once the journal has passed PONR.
func (t *Transaction) Rollback() error {
	if t.journal.PastPONR() {
		return fmt.Errorf("split: rollback called past point of no return")
	}
	return t.journal.Rollback(func(e Entry) Inverse {
		switch e {
		case StartedRegionB:
			return func() error { return removeDaughterDir(t.parent.RegionDir(), t.daughterB.EncodedName()) }
		case StartedRegionA:
			return func() error { return removeDaughterDir(t.parent.RegionDir(), t.daughterA.EncodedName()) }
		case OfflinedParent:
			return func() error { t.online.Add(t.parent.Info()); return nil }
		case ClosedParent:
			return t.parent.Reopen
		case CreateSplitDir:
			return func() error { return os.RemoveAll(t.splitDir) }
		default:
			return func() error { return fmt.Errorf("split: unhandled journal entry %s", e) }
		}
	})
}

func removeDaughterDir(parentDir, encodedName string) error {
	dir := filepath.Join(filepath.Dir(parentDir), encodedName)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}
	return os.RemoveAll(dir)
}
