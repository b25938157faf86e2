// Package split implements a RegionServer's autonomous split protocol:
// an append-only journal recording how far a split has progressed, a
// pure inverse-step function used to roll back any failure before the
// point of no return, and the forward execute path that carries a
// region across it. Exception propagation alone cannot express
// "partially rolled back to here" — the journal is what lets rollback
// resume from exactly where execute stopped.
package split

// Entry is one step of a split transaction's journal. The entries for
// creating the split directory, closing and offlining the parent are
// appended once their step has succeeded; the entries for the two
// daughters and PONR are appended just before their step runs, so a
// failure mid-step still leaves the journal naming the right inverse.
type Entry int

const (
	CreateSplitDir Entry = iota
	ClosedParent
	OfflinedParent
	StartedRegionA
	StartedRegionB
	// PONR marks the point of no return: the catalog edit that commits
	// the split. Once appended, rollback is no longer attempted — any
	// later failure aborts the process instead.
	PONR
)

func (e Entry) String() string {
	switch e {
	case CreateSplitDir:
		return "CREATE_SPLIT_DIR"
	case ClosedParent:
		return "CLOSED_PARENT"
	case OfflinedParent:
		return "OFFLINED_PARENT"
	case StartedRegionA:
		return "STARTED_REGION_A"
	case StartedRegionB:
		return "STARTED_REGION_B"
	case PONR:
		return "PONR"
	default:
		return "UNKNOWN"
	}
}

// Journal is the append-only sequence of steps a split transaction has
// reached so far.
type Journal struct {
	entries []Entry
}

// Append adds entry to the end of the journal.
func (j *Journal) Append(entry Entry) {
	j.entries = append(j.entries, entry)
}

// Entries returns a copy of the recorded sequence, in order.
func (j *Journal) Entries() []Entry {
	return append([]Entry(nil), j.entries...)
}

// PastPONR reports whether PONR has already been appended: past this
// point, Rollback must never be called.
func (j *Journal) PastPONR() bool {
	for _, e := range j.entries {
		if e == PONR {
			return true
		}
	}
	return false
}

// Inverse is the rollback action for one journal entry. Inverses run in
// reverse journal order; each must be safe to run even if its forward
// step only partially completed (e.g. a directory that was never
// created should delete as a no-op, not error).
type Inverse func() error

// Rollback walks the journal in reverse, invoking inverseOf for every
// entry at or before PONR (there must be none at or after it — callers
// are required to check PastPONR first) and returns the first error
// encountered, having still attempted every step up to that point. A
// rollback that itself fails leaves the caller no safe recovery but to
// abort the process, matching the forward transaction's own contract.
func (j *Journal) Rollback(inverseOf func(Entry) Inverse) error {
	for i := len(j.entries) - 1; i >= 0; i-- {
		entry := j.entries[i]
		if entry == PONR {
			continue
		}
		if err := inverseOf(entry)(); err != nil {
			return err
		}
	}
	return nil
}
