package split

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// HalfTag distinguishes which half of a parent store file a reference
// points at, relative to the split row.
type HalfTag string

const (
	Bottom HalfTag = "bottom"
	Top    HalfTag = "top"
)

// Reference is the small metadata file created for each parent store
// file instead of copying data: it names the parent file and the half
// a daughter should read from it. Future reads against the daughter
// filter the parent file's rows by this tag until a compaction
// rewrites the data properly.
type Reference struct {
	ParentFile string  `json:"parentFile"`
	SplitRow   string  `json:"splitRow"`
	Half       HalfTag `json:"half"`
}

// writeReference persists a Reference as the named file under dir.
func writeReference(dir, name string, ref Reference) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("split: create store dir %s: %w", dir, err)
	}
	data, err := json.Marshal(ref)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, name), data, 0o644)
}

// SplitStoreFiles creates, for each of the parent's store files, one
// bottom-half reference under daughter A's store directory and one
// top-half reference under daughter B's, inside splitDir. No store data
// is copied; the references are resolved lazily by readers.
func SplitStoreFiles(splitDir string, storeFiles []string, family string, splitRow string, encodedA, encodedB string) error {
	if storeFiles == nil {
		return fmt.Errorf("split: close returned no store files")
	}
	for _, sf := range storeFiles {
		base := filepath.Base(sf)
		aDir := filepath.Join(splitDir, encodedA, family)
		if err := writeReference(aDir, base+".bottom", Reference{ParentFile: sf, SplitRow: splitRow, Half: Bottom}); err != nil {
			return err
		}
		bDir := filepath.Join(splitDir, encodedB, family)
		if err := writeReference(bDir, base+".top", Reference{ParentFile: sf, SplitRow: splitRow, Half: Top}); err != nil {
			return err
		}
	}
	return nil
}

// CountReferences returns how many reference files exist under a
// daughter's split-staging directory for family, used by tests to
// confirm the expected number of references were written.
func CountReferences(splitDir, encodedName, family string) (int, error) {
	dir := filepath.Join(splitDir, encodedName, family)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}
