package split

import (
	"fmt"
	"os"
	"path/filepath"
)

// CleanupDetritus is run once, on initial deploy of a region, to clean
// up any mess left by a previous split attempt that didn't finish. It
// looks for a split staging directory under the region's own directory;
// if present, every encoded name still staged there names a daughter
// whose move-into-place never completed, so its half-built region
// directory is removed before the staging directory itself is deleted.
//
// This will not catch the case where daughter A was fully moved into
// place before the crash and daughter B's journal entry was never
// reached: daughter A's directory is by then a sibling of the parent's,
// outside the staging directory this scan inspects, and is left as an
// orphan. A full reconciliation scan across the table directory would be
// needed to catch that case; none is implemented here.
func CleanupDetritus(regionDir string) error {
	splitDir := filepath.Join(regionDir, splitSubdir)
	if _, err := os.Stat(splitDir); os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return fmt.Errorf("split: stat split dir: %w", err)
	}

	entries, err := os.ReadDir(splitDir)
	if err != nil {
		return fmt.Errorf("split: read split dir: %w", err)
	}
	tableDir := filepath.Dir(regionDir)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		daughterDir := filepath.Join(tableDir, entry.Name())
		if _, err := os.Stat(daughterDir); err == nil {
			if err := os.RemoveAll(daughterDir); err != nil {
				return fmt.Errorf("split: cleanup daughter dir %s: %w", entry.Name(), err)
			}
		}
	}
	return os.RemoveAll(splitDir)
}
