package regionserver

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"time"

	"regioncore/internal/catalog"
	"regioncore/internal/split"
	"regioncore/pkg/region"
)

// splitCoordinator drives a split.Transaction end to end for one region,
// holding that region's write lock for the whole attempt the way the
// source requires.
type splitCoordinator struct {
	server *Server
	cat    *catalog.Catalog
}

// split picks a split row when none is supplied (the midpoint between
// the region's start and end keys, a stand-in for a real store's
// midkey scan) and runs prepare/execute/rollback.
func (c *splitCoordinator) split(ctx context.Context, info region.Info, splitRow []byte) error {
	handle, err := c.server.handleFor(info)
	if err != nil {
		return err
	}
	handle.Lock()
	defer handle.Unlock()

	if len(splitRow) == 0 {
		splitRow = midpoint(info.Range.Start, info.Range.End)
		if splitRow == nil {
			return fmt.Errorf("regionserver: cannot pick split row for unbounded region %s", info.EncodedName())
		}
	}

	tx, ok, err := split.Prepare(handle, c.server.online, splitRow, c.server.family, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("regionserver: prepare split of %s: %w", info.EncodedName(), err)
	}
	if !ok {
		return nil
	}

	opener := func(ctx context.Context, daughter region.Info) error {
		if _, err := c.server.handleFor(daughter); err != nil {
			return err
		}
		if err := c.cat.UpdateRegionLocation(daughter, c.server.self); err != nil {
			return err
		}
		return c.server.transitionTo(ctx, daughter.EncodedName(), region.StateOpened)
	}

	if c.cat == nil {
		return fmt.Errorf("regionserver: split coordinator has no catalog handle")
	}
	if err := tx.Execute(ctx, c.cat, opener); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			// Past PONR, or a rollback that itself failed: no safe
			// recovery remains, so abort the process.
			log.Fatalf("regionserver: split of %s failed (%v) and cannot be rolled back: %v", info.EncodedName(), err, rbErr)
		}
		return fmt.Errorf("regionserver: split of %s rolled back: %w", info.EncodedName(), err)
	}

	c.server.forgetHandle(info.EncodedName())
	return nil
}

// midpoint picks a byte string lexicographically between start and end,
// by incrementing the byte after their shared prefix; it returns nil if
// end is unbounded and start is empty, since no midpoint can be derived
// without real key distribution data.
func midpoint(start, end []byte) []byte {
	if len(end) == 0 {
		if len(start) == 0 {
			return nil
		}
		return append(append([]byte{}, start...), 0x80)
	}
	if bytes.Equal(start, end) {
		return nil
	}
	mid := append(append([]byte{}, start...), end...)
	return mid[:len(mid)/2+1]
}
