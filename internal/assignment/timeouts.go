package assignment

import (
	"context"
	"log"
	"time"
)

// scanTimeouts is invoked on each TimeoutTick: every in-transition region
// whose deadline (lastUpdateTimestamp + the timeout for its current
// state) has passed is forced back to OFFLINE and re-planned, regardless
// of what the owning RegionServer eventually does with its now-orphaned
// local state — the coord-store CAS protects against the straggler
// winning a race against the new attempt.
func (m *Manager) scanTimeouts(ctx context.Context) {
	expired := m.store.Expired(time.Now(), m.timeouts.forState)
	for _, t := range expired {
		log.Printf("assignment: %s timed out in %s, forcing reassignment", t.RegionName, t.State)
		m.forceReassign(ctx, t.RegionName)
	}
}
