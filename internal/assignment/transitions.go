package assignment

import (
	"context"
	"time"

	"regioncore/pkg/coordstore"
	"regioncore/pkg/region"
)

// reconcile is invoked once per coord-store event for a region's
// unassigned node. It re-reads current state from the coord-store rather
// than trusting the event payload, satisfying the rule that cached reads
// must never be used past a watch firing.
func (m *Manager) reconcile(ctx context.Context, encodedName string) {
	p := m.unassignedPath(encodedName)
	node, err := m.coord.Get(ctx, p)
	if err == coordstore.ErrNotFound {
		m.onNodeDeleted(ctx, encodedName)
		return
	}
	if err != nil {
		return
	}
	state, owner, _, err := decodeNode(node.Data)
	if err != nil {
		return
	}
	now := time.Now()
	if _, ok := m.store.Transition(encodedName); !ok {
		m.store.StartTransition(encodedName, state, owner, now)
	} else {
		m.store.UpdateTransition(encodedName, state, owner, now)
	}

	switch state {
	case region.StateOpening:
		// Observed, no action: a RegionServer has won the OFFLINE->OPENING
		// CAS and is taking ownership.
	case region.StateOpened:
		m.onOpened(ctx, encodedName, owner, node.Version)
	case region.StateClosing:
		// Observed, no action.
	case region.StateClosed:
		m.onClosed(ctx, encodedName)
	}
}

// onOpened commits the catalog update, deletes the now-steady-state node,
// and moves the region from in-transition to the server's believed
// contents — strictly in that order, so a crash between catalog commit
// and node deletion is recoverable (failover just re-observes OPENED).
func (m *Manager) onOpened(ctx context.Context, encodedName string, owner region.ServerName, version int64) {
	info, ok := m.regions[encodedName]
	if !ok {
		return
	}
	if err := m.cat.UpdateRegionLocation(info, owner); err != nil {
		return
	}
	if err := m.coord.Delete(ctx, m.unassignedPath(encodedName), version); err != nil && err != coordstore.ErrNotFound {
		return
	}
	m.store.EndTransition(encodedName)
	m.store.ClearPlan(encodedName)
	m.store.AddServerRegion(owner, encodedName)
}

// onClosed looks up the recorded plan: a disabled-table unassign deletes
// the node and stops, otherwise the region transitions to OFFLINE at its
// planned destination and proceeds through the normal assign path.
func (m *Manager) onClosed(ctx context.Context, encodedName string) {
	plan, ok := m.store.Plan(encodedName)
	if !ok {
		return
	}

	if plan.Disabled() {
		node, err := m.coord.Get(ctx, m.unassignedPath(encodedName))
		if err == nil {
			_ = m.coord.Delete(ctx, m.unassignedPath(encodedName), node.Version)
		}
		m.store.EndTransition(encodedName)
		m.store.ClearPlan(encodedName)
		if !plan.Source.IsZero() {
			m.store.RemoveServerRegion(plan.Source, encodedName)
		}
		return
	}

	info, ok := m.regions[encodedName]
	if !ok {
		return
	}
	if !plan.Source.IsZero() {
		m.store.RemoveServerRegion(plan.Source, encodedName)
	}
	_ = m.Assign(ctx, info, plan.Destination)
}

// onNodeDeleted handles the case where a region's coord-store node
// disappears without this Manager having deleted it itself (e.g. a
// concurrent force-to-OFFLINE raced ahead, or reconciliation is replaying
// a stale watch). It only ends any in-transition record still held for
// the region: absence of a node is the steady state, and whichever path
// actually drove the deletion already updated the rest of the in-memory
// store.
func (m *Manager) onNodeDeleted(_ context.Context, encodedName string) {
	if _, ok := m.store.Transition(encodedName); ok {
		m.store.EndTransition(encodedName)
	}
}
