package assignment

import (
	"context"
	"log"
	"time"

	"regioncore/pkg/coordstore"
	"regioncore/pkg/region"
)

// handleServerDown implements the RegionServer-failure table: every
// region last known assigned to the dead server, and every region in
// transition naming it as source or destination, is forced back to
// OFFLINE (or left for the timeout handler) according to its observed
// state, then re-planned.
func (m *Manager) handleServerDown(ctx context.Context, dead region.ServerName) {
	owned := m.store.RemoveServer(dead)
	for _, name := range owned {
		m.forceReassign(ctx, name)
	}

	for _, t := range m.store.AllTransitions() {
		plan, hasPlan := m.store.Plan(t.RegionName)
		isSource := hasPlan && !plan.Source.IsZero() && plan.Source == dead
		isDest := hasPlan && plan.Destination == dead
		if !isSource && !isDest {
			continue
		}
		if isDest {
			// The plan names the dead server as destination; drop it so
			// forceReassign picks a live server instead.
			m.store.ClearPlan(t.RegionName)
		}
		switch t.State {
		case region.StateOffline:
			m.forceReassign(ctx, t.RegionName)
		case region.StateClosing:
			// Either role dying mid-close means the close can never reach
			// CLOSED on its own: force OFFLINE and re-plan now rather than
			// waiting on the timeout handler.
			m.forceReassign(ctx, t.RegionName)
		case region.StateClosed:
			if isDest {
				m.forceReassign(ctx, t.RegionName)
			}
			// source: no-op, the normal CLOSED handler proceeds.
		case region.StateOpening, region.StateOpened:
			if isDest {
				m.forceReassign(ctx, t.RegionName)
			}
			// source: no-op.
		}
	}
}

// forceReassign forces a region's node to OFFLINE regardless of its prior
// state — the Master's unilateral authority — by re-invoking Assign
// against the destination recorded in its plan or, when no plan or
// destination is known, against the live server at index
// regionId mod len(live). With no live server it does nothing.
func (m *Manager) forceReassign(ctx context.Context, encodedName string) {
	info, ok := m.regions[encodedName]
	if !ok {
		return
	}
	plan, hasPlan := m.store.Plan(encodedName)
	dest := plan.Destination
	if !hasPlan || dest.IsZero() {
		live := m.liveServers(ctx)
		if len(live) == 0 {
			return
		}
		dest = live[int(info.ID)%len(live)]
	}
	if err := m.Assign(ctx, info, dest); err != nil {
		log.Printf("assignment: force-reassign %s failed: %v", encodedName, err)
	}
}

// liveServers lists the ephemeral RegionServer nodes currently registered
// under /rs.
func (m *Manager) liveServers(ctx context.Context) []region.ServerName {
	names, err := m.coord.List(ctx, m.root+"/rs")
	if err != nil {
		return nil
	}
	out := make([]region.ServerName, 0, len(names))
	for _, n := range names {
		s, err := region.ParseServerName(n)
		if err != nil {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Failover is run once by a newly active Master, before it enables
// ordinary event handling: it reads every child of /unassigned and acts
// according to the Master-failover table, then returns so the caller can
// start the Event Dispatcher.
func (m *Manager) Failover(ctx context.Context) error {
	names, err := m.coord.List(ctx, m.root+"/unassigned")
	if err != nil {
		return err
	}
	for _, name := range names {
		node, err := m.coord.Get(ctx, m.unassignedPath(name))
		if err == coordstore.ErrNotFound {
			continue
		}
		if err != nil {
			return err
		}
		state, owner, _, err := decodeNode(node.Data)
		if err != nil {
			continue
		}
		m.store.StartTransition(name, state, owner, time.Now())

		switch state {
		case region.StateOffline:
			m.forceReassign(ctx, name)
		case region.StateClosing, region.StateOpening:
			// Let the timeout handler finish; nothing to do now.
		case region.StateClosed:
			m.forceReassign(ctx, name)
		case region.StateOpened:
			if info, ok := m.regions[name]; ok {
				if loc, found, err := m.lookupCatalogLocation(info); err == nil && (!found || loc != owner) {
					_ = m.cat.UpdateRegionLocation(info, owner)
				}
			}
			if err := m.coord.Delete(ctx, m.unassignedPath(name), node.Version); err == nil || err == coordstore.ErrNotFound {
				m.store.EndTransition(name)
				m.store.AddServerRegion(owner, name)
			}
		}
	}
	return nil
}

func (m *Manager) lookupCatalogLocation(info region.Info) (region.ServerName, bool, error) {
	return m.cat.LocationOf(info.EncodedName())
}
