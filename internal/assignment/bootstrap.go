package assignment

import (
	"context"
	"fmt"
	"time"

	"regioncore/internal/balancer"
	"regioncore/internal/catalog"
	"regioncore/pkg/region"
)

// FreshStart reports whether this Master treats the cluster as never
// assigned before. It returns true exactly when /unassigned has no
// children. It does not look at registered RegionServers, so a cluster
// whose RegionServers kept their regions open through a Master outage,
// with no transition in flight, is also reported as a fresh start.
func (m *Manager) FreshStart(ctx context.Context) (bool, error) {
	unassigned, err := m.coord.List(ctx, m.root+"/unassigned")
	if err != nil {
		return false, fmt.Errorf("assignment: list unassigned: %w", err)
	}
	return len(unassigned) == 0, nil
}

// WaitForServers blocks until minServers RegionServers have registered,
// or timeout has elapsed since the first one appeared (whichever comes
// first), so bootstrap does not wait forever for a cluster that will
// never reach the configured minimum.
func (m *Manager) WaitForServers(ctx context.Context, minServers int, timeout time.Duration) ([]region.ServerName, error) {
	var firstSeen time.Time
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		live := m.liveServers(ctx)
		if len(live) >= minServers {
			return live, nil
		}
		if len(live) > 0 && firstSeen.IsZero() {
			firstSeen = time.Now()
		}
		if !firstSeen.IsZero() && time.Since(firstSeen) > timeout {
			return live, nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return live, ctx.Err()
		}
	}
}

// ClearUnassigned deletes every child of /unassigned. Only permitted at
// fresh start: any other caller would be discarding in-flight
// transitions other RegionServers are actively racing to complete.
func (m *Manager) ClearUnassigned(ctx context.Context) error {
	names, err := m.coord.List(ctx, m.root+"/unassigned")
	if err != nil {
		return err
	}
	for _, name := range names {
		node, err := m.coord.Get(ctx, m.unassignedPath(name))
		if err != nil {
			continue
		}
		_ = m.coord.Delete(ctx, m.unassignedPath(name), node.Version)
	}
	return nil
}

// BootstrapSystemTables assigns -ROOT- and .META. to two randomly chosen
// live servers (the same server twice if only one is live) and waits for
// each to reach OPENED before returning, per the two-server random
// choice bootstrap rule.
func (m *Manager) BootstrapSystemTables(ctx context.Context, rootInfo, metaInfo region.Info, live []region.ServerName) error {
	rootDest, metaDest, err := m.chooseTwoServers(live)
	if err != nil {
		return err
	}
	if err := m.Assign(ctx, rootInfo, rootDest); err != nil {
		return fmt.Errorf("assignment: bootstrap -ROOT-: %w", err)
	}
	if err := m.awaitOpened(ctx, rootInfo.EncodedName(), 30*time.Second); err != nil {
		return fmt.Errorf("assignment: -ROOT- never opened: %w", err)
	}
	if err := m.Assign(ctx, metaInfo, metaDest); err != nil {
		return fmt.Errorf("assignment: bootstrap .META.: %w", err)
	}
	if err := m.awaitOpened(ctx, metaInfo.EncodedName(), 30*time.Second); err != nil {
		return fmt.Errorf("assignment: .META. never opened: %w", err)
	}
	return nil
}

// awaitOpened polls the plan store until a region leaves in-transition
// (the sign that onOpened has already run) or the deadline passes. It is
// used only during the synchronous bootstrap path, which runs before the
// Event Dispatcher is handling a live event stream, so polling rather
// than a dispatcher callback is appropriate here.
func (m *Manager) awaitOpened(ctx context.Context, encodedName string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if _, inTransition := m.store.Transition(encodedName); !inTransition {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("assignment: %s did not reach OPENED within %s", encodedName, timeout)
		}
		select {
		case <-ticker.C:
			m.reconcile(ctx, encodedName)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// BulkAssign computes a full balancer plan over every user region against
// the live server set and assigns each according to the plan, per the
// cluster-start bulk-plan step. cat supplies the current catalog so
// previously-placed regions bias the balancer's starting point instead of
// every region appearing unplaced.
func (m *Manager) BulkAssign(ctx context.Context, cat *catalog.Catalog, live []region.ServerName) error {
	regions, err := cat.GetAllUserRegions()
	if err != nil {
		return fmt.Errorf("assignment: bulk assign: list regions: %w", err)
	}
	for _, info := range regions {
		m.LearnRegion(info)
	}

	byServer := make(map[region.ServerName][]string, len(live))
	for _, s := range live {
		byServer[s] = nil
	}
	for _, info := range regions {
		name := info.EncodedName()
		if owner, found, _ := cat.LocationOf(name); found && !owner.IsZero() {
			byServer[owner] = append(byServer[owner], name)
		}
	}

	placed := make(map[string]bool)
	for _, names := range byServer {
		for _, n := range names {
			placed[n] = true
		}
	}

	unplaced := make([]region.Info, 0)
	for _, info := range regions {
		if !placed[info.EncodedName()] {
			unplaced = append(unplaced, info)
		}
	}
	for i, info := range unplaced {
		dest := live[i%len(live)]
		byServer[dest] = append(byServer[dest], info.EncodedName())
	}

	moves := balancer.Balance(live, byServer, nil)
	assignedAt := make(map[string]region.ServerName, len(regions))
	for s, names := range byServer {
		for _, n := range names {
			assignedAt[n] = s
		}
	}
	for _, mv := range moves {
		assignedAt[mv.RegionName] = mv.Destination
	}

	for _, info := range regions {
		dest, ok := assignedAt[info.EncodedName()]
		if !ok {
			continue
		}
		if err := m.Assign(ctx, info, dest); err != nil {
			return fmt.Errorf("assignment: bulk assign %s: %w", info.EncodedName(), err)
		}
	}
	return nil
}
