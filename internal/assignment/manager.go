// Package assignment implements the region-transition state machine: the
// Master-side logic that drives regions through OFFLINE -> OPENING ->
// OPENED and CLOSING -> CLOSED by watching coord-store nodes, issuing
// RPCs to RegionServers, and committing catalog updates once a region's
// open is confirmed. It is the single façade through which the Event
// Dispatcher mutates the Master's in-memory assignment state; nothing
// else in this module is permitted to touch the plan store directly.
package assignment

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"path"
	"time"

	"regioncore/internal/balancer"
	"regioncore/internal/catalog"
	"regioncore/internal/dispatcher"
	"regioncore/internal/planstore"
	"regioncore/pkg/coordstore"
	"regioncore/pkg/region"
)

// RPCClient is the Master's view of a RegionServer: the logical RPCs
// listed for the Master<->RegionServer interface. Both calls must be
// idempotent on the RegionServer side; the Master relies on that to
// safely retry after a timeout without first confirming the prior
// attempt was lost rather than merely slow.
type RPCClient interface {
	OpenRegion(ctx context.Context, server region.ServerName, info region.Info) error
	CloseRegion(ctx context.Context, server region.ServerName, info region.Info) error
}

// Timeouts holds the configurable per-state transition deadlines.
type Timeouts struct {
	Opening time.Duration
	Closing time.Duration
	Offline time.Duration
}

// DefaultTimeouts matches the reference policy: OPENING/CLOSING around
// 30s, OFFLINE around 10s.
func DefaultTimeouts() Timeouts {
	return Timeouts{Opening: 30 * time.Second, Closing: 30 * time.Second, Offline: 10 * time.Second}
}

func (t Timeouts) forState(s region.State) time.Duration {
	switch s {
	case region.StateOpening:
		return t.Opening
	case region.StateClosing:
		return t.Closing
	default:
		return t.Offline
	}
}

// Manager is the AssignmentManager: process-wide mutable assignment
// state. cmd/master constructs one at startup; nothing in this module
// creates or watches the /master node, so the Manager's lifetime is the
// process's, not tied to holding the active-Master role. The Event
// Dispatcher drives it through Handle; bootstrap, failover and the
// admin client call its other methods directly.
type Manager struct {
	coord    coordstore.Client
	cat      *catalog.Catalog
	store    *planstore.Store
	rpc      RPCClient
	root     string
	timeouts Timeouts

	tables  map[string]region.TableState
	regions map[string]region.Info // encodedName -> Info, populated as regions are learned

	rng *rand.Rand
}

// LearnRegion records a region's descriptor so later operations that only
// carry an encoded name (balancer moves, failover re-plans) can resolve
// the full region.Info needed for an RPC. Called by catalog bootstrap and
// by every Assign.
func (m *Manager) LearnRegion(info region.Info) {
	m.regions[info.EncodedName()] = info
}

// New constructs a Manager. root is the coord-store path prefix under
// which /rs, /unassigned, /table and /master live.
func New(coord coordstore.Client, cat *catalog.Catalog, rpc RPCClient, root string, timeouts Timeouts) *Manager {
	return &Manager{
		coord:    coord,
		cat:      cat,
		store:    planstore.New(),
		rpc:      rpc,
		root:     root,
		timeouts: timeouts,
		tables:   make(map[string]region.TableState),
		regions:  make(map[string]region.Info),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (m *Manager) unassignedPath(encodedName string) string {
	return path.Join(m.root, "unassigned", encodedName)
}

func (m *Manager) serverPath(server region.ServerName) string {
	return path.Join(m.root, "rs", server.String())
}

func (m *Manager) tablePath(table string) string {
	return path.Join(m.root, "table", table)
}

// Handle is the Event Dispatcher's single entry point into assignment
// state. It is never called concurrently for the same region name, so
// every method it calls may assume exclusive access to that region's
// transition record.
func (m *Manager) Handle(ctx context.Context, ev dispatcher.Event) {
	switch ev.Kind {
	case dispatcher.RegionChanged:
		m.reconcile(ctx, ev.RegionName)
	case dispatcher.ServerDown:
		m.handleServerDown(ctx, ev.Server)
	case dispatcher.BalanceTick:
		m.runBalancer(ctx)
	case dispatcher.TimeoutTick:
		m.scanTimeouts(ctx)
	}
}

// Assign drives a region toward destination: force-write its coord-store
// node to OFFLINE, record the plan, and issue an OPEN RPC. This is the
// steady-state assign path; initial bulk assignment at cluster start
// calls it once per plan entry after computing a full balancer pass.
func (m *Manager) Assign(ctx context.Context, info region.Info, destination region.ServerName) error {
	name := info.EncodedName()
	now := time.Now()

	payload := encodeNode(region.StateOffline, destination, now)
	p := m.unassignedPath(name)
	if err := m.coord.SetData(ctx, p, payload, coordstore.ForceCAS); err != nil {
		if err == coordstore.ErrNotFound {
			if err := m.coord.Create(ctx, p, payload, false); err != nil {
				return fmt.Errorf("assignment: create offline node for %s: %w", name, err)
			}
		} else {
			return fmt.Errorf("assignment: force offline for %s: %w", name, err)
		}
	}

	m.store.StartTransition(name, region.StateOffline, destination, now)
	m.store.SetPlan(region.Plan{RegionName: name, Destination: destination})
	m.LearnRegion(info)

	if err := m.rpc.OpenRegion(ctx, destination, info); err != nil {
		log.Printf("assignment: open RPC to %s for %s failed, will re-plan on timeout: %v", destination, name, err)
	}
	return nil
}

// Unassign relocates or drops a region, triggered by a balance move or a
// table disable. destination's zero value encodes "do not reopen".
func (m *Manager) Unassign(ctx context.Context, info region.Info, source, destination region.ServerName) error {
	name := info.EncodedName()
	m.store.SetPlan(region.Plan{RegionName: name, Source: source, Destination: destination})
	if err := m.rpc.CloseRegion(ctx, source, info); err != nil {
		return fmt.Errorf("assignment: close RPC to %s for %s: %w", source, name, err)
	}
	return nil
}

// runBalancer invokes the pure balancer over the RegionServers registered
// under /rs and the Master's current belief of their contents, and turns
// the proposed moves into Unassign calls. It acts inline: for a
// BalanceTick it runs on the dispatcher's own loop, and RunBalancerNow
// calls it directly.
func (m *Manager) runBalancer(ctx context.Context) {
	snapshot := m.store.ServerRegionsSnapshot()
	live := m.liveServers(ctx)
	moves := balancer.Balance(live, snapshot, nil)
	for _, mv := range moves {
		info, ok := m.regions[mv.RegionName]
		if !ok {
			log.Printf("assignment: balance move for unknown region %s skipped", mv.RegionName)
			continue
		}
		if err := m.Unassign(ctx, info, mv.Source, mv.Destination); err != nil {
			log.Printf("assignment: balance move for %s failed: %v", mv.RegionName, err)
		}
	}
}

// Diagnostics is a point-in-time summary of the Manager's in-memory
// state, consumed by the metrics package's periodic Observe call.
type Diagnostics struct {
	RegionsInTransition int
	RegionsOnline       int
	LiveServers         int
	TablesEnabling      int
	TablesDisabling     int
}

// Snapshot computes a fresh Diagnostics. It is cheap enough to call on
// every metrics tick: everything it reads is already held in memory.
func (m *Manager) Snapshot() Diagnostics {
	snapshot := m.store.ServerRegionsSnapshot()
	online := 0
	for _, names := range snapshot {
		online += len(names)
	}
	enabling, disabling := 0, 0
	for _, s := range m.tables {
		switch s {
		case region.TableEnabling:
			enabling++
		case region.TableDisabling:
			disabling++
		}
	}
	return Diagnostics{
		RegionsInTransition: len(m.store.AllTransitions()),
		RegionsOnline:       online,
		LiveServers:         len(snapshot),
		TablesEnabling:      enabling,
		TablesDisabling:     disabling,
	}
}

// CatalogLocationOf exposes the catalog's current belief about a
// region's server, for admin commands that need to know a region's
// source before issuing a move.
func (m *Manager) CatalogLocationOf(encodedName string) (region.ServerName, bool, error) {
	return m.cat.LocationOf(encodedName)
}

// RunBalancerNow triggers an immediate balancer pass, for an operator
// command that shouldn't wait for the next scheduled BalanceTick.
func (m *Manager) RunBalancerNow(ctx context.Context) {
	m.runBalancer(ctx)
}

// chooseTwoServers picks distinct random servers for the initial
// root/meta assignment, per the two-server random choice bootstrap rule.
func (m *Manager) chooseTwoServers(live []region.ServerName) (region.ServerName, region.ServerName, error) {
	if len(live) == 0 {
		return region.ServerName{}, region.ServerName{}, fmt.Errorf("assignment: no live servers for bootstrap")
	}
	if len(live) == 1 {
		return live[0], live[0], nil
	}
	i := m.rng.Intn(len(live))
	j := m.rng.Intn(len(live) - 1)
	if j >= i {
		j++
	}
	return live[i], live[j], nil
}
