package assignment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regioncore/internal/catalog"
	"regioncore/internal/dispatcher"
	"regioncore/pkg/coordstore"
	"regioncore/pkg/region"
)

// registerLiveServer creates the ephemeral /rs node a real RegionServer
// would create on startup, so liveServers and the balancer see it.
func registerLiveServer(t *testing.T, coord coordstore.Client, root string, server region.ServerName) {
	t.Helper()
	require.NoError(t, coord.Create(context.Background(), root+"/rs/"+server.String(), nil, true))
}

// TestFreshClusterBulkAssignSpreadsRegionsAcrossServers exercises the
// fresh-cluster bulk assign scenario: three live servers, nine user
// regions with no prior placement, after BulkAssign every region is
// online and spread roughly evenly across the three servers.
func TestFreshClusterBulkAssignSpreadsRegionsAcrossServers(t *testing.T) {
	mgr, rpc, coord := newTestManager(t)
	ctx := context.Background()

	servers := []region.ServerName{
		{Host: "rs1", Port: 9000, StartCode: 1},
		{Host: "rs2", Port: 9000, StartCode: 1},
		{Host: "rs3", Port: 9000, StartCode: 1},
	}
	for _, s := range servers {
		registerLiveServer(t, coord, "/regioncore", s)
	}

	for i := 0; i < 9; i++ {
		info := testInfo("t1", string(rune('a'+i)), string(rune('a'+i+1)), int64(1000+i))
		require.NoError(t, mgr.cat.UpdateRegionLocation(info, region.ServerName{}))
	}

	fresh, err := mgr.FreshStart(ctx)
	require.NoError(t, err)
	assert.True(t, fresh)

	require.NoError(t, mgr.BulkAssign(ctx, mgr.cat, servers))
	require.Len(t, rpc.opens, 9)

	for _, info := range mustRegions(t, mgr.cat) {
		mgr.reconcile(ctx, info.EncodedName())
	}

	counts := map[string]int{}
	total := 0
	for _, info := range mustRegions(t, mgr.cat) {
		loc, found, err := mgr.cat.LocationOf(info.EncodedName())
		require.NoError(t, err)
		require.True(t, found)
		require.False(t, loc.IsZero())
		counts[loc.Host]++
		total++
	}
	assert.Equal(t, 9, total)
	for _, s := range servers {
		assert.GreaterOrEqual(t, counts[s.Host], 1, "server %s should host at least one region", s.Host)
	}
}

func mustRegions(t *testing.T, cat *catalog.Catalog) []region.Info {
	t.Helper()
	regions, err := cat.GetAllUserRegions()
	require.NoError(t, err)
	return regions
}

// TestServerDownEndToEndReassignsEveryOwnedRegion exercises the "kill a
// server holding several regions" scenario through the dispatcher: every
// region the dead server owned ends up recorded in the catalog on the
// surviving server, and the dead server is left owning nothing.
func TestServerDownEndToEndReassignsEveryOwnedRegion(t *testing.T) {
	mgr, _, coord := newTestManager(t)

	dead := region.ServerName{Host: "dead", Port: 9000, StartCode: 1}
	survivor := region.ServerName{Host: "survivor", Port: 9000, StartCode: 1}
	registerLiveServer(t, coord, "/regioncore", survivor)

	var regions []region.Info
	for i := 0; i < 4; i++ {
		info := testInfo("t1", string(rune('a'+i)), string(rune('a'+i+1)), int64(2000+i))
		regions = append(regions, info)
		mgr.LearnRegion(info)
		mgr.store.AddServerRegion(dead, info.EncodedName())
		require.NoError(t, mgr.cat.UpdateRegionLocation(info, dead))
	}

	d := dispatcher.New(mgr, 64, 4)
	d.Start()
	defer d.Stop()

	d.Post(dispatcher.Event{Kind: dispatcher.ServerDown, Server: dead})

	// The dispatcher only runs handleServerDown, which issues the OPEN
	// RPC that drives each region's coord-store node to OPENED; a real
	// watch on /unassigned is what would turn that into a RegionChanged
	// event, so poll and re-post it here the way the watch-draining
	// goroutine would.
	require.Eventually(t, func() bool {
		for _, info := range regions {
			d.Post(dispatcher.Event{Kind: dispatcher.RegionChanged, RegionName: info.EncodedName()})
		}
		for _, info := range regions {
			loc, found, err := mgr.cat.LocationOf(info.EncodedName())
			if err != nil || !found || loc != survivor {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)

	assert.Empty(t, mgr.store.RegionsOnServer(dead))
}

// TestMasterFailoverDuringClosingCompletesTheMove exercises the
// "kill the Master during a balance move in CLOSING" scenario: a
// successor Manager built against the same coord-store observes the
// CLOSING node left behind, its timeout handler forces it to OFFLINE and
// re-assigns it, and the region ends up assigned at the planned
// destination.
func TestMasterFailoverDuringClosingCompletesTheMove(t *testing.T) {
	coord := coordstore.NewMemStore().Connect()
	cat, err := catalog.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = cat.Close() })

	root := "/regioncore"
	source := region.ServerName{Host: "src", Port: 9000, StartCode: 1}
	dest := region.ServerName{Host: "dst", Port: 9000, StartCode: 1}
	registerLiveServer(t, coord, root, dest)

	info := testInfo("t1", "a", "z", 3000)
	require.NoError(t, cat.UpdateRegionLocation(info, source))

	ctx := context.Background()
	require.NoError(t, coord.Create(ctx, root+"/unassigned/"+info.EncodedName(), encodeNode(region.StateClosing, source, time.Now().Add(-time.Hour)), false))

	newRPC := &fakeRPC{coord: coord, root: root}
	successor := New(coord, cat, newRPC, root, DefaultTimeouts())
	successor.LearnRegion(info)
	successor.store.SetPlan(region.Plan{RegionName: info.EncodedName(), Source: source, Destination: dest})

	require.NoError(t, successor.Failover(ctx))

	tr, inTransition := successor.store.Transition(info.EncodedName())
	require.True(t, inTransition)
	assert.Equal(t, region.StateClosing, tr.State)

	// Failover only just observed the node, so its bookkeeping timestamp
	// is fresh; backdate it to simulate the CLOSING state having already
	// sat past its timeout by the time the new Master takes over.
	successor.store.StartTransition(info.EncodedName(), region.StateClosing, source, time.Now().Add(-time.Hour))

	successor.scanTimeouts(ctx)
	successor.reconcile(ctx, info.EncodedName())

	loc, found, err := successor.cat.LocationOf(info.EncodedName())
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, dest, loc)
}
