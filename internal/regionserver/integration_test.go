package regionserver

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regioncore/internal/catalog"
	"regioncore/internal/rpcapi"
	"regioncore/internal/split"
	"regioncore/pkg/coordstore"
	"regioncore/pkg/region"
)

// TestCrashDuringSplitRecoversAndRetrySucceeds exercises crashing a
// RegionServer after STARTED_REGION_A has been journaled but before
// STARTED_REGION_B: daughter A has already been moved into its final
// sibling directory and daughter B is still staged under the split
// directory when the process is killed. On restart, the split-detritus
// reaper deletes the split staging directory, the parent reopens with
// its original store intact, and a subsequent split of the same parent
// succeeds.
func TestCrashDuringSplitRecoversAndRetrySucceeds(t *testing.T) {
	coord := coordstore.NewMemStore().Connect()
	cat, err := catalog.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = cat.Close() })

	dataDir := t.TempDir()
	self := region.ServerName{Host: "rs1", Port: 9000, StartCode: 1}
	parent := region.Info{Table: "t1", Range: region.KeyRange{Start: []byte("a"), End: []byte("z")}, ID: 1}

	handle, err := NewRegionHandle(dataDir, parent)
	require.NoError(t, err)

	online := NewOnlineRegions()
	online.Add(parent)
	tx, ok, err := split.Prepare(handle, online, []byte("m"), "cf", time.Now().UnixMilli())
	require.NoError(t, err)
	require.True(t, ok)

	// Simulate ClosedParent + OfflinedParent + SplitStoreFiles +
	// StartedRegionA + materializeDaughter(A) having already happened,
	// then the process dying before StartedRegionB.
	_, err = handle.Close()
	require.NoError(t, err)

	splitDir := filepath.Join(handle.RegionDir(), "splits")
	require.NoError(t, os.MkdirAll(filepath.Join(splitDir, tx.DaughterB().EncodedName()), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(splitDir, tx.DaughterB().EncodedName(), "ref"), []byte("x"), 0o644))

	daughterADir := filepath.Join(filepath.Dir(handle.RegionDir()), tx.DaughterA().EncodedName())
	require.NoError(t, os.MkdirAll(daughterADir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(daughterADir, "ref"), []byte("x"), 0o644))

	// Restart: a fresh Server discovers the parent from its .regioninfo
	// marker and rejoins it.
	discovered, err := DiscoverRegions(dataDir)
	require.NoError(t, err)
	require.Len(t, discovered, 1)

	s2 := NewServer(self, coord, cat, "/hbase", dataDir, "cf")
	s2.RejoinFromDisk(discovered)

	_, err = os.Stat(splitDir)
	assert.True(t, os.IsNotExist(err), "split staging directory should be cleaned up on rejoin")

	_, onlineAfterRejoin := s2.online.Get(parent.EncodedName())
	assert.True(t, onlineAfterRejoin, "parent should be rejoined online")

	// A subsequent split of the same parent succeeds.
	ctx := context.Background()
	_, err = s2.SplitRegion(ctx, &rpcapi.SplitRegionRequest{
		Table: parent.Table, StartKey: parent.Range.Start, EndKey: parent.Range.End,
		RegionID: int64(parent.ID), SplitRow: []byte("m"),
	})
	require.NoError(t, err)

	_, stillOnline := s2.online.Get(parent.EncodedName())
	assert.False(t, stillOnline)
	assert.Equal(t, 2, s2.online.Count())
}

// TestDuplicateOpenRegionRPCRaceHasExactlyOneWinner exercises two
// RegionServers both receiving an openRegion RPC for the same region
// because of a retry: racing the OFFLINE -> OPENING CAS on the shared
// coord-store node, exactly one wins and the other observes a version
// conflict and aborts its open.
func TestDuplicateOpenRegionRPCRaceHasExactlyOneWinner(t *testing.T) {
	store := coordstore.NewMemStore()
	coordA := store.Connect()
	coordB := store.Connect()

	cat, err := catalog.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = cat.Close() })

	root := "/hbase"
	info := region.Info{Table: "t1", Range: region.KeyRange{Start: []byte("a"), End: []byte("z")}, ID: 1}

	ctx := context.Background()
	require.NoError(t, coordA.Create(ctx, root+"/unassigned/"+info.EncodedName(),
		encodeNode(region.StateOffline, region.ServerName{}, time.Now()), false))

	serverA := region.ServerName{Host: "rs1", Port: 9000, StartCode: 1}
	serverB := region.ServerName{Host: "rs2", Port: 9000, StartCode: 1}
	sA := NewServer(serverA, coordA, cat, root, t.TempDir(), "cf")
	sB := NewServer(serverB, coordB, cat, root, t.TempDir(), "cf")

	req := openReqFor(info)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() { defer wg.Done(); _, errs[0] = sA.OpenRegion(ctx, req) }()
	go func() { defer wg.Done(); _, errs[1] = sB.OpenRegion(ctx, req) }()
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		}
	}
	assert.Equal(t, 1, successes, "exactly one RegionServer should win the open race")

	node, err := coordA.Get(ctx, root+"/unassigned/"+info.EncodedName())
	require.NoError(t, err)
	state, owner, _, err := decodeNode(node.Data)
	require.NoError(t, err)
	assert.Equal(t, region.StateOpened, state)
	assert.True(t, owner == serverA || owner == serverB)

	_, aOnline := sA.online.Get(info.EncodedName())
	_, bOnline := sB.online.Get(info.EncodedName())
	assert.NotEqual(t, aOnline, bOnline, "only the winning server should have the region online")
}
