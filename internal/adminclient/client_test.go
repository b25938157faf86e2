package adminclient

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"regioncore/internal/assignment"
	"regioncore/internal/catalog"
	"regioncore/pkg/coordstore"
	"regioncore/pkg/region"
)

// cooperativeRPC stands in for a RegionServer: OpenRegion overwrites the
// node with OPENED, CloseRegion with CLOSED. It writes a fixed binary
// layout rather than the protobuf payload the Manager decodes, so the
// Manager does not act on these writes.
type cooperativeRPC struct {
	coord coordstore.Client
	root  string
}

func encodeTestNode(state region.State, owner region.ServerName) []byte {
	ownerStr := owner.String()
	buf := make([]byte, 1+2+len(ownerStr)+8)
	buf[0] = byte(state)
	binary.BigEndian.PutUint16(buf[1:3], uint16(len(ownerStr)))
	copy(buf[3:3+len(ownerStr)], ownerStr)
	binary.BigEndian.PutUint64(buf[3+len(ownerStr):], uint64(time.Now().UnixNano()))
	return buf
}

func (r *cooperativeRPC) OpenRegion(ctx context.Context, server region.ServerName, info region.Info) error {
	p := r.root + "/unassigned/" + info.EncodedName()
	node, err := r.coord.Get(ctx, p)
	if err != nil {
		return err
	}
	return r.coord.SetData(ctx, p, encodeTestNode(region.StateOpened, server), node.Version)
}

func (r *cooperativeRPC) CloseRegion(ctx context.Context, server region.ServerName, info region.Info) error {
	p := r.root + "/unassigned/" + info.EncodedName()
	if err := r.coord.Create(ctx, p, encodeTestNode(region.StateClosed, server), false); err != nil {
		node, getErr := r.coord.Get(ctx, p)
		if getErr != nil {
			return err
		}
		return r.coord.SetData(ctx, p, encodeTestNode(region.StateClosed, server), node.Version)
	}
	return nil
}

func newTestClient(t *testing.T) (*Client, *assignment.Manager, coordstore.Client) {
	t.Helper()
	coord := coordstore.NewMemStore().Connect()
	cat, err := catalog.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = cat.Close() })

	mgr := assignment.New(coord, cat, &cooperativeRPC{coord: coord, root: "/regioncore"}, "/regioncore", assignment.DefaultTimeouts())
	return New(mgr), mgr, coord
}

func TestCreateTableAssignsEveryRegion(t *testing.T) {
	client, mgr, coord := newTestClient(t)
	ctx := context.Background()
	live := []region.ServerName{{Host: "h1", Port: 1, StartCode: 1}}

	ranges := []region.KeyRange{
		{Start: nil, End: []byte("m")},
		{Start: []byte("m"), End: nil},
	}
	require.NoError(t, client.CreateTable(ctx, "t1", ranges, live))

	state, ok := mgr.TableState("t1")
	require.True(t, ok)
	require.Equal(t, region.TableEnabled, state)

	// Each region was assigned: it has its own node under /unassigned.
	nodes, err := coord.List(ctx, "/regioncore/unassigned")
	require.NoError(t, err)
	require.Len(t, nodes, 2)
}
