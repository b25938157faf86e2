package regionserver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regioncore/internal/catalog"
	"regioncore/internal/rpcapi"
	"regioncore/pkg/coordstore"
	"regioncore/pkg/region"
)

func newTestServer(t *testing.T) (*Server, coordstore.Client) {
	t.Helper()
	store := coordstore.NewMemStore()
	coord := store.Connect()
	t.Cleanup(func() { _ = coord.Close() })

	cat, err := catalog.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = cat.Close() })

	self := region.ServerName{Host: "rs1", Port: 9000, StartCode: 1}
	s := NewServer(self, coord, cat, "/hbase", t.TempDir(), "cf")
	return s, coord
}

func openReqFor(info region.Info) *rpcapi.OpenRegionRequest {
	return &rpcapi.OpenRegionRequest{Table: info.Table, StartKey: info.Range.Start, EndKey: info.Range.End, RegionID: int64(info.ID)}
}

func closeReqFor(info region.Info) *rpcapi.CloseRegionRequest {
	return &rpcapi.CloseRegionRequest{Table: info.Table, StartKey: info.Range.Start, EndKey: info.Range.End, RegionID: int64(info.ID)}
}

func TestOpenRegionBringsRegionOnlineAndReportsOpened(t *testing.T) {
	s, coord := newTestServer(t)
	info := region.Info{Table: "t1", Range: region.KeyRange{Start: []byte("a"), End: []byte("z")}, ID: 1}

	ctx := context.Background()
	resp, err := s.OpenRegion(ctx, openReqFor(info))
	require.NoError(t, err)
	assert.False(t, resp.AlreadyOpen)

	_, ok := s.online.Get(info.EncodedName())
	assert.True(t, ok)

	node, err := coord.Get(ctx, s.unassignedPath(info.EncodedName()))
	require.NoError(t, err)
	state, owner, _, err := decodeNode(node.Data)
	require.NoError(t, err)
	assert.Equal(t, region.StateOpened, state)
	assert.Equal(t, s.self, owner)
}

func TestOpenRegionIsIdempotent(t *testing.T) {
	s, _ := newTestServer(t)
	info := region.Info{Table: "t1", Range: region.KeyRange{Start: []byte("a"), End: []byte("z")}, ID: 1}

	ctx := context.Background()
	req := openReqFor(info)
	_, err := s.OpenRegion(ctx, req)
	require.NoError(t, err)

	resp, err := s.OpenRegion(ctx, req)
	require.NoError(t, err)
	assert.True(t, resp.AlreadyOpen)
}

func TestCloseRegionTakesRegionOfflineAndReportsClosed(t *testing.T) {
	s, coord := newTestServer(t)
	info := region.Info{Table: "t1", Range: region.KeyRange{Start: []byte("a"), End: []byte("z")}, ID: 1}
	ctx := context.Background()

	_, err := s.OpenRegion(ctx, openReqFor(info))
	require.NoError(t, err)

	resp, err := s.CloseRegion(ctx, closeReqFor(info))
	require.NoError(t, err)
	assert.False(t, resp.AlreadyClosed)

	_, ok := s.online.Get(info.EncodedName())
	assert.False(t, ok)

	node, err := coord.Get(ctx, s.unassignedPath(info.EncodedName()))
	require.NoError(t, err)
	state, _, _, err := decodeNode(node.Data)
	require.NoError(t, err)
	assert.Equal(t, region.StateClosed, state)
}

func TestCloseRegionOnOfflineRegionIsANoop(t *testing.T) {
	s, _ := newTestServer(t)
	info := region.Info{Table: "t1", Range: region.KeyRange{Start: []byte("a"), End: []byte("z")}, ID: 1}
	resp, err := s.CloseRegion(context.Background(), closeReqFor(info))
	require.NoError(t, err)
	assert.True(t, resp.AlreadyClosed)
}
