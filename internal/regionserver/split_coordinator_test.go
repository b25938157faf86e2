package regionserver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regioncore/internal/rpcapi"
	"regioncore/pkg/region"
)

func TestSplitRegionOpensTwoDaughtersAndRemovesParent(t *testing.T) {
	s, _ := newTestServer(t)
	info := region.Info{Table: "t1", Range: region.KeyRange{Start: []byte("a"), End: []byte("z")}, ID: 1}
	ctx := context.Background()

	_, err := s.OpenRegion(ctx, openReqFor(info))
	require.NoError(t, err)

	_, err = s.SplitRegion(ctx, &rpcapi.SplitRegionRequest{
		Table: info.Table, StartKey: info.Range.Start, EndKey: info.Range.End, RegionID: int64(info.ID), SplitRow: []byte("m"),
	})
	require.NoError(t, err)

	_, ok := s.online.Get(info.EncodedName())
	assert.False(t, ok)
	assert.Equal(t, 2, s.online.Count())
}
