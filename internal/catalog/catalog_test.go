package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regioncore/pkg/region"
)

func openTest(t *testing.T) *Catalog {
	t.Helper()
	c, err := OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestUpdateAndLocateRegion(t *testing.T) {
	c := openTest(t)
	info := region.Info{Table: "t1", Range: region.KeyRange{Start: []byte("a"), End: []byte("m")}, ID: 1}
	server := region.ServerName{Host: "h1", Port: 1, StartCode: 1}

	require.NoError(t, c.UpdateRegionLocation(info, server))

	loc, found, err := c.LocationOf(info.EncodedName())
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, server, loc)
}

func TestGetRegionsOfTableOrdersByStartKey(t *testing.T) {
	c := openTest(t)
	server := region.ServerName{Host: "h1", Port: 1, StartCode: 1}
	r2 := region.Info{Table: "t1", Range: region.KeyRange{Start: []byte("m"), End: []byte("")}, ID: 2}
	r1 := region.Info{Table: "t1", Range: region.KeyRange{Start: []byte("a"), End: []byte("m")}, ID: 1}

	require.NoError(t, c.UpdateRegionLocation(r2, server))
	require.NoError(t, c.UpdateRegionLocation(r1, server))

	rows, err := c.GetRegionsOfTable("t1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, r1.EncodedName(), rows[0].EncodedName())
	assert.Equal(t, r2.EncodedName(), rows[1].EncodedName())
}

func TestGetAllUserRegionsExcludesSystemTables(t *testing.T) {
	c := openTest(t)
	server := region.ServerName{Host: "h1", Port: 1, StartCode: 1}
	user := region.Info{Table: "t1", ID: 1}
	meta := region.Info{Table: MetaTable, ID: 2}
	root := region.Info{Table: RootTable, ID: 3}

	require.NoError(t, c.UpdateRegionLocation(user, server))
	require.NoError(t, c.UpdateRegionLocation(meta, server))
	require.NoError(t, c.UpdateRegionLocation(root, server))

	rows, err := c.GetAllUserRegions()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, user.EncodedName(), rows[0].EncodedName())
}

func TestOfflineParentInsertsDaughtersAndMarksParent(t *testing.T) {
	c := openTest(t)
	server := region.ServerName{Host: "h1", Port: 1, StartCode: 1}
	parent := region.Info{Table: "t1", Range: region.KeyRange{Start: []byte("a"), End: []byte("z")}, ID: 1}
	a := region.Info{Table: "t1", Range: region.KeyRange{Start: []byte("a"), End: []byte("m")}, ID: 2}
	b := region.Info{Table: "t1", Range: region.KeyRange{Start: []byte("m"), End: []byte("z")}, ID: 3}

	require.NoError(t, c.UpdateRegionLocation(parent, server))
	require.NoError(t, c.OfflineParent(parent, a, b, server))

	rows, err := c.GetRegionsOfTable("t1")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	for _, row := range rows {
		if row.EncodedName() == parent.EncodedName() {
			assert.True(t, row.Offline)
			assert.True(t, row.Split)
		}
	}

	aLoc, found, err := c.LocationOf(a.EncodedName())
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, server, aLoc)
}
