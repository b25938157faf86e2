package assignment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regioncore/pkg/region"
)

func TestEncodeDecodeNodeRoundTrip(t *testing.T) {
	owner := region.ServerName{Host: "rs7", Port: 9103, StartCode: 12345}
	ts := time.Unix(1700000000, 0)

	data := encodeNode(region.StateOpened, owner, ts)
	state, decodedOwner, decodedTs, err := decodeNode(data)
	require.NoError(t, err)

	assert.Equal(t, region.StateOpened, state)
	assert.Equal(t, owner, decodedOwner)
	assert.Equal(t, ts.UnixNano(), decodedTs.UnixNano())
}

func TestDecodeNodeRejectsGarbageShorterThanAnyField(t *testing.T) {
	_, _, _, err := decodeNode([]byte{0xff})
	assert.Error(t, err)
}
