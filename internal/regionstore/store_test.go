package regionstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGetRoundTrip(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put([]byte("row1"), []byte("v1")))

	got, err := s.Get([]byte("row1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)
}

func TestGetMissingKeyReturnsErrNotFound(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Get([]byte("missing"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCloseReturnsSSTFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		require.NoError(t, s.Put([]byte{byte(i)}, []byte("value")))
	}
	require.NoError(t, s.Flush())

	files, err := s.Close()
	require.NoError(t, err)
	assert.NotNil(t, files)
}
