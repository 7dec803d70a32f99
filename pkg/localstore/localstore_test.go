package localstore

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestBadgerStore_RoundTrip(t *testing.T) {
	s, err := Open(Config{Path: t.TempDir(), Logger: quietLogger()})
	require.NoError(t, err)
	defer s.Close()

	_, ok, err := s.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set("k", []byte("v")))
	got, ok, err := s.Get("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), got)

	require.NoError(t, s.Delete("k"))
	_, ok, err = s.Get("k")
	require.NoError(t, err)
	assert.False(t, ok)

	// deleting again is a no-op
	require.NoError(t, s.Delete("k"))
}

func TestBadgerStore_RequiresPath(t *testing.T) {
	_, err := Open(Config{Logger: quietLogger()})
	assert.Error(t, err)
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Set("a", []byte("1")))

	got, ok, err := s.Get("a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("1"), got)

	// mutating the returned slice must not affect the stored value
	got[0] = 'x'
	again, _, _ := s.Get("a")
	assert.Equal(t, []byte("1"), again)

	require.NoError(t, s.Delete("a"))
	_, ok, _ = s.Get("a")
	assert.False(t, ok)
	require.NoError(t, s.Delete("a"))
	require.NoError(t, s.Close())
}
