package store

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir, err := os.MkdirTemp("", "fieldmind-store-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	s, err := Open(dir, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGetDelete(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get(NamespaceUserMemory, "foo")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Put(NamespaceUserMemory, "foo", []byte("bar")))
	v, err := s.Get(NamespaceUserMemory, "foo")
	require.NoError(t, err)
	require.Equal(t, "bar", string(v))

	require.NoError(t, s.Delete(NamespaceUserMemory, "foo"))
	_, err = s.Get(NamespaceUserMemory, "foo")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestKeyLengthLimit(t *testing.T) {
	s := newTestStore(t)
	// "u_" + 14 chars = 16 bytes, over the 15-byte cap.
	err := s.Put(NamespaceUserMemory, "abcdefghijklmn", []byte("x"))
	require.Error(t, err)
}

func TestIterate(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Put(NamespaceCron, "1", []byte("a")))
	require.NoError(t, s.Put(NamespaceCron, "2", []byte("b")))
	require.NoError(t, s.Put(NamespaceUserMemory, "x", []byte("c")))

	entries, err := s.Iterate(NamespaceCron)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	n, err := s.CountPrefix(NamespaceCron)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}
