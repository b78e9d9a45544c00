package supervisor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fieldmind/core/internal/store"
)

type memStore struct {
	mu sync.Mutex
	m  map[string][]byte
}

func newMemStore() *memStore { return &memStore{m: make(map[string][]byte)} }

func (s *memStore) Get(ns store.Namespace, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[string(ns)+key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return v, nil
}

func (s *memStore) Put(ns store.Namespace, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[string(ns)+key] = value
	return nil
}

func TestFreshBootIsNotSafeMode(t *testing.T) {
	st := newMemStore()
	s := New(st, zap.NewNop())
	s.BootSuccessDelay = time.Hour
	safe, err := s.Boot()
	require.NoError(t, err)
	require.False(t, safe)
}

func TestThreeConsecutiveFailedBootsEntersSafeMode(t *testing.T) {
	st := newMemStore()
	for i := 0; i < 2; i++ {
		s := New(st, zap.NewNop())
		s.BootSuccessDelay = time.Hour
		safe, err := s.Boot()
		require.NoError(t, err)
		require.False(t, safe)
	}
	s := New(st, zap.NewNop())
	s.BootSuccessDelay = time.Hour
	safe, err := s.Boot()
	require.NoError(t, err)
	require.True(t, safe)
}

func TestStableBootClearsCounter(t *testing.T) {
	st := newMemStore()
	s := New(st, zap.NewNop())
	s.BootSuccessDelay = 10 * time.Millisecond
	_, err := s.Boot()
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)

	n, err := s.readFailCount()
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestCrashBeforeStableKeepsCounterIncrementing(t *testing.T) {
	st := newMemStore()
	for i := 0; i < 2; i++ {
		s := New(st, zap.NewNop())
		s.BootSuccessDelay = time.Hour // never fires within the test
		_, err := s.Boot()
		require.NoError(t, err)
		s.Stop()
	}
	n, err := (&Supervisor{Store: st}).readFailCount()
	require.NoError(t, err)
	require.Equal(t, 2, n)
}
