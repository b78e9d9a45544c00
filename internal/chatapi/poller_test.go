package chatapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memStore struct {
	mu sync.Mutex
	m  map[string][]byte
}

func newMemStore() *memStore { return &memStore{m: make(map[string][]byte)} }

func (s *memStore) Get(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return v, nil
}

func (s *memStore) Put(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
	return nil
}

func TestExtractMaxUpdateID(t *testing.T) {
	body := `{"ok":true,"result":[{"update_id":200,"message":{}},{"update_id":230,"message":{"chat"`
	require.Equal(t, int64(230), extractMaxUpdateID([]byte(body)))
}

func TestFlushSuppressesReplay(t *testing.T) {
	var gotOffsets []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		s := string(body)
		var offset int
		fmt.Sscanf(strings.SplitN(strings.SplitN(s, `"offset":`, 2)[1], ",", 2)[0], "%d", &offset)
		gotOffsets = append(gotOffsets, offset)
		if offset == -1 {
			fmt.Fprint(w, `{"ok":true,"result":[{"update_id":105,"message":{"chat":{"id":1},"text":"old"}}]}`)
			return
		}
		fmt.Fprint(w, `{"ok":true,"result":[]}`)
	}))
	defer srv.Close()

	st := newMemStore()
	p := NewPoller(srv.URL, 1, st, zap.NewNop())
	require.NoError(t, p.Flush(context.Background()))
	require.Equal(t, int64(105), p.lastSeenUpdateID)
	require.Equal(t, []int{-1, 106}, gotOffsets)
}

func TestPollOnceDiscardsUnauthorisedChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ok":true,"result":[{"update_id":1,"message":{"chat":{"id":999},"text":"hi"}}]}`)
	}))
	defer srv.Close()

	st := newMemStore()
	p := NewPoller(srv.URL, 1, st, zap.NewNop())
	msgs, err := p.PollOnce(context.Background())
	require.NoError(t, err)
	require.Empty(t, msgs)
	require.Equal(t, int64(1), p.lastSeenUpdateID)
}

func TestPollOnceAcceptsAuthorisedChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ok":true,"result":[{"update_id":2,"message":{"chat":{"id":1},"text":"hi"}}]}`)
	}))
	defer srv.Close()

	st := newMemStore()
	p := NewPoller(srv.URL, 1, st, zap.NewNop())
	msgs, err := p.PollOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "hi", msgs[0].Text)
}

func TestBackoffDelayCapped(t *testing.T) {
	p := &Poller{failures: 10}
	require.LessOrEqual(t, p.BackoffDelay().Seconds(), float64(backoffMaxSecs))
}
