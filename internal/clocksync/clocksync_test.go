package clocksync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCheckLatchesSyncedWithinTolerance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Date", time.Now().UTC().Format(http.TimeFormat))
	}))
	defer srv.Close()

	s := New(srv.URL)
	require.False(t, s.Synced())
	require.NoError(t, s.Check(context.Background()))
	require.True(t, s.Synced())
}

func TestCheckFailsOutsideTolerance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Date", time.Now().Add(-time.Hour).UTC().Format(http.TimeFormat))
	}))
	defer srv.Close()

	s := New(srv.URL)
	s.Tolerance = time.Minute
	err := s.Check(context.Background())
	require.Error(t, err)
	require.False(t, s.Synced())
}

func TestRunStopsOnceSynced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Date", time.Now().UTC().Format(http.TimeFormat))
	}))
	defer srv.Close()

	s := New(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Run(ctx, 10*time.Millisecond)
	require.True(t, s.Synced())
}

func TestRunGivesUpWhenContextCancelled(t *testing.T) {
	s := New("http://127.0.0.1:0")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	s.Run(ctx, 10*time.Millisecond)
	require.False(t, s.Synced())
}
