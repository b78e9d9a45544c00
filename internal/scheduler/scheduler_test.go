package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fieldmind/core/internal/message"
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

func (s *memStore) Delete(ns store.Namespace, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, string(ns)+key)
	return nil
}

func (s *memStore) Iterate(ns store.Namespace) ([]store.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.Entry
	prefix := string(ns)
	for k, v := range s.m {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			out = append(out, store.Entry{Key: k[len(prefix):], Value: v})
		}
	}
	return out, nil
}

type fakeQueue struct {
	mu  sync.Mutex
	got []message.Message
	full bool
}

func (q *fakeQueue) TrySend(ctx context.Context, m message.Message) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.full {
		return false
	}
	q.got = append(q.got, m)
	return true
}

func utc() func() *time.Location { return func() *time.Location { return time.UTC } }

func TestParseTriggerAllForms(t *testing.T) {
	cases := []string{"once in 10 minute", "once at 08:15", "every day at 08:15", "every 30 minute"}
	for _, c := range cases {
		_, err := ParseTrigger(c)
		require.NoError(t, err, c)
	}
	_, err := ParseTrigger("do something vague")
	require.Error(t, err)
}

func TestCreateOnceRelativeJobFiresAndDeactivates(t *testing.T) {
	st := newMemStore()
	q := &fakeQueue{}
	now := time.Date(2026, 8, 6, 12, 0, 0, 0, time.UTC)
	s := New(st, q, utc(), func() bool { return true }, zap.NewNop())
	s.Now = func() time.Time { return now }

	job, err := s.CreateJob(context.Background(), "once", "once in 1 minute", "say hello")
	require.NoError(t, err)
	require.True(t, job.Active)

	now = now.Add(2 * time.Minute)
	s.Now = func() time.Time { return now }
	s.runOnce(context.Background())

	require.Len(t, q.got, 1)
	require.Equal(t, message.OriginSchedule, q.got[0].Origin)
	jobs, _ := s.ListJobs(context.Background())
	require.False(t, jobs[0].Active)
}

func TestCreateRejectsKindMismatch(t *testing.T) {
	st := newMemStore()
	q := &fakeQueue{}
	s := New(st, q, utc(), func() bool { return true }, zap.NewNop())
	_, err := s.CreateJob(context.Background(), "daily", "once in 1 minute", "x")
	require.Error(t, err)
}

func TestDailyJobAdvancesAcrossDSTBoundary(t *testing.T) {
	st := newMemStore()
	q := &fakeQueue{}
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	// one day before the US spring-forward DST transition in 2027
	now := time.Date(2027, 3, 13, 8, 30, 0, 0, loc)
	s := New(st, q, func() *time.Location { return loc }, func() bool { return true }, zap.NewNop())
	s.Now = func() time.Time { return now }

	job, err := s.CreateJob(context.Background(), "daily", "every day at 08:30", "good morning")
	require.NoError(t, err)

	fireTime := time.Unix(job.NextFireEpoch, 0).In(loc)
	require.Equal(t, 8, fireTime.Hour())
	require.Equal(t, 30, fireTime.Minute())

	now = fireTime.Add(time.Minute)
	s.Now = func() time.Time { return now }
	s.runOnce(context.Background())
	require.Len(t, q.got, 1)

	jobs, _ := s.ListJobs(context.Background())
	require.True(t, jobs[0].Active)
	next := time.Unix(jobs[0].NextFireEpoch, 0).In(loc)
	require.Equal(t, 8, next.Hour())
	require.Equal(t, 30, next.Minute())
}

func TestPeriodicJobCatchesUpAfterLongGap(t *testing.T) {
	st := newMemStore()
	q := &fakeQueue{}
	now := time.Date(2026, 8, 6, 0, 0, 0, 0, time.UTC)
	s := New(st, q, utc(), func() bool { return true }, zap.NewNop())
	s.Now = func() time.Time { return now }

	job, err := s.CreateJob(context.Background(), "periodic", "every 1 minute", "tick")
	require.NoError(t, err)
	require.Equal(t, now.Unix()+60, job.NextFireEpoch)

	// pretend the device was powered off for an hour past the next fire
	now = now.Add(61 * time.Minute)
	s.Now = func() time.Time { return now }
	s.runOnce(context.Background())

	jobs, _ := s.ListJobs(context.Background())
	require.Greater(t, jobs[0].NextFireEpoch, now.Unix())
	require.LessOrEqual(t, jobs[0].NextFireEpoch, now.Unix()+60)
}

func TestRunOnceSkippedWhenClockUnsynced(t *testing.T) {
	st := newMemStore()
	q := &fakeQueue{}
	now := time.Date(2026, 8, 6, 0, 0, 0, 0, time.UTC)
	s := New(st, q, utc(), func() bool { return false }, zap.NewNop())
	s.Now = func() time.Time { return now }
	_, err := s.CreateJob(context.Background(), "once", "once in 1 minute", "x")
	require.NoError(t, err)

	now = now.Add(time.Hour)
	s.Now = func() time.Time { return now }
	s.runOnce(context.Background())
	require.Empty(t, q.got)
}

func TestDeleteJobRemovesFromTableAndStore(t *testing.T) {
	st := newMemStore()
	q := &fakeQueue{}
	s := New(st, q, utc(), func() bool { return true }, zap.NewNop())
	job, err := s.CreateJob(context.Background(), "once", "once in 5 minute", "x")
	require.NoError(t, err)

	require.NoError(t, s.DeleteJob(context.Background(), job.ID))
	jobs, _ := s.ListJobs(context.Background())
	require.Empty(t, jobs)

	_, err = st.Get(store.NamespaceCron, "0")
	require.Error(t, err)
}

func TestLoadJobsRestoresFromStore(t *testing.T) {
	st := newMemStore()
	q := &fakeQueue{}
	s := New(st, q, utc(), func() bool { return true }, zap.NewNop())
	_, err := s.CreateJob(context.Background(), "once", "once in 5 minute", "x")
	require.NoError(t, err)

	fresh := New(st, q, utc(), func() bool { return true }, zap.NewNop())
	require.NoError(t, fresh.LoadJobs())
	jobs, _ := fresh.ListJobs(context.Background())
	require.Len(t, jobs, 1)
}
