package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHourBoundaryResets(t *testing.T) {
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	clock := base
	l := New(WithCaps(2, 200), WithNow(func() time.Time { return clock }))

	d, _ := l.Admit()
	require.Equal(t, Allow, d)
	d, _ = l.Admit()
	require.Equal(t, Allow, d)
	d, reason := l.Admit()
	require.Equal(t, Deny, d)
	require.NotEmpty(t, reason)

	// Still within the same hour: still denied.
	clock = base.Add(30 * time.Minute)
	d, _ = l.Admit()
	require.Equal(t, Deny, d)

	// Past the hour boundary: resumes.
	clock = base.Add(61 * time.Minute)
	d, _ = l.Admit()
	require.Equal(t, Allow, d)
}

func TestUnsyncedClockQuartersCap(t *testing.T) {
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	clock := base
	l := New(
		WithCaps(4, 200),
		WithNow(func() time.Time { return clock }),
		WithClockSynced(func() bool { return false }),
	)
	d, _ := l.Admit()
	require.Equal(t, Allow, d)
	d, _ = l.Admit()
	require.Equal(t, Deny, d) // cap/4 == 1
}

func TestDayBoundaryResets(t *testing.T) {
	base := time.Date(2024, 1, 1, 23, 59, 0, 0, time.UTC)
	clock := base
	l := New(WithCaps(200, 1), WithNow(func() time.Time { return clock }))

	d, _ := l.Admit()
	require.Equal(t, Allow, d)
	d, _ = l.Admit()
	require.Equal(t, Deny, d)

	clock = base.Add(2 * time.Minute) // next day
	d, _ = l.Admit()
	require.Equal(t, Allow, d)
}
