// Package ratelimit implements the hourly/daily admission counters for
// outbound LLM calls. The windows reset exactly at wall-clock hour and
// day boundaries, which is not what a token-bucket limiter models, so
// this is deliberately hand-rolled rather than built on
// golang.org/x/time/rate (that library instead paces individual vendor
// calls inside internal/llm, where continuous refill is correct).
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

const (
	DefaultHourCap = 30
	DefaultDayCap  = 200

	// unsyncedDivisor restricts admission to a quarter of the
	// configured caps while the clock has never been synchronized.
	unsyncedDivisor = 4
)

// Decision is the result of an admission check.
type Decision int

const (
	Allow Decision = iota
	Deny
)

// Limiter tracks rolling hour/day request counters. Callers must treat
// it as single-writer (the agent task) / many-reader (e.g. the
// get_health tool) under the embedded mutex.
type Limiter struct {
	mu sync.Mutex

	hourCap int
	dayCap  int

	hourCount      int
	hourWindowStart time.Time
	dayCount        int
	dayWindowStart  time.Time

	synced func() bool
	now    func() time.Time
}

// Option configures a Limiter at construction time.
type Option func(*Limiter)

func WithCaps(hourCap, dayCap int) Option {
	return func(l *Limiter) {
		l.hourCap = hourCap
		l.dayCap = dayCap
	}
}

// WithClockSynced overrides the function used to determine whether the
// real-time clock has ever synchronized; defaults to always-synced.
func WithClockSynced(f func() bool) Option {
	return func(l *Limiter) { l.synced = f }
}

// WithNow overrides the clock source, for tests.
func WithNow(f func() time.Time) Option {
	return func(l *Limiter) { l.now = f }
}

func New(opts ...Option) *Limiter {
	l := &Limiter{
		hourCap: DefaultHourCap,
		dayCap:  DefaultDayCap,
		synced:  func() bool { return true },
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	n := l.now()
	l.hourWindowStart = hourBoundary(n)
	l.dayWindowStart = dayBoundary(n)
	return l
}

func hourBoundary(t time.Time) time.Time {
	return t.Truncate(time.Hour)
}

func dayBoundary(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func (l *Limiter) rollWindowsLocked(now time.Time) {
	if hb := hourBoundary(now); hb.After(l.hourWindowStart) {
		l.hourWindowStart = hb
		l.hourCount = 0
	}
	if db := dayBoundary(now); db.After(l.dayWindowStart) {
		l.dayWindowStart = db
		l.dayCount = 0
	}
}

// Admit evaluates and, if allowed, records one admission. The returned
// reason is empty on Allow and a short justification on Deny.
func (l *Limiter) Admit() (Decision, string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.rollWindowsLocked(now)

	hourCap, dayCap := l.hourCap, l.dayCap
	if !l.synced() {
		hourCap /= unsyncedDivisor
		dayCap /= unsyncedDivisor
	}

	if l.hourCount >= hourCap {
		remaining := l.hourWindowStart.Add(time.Hour).Sub(now)
		return Deny, fmt.Sprintf("hourly quota reached, try again in %s", roundMinutes(remaining))
	}
	if l.dayCount >= dayCap {
		remaining := l.dayWindowStart.AddDate(0, 0, 1).Sub(now)
		return Deny, fmt.Sprintf("daily quota reached, try again in %s", roundMinutes(remaining))
	}

	l.hourCount++
	l.dayCount++
	return Allow, ""
}

func roundMinutes(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	mins := int(d.Round(time.Minute) / time.Minute)
	if mins < 1 {
		mins = 1
	}
	return fmt.Sprintf("%d min", mins)
}

// Snapshot reports the current counters without recording an
// admission. It first rolls any window whose boundary has passed, so a
// stale count reads as zero. Safe for concurrent read-only callers such
// as the get_health tool.
func (l *Limiter) Snapshot() (hourCount, dayCount int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollWindowsLocked(l.now())
	return l.hourCount, l.dayCount
}
