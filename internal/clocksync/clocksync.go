// Package clocksync answers the one question the scheduler and rate
// limiter both gate on: has this process ever observed a trustworthy
// wall clock. A microcontroller without a battery-backed RTC boots
// with an arbitrary clock; this runtime's stand-in is the same
// net/http client pattern used in internal/llm and internal/chatapi,
// read against a remote server's Date response header instead of a
// dedicated NTP exchange.
package clocksync

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

const (
	DefaultTolerance = 5 * time.Minute
	DefaultRetry     = 30 * time.Second
	requestTimeout   = 10 * time.Second
)

// Syncer performs the one-shot wall-clock sanity check and remembers
// the result for the lifetime of the process; a later process restart
// re-checks, it is never re-armed in place.
type Syncer struct {
	HTTP      *http.Client
	URL       string
	Tolerance time.Duration
	Now       func() time.Time

	synced atomic.Bool
}

func New(url string) *Syncer {
	return &Syncer{
		HTTP:      &http.Client{Timeout: requestTimeout},
		URL:       url,
		Tolerance: DefaultTolerance,
		Now:       time.Now,
	}
}

// Check issues one HEAD request against URL and compares the server's
// Date header against the local clock. A successful comparison within
// Tolerance latches Synced() true; it never latches false once true.
func (s *Syncer) Check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.URL, nil)
	if err != nil {
		return err
	}
	resp, err := s.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	hdr := resp.Header.Get("Date")
	if hdr == "" {
		return fmt.Errorf("clocksync: response carried no Date header")
	}
	remote, err := http.ParseTime(hdr)
	if err != nil {
		return fmt.Errorf("clocksync: unparsable Date header %q: %w", hdr, err)
	}

	drift := s.Now().Sub(remote)
	if drift < 0 {
		drift = -drift
	}
	if drift > s.Tolerance {
		return fmt.Errorf("clocksync: local clock drifts %s from remote, exceeds tolerance %s", drift, s.Tolerance)
	}
	s.synced.Store(true)
	return nil
}

// Synced reports whether any past Check has succeeded.
func (s *Syncer) Synced() bool {
	return s.synced.Load()
}

// Run retries Check on retryInterval until it succeeds or ctx is done.
// It is meant to run as its own task, started once at boot; callers
// needing the current state in the meantime call Synced directly.
func (s *Syncer) Run(ctx context.Context, retryInterval time.Duration) {
	if retryInterval <= 0 {
		retryInterval = DefaultRetry
	}
	for {
		if err := s.Check(ctx); err == nil {
			return
		}
		select {
		case <-time.After(retryInterval):
		case <-ctx.Done():
			return
		}
	}
}
