// Package supervisor tracks boot health and decides whether the
// runtime starts in safe mode: channels alive, LLM and scheduler
// disabled, informational replies only.
package supervisor

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fieldmind/core/internal/apperrors"
	"github.com/fieldmind/core/internal/store"
)

const (
	DefaultMaxConsecutiveFailedBoots = 3
	DefaultBootSuccessDelay          = 30 * time.Second

	keyFailCount = "count"
	keyLastOK    = "last"
)

// bootStore is the subset of *store.Store the supervisor needs.
type bootStore interface {
	Get(ns store.Namespace, key string) ([]byte, error)
	Put(ns store.Namespace, key string, value []byte) error
}

// Supervisor owns the boot-health counter and the derived safe-mode
// decision for this run of the process.
type Supervisor struct {
	Store                     bootStore
	Logger                    *zap.Logger
	MaxConsecutiveFailedBoots int
	BootSuccessDelay          time.Duration
	Now                       func() time.Time

	mu       sync.Mutex
	safeMode bool
	stable   *time.Timer
}

func New(st bootStore, logger *zap.Logger) *Supervisor {
	return &Supervisor{
		Store:                     st,
		Logger:                    logger,
		MaxConsecutiveFailedBoots: DefaultMaxConsecutiveFailedBoots,
		BootSuccessDelay:          DefaultBootSuccessDelay,
		Now:                       time.Now,
	}
}

// Boot increments the consecutive-failed-boots counter, decides
// whether this run starts in safe mode, and arms the stability timer
// that clears the counter after BootSuccessDelay of uninterrupted
// operation. It must be called exactly once, before any other
// component starts.
func (s *Supervisor) Boot() (safeMode bool, err error) {
	failCount, err := s.readFailCount()
	if err != nil {
		// A corrupted boot-health record cannot distinguish "never
		// booted" from "corrupted"; treat it as a store failure and
		// start this run in safe mode.
		s.mu.Lock()
		s.safeMode = true
		s.mu.Unlock()
		return true, apperrors.StoreCorruption("read boot health", err)
	}

	failCount++
	if err := s.writeFailCount(failCount); err != nil {
		s.mu.Lock()
		s.safeMode = true
		s.mu.Unlock()
		return true, err
	}

	s.mu.Lock()
	s.safeMode = failCount >= s.MaxConsecutiveFailedBoots
	s.mu.Unlock()

	if s.SafeMode() {
		s.Logger.Warn("entering safe mode",
			zap.Int("consecutive_failed_boots", failCount),
			zap.Int("threshold", s.MaxConsecutiveFailedBoots))
	} else {
		s.Logger.Info("boot health", zap.Int("consecutive_failed_boots", failCount))
	}

	s.stable = time.AfterFunc(s.BootSuccessDelay, s.markStable)
	return s.SafeMode(), nil
}

// markStable clears the consecutive-failed-boots counter and records
// the current boot as the last known-good one. A process that crashes
// before this fires leaves the counter incremented, which is the
// entire point: only a boot that survives BootSuccessDelay counts as
// successful.
func (s *Supervisor) markStable() {
	if err := s.writeFailCount(0); err != nil {
		s.Logger.Error("failed to clear boot health counter", zap.Error(err))
		return
	}
	if err := s.Store.Put(store.NamespaceBoot, keyLastOK, []byte(strconv.FormatInt(s.Now().Unix(), 10))); err != nil {
		s.Logger.Error("failed to record last-success-epoch", zap.Error(err))
		return
	}
	s.Logger.Info("boot stable, health counter cleared")
}

func (s *Supervisor) readFailCount() (int, error) {
	raw, err := s.Store.Get(store.NamespaceBoot, keyFailCount)
	if err == store.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, fmt.Errorf("boot health counter is not a number: %q", raw)
	}
	return n, nil
}

func (s *Supervisor) writeFailCount(n int) error {
	return s.Store.Put(store.NamespaceBoot, keyFailCount, []byte(strconv.Itoa(n)))
}

// SafeMode reports whether the runtime should keep channels alive but
// disable the LLM and scheduler.
func (s *Supervisor) SafeMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.safeMode
}

// SafeModeReply is the informational text returned to any input while
// in safe mode, instead of running the agent loop.
const SafeModeReply = "Running in safe mode after repeated failed boots, with the assistant and scheduler disabled; restart the device to try a normal boot."

// Stop cancels the pending stability timer, used during shutdown so a
// late-firing timer doesn't race a closed store.
func (s *Supervisor) Stop() {
	if s.stable != nil {
		s.stable.Stop()
	}
}
