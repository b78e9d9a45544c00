package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"time"

	"github.com/fieldmind/core/internal/store"
)

// RateSnapshotter exposes a read-only view of the rate limiter's
// current counters, satisfied by *ratelimit.Limiter.
type RateSnapshotter interface {
	Snapshot() (hourCount, dayCount int)
}

type GetVersionTool struct{ Version string }

func (t *GetVersionTool) Name() string          { return "get_version" }
func (t *GetVersionTool) Description() string   { return "Report the running firmware version." }
func (t *GetVersionTool) Schema() json.RawMessage { return json.RawMessage(`{"type":"object","properties":{}}`) }
func (t *GetVersionTool) Handle(ctx context.Context, input json.RawMessage) (string, error) {
	return fmt.Sprintf("fieldmind v%s", t.Version), nil
}

type GetHealthTool struct {
	Version     string
	RateLimiter RateSnapshotter
	ClockSynced func() bool
	Store       memoryStore
}

func (t *GetHealthTool) Name() string { return "get_health" }
func (t *GetHealthTool) Description() string {
	return "Report firmware version, free memory, rate-counter snapshot, time-sync status, and timezone."
}
func (t *GetHealthTool) Schema() json.RawMessage { return json.RawMessage(`{"type":"object","properties":{}}`) }
func (t *GetHealthTool) Handle(ctx context.Context, input json.RawMessage) (string, error) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	hourCount, dayCount := 0, 0
	if t.RateLimiter != nil {
		hourCount, dayCount = t.RateLimiter.Snapshot()
	}

	synced := true
	if t.ClockSynced != nil {
		synced = t.ClockSynced()
	}

	tz := "UTC"
	if t.Store != nil {
		if v, err := t.Store.Get(store.NamespaceTimezone, "posix"); err == nil {
			tz = string(v)
		}
	}

	return fmt.Sprintf(
		"fieldmind v%s | heap free=%d bytes (in use=%d) | rate hour=%d day=%d | time synced=%t | tz=%s",
		t.Version, mem.HeapIdle, mem.HeapInuse, hourCount, dayCount, synced, tz,
	), nil
}

type SetTimezoneTool struct{ Store memoryStore }

func (t *SetTimezoneTool) Name() string        { return "set_timezone" }
func (t *SetTimezoneTool) Description() string { return "Set the active timezone used by the scheduler." }
func (t *SetTimezoneTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"tz":{"type":"string","description":"IANA zone name, e.g. America/Los_Angeles"}},"required":["tz"]}`)
}
func (t *SetTimezoneTool) Handle(ctx context.Context, input json.RawMessage) (string, error) {
	var in struct {
		TZ string `json:"tz"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	// The external contract names this a "POSIX TZ string" after the
	// original firmware's libc TZ env var; Go's time package has no
	// POSIX TZ grammar, only the IANA tzdata lookup in LoadLocation, so
	// that is what is validated and stored here.
	if _, err := time.LoadLocation(in.TZ); err != nil {
		return "", fmt.Errorf("unknown timezone %q: %w", in.TZ, err)
	}
	if err := t.Store.Put(store.NamespaceTimezone, "posix", []byte(in.TZ)); err != nil {
		return "", err
	}
	return fmt.Sprintf("Timezone set to %s", in.TZ), nil
}
