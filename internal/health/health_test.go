package health

import (
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStatus struct {
	safeMode bool
	synced   bool
	hour     int
	day      int
}

func (f fakeStatus) SafeMode() bool                        { return f.safeMode }
func (f fakeStatus) ClockSynced() bool                      { return f.synced }
func (f fakeStatus) RateSnapshot() (hourCount, dayCount int) { return f.hour, f.day }

func TestHealthzReportsStatus(t *testing.T) {
	m := NewMetrics()
	s := New(fakeStatus{safeMode: true, synced: false, hour: 3, day: 9}, m, zap.NewNop())
	go func() { _ = s.Listen(":18099") }()
	defer s.Shutdown()

	var resp *http.Response
	var err error
	for i := 0; i < 20; i++ {
		resp, err = http.Get("http://127.0.0.1:18099/healthz")
		if err == nil {
			break
		}
	}
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	require.Contains(t, string(body), `"safe_mode":true`)
	require.Contains(t, string(body), `"hour_count":3`)
}

func TestMetricsExposesCounters(t *testing.T) {
	m := NewMetrics()
	m.MessagesProcessed.WithLabelValues("local").Inc()
	s := New(fakeStatus{}, m, zap.NewNop())
	go func() { _ = s.Listen(":18098") }()
	defer s.Shutdown()

	var resp *http.Response
	var err error
	for i := 0; i < 20; i++ {
		resp, err = http.Get("http://127.0.0.1:18098/metrics")
		if err == nil {
			break
		}
	}
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	require.Contains(t, string(body), "fieldmind_messages_processed_total")
}
