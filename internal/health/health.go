// Package health exposes the runtime's ops-facing HTTP surface:
// /healthz (boot/safe-mode/rate-counter JSON) and /metrics (Prometheus
// exposition). This is local-network ops tooling, not a user-facing
// API — there is no auth middleware because there is nothing to
// authenticate against.
package health

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"
)

// Metrics holds the Prometheus collectors served on /metrics for
// messages processed, tool calls, chat-API poll failures, and scheduler
// fires. Only code holding this value can increment them; cmd/fieldmind
// hands it to the health server alone, so there they stay at zero.
type Metrics struct {
	Registry *prometheus.Registry

	MessagesProcessed *prometheus.CounterVec
	ToolCalls         *prometheus.CounterVec
	PollFailures      prometheus.Counter
	SchedulerFires    prometheus.Counter
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		MessagesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldmind_messages_processed_total",
			Help: "Inbound messages processed by origin.",
		}, []string{"origin"}),
		ToolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldmind_tool_calls_total",
			Help: "Tool invocations by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		PollFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fieldmind_chatapi_poll_failures_total",
			Help: "Consecutive-reset chat-API long-poll failures.",
		}),
		SchedulerFires: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fieldmind_scheduler_fires_total",
			Help: "Scheduled jobs fired.",
		}),
	}
	reg.MustRegister(m.MessagesProcessed, m.ToolCalls, m.PollFailures, m.SchedulerFires)
	return m
}

// StatusProvider supplies the live values /healthz reports.
type StatusProvider interface {
	SafeMode() bool
	RateSnapshot() (hourCount, dayCount int)
	ClockSynced() bool
}

// Server is the minimal fiber app serving /healthz and /metrics.
type Server struct {
	app     *fiber.App
	status  StatusProvider
	metrics *Metrics
	logger  *zap.Logger
}

func New(status StatusProvider, metrics *Metrics, logger *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  30 * time.Second,
		DisableStartupMessage: true,
	})
	app.Use(recover.New())

	s := &Server{app: app, status: status, metrics: metrics, logger: logger}
	app.Get("/healthz", s.handleHealthz)

	metricsHandler := fasthttpadaptor.NewFastHTTPHandler(
		promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	app.Get("/metrics", func(c *fiber.Ctx) error {
		metricsHandler(c.Context())
		return nil
	})
	return s
}

func (s *Server) handleHealthz(c *fiber.Ctx) error {
	hourCount, dayCount := s.status.RateSnapshot()
	return c.JSON(fiber.Map{
		"safe_mode":    s.status.SafeMode(),
		"clock_synced": s.status.ClockSynced(),
		"hour_count":   hourCount,
		"day_count":    dayCount,
	})
}

// Listen starts the ops HTTP server; blocks until it stops or errors.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
