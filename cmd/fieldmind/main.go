package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fieldmind/core/internal/agent"
	channelpkg "github.com/fieldmind/core/internal/channel"
	"github.com/fieldmind/core/internal/chatapi"
	"github.com/fieldmind/core/internal/clocksync"
	"github.com/fieldmind/core/internal/config"
	"github.com/fieldmind/core/internal/hardware"
	"github.com/fieldmind/core/internal/health"
	"github.com/fieldmind/core/internal/llm"
	"github.com/fieldmind/core/internal/message"
	"github.com/fieldmind/core/internal/ratelimit"
	"github.com/fieldmind/core/internal/scheduler"
	"github.com/fieldmind/core/internal/store"
	"github.com/fieldmind/core/internal/supervisor"
	"github.com/fieldmind/core/internal/tools"
)

var (
	configPath = flag.String("config", "", "Path to config file")
	dataDir    = flag.String("data", "", "Path to data directory")
	version    = "dev"
)

func main() {
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath, *dataDir)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	st, err := store.Open(cfg.Storage.BadgerPath, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer st.Close()

	sup := supervisor.New(st, logger)
	sup.BootSuccessDelay = time.Duration(cfg.Supervisor.BootSuccessDelayMS) * time.Millisecond
	sup.MaxConsecutiveFailedBoots = cfg.Supervisor.MaxConsecutiveFailedBoots
	safeMode, err := sup.Boot()
	if err != nil {
		logger.Error("boot-health check failed", zap.Error(err))
	}
	defer sup.Stop()

	syncer := clocksync.New(cfg.ClockSync.URL)
	if cfg.ClockSync.ToleranceSeconds > 0 {
		syncer.Tolerance = time.Duration(cfg.ClockSync.ToleranceSeconds) * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go syncer.Run(ctx, time.Duration(cfg.ClockSync.RetrySeconds)*time.Second)

	location := func() *time.Location { return loadTimezone(st, logger) }

	input := channelpkg.NewQueue("input", cfg.Queues.InputCapacity, logger)
	output := channelpkg.NewQueue("output", cfg.Queues.OutputCapacity, logger)

	sched := scheduler.New(st, input, location, syncer.Synced, logger)
	if err := sched.LoadJobs(); err != nil {
		logger.Fatal("failed to load scheduled jobs", zap.Error(err))
	}

	limiter := ratelimit.New(ratelimit.WithClockSynced(syncer.Synced))

	registry := tools.NewRegistry()
	registerBuiltinTools(registry, st, sched, limiter, syncer.Synced, logger)

	llmClient := llm.NewClient(llm.Config{
		Vendor:      vendorOf(cfg.LLM.Vendor),
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		BaseURL:     cfg.LLM.BaseURL,
		MaxTokens:   cfg.LLM.MaxTokens,
		CallTimeout: time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
	}, logger)

	ag := agent.New(llmClient, registry, limiter, logger)

	registerUserToolTools(registry, st, ag)
	if err := tools.LoadUserTools(registry, st, ag.RunUserToolAction); err != nil {
		logger.Error("failed to load user tools", zap.Error(err))
	}

	var sender *chatapi.Sender
	if cfg.ChatAPI.Enabled && !safeMode {
		sender, err = startChatAPI(ctx, cfg, st, input, logger)
		if err != nil {
			logger.Error("chat API ingest disabled", zap.Error(err))
			sender = nil
		}
	}

	go runAgentTask(ctx, ag, sup, input, output, sender, logger)
	go runEgressTask(ctx, output, sender, logger)
	go runLocalIngest(ctx, input, logger)

	if !safeMode {
		go sched.Run(ctx, time.Duration(cfg.Scheduler.TickSeconds)*time.Second)
	} else {
		logger.Warn("scheduler disabled while in safe mode")
	}

	metrics := health.NewMetrics()
	healthServer := health.New(statusAdapter{sup: sup, limiter: limiter, synced: syncer.Synced}, metrics, logger)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port)
	go func() {
		if err := healthServer.Listen(addr); err != nil {
			logger.Error("health server stopped", zap.Error(err))
		}
	}()

	logger.Info("fieldmind started",
		zap.String("version", version),
		zap.Bool("safe_mode", safeMode),
		zap.String("health_addr", addr),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancel()
	_ = healthServer.Shutdown()
}

// statusAdapter satisfies health.StatusProvider by delegating to three
// independently-owned components that were never designed to share an
// interface.
type statusAdapter struct {
	sup     *supervisor.Supervisor
	limiter *ratelimit.Limiter
	synced  func() bool
}

func (a statusAdapter) SafeMode() bool { return a.sup.SafeMode() }
func (a statusAdapter) RateSnapshot() (hourCount, dayCount int) { return a.limiter.Snapshot() }
func (a statusAdapter) ClockSynced() bool { return a.synced() }

func vendorOf(v config.Vendor) llm.Vendor {
	switch v {
	case config.VendorOpenAI:
		return llm.VendorOpenAI
	case config.VendorOpenRouter:
		return llm.VendorOpenRouter
	default:
		return llm.VendorAnthropic
	}
}

func loadTimezone(st *store.Store, logger *zap.Logger) *time.Location {
	raw, err := st.Get(store.NamespaceTimezone, "posix")
	if err != nil {
		return time.UTC
	}
	loc, err := time.LoadLocation(string(raw))
	if err != nil {
		logger.Warn("stored timezone is invalid, falling back to UTC", zap.String("tz", string(raw)), zap.Error(err))
		return time.UTC
	}
	return loc
}

func registerBuiltinTools(reg *tools.Registry, st *store.Store, sched *scheduler.Scheduler, limiter *ratelimit.Limiter, clockSynced func() bool, logger *zap.Logger) {
	bus := hardware.NewSimulatedBus(nil)
	pins := hardware.PinRange{Min: 0, Max: 40}

	reg.RegisterBuiltin(&tools.GPIOSetTool{Driver: bus, Pins: pins})
	reg.RegisterBuiltin(&tools.I2CScanTool{Driver: bus, Pins: pins})

	reg.RegisterBuiltin(&tools.MemoryPutTool{Store: st})
	reg.RegisterBuiltin(&tools.MemoryGetTool{Store: st})
	reg.RegisterBuiltin(&tools.MemoryListTool{Store: st})
	reg.RegisterBuiltin(&tools.MemoryDeleteTool{Store: st})

	reg.RegisterBuiltin(&tools.ScheduleCreateTool{Scheduler: sched})
	reg.RegisterBuiltin(&tools.ScheduleListTool{Scheduler: sched})
	reg.RegisterBuiltin(&tools.ScheduleDeleteTool{Scheduler: sched})

	reg.RegisterBuiltin(&tools.GetVersionTool{Version: version})
	reg.RegisterBuiltin(&tools.GetHealthTool{Version: version, RateLimiter: limiter, ClockSynced: clockSynced, Store: st})
	reg.RegisterBuiltin(&tools.SetTimezoneTool{Store: st})
}

func registerUserToolTools(reg *tools.Registry, st *store.Store, ag *agent.Agent) {
	reg.RegisterBuiltin(&tools.CreateToolTool{Registry: reg, Store: st, RunAction: ag.RunUserToolAction})
	reg.RegisterBuiltin(&tools.ListUserToolsTool{Store: st})
	reg.RegisterBuiltin(&tools.DeleteUserToolTool{Registry: reg, Store: st})
}

// chatConfigStore adapts *store.Store's namespaced API to the plain
// key/value shape chatapi.StateStore expects, fixed to the chat
// configuration namespace.
type chatConfigStore struct{ st *store.Store }

func (c chatConfigStore) Get(key string) ([]byte, error) { return c.st.Get(store.NamespaceChatConfig, key) }
func (c chatConfigStore) Put(key string, value []byte) error {
	return c.st.Put(store.NamespaceChatConfig, key, value)
}

func startChatAPI(ctx context.Context, cfg *config.Config, st *store.Store, input *channelpkg.Queue, logger *zap.Logger) (*chatapi.Sender, error) {
	baseURL := cfg.ChatAPI.BaseURL + "/bot" + cfg.ChatAPI.BotToken
	poller := chatapi.NewPoller(baseURL, cfg.ChatAPI.AuthorisedChatID, chatConfigStore{st: st}, logger)
	poller.SetAllowList(cfg.ChatAPI.AllowList)

	hadState, err := poller.LoadState()
	if err != nil {
		return nil, fmt.Errorf("load chat poller state: %w", err)
	}
	if !hadState {
		if err := poller.Flush(ctx); err != nil {
			return nil, fmt.Errorf("flush chat poller backlog: %w", err)
		}
	}

	sender, err := chatapi.NewSender(cfg.ChatAPI.BotToken, cfg.ChatAPI.AuthorisedChatID, logger)
	if err != nil {
		return nil, fmt.Errorf("create chat sender: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			msgs, err := poller.PollOnce(ctx)
			if err != nil {
				logger.Warn("chat poll failed", zap.Error(err))
				select {
				case <-time.After(poller.BackoffDelay()):
				case <-ctx.Done():
					return
				}
				continue
			}
			for _, m := range msgs {
				input.TrySend(ctx, m)
			}
		}
	}()

	return sender, nil
}

func runAgentTask(ctx context.Context, ag *agent.Agent, sup *supervisor.Supervisor, input, output *channelpkg.Queue, sender *chatapi.Sender, logger *zap.Logger) {
	for {
		msg, ok := input.Receive(ctx)
		if !ok {
			return
		}

		if sender != nil && msg.Origin == message.OriginChat {
			sender.Typing()
		}

		var reply string
		if sup.SafeMode() {
			reply = supervisor.SafeModeReply
		} else {
			reply = ag.Process(ctx, msg)
		}
		output.TrySend(ctx, message.New(reply, msg.Origin))
	}
}

func runEgressTask(ctx context.Context, output *channelpkg.Queue, sender *chatapi.Sender, logger *zap.Logger) {
	for {
		msg, ok := output.Receive(ctx)
		if !ok {
			return
		}
		switch msg.Origin {
		case message.OriginChat:
			if sender != nil {
				sender.Send(msg.Text)
			}
		default:
			fmt.Println(msg.Text)
		}
	}
}

// runLocalIngest reads newline-delimited text from stdin and feeds it
// into the input queue, tagged OriginLocal. It is the one ingress path
// every build has, chat API and scheduler are both optional.
func runLocalIngest(ctx context.Context, input *channelpkg.Queue, logger *zap.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		line := scanner.Text()
		if line == "" {
			continue
		}
		if len(line) > message.MaxBytes {
			line = line[:message.MaxBytes]
		}
		input.TrySend(ctx, message.New(line, message.OriginLocal))
	}
}
