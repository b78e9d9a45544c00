// Package config loads the bootstrap (process-level) configuration —
// settings that must exist before the store opens. Everything that
// must survive reboot or be mutable from a tool call lives in the
// store instead (internal/store's tz_ and tc_ namespaces), never here.
// The LLM vendor, key and model and the chat-API credentials are
// bootstrap settings and are read from here, not from the store.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Vendor names the single active LLM vendor selected at startup. The
// runtime never switches vendors at runtime — that is a fresh process
// restart with a different bootstrap config.
type Vendor string

const (
	VendorAnthropic  Vendor = "anthropic"
	VendorOpenAI     Vendor = "openai"
	VendorOpenRouter Vendor = "openrouter"
)

// Config holds every setting needed before the persistent store opens.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Storage   StorageConfig   `mapstructure:"storage"`
	ChatAPI   ChatAPIConfig   `mapstructure:"chatapi"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Queues    QueuesConfig    `mapstructure:"queues"`
	Supervisor SupervisorConfig `mapstructure:"supervisor"`
	ClockSync ClockSyncConfig `mapstructure:"clocksync"`
}

// ServerConfig holds the ops-facing /healthz /metrics listener settings.
type ServerConfig struct {
	Address string `mapstructure:"address"`
	Port    int    `mapstructure:"port"`
}

// LLMConfig selects the single active vendor and its credentials.
type LLMConfig struct {
	Vendor    Vendor `mapstructure:"vendor"`
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	BaseURL   string `mapstructure:"base_url"`
	MaxTokens int    `mapstructure:"max_tokens"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// StorageConfig holds the Badger data directory.
type StorageConfig struct {
	DataDir    string `mapstructure:"data_dir"`
	BadgerPath string `mapstructure:"badger_path"`
}

// ChatAPIConfig holds the long-poll chat ingest's bootstrap settings.
type ChatAPIConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	BotToken         string  `mapstructure:"bot_token"`
	BaseURL          string  `mapstructure:"base_url"`
	AuthorisedChatID int64   `mapstructure:"authorised_chat_id"`
	AllowList        []int64 `mapstructure:"allow_list"`
}

// SchedulerConfig holds the scheduler's tick interval.
type SchedulerConfig struct {
	TickSeconds int `mapstructure:"tick_seconds"`
}

// QueuesConfig holds the input/output bounded queue capacities.
type QueuesConfig struct {
	InputCapacity  int `mapstructure:"input_capacity"`
	OutputCapacity int `mapstructure:"output_capacity"`
}

// SupervisorConfig holds boot-health thresholds.
type SupervisorConfig struct {
	BootSuccessDelayMS      int `mapstructure:"boot_success_delay_ms"`
	MaxConsecutiveFailedBoots int `mapstructure:"max_consecutive_failed_boots"`
}

// ClockSyncConfig holds the remote endpoint the boot-time clock check
// reads a Date header from, standing in for a device's NTP exchange.
type ClockSyncConfig struct {
	URL              string `mapstructure:"url"`
	ToleranceSeconds int    `mapstructure:"tolerance_seconds"`
	RetrySeconds     int    `mapstructure:"retry_seconds"`
}

// Load loads configuration from an optional YAML file, then
// FIELDMIND_* environment variables, then defaults.
func Load(configPath, dataDir string) (*Config, error) {
	_ = LoadEnvFiles()

	v := viper.New()
	setDefaults(v)

	if dataDir == "" {
		dataDir = getDefaultDataDir()
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	v.Set("storage.data_dir", dataDir)
	v.Set("storage.badger_path", filepath.Join(dataDir, "badger"))

	if configPath == "" {
		configPath = filepath.Join(dataDir, "fieldmind.yaml")
	}
	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	v.SetEnvPrefix("FIELDMIND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	loadEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	v.SetDefault("llm.vendor", "anthropic")
	v.SetDefault("llm.model", "claude-haiku-4-5")
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.timeout_seconds", 30)

	v.SetDefault("chatapi.enabled", false)
	v.SetDefault("chatapi.base_url", "https://api.telegram.org")

	v.SetDefault("scheduler.tick_seconds", 60)

	v.SetDefault("queues.input_capacity", 16)
	v.SetDefault("queues.output_capacity", 16)

	v.SetDefault("supervisor.boot_success_delay_ms", 30000)
	v.SetDefault("supervisor.max_consecutive_failed_boots", 3)

	v.SetDefault("clocksync.url", "https://www.google.com")
	v.SetDefault("clocksync.tolerance_seconds", 300)
	v.SetDefault("clocksync.retry_seconds", 30)
}

func getDefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "fieldmind")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".local", "share", "fieldmind")
}

// loadEnvOverrides fills in settings viper's automatic env binding
// misses because they don't map to a single flat key.
func loadEnvOverrides(cfg *Config) {
	getEnv := func(key, fallback string) string {
		if val := os.Getenv(key); val != "" {
			return val
		}
		return fallback
	}

	cfg.LLM.APIKey = getEnv("FIELDMIND_LLM_API_KEY", cfg.LLM.APIKey)
	cfg.ChatAPI.BotToken = getEnv("FIELDMIND_CHATAPI_BOT_TOKEN", cfg.ChatAPI.BotToken)

	if port := os.Getenv("FIELDMIND_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if chatID := os.Getenv("FIELDMIND_CHATAPI_AUTHORISED_CHAT_ID"); chatID != "" {
		if id, err := strconv.ParseInt(chatID, 10, 64); err == nil {
			cfg.ChatAPI.AuthorisedChatID = id
		}
	}
}

func validate(cfg *Config) error {
	switch cfg.LLM.Vendor {
	case VendorAnthropic, VendorOpenAI, VendorOpenRouter:
	default:
		return fmt.Errorf("llm.vendor must be one of anthropic, openai, openrouter, got %q", cfg.LLM.Vendor)
	}
	if cfg.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key is required (set FIELDMIND_LLM_API_KEY)")
	}
	if cfg.ChatAPI.Enabled && cfg.ChatAPI.BotToken == "" {
		return fmt.Errorf("chatapi.bot_token is required when chatapi.enabled is true")
	}
	return nil
}
