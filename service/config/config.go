package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"pushbridge/service/iterable"
)

type Config struct {
	Port           int
	APIKey         string
	VerboseLogging bool
	RateLimit      int
	TracingEnabled bool

	BridgeSocketPath  string
	BridgeCallTimeout time.Duration

	IterableAPIKey             string
	PushIntegrationName        string
	SandboxPushIntegrationName string
	PushPlatform               string
	AutoPushRegistration       bool
	CheckForDeferredDeeplink   bool
	InAppDisplayInterval       float64

	HandledURLPrefixes []string
	TelegramBotToken   string

	StoragePath       string
	ActivityRetention time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnvInt("PORT", 8080),
		APIKey:         os.Getenv("API_KEY"),
		VerboseLogging: getEnvBool("VERBOSE_LOGGING", false),
		RateLimit:      getEnvInt("RATE_LIMIT", 100),
		TracingEnabled: getEnvBool("TRACING_ENABLED", false),

		BridgeSocketPath:  getEnvString("BRIDGE_SOCKET", "./data/native-bridge.sock"),
		BridgeCallTimeout: time.Duration(getEnvInt("BRIDGE_CALL_TIMEOUT_MS", 10000)) * time.Millisecond,

		IterableAPIKey:             os.Getenv("ITERABLE_API_KEY"),
		PushIntegrationName:        os.Getenv("PUSH_INTEGRATION_NAME"),
		SandboxPushIntegrationName: os.Getenv("SANDBOX_PUSH_INTEGRATION_NAME"),
		PushPlatform:               getEnvString("PUSH_PLATFORM", "auto"),
		AutoPushRegistration:       getEnvBool("AUTO_PUSH_REGISTRATION", true),
		CheckForDeferredDeeplink:   getEnvBool("CHECK_FOR_DEFERRED_DEEPLINK", false),
		InAppDisplayInterval:       getEnvFloat("IN_APP_DISPLAY_INTERVAL", 30),

		HandledURLPrefixes: getEnvList("HANDLED_URL_PREFIXES"),
		TelegramBotToken:   os.Getenv("TELEGRAM_BOT_TOKEN"),

		StoragePath:       getEnvString("STORAGE_PATH", "./data/pushbridge.db"),
		ActivityRetention: time.Duration(getEnvInt("ACTIVITY_RETENTION_HOURS", 720)) * time.Hour,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("API_KEY environment variable is required")
	}
	if c.IterableAPIKey == "" {
		return fmt.Errorf("ITERABLE_API_KEY environment variable is required")
	}
	if c.BridgeCallTimeout <= 0 {
		return fmt.Errorf("BRIDGE_CALL_TIMEOUT_MS must be positive")
	}
	if _, err := iterable.ParsePushPlatform(c.PushPlatform); err != nil {
		return fmt.Errorf("PUSH_PLATFORM: %w", err)
	}
	return nil
}

func (c *Config) IsTelegramEnabled() bool {
	return c.TelegramBotToken != ""
}

// SDKConfig builds the facade configuration. Delegates are left for the
// caller to attach.
func (c *Config) SDKConfig() *iterable.Config {
	sdk := iterable.NewConfig()
	sdk.PushPlatform, _ = iterable.ParsePushPlatform(c.PushPlatform)
	sdk.AutoPushRegistration = c.AutoPushRegistration
	sdk.CheckForDeferredDeeplink = c.CheckForDeferredDeeplink
	sdk.InAppDisplayInterval = c.InAppDisplayInterval
	if c.PushIntegrationName != "" {
		name := c.PushIntegrationName
		sdk.PushIntegrationName = &name
	}
	if c.SandboxPushIntegrationName != "" {
		name := c.SandboxPushIntegrationName
		sdk.SandboxPushIntegrationName = &name
	}
	return sdk
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvList(key string) []string {
	var items []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	return items
}
