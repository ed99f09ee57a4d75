package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Browser     BrowserConfig
	AdLibrary   AdLibraryConfig
	Webhook     WebhookConfig
	Harvest     HarvestConfig
	RateLimit   RateLimitConfig
	Logging     LoggingConfig
	Tracing     TracingConfig
	Environment string
}

type ServerConfig struct {
	Host string
	Port int
}

type DatabaseConfig struct {
	URL            string
	MaxConnections int
	MaxIdle        int
}

// BrowserConfig points the harvester at a remote Chromium DevTools endpoint.
// An empty ControlURL disables browser harvesting; targets then fall back to
// the static (colly) harvester.
type BrowserConfig struct {
	ControlURL  string
	NavTimeout  time.Duration
	ScrollDelay time.Duration
	MaxScrolls  int
}

type AdLibraryConfig struct {
	BaseURL     string
	AccessToken string
	MinInterval time.Duration
}

type WebhookConfig struct {
	Secret   string
	AlertURL string
}

type HarvestConfig struct {
	BatchSize  int
	TargetsDir string
}

type RateLimitConfig struct {
	WebhookPerMinute int
	ImportPerMinute  int
}

type LoggingConfig struct {
	Level  string
	Format string
}

type TracingConfig struct {
	Enabled     bool
	Exporter    string
	ServiceName string
	SampleRate  float64
}

func Load() (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnvInt("SERVER_PORT", 8080),
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConnections: getEnvInt("DATABASE_MAX_CONNECTIONS", 25),
			MaxIdle:        getEnvInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
		},
		Browser: BrowserConfig{
			ControlURL:  getEnv("BROWSER_CONTROL_URL", ""),
			NavTimeout:  time.Duration(getEnvInt("BROWSER_NAV_TIMEOUT_SECONDS", 45)) * time.Second,
			ScrollDelay: time.Duration(getEnvInt("BROWSER_SCROLL_DELAY_MS", 1500)) * time.Millisecond,
			MaxScrolls:  getEnvInt("BROWSER_MAX_SCROLLS", 40),
		},
		AdLibrary: AdLibraryConfig{
			BaseURL:     getEnv("AD_LIBRARY_API_URL", "https://graph.facebook.com/v19.0"),
			AccessToken: getEnv("AD_LIBRARY_ACCESS_TOKEN", ""),
			MinInterval: time.Duration(getEnvInt("AD_LIBRARY_MIN_INTERVAL_MS", 500)) * time.Millisecond,
		},
		Webhook: WebhookConfig{
			Secret:   getEnv("WEBHOOK_SECRET", ""),
			AlertURL: getEnv("WEBHOOK_ALERT_URL", ""),
		},
		Harvest: HarvestConfig{
			BatchSize:  getEnvInt("HARVEST_BATCH_SIZE", 50),
			TargetsDir: getEnv("HARVEST_TARGETS_DIR", "configs/targets"),
		},
		RateLimit: RateLimitConfig{
			WebhookPerMinute: getEnvInt("RATE_LIMIT_WEBHOOK", 120),
			ImportPerMinute:  getEnvInt("RATE_LIMIT_IMPORT", 30),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Tracing: TracingConfig{
			Enabled:     getEnv("TRACING_ENABLED", "false") == "true",
			Exporter:    getEnv("TRACING_EXPORTER", "none"),
			ServiceName: getEnv("TRACING_SERVICE_NAME", "adscope-harvester"),
			SampleRate:  getEnvFloat("TRACING_SAMPLE_RATE", 1.0),
		},
		Environment: getEnv("ENVIRONMENT", "development"),
	}

	if cfg.Database.URL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Harvest.BatchSize <= 0 {
		return Config{}, fmt.Errorf("HARVEST_BATCH_SIZE must be positive")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
