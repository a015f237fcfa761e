package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTP      HTTPConfig
	Database  DatabaseConfig
	Auth      AuthConfig
	Redis     RedisConfig
	Telegram  TelegramConfig
	Geocoding GeocodingConfig
	Import    ImportConfig
	Scheduler SchedulerConfig
	Log       LogConfig
}

type HTTPConfig struct {
	Addr string `env:"HTTP_ADDR" envDefault:":5250"`

	// Comma separated list of origins allowed by CORS
	AllowedOrigins []string `env:"HTTP_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`

	// Requests per second allowed per user (or per IP for anonymous callers)
	RateLimit int `env:"HTTP_RATE_LIMIT" envDefault:"20"`
	RateBurst int `env:"HTTP_RATE_BURST" envDefault:"40"`

	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

type AuthConfig struct {
	JWTSecret string        `env:"JWT_SECRET" envDefault:"change-me-in-production-please"`
	TokenTTL  time.Duration `env:"JWT_TTL" envDefault:"24h"`
	Issuer    string        `env:"JWT_ISSUER" envDefault:"estatehub"`
}

type RedisConfig struct {
	// Empty URL disables the analytics cache
	URL          string        `env:"REDIS_URL"`
	AnalyticsTTL time.Duration `env:"ANALYTICS_CACHE_TTL" envDefault:"5m"`
}

type TelegramConfig struct {
	Enabled  bool   `env:"TELEGRAM_ENABLED" envDefault:"false"`
	BotToken string `env:"TELEGRAM_BOT_TOKEN"`
	ChatID   string `env:"TELEGRAM_CHAT_ID"`
	APIBase  string `env:"TELEGRAM_API_BASE" envDefault:"https://api.telegram.org"`

	// Optional YAML file with lead notification filters
	FiltersFile string `env:"TELEGRAM_FILTERS_FILE"`
}

type GeocodingConfig struct {
	Enabled  bool   `env:"GEOCODING_ENABLED" envDefault:"false"`
	Endpoint string `env:"GEOCODING_ENDPOINT" envDefault:"https://nominatim.openstreetmap.org/search"`
	CacheDir string `env:"GEOCODING_CACHE_DIR" envDefault:"cache"`
}

// ImportConfig configures the listing import pipeline
type ImportConfig struct {
	// Number of batches the queue buffers before rejecting pushes
	QueueSize int `env:"IMPORT_QUEUE_SIZE" envDefault:"16"`

	// Maximum number of listings per batch
	MaxBatchSize int `env:"IMPORT_BATCH_SIZE" envDefault:"100"`

	// Number of concurrent batch processors
	ProcessorCount int `env:"IMPORT_PROCESSOR_COUNT" envDefault:"2"`

	// Maximum number of retries for failed batches
	MaxRetries int `env:"IMPORT_MAX_RETRIES" envDefault:"3"`

	// Delay between retries
	RetryDelay time.Duration `env:"IMPORT_RETRY_DELAY" envDefault:"5s"`
}

type SchedulerConfig struct {
	Enabled        bool   `env:"SCHEDULER_ENABLED" envDefault:"true"`
	ExpireListings string `env:"SCHEDULE_EXPIRE_LISTINGS" envDefault:"0 * * * *"`
	Geocode        string `env:"SCHEDULE_GEOCODE" envDefault:"30 2 * * *"`
	StaleLeads     string `env:"SCHEDULE_STALE_LEADS" envDefault:"0 8 * * *"`
}

type LogConfig struct {
	Level string `env:"LOG_LEVEL" envDefault:"info"`
}

type DatabaseConfig struct {
	// sqlite or postgres
	Driver       string        `env:"DB_DRIVER" envDefault:"sqlite"`
	DSN          string        `env:"DATABASE_URL" envDefault:"database/estatehub.db"`
	MaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLife  time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`
}

// LoadConfig reads an optional .env file and parses the environment.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("DATABASE_URL must not be empty")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return errors.New("JWT_SECRET must be at least 16 characters")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("JWT_TTL must be positive")
	}
	if c.HTTP.RateLimit <= 0 || c.HTTP.RateBurst <= 0 {
		return errors.New("rate limit and burst must be positive")
	}
	if c.Import.QueueSize <= 0 || c.Import.MaxBatchSize <= 0 || c.Import.ProcessorCount <= 0 {
		return errors.New("import queue size, batch size and processor count must be positive")
	}
	if c.Import.MaxRetries < 0 {
		return errors.New("IMPORT_MAX_RETRIES must not be negative")
	}
	if c.Telegram.Enabled && (c.Telegram.BotToken == "" || c.Telegram.ChatID == "") {
		return errors.New("telegram is enabled but bot token or chat id is missing")
	}
	return nil
}
