package config

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator"
	_ "github.com/joho/godotenv/autoload"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/providers/env"
)

type Config struct {
	Primary  Primary        `koanf:"primary"`
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Gateway  GatewayConfig  `koanf:"gateway"`
	Retry    RetryConfig    `koanf:"retry"`
	Logger   LoggerConfig   `koanf:"logger"`
	Expiry   ExpiryConfig   `koanf:"expiry"`
	Cleanup  CleanupConfig  `koanf:"cleanup"`
}

type Primary struct {
	Env string `koanf:"env" validate:"required"`
}

// ServerConfig configures the ops HTTP listener (health checks only).
type ServerConfig struct {
	Port         string        `koanf:"port" validate:"required"`
	ReadTimeout  time.Duration `koanf:"read_timeout" validate:"required"`
	WriteTimeout time.Duration `koanf:"write_timeout" validate:"required"`
	IdleTimeout  time.Duration `koanf:"idle_timeout" validate:"required"`
}

type DatabaseConfig struct {
	Host            string        `koanf:"host" validate:"required"`
	Port            int           `koanf:"port" validate:"required"`
	User            string        `koanf:"user" validate:"required"`
	Password        string        `koanf:"password" validate:"required"`
	Name            string        `koanf:"name" validate:"required"`
	SSLMode         string        `koanf:"ssl_mode" validate:"required"`
	MaxOpenConns    int           `koanf:"max_open_conns" validate:"required"`
	MaxIdleConns    int           `koanf:"max_idle_conns" validate:"required"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime" validate:"required"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time" validate:"required"`
}

// GatewayConfig configures the payment gateway client. CallTimeout bounds
// every gateway call; it must sit well below the sweep intervals so one
// slow call cannot stall the scheduler cadence.
type GatewayConfig struct {
	BaseURL     string        `koanf:"base_url" validate:"required"`
	CallTimeout time.Duration `koanf:"call_timeout" validate:"required"`
}

type RetryConfig struct {
	BaseDelay  int32 `koanf:"base_delay"`
	MaxRetries int32 `koanf:"max_retries"`
}

type LoggerConfig struct {
	Level string `koanf:"level"`
}

// ExpiryConfig configures the expiry sweep. ChargeTTL applies to ordinary
// non-terminal charges; AwaitingCaptureTTL to charges waiting on a
// delayed-capture decision.
type ExpiryConfig struct {
	Interval           time.Duration `koanf:"interval" validate:"required"`
	ChargeTTL          time.Duration `koanf:"charge_ttl" validate:"required"`
	AwaitingCaptureTTL time.Duration `koanf:"awaiting_capture_ttl" validate:"required"`
}

// CleanupConfig configures the authorisation-error cleanup sweep. Providers
// and AuthModes are allow-lists; gateways or modes absent from them are
// skipped because their ambiguous-error semantics are not modelled.
type CleanupConfig struct {
	Interval  time.Duration `koanf:"interval" validate:"required"`
	Limit     int           `koanf:"limit" validate:"required"`
	Providers []string      `koanf:"providers" validate:"required"`
	AuthModes []string      `koanf:"auth_modes" validate:"required"`
}

// NewLogger builds the process-wide slog logger at the configured level.
func (c LoggerConfig) NewLogger() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(c.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
}

func LoadConfig() (*Config, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
	k := koanf.New(".")

	err := k.Load(env.Provider("CONNECTOR_", ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, "CONNECTOR_")),
			"__",
			".",
		)
	}), nil)
	if err != nil {
		logger.Error("failed to load environment variables", "error", err)
		return nil, err
	}

	mainConfig := &Config{}

	err = k.Unmarshal("", mainConfig)
	if err != nil {
		logger.Error("could not unmarshal main config", "error", err)
		return nil, err
	}

	validate := validator.New()

	err = validate.Struct(mainConfig)
	if err != nil {
		logger.Error("config validation failed", "error", err)
		return nil, err
	}

	return mainConfig, nil
}
