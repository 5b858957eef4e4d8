// Package config provides observer configuration loaded from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/morezero/service-mirror/pkg/commsutil"
)

const logPrefix = "config:LoadConfig"

// Config holds service-mirror configuration.
type Config struct {
	// COMMS: connect to the runtime's NATS at COMMSURL.
	COMMSURL  string `envconfig:"COMMS_URL" default:"nats://127.0.0.1:4222"`
	COMMSName string `envconfig:"SERVICE_NAME" default:"service-mirror"`
	// RuntimeName overrides the profile's runtime service name (empty = profile).
	RuntimeName string `envconfig:"RUNTIME_NAME"`
	Codec       string `envconfig:"COMMS_CODEC" default:"json"`

	// Subjects
	InboundSubject    string `envconfig:"INBOUND_SUBJECT" default:"mrl.in.>"`
	OutboundPrefix    string `envconfig:"OUTBOUND_PREFIX" default:"mrl.out"`
	ChangeEventPrefix string `envconfig:"CHANGE_EVENT_PREFIX" default:"mirror.changed"`
	QuerySubject      string `envconfig:"QUERY_SUBJECT" default:"mirror.query"`

	// Per-query timeout for COMMS queries (callers may ask for less)
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"10s"`

	// Inbound queue between the transport and sequential dispatch
	InboundQueueSize int `envconfig:"INBOUND_QUEUE_SIZE" default:"1024"`

	// Observer profile
	ProfileFile string `envconfig:"MIRROR_PROFILE_FILE"`

	// Database (optional status journal; empty disables it)
	DatabaseURL      string `envconfig:"DATABASE_URL"`
	RunMigrations    bool   `envconfig:"RUN_MIGRATIONS" default:"false"`
	MigrationPath    string `envconfig:"MIGRATION_PATH" default:"migrations"`
	JournalQueueSize int    `envconfig:"JOURNAL_QUEUE_SIZE" default:"256"`

	// HTTP observer endpoint (HTTP_ADDR preferred, e.g. "0.0.0.0:8080")
	HTTPAddr           string        `envconfig:"HTTP_ADDR"`
	HTTPPort           int           `envconfig:"HTTP_PORT" default:"8080"`
	HealthCheckTimeout time.Duration `envconfig:"HEALTH_CHECK_TIMEOUT" default:"5s"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ValidateForServe checks required config when running the observer.
func (c *Config) ValidateForServe() error {
	if c.COMMSURL == "" {
		return fmt.Errorf("%s - COMMS_URL is required for serve", logPrefix)
	}
	if _, err := commsutil.ParseCodec(c.Codec); err != nil {
		return fmt.Errorf("%s - COMMS_CODEC: %w", logPrefix, err)
	}
	if c.InboundSubject == "" || c.OutboundPrefix == "" || c.ChangeEventPrefix == "" || c.QuerySubject == "" {
		return fmt.Errorf("%s - COMMS subjects must not be empty", logPrefix)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%s - REQUEST_TIMEOUT must be positive", logPrefix)
	}
	if c.InboundQueueSize <= 0 {
		return fmt.Errorf("%s - INBOUND_QUEUE_SIZE must be positive", logPrefix)
	}
	if c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("%s - HEALTH_CHECK_TIMEOUT must be positive", logPrefix)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ValidateForDB checks required config when running DB-dependent commands (migrate, journal).
func (c *Config) ValidateForDB() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%s - DATABASE_URL is required", logPrefix)
	}
	return nil
}

// JournalEnabled reports whether status events are journaled to Postgres.
func (c *Config) JournalEnabled() bool {
	return c.DatabaseURL != ""
}

// ListenAddr returns HTTP_ADDR when set, otherwise ":HTTP_PORT".
func (c *Config) ListenAddr() string {
	if c.HTTPAddr != "" {
		return c.HTTPAddr
	}
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// ParseLogLevel maps LOG_LEVEL to a slog level.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%s - LOG_LEVEL %q is not one of debug, info, warn, error", logPrefix, s)
	}
}
