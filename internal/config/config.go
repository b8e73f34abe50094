// Package config loads service configuration from defaults, an optional
// YAML file and environment variables, in that order of precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/recreationcalc/recreationcalc/internal/validation"
)

// Config is the full service configuration shared by the API and worker.
type Config struct {
	App       AppConfig       `koanf:"app"`
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Auth      AuthConfig      `koanf:"auth"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	PubSub    PubSubConfig    `koanf:"pubsub"`
	Catalog   CatalogConfig   `koanf:"catalog"`
	Worker    WorkerConfig    `koanf:"worker"`
}

// AppConfig holds process-wide settings.
type AppConfig struct {
	Environment string `koanf:"environment" validate:"required,oneof=development test staging production"`
	LogLevel    string `koanf:"log_level" validate:"required,oneof=trace debug info warn error"`
}

// IsProduction reports whether the service runs in production.
func (c AppConfig) IsProduction() bool {
	return c.Environment == "production"
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	RequireTLS      bool          `koanf:"require_tls"`

	// RateLimitPerMinute bounds requests per client IP.
	RateLimitPerMinute int `koanf:"rate_limit_per_minute" validate:"min=1"`
}

// DatabaseConfig holds PostgreSQL settings. Driver "memory" runs without
// a database, which is meant for local development only.
type DatabaseConfig struct {
	Driver          string        `koanf:"driver" validate:"oneof=postgres memory"`
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	User            string        `koanf:"user"`
	Password        string        `koanf:"password"`
	Name            string        `koanf:"name"`
	SSLMode         string        `koanf:"ssl_mode"`
	MaxOpenConns    int           `koanf:"max_open_conns" validate:"min=1"`
	MaxIdleConns    int           `koanf:"max_idle_conns" validate:"min=0"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

// AuthConfig holds token and password settings.
type AuthConfig struct {
	SigningKey     string        `koanf:"signing_key"`
	Issuer         string        `koanf:"issuer" validate:"required"`
	AccessTokenTTL time.Duration `koanf:"access_token_ttl"`
	BcryptCost     int           `koanf:"bcrypt_cost" validate:"min=4,max=31"`
	AdminEmails    []string      `koanf:"admin_emails"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	Enabled        bool          `koanf:"enabled"`
	Endpoint       string        `koanf:"endpoint"`
	Insecure       bool          `koanf:"insecure"`
	SampleRatio    float64       `koanf:"sample_ratio" validate:"gte=0,lte=1"`
	MetricInterval time.Duration `koanf:"metric_interval"`
}

// PubSubConfig holds Cloud Pub/Sub settings.
type PubSubConfig struct {
	Enabled      bool   `koanf:"enabled"`
	ProjectID    string `koanf:"project_id"`
	Topic        string `koanf:"topic"`
	Subscription string `koanf:"subscription"`
}

// CatalogConfig holds factor catalog cache settings.
type CatalogConfig struct {
	CacheTTL time.Duration `koanf:"cache_ttl"`
}

// WorkerConfig holds recalculation worker settings.
type WorkerConfig struct {
	Concurrency  int           `koanf:"concurrency" validate:"min=1,max=64"`
	JobTimeout   time.Duration `koanf:"job_timeout"`
	RouteTimeout time.Duration `koanf:"route_timeout"`
}

// Validate checks field constraints and cross-field requirements.
func (c *Config) Validate() error {
	if errs := validation.ValidateStruct(c); len(errs) > 0 {
		msgs := make([]string, 0, len(errs))
		for _, e := range errs {
			msgs = append(msgs, e.Field+": "+e.Message)
		}
		return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
	}

	if c.Database.Driver == "postgres" && c.Database.Host == "" {
		return fmt.Errorf("invalid configuration: database.host is required for the postgres driver")
	}
	if c.App.IsProduction() {
		if c.Auth.SigningKey == "" || c.Auth.SigningKey == devSigningKey {
			return fmt.Errorf("invalid configuration: auth.signing_key must be set in production")
		}
		if c.Database.Driver == "memory" {
			return fmt.Errorf("invalid configuration: the memory database driver is not allowed in production")
		}
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.Topic == "") {
		return fmt.Errorf("invalid configuration: pubsub.project_id and pubsub.topic are required when pubsub is enabled")
	}

	return nil
}
