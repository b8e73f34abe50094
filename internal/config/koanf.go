package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the config file locations searched in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/recreationcalc/config.yaml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

const devSigningKey = "local-dev-signing-key-change-in-production"

// Default returns the configuration used before any file or environment
// overrides are applied.
func Default() *Config {
	return &Config{
		App: AppConfig{
			Environment: "development",
			LogLevel:    "info",
		},
		Server: ServerConfig{
			Port:               8080,
			ReadTimeout:        15 * time.Second,
			WriteTimeout:       15 * time.Second,
			IdleTimeout:        60 * time.Second,
			ShutdownTimeout:    30 * time.Second,
			RequireTLS:         false,
			RateLimitPerMinute: 120,
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			Host:            "localhost",
			Port:            5432,
			User:            "recreationcalc",
			Password:        "localdev",
			Name:            "recreationcalc",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			AutoMigrate:     true,
		},
		Auth: AuthConfig{
			SigningKey:     devSigningKey,
			Issuer:         "recreationcalc",
			AccessTokenTTL: time.Hour,
			BcryptCost:     10,
			AdminEmails:    []string{},
		},
		Telemetry: TelemetryConfig{
			Enabled:        false,
			Endpoint:       "localhost:4317",
			Insecure:       true,
			SampleRatio:    1,
			MetricInterval: 15 * time.Second,
		},
		PubSub: PubSubConfig{
			Enabled:      false,
			Topic:        "capacity-jobs",
			Subscription: "capacity-jobs-worker",
		},
		Catalog: CatalogConfig{
			CacheTTL: 5 * time.Minute,
		},
		Worker: WorkerConfig{
			Concurrency:  4,
			JobTimeout:   10 * time.Minute,
			RouteTimeout: 10 * time.Second,
		},
	}
}

// Load builds the configuration: struct defaults, then the first config
// file found, then environment variables. The result is validated.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if err := splitListFields(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func findConfigFile() string {
	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envMappings maps environment variable names to config keys. Variables
// not listed here are ignored.
var envMappings = map[string]string{
	"APP_ENV":        "app.environment",
	"LOG_LEVEL":      "app.log_level",
	"APP_PORT":       "server.port",
	"REQUIRE_TLS":    "server.require_tls",
	"RATE_LIMIT_RPM": "server.rate_limit_per_minute",

	"DB_DRIVER":            "database.driver",
	"DB_HOST":              "database.host",
	"DB_PORT":              "database.port",
	"DB_USER":              "database.user",
	"DB_PASSWORD":          "database.password",
	"DB_NAME":              "database.name",
	"DB_SSL_MODE":          "database.ssl_mode",
	"DB_MAX_OPEN_CONNS":    "database.max_open_conns",
	"DB_MAX_IDLE_CONNS":    "database.max_idle_conns",
	"DB_CONN_MAX_LIFETIME": "database.conn_max_lifetime",
	"DB_AUTO_MIGRATE":      "database.auto_migrate",

	"JWT_SIGNING_KEY":  "auth.signing_key",
	"JWT_ISSUER":       "auth.issuer",
	"ACCESS_TOKEN_TTL": "auth.access_token_ttl",
	"BCRYPT_COST":      "auth.bcrypt_cost",
	"ADMIN_EMAILS":     "auth.admin_emails",

	"OTEL_ENABLED":                "telemetry.enabled",
	"OTEL_EXPORTER_OTLP_ENDPOINT": "telemetry.endpoint",
	"OTEL_EXPORTER_OTLP_INSECURE": "telemetry.insecure",
	"OTEL_TRACES_SAMPLER_ARG":     "telemetry.sample_ratio",

	"PUBSUB_ENABLED":      "pubsub.enabled",
	"GCP_PROJECT_ID":      "pubsub.project_id",
	"PUBSUB_TOPIC":        "pubsub.topic",
	"PUBSUB_SUBSCRIPTION": "pubsub.subscription",

	"CATALOG_CACHE_TTL": "catalog.cache_ttl",

	"WORKER_CONCURRENCY":   "worker.concurrency",
	"WORKER_JOB_TIMEOUT":   "worker.job_timeout",
	"WORKER_ROUTE_TIMEOUT": "worker.route_timeout",
}

func envKey(name string) string {
	return envMappings[name]
}

// listConfigPaths are keys that may arrive as comma-separated strings.
var listConfigPaths = []string{
	"auth.admin_emails",
}

func splitListFields(k *koanf.Koanf) error {
	for _, path := range listConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok {
			continue
		}

		items := []string{}
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				items = append(items, part)
			}
		}
		if err := k.Set(path, items); err != nil {
			return fmt.Errorf("set %s: %w", path, err)
		}
	}
	return nil
}
