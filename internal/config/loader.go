package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Strob0t/DealWatch/internal/domain/schedule"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "dealwatch.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	path := DefaultConfigFile
	if p := os.Getenv("DEALWATCH_CONFIG"); p != "" {
		path = p
	}
	return LoadFrom(path)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from operator config
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "DEALWATCH_PORT")
	setString(&cfg.Server.CORSOrigin, "DEALWATCH_CORS_ORIGIN")
	setFloat64(&cfg.Server.RateLimitRPS, "DEALWATCH_RATE_LIMIT_RPS")
	setInt(&cfg.Server.RateLimitBurst, "DEALWATCH_RATE_LIMIT_BURST")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "DEALWATCH_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "DEALWATCH_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "DEALWATCH_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "DEALWATCH_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "DEALWATCH_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Logging.Level, "DEALWATCH_LOG_LEVEL")
	setString(&cfg.Logging.Service, "DEALWATCH_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "DEALWATCH_LOG_ASYNC")
	setInt(&cfg.Breaker.MaxFailures, "DEALWATCH_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "DEALWATCH_BREAKER_TIMEOUT")

	// Amadeus
	setString(&cfg.Amadeus.BaseURL, "AMADEUS_BASE_URL")
	setFloat64(&cfg.Amadeus.RequestsPerSecond, "DEALWATCH_AMADEUS_RPS")
	setInt(&cfg.Amadeus.Burst, "DEALWATCH_AMADEUS_BURST")
	setDuration(&cfg.Amadeus.Timeout, "DEALWATCH_AMADEUS_TIMEOUT")
	setInt(&cfg.Amadeus.SearchMax, "DEALWATCH_AMADEUS_SEARCH_MAX")

	// SMTP
	setString(&cfg.SMTP.Host, "SMTP_HOST")
	setInt(&cfg.SMTP.Port, "SMTP_PORT")
	setString(&cfg.SMTP.From, "SMTP_FROM")
	setString(&cfg.SMTP.Username, "SMTP_USERNAME")
	setString(&cfg.SMTP.Password, "SMTP_PASSWORD")

	// Webhook
	setDuration(&cfg.Webhook.Timeout, "DEALWATCH_WEBHOOK_TIMEOUT")
	setString(&cfg.Webhook.UserAgent, "DEALWATCH_WEBHOOK_USER_AGENT")
	setString(&cfg.Webhook.SigningSecret, "DEALWATCH_WEBHOOK_SECRET")
	setString(&cfg.Webhook.HookSecret, "DEALWATCH_HOOK_SECRET")

	// Scheduler
	setBool(&cfg.Scheduler.Enabled, "DEALWATCH_SCHEDULER_ENABLED")
	setString(&cfg.Scheduler.Schedule, "DEALWATCH_SCHEDULE")
	setDuration(&cfg.Scheduler.CheckInterval, "DEALWATCH_SCHEDULER_CHECK_INTERVAL")

	setInt64(&cfg.Cache.L1MaxSizeMB, "DEALWATCH_CACHE_L1_SIZE_MB")

	// OTEL
	setString(&cfg.OTEL.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&cfg.OTEL.ServiceName, "OTEL_SERVICE_NAME")
	setBool(&cfg.OTEL.Insecure, "DEALWATCH_OTEL_INSECURE")
	setFloat64(&cfg.OTEL.SampleRate, "DEALWATCH_OTEL_SAMPLE_RATE")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Server.RateLimitRPS < 0 {
		return errors.New("server.rate_limit_rps must be >= 0")
	}
	if cfg.Server.RateLimitRPS > 0 && cfg.Server.RateLimitBurst < 1 {
		return errors.New("server.rate_limit_burst must be >= 1 when rate limiting is enabled")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Amadeus.BaseURL == "" {
		return errors.New("amadeus.base_url is required")
	}
	if cfg.Amadeus.RequestsPerSecond <= 0 {
		return errors.New("amadeus.requests_per_second must be > 0")
	}
	if cfg.Amadeus.Burst < 1 {
		return errors.New("amadeus.burst must be >= 1")
	}
	if cfg.Amadeus.SearchMax < 1 || cfg.Amadeus.SearchMax > 250 {
		return errors.New("amadeus.search_max must be between 1 and 250")
	}
	if cfg.Webhook.Timeout <= 0 {
		return errors.New("webhook.timeout must be > 0")
	}
	if cfg.Webhook.HookSecret != "" && cfg.Webhook.HookSecret == cfg.Webhook.SigningSecret {
		return errors.New("webhook.hook_secret must differ from webhook.signing_secret")
	}
	if cfg.Scheduler.Enabled {
		if err := schedule.Validate(cfg.Scheduler.Schedule); err != nil {
			return fmt.Errorf("scheduler.schedule: %w", err)
		}
		if cfg.Scheduler.CheckInterval < time.Second {
			return errors.New("scheduler.check_interval must be >= 1s")
		}
	}
	if cfg.OTEL.SampleRate < 0 || cfg.OTEL.SampleRate > 1 {
		return errors.New("otel.sample_rate must be between 0 and 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
