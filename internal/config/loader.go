package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "daybook.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
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

// CLIFlags carries command-line overrides. Nil pointers mean "not set".
// CLI flags are the top of the hierarchy: they win over ENV and YAML.
type CLIFlags struct {
	Port       *string
	LogLevel   *string
	DSN        *string
	NatsURL    *string
	ConfigPath *string
}

// ParseFlags parses command-line arguments into CLIFlags. Flags that were
// not passed stay nil so they do not clobber lower layers.
func ParseFlags(args []string) (CLIFlags, error) {
	fs := flag.NewFlagSet("daybook", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	port := fs.String("port", "", "HTTP listen port")
	fs.StringVar(port, "p", "", "HTTP listen port (shorthand)")
	logLevel := fs.String("log-level", "", "log level: debug|info|warn|error")
	dsn := fs.String("dsn", "", "PostgreSQL DSN")
	natsURL := fs.String("nats-url", "", "NATS server URL")
	configPath := fs.String("config", "", "path to YAML config file")
	fs.StringVar(configPath, "c", "", "path to YAML config file (shorthand)")

	if err := fs.Parse(args); err != nil {
		return CLIFlags{}, fmt.Errorf("parse flags: %w", err)
	}

	var flags CLIFlags
	if *port != "" {
		flags.Port = port
	}
	if *logLevel != "" {
		flags.LogLevel = logLevel
	}
	if *dsn != "" {
		flags.DSN = dsn
	}
	if *natsURL != "" {
		flags.NatsURL = natsURL
	}
	if *configPath != "" {
		flags.ConfigPath = configPath
	}
	return flags, nil
}

// LoadWithCLI returns a Config using the full hierarchy:
// defaults < YAML < ENV < CLI. It also returns the YAML path it resolved.
func LoadWithCLI(flags CLIFlags) (*Config, string, error) {
	yamlPath := DefaultConfigFile
	if flags.ConfigPath != nil {
		yamlPath = *flags.ConfigPath
	}

	cfg := Defaults()
	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, "", fmt.Errorf("config yaml: %w", err)
	}
	loadEnv(&cfg)
	applyCLI(&cfg, flags)

	if err := validate(&cfg); err != nil {
		return nil, "", fmt.Errorf("config validate: %w", err)
	}
	return &cfg, yamlPath, nil
}

// applyCLI overlays set CLI flags onto cfg.
func applyCLI(cfg *Config, flags CLIFlags) {
	if flags.Port != nil {
		cfg.Server.Port = *flags.Port
	}
	if flags.LogLevel != nil {
		cfg.Logging.Level = *flags.LogLevel
	}
	if flags.DSN != nil {
		cfg.Postgres.DSN = *flags.DSN
	}
	if flags.NatsURL != nil {
		cfg.NATS.URL = *flags.NatsURL
	}
}

// Holder keeps the active Config and can reload it from disk on demand
// (SIGHUP). A reload that fails validation keeps the old config.
type Holder struct {
	mu   sync.RWMutex
	cfg  *Config
	path string
}

// NewHolder wraps an already-loaded config with its source path.
func NewHolder(cfg *Config, path string) *Holder {
	return &Holder{cfg: cfg, path: path}
}

// Get returns the active config.
func (h *Holder) Get() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

// Reload re-runs the load pipeline from the holder's path and swaps the
// active config on success.
func (h *Holder) Reload() error {
	cfg, err := LoadFrom(h.path)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.cfg = cfg
	h.mu.Unlock()
	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "DAYBOOK_PORT")
	setString(&cfg.Server.CORSOrigin, "DAYBOOK_CORS_ORIGIN")

	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "DAYBOOK_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "DAYBOOK_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "DAYBOOK_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "DAYBOOK_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "DAYBOOK_PG_HEALTH_CHECK")

	setString(&cfg.NATS.URL, "NATS_URL")

	setDuration(&cfg.Cache.TenantTTL, "DAYBOOK_CACHE_TENANT_TTL")
	setDuration(&cfg.Cache.CatalogTTL, "DAYBOOK_CACHE_CATALOG_TTL")
	setDuration(&cfg.Cache.L1TTL, "DAYBOOK_CACHE_L1_TTL")
	setInt64(&cfg.Cache.L1MaxSizeMB, "DAYBOOK_CACHE_L1_SIZE_MB")
	setString(&cfg.Cache.L2Bucket, "DAYBOOK_CACHE_L2_BUCKET")

	setDuration(&cfg.Booking.HoldTTL, "DAYBOOK_BOOKING_HOLD_TTL")
	setDuration(&cfg.Booking.SweepInterval, "DAYBOOK_BOOKING_SWEEP_INTERVAL")
	setInt32(&cfg.Booking.SweepBatch, "DAYBOOK_BOOKING_SWEEP_BATCH")
	setString(&cfg.Booking.Currency, "DAYBOOK_CURRENCY")

	setString(&cfg.Gateway.BaseURL, "DAYBOOK_GATEWAY_URL")
	setDuration(&cfg.Gateway.Timeout, "DAYBOOK_GATEWAY_TIMEOUT")

	setString(&cfg.Webhook.SignatureHeader, "DAYBOOK_WEBHOOK_HEADER")

	setString(&cfg.Idempotency.Bucket, "DAYBOOK_IDEMPOTENCY_BUCKET")
	setDuration(&cfg.Idempotency.TTL, "DAYBOOK_IDEMPOTENCY_TTL")

	setFloat64(&cfg.Rate.RequestsPerSecond, "DAYBOOK_RATE_RPS")
	setInt(&cfg.Rate.Burst, "DAYBOOK_RATE_BURST")
	setDuration(&cfg.Rate.CleanupInterval, "DAYBOOK_RATE_CLEANUP_INTERVAL")
	setDuration(&cfg.Rate.MaxIdleTime, "DAYBOOK_RATE_MAX_IDLE_TIME")

	setInt(&cfg.Breaker.MaxFailures, "DAYBOOK_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "DAYBOOK_BREAKER_TIMEOUT")

	setString(&cfg.Logging.Level, "DAYBOOK_LOG_LEVEL")
	setString(&cfg.Logging.Service, "DAYBOOK_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "DAYBOOK_LOG_ASYNC")

	setBool(&cfg.OTel.Enabled, "DAYBOOK_OTEL_ENABLED")
	setString(&cfg.OTel.Endpoint, "DAYBOOK_OTEL_ENDPOINT")
	setBool(&cfg.OTel.Insecure, "DAYBOOK_OTEL_INSECURE")
}

// validate checks that required fields are set and policy knobs are sane.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Booking.HoldTTL < time.Minute {
		return errors.New("booking.hold_ttl must be >= 1m")
	}
	if cfg.Booking.SweepInterval < 10*time.Second {
		return errors.New("booking.sweep_interval must be >= 10s")
	}
	if cfg.Booking.SweepBatch < 1 {
		return errors.New("booking.sweep_batch must be >= 1")
	}
	if len(cfg.Booking.Currency) != 3 {
		return errors.New("booking.currency must be a 3-letter code")
	}
	if cfg.Gateway.BaseURL == "" {
		return errors.New("gateway.base_url is required")
	}
	if cfg.Gateway.Timeout <= 0 {
		return errors.New("gateway.timeout must be positive")
	}
	if cfg.Webhook.SignatureHeader == "" {
		return errors.New("webhook.signature_header is required")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	return nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
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
