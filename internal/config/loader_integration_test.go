package config

import (
	"os"
	"path/filepath"
	"testing"
)

// These tests run the whole LoadFrom pipeline: defaults < YAML < ENV,
// then validation.

// writeConfig drops YAML into a temp dir and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "daybook.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// pinEnv blanks every variable the assertions below depend on. The loader
// skips empty values, so this makes the tests hermetic even when the host
// shell exports DATABASE_URL or NATS_URL.
func pinEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"DAYBOOK_PORT", "DAYBOOK_LOG_LEVEL", "DAYBOOK_PG_MAX_CONNS",
		"DAYBOOK_CURRENCY", "DAYBOOK_BOOKING_HOLD_TTL", "DAYBOOK_RATE_BURST",
		"DAYBOOK_BREAKER_TIMEOUT", "DAYBOOK_RATE_RPS", "DAYBOOK_GATEWAY_URL",
		"DATABASE_URL", "NATS_URL",
	} {
		t.Setenv(name, "")
	}
}

func TestLoadFromLayersEnvOverYAML(t *testing.T) {
	pinEnv(t)
	path := writeConfig(t, `
server:
  port: "9090"
logging:
  level: "debug"
booking:
  currency: "eur"
`)
	t.Setenv("DAYBOOK_PORT", "7070")
	t.Setenv("DAYBOOK_CURRENCY", "gbp")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("port = %q, want env value 7070", cfg.Server.Port)
	}
	if cfg.Booking.Currency != "gbp" {
		t.Errorf("currency = %q, want env value gbp", cfg.Booking.Currency)
	}
	// No env override for the log level, so YAML wins.
	if cfg.Logging.Level != "debug" {
		t.Errorf("level = %q, want yaml value debug", cfg.Logging.Level)
	}
}

func TestLoadFromPartialYAMLKeepsDefaults(t *testing.T) {
	pinEnv(t)
	path := writeConfig(t, `
booking:
  hold_ttl: 2h
`)

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if cfg.Booking.HoldTTL.String() != "2h0m0s" {
		t.Errorf("hold_ttl = %v, want 2h", cfg.Booking.HoldTTL)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("port = %q, want default 8080", cfg.Server.Port)
	}
	if cfg.Postgres.MaxConns != 15 {
		t.Errorf("max_conns = %d, want default 15", cfg.Postgres.MaxConns)
	}
	if cfg.Booking.Currency != "usd" {
		t.Errorf("currency = %q, want default usd", cfg.Booking.Currency)
	}
	if cfg.Webhook.SignatureHeader != "Daybook-Signature" {
		t.Errorf("signature header = %q", cfg.Webhook.SignatureHeader)
	}
}

func TestLoadFromIgnoresMalformedEnvValues(t *testing.T) {
	pinEnv(t)
	path := writeConfig(t, "")

	t.Setenv("DAYBOOK_PG_MAX_CONNS", "many")
	t.Setenv("DAYBOOK_BREAKER_TIMEOUT", "soonish")
	t.Setenv("DAYBOOK_RATE_RPS", "fast")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if cfg.Postgres.MaxConns != 15 {
		t.Errorf("max_conns = %d, want default 15 after bad env", cfg.Postgres.MaxConns)
	}
	if cfg.Breaker.Timeout.String() != "30s" {
		t.Errorf("breaker timeout = %v, want default 30s after bad env", cfg.Breaker.Timeout)
	}
	if cfg.Rate.RequestsPerSecond != 10 {
		t.Errorf("rate rps = %v, want default 10 after bad env", cfg.Rate.RequestsPerSecond)
	}
}

func TestLoadFromMissingFileUsesDefaults(t *testing.T) {
	pinEnv(t)

	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing YAML must not error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("port = %q, want default 8080", cfg.Server.Port)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("level = %q, want default info", cfg.Logging.Level)
	}
}

func TestLoadFromRejectsMalformedYAML(t *testing.T) {
	pinEnv(t)
	path := writeConfig(t, `{{{not yaml`)

	if _, err := LoadFrom(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadFromValidatesMergedConfig(t *testing.T) {
	pinEnv(t)

	// Validation runs after all layers merge, so a YAML value that breaks a
	// policy rule fails the whole load.
	path := writeConfig(t, `
booking:
  currency: "dollars"
`)
	if _, err := LoadFrom(path); err == nil {
		t.Fatal("expected validation error for 7-letter currency code")
	}

	path = writeConfig(t, `
booking:
  sweep_interval: 2s
`)
	if _, err := LoadFrom(path); err == nil {
		t.Fatal("expected validation error for sweep interval under 10s")
	}
}

func TestHolderReloadPicksUpChanges(t *testing.T) {
	pinEnv(t)
	path := writeConfig(t, `
logging:
  level: "info"
rate:
  burst: 50
`)

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	holder := NewHolder(cfg, path)

	if got := holder.Get(); got.Rate.Burst != 50 {
		t.Fatalf("initial burst = %d, want 50", got.Rate.Burst)
	}

	if err := os.WriteFile(path, []byte(`
logging:
  level: "debug"
rate:
  burst: 200
`), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := holder.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	got := holder.Get()
	if got.Logging.Level != "debug" {
		t.Errorf("level after reload = %q, want debug", got.Logging.Level)
	}
	if got.Rate.Burst != 200 {
		t.Errorf("burst after reload = %d, want 200", got.Rate.Burst)
	}
}

func TestHolderKeepsConfigWhenReloadFails(t *testing.T) {
	pinEnv(t)
	path := writeConfig(t, `
server:
  port: "9090"
`)

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	holder := NewHolder(cfg, path)

	// Break the file, then make sure the running config is untouched.
	if err := os.WriteFile(path, []byte(`
booking:
  currency: "x"
`), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := holder.Reload(); err == nil {
		t.Fatal("expected reload to fail validation")
	}
	if got := holder.Get(); got.Server.Port != "9090" {
		t.Errorf("port = %q, want 9090 preserved after failed reload", got.Server.Port)
	}
}

func TestHolderReloadAppliesEnv(t *testing.T) {
	pinEnv(t)
	path := writeConfig(t, `
logging:
  level: "info"
`)

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	holder := NewHolder(cfg, path)

	// Env set between loads takes effect on the next reload.
	t.Setenv("DAYBOOK_LOG_LEVEL", "error")

	if err := holder.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := holder.Get(); got.Logging.Level != "error" {
		t.Errorf("level = %q, want env value error", got.Logging.Level)
	}
}
