// Package secrets keeps runtime credentials out of config files. The payment
// gateway API key and the webhook signing secret load from the environment
// into a Vault, which hands them to the gateway client and the webhook
// verifier and scrubs them from anything headed for the logs.
package secrets

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"
)

// Environment variable names for the secrets the core needs.
const (
	KeyGatewayAPIKey = "DAYBOOK_GATEWAY_KEY"
	KeyWebhookSecret = "DAYBOOK_WEBHOOK_SECRET"
)

// Loader retrieves secrets from a source (env vars, file, remote vault, etc.).
type Loader func() (map[string]string, error)

// EnvLoader returns a Loader over the given environment variables. Unset or
// empty variables are left out of the result, so Get reports them as missing.
func EnvLoader(names ...string) Loader {
	return func() (map[string]string, error) {
		vals := make(map[string]string, len(names))
		for _, name := range names {
			if v := os.Getenv(name); v != "" {
				vals[name] = v
			}
		}
		return vals, nil
	}
}

// Vault holds secret values behind an atomically swapped snapshot, so reads
// never contend with a SIGHUP reload.
type Vault struct {
	snap   atomic.Pointer[map[string]string]
	loader Loader
}

// NewVault creates a Vault, calling the loader once to populate it.
func NewVault(loader Loader) (*Vault, error) {
	vals, err := loader()
	if err != nil {
		return nil, fmt.Errorf("initial secret load: %w", err)
	}
	v := &Vault{loader: loader}
	v.snap.Store(&vals)
	return v, nil
}

// NewEnvVault creates a Vault over the standard Daybook secret variables.
func NewEnvVault() (*Vault, error) {
	return NewVault(EnvLoader(KeyGatewayAPIKey, KeyWebhookSecret))
}

func (v *Vault) values() map[string]string { return *v.snap.Load() }

// Get returns the secret for key, or an empty string if not loaded.
func (v *Vault) Get(key string) string { return v.values()[key] }

// Reload re-runs the loader and swaps in the fresh values. On loader error
// the current values stay in place.
func (v *Vault) Reload() error {
	vals, err := v.loader()
	if err != nil {
		return fmt.Errorf("reload secrets: %w", err)
	}
	v.snap.Store(&vals)
	return nil
}

// Keys returns the names of all loaded secrets.
func (v *Vault) Keys() []string {
	vals := v.values()
	keys := make([]string, 0, len(vals))
	for k := range vals {
		keys = append(keys, k)
	}
	return keys
}

// Redacted returns a display-safe form of the secret for key: the first two
// characters followed by ****, or **** alone for very short values.
func (v *Vault) Redacted(key string) string {
	return mask(v.values()[key])
}

// RedactString masks every loaded secret value appearing in s. Gateway error
// bodies pass through here before they are logged. Values shorter than four
// characters are skipped; masking those would mangle ordinary words.
func (v *Vault) RedactString(s string) string {
	for _, val := range v.values() {
		if len(val) < 4 {
			continue
		}
		s = strings.ReplaceAll(s, val, mask(val))
	}
	return s
}

func mask(val string) string {
	switch {
	case val == "":
		return ""
	case len(val) <= 4:
		return "****"
	default:
		return val[:2] + "****"
	}
}
