package tenant

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/daybookhq/daybook/internal/domain"
)

// Key prefixes identify the key class before any lookup happens.
const (
	PublicKeyPrefix = "dbp"
	SecretKeyPrefix = "dbs"
)

// Random suffix lengths in hex characters.
const (
	publicSuffixLen = 24
	secretSuffixLen = 48
)

// slugPattern matches URL-safe tenant slugs: lowercase alphanumerics and
// hyphens, no leading/trailing hyphen.
var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

var hexPattern = regexp.MustCompile(`^[0-9a-f]+$`)

// ValidSlug reports whether s is an acceptable tenant slug.
func ValidSlug(s string) bool {
	return len(s) >= 2 && len(s) <= 40 && slugPattern.MatchString(s)
}

// FormatKey assembles a key from its parts: <prefix>_<slug>_<suffix>.
func FormatKey(prefix, slug, suffix string) string {
	return prefix + "_" + slug + "_" + suffix
}

// ParsePublicKey checks the lexical shape of a public API key and returns the
// embedded tenant slug. Malformed keys fail here, before any store lookup.
func ParsePublicKey(raw string) (string, error) {
	return parseKey(raw, PublicKeyPrefix, publicSuffixLen)
}

// ParseSecretKey checks the lexical shape of a secret API key and returns the
// embedded tenant slug. The caller still has to bcrypt-compare the full key
// against the stored hash.
func ParseSecretKey(raw string) (string, error) {
	return parseKey(raw, SecretKeyPrefix, secretSuffixLen)
}

// NewKeyPair mints a fresh public and secret key for a tenant. The secret is
// shown to the operator exactly once; only its bcrypt hash is stored.
func NewKeyPair(slug string) (publicKey, secretKey string, err error) {
	if !ValidSlug(slug) {
		return "", "", fmt.Errorf("invalid tenant slug %q: %w", slug, domain.ErrValidation)
	}
	pub, err := randomHex(publicSuffixLen)
	if err != nil {
		return "", "", fmt.Errorf("generate public key: %w", err)
	}
	sec, err := randomHex(secretSuffixLen)
	if err != nil {
		return "", "", fmt.Errorf("generate secret key: %w", err)
	}
	return FormatKey(PublicKeyPrefix, slug, pub), FormatKey(SecretKeyPrefix, slug, sec), nil
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n/2)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func parseKey(raw, prefix string, suffixLen int) (string, error) {
	rest, ok := strings.CutPrefix(raw, prefix+"_")
	if !ok {
		return "", fmt.Errorf("key missing %s prefix: %w", prefix, domain.ErrUnauthorized)
	}
	// The slug itself never contains underscores, so the last segment is the
	// random suffix and everything before it is the slug.
	i := strings.LastIndexByte(rest, '_')
	if i <= 0 {
		return "", fmt.Errorf("key missing random suffix: %w", domain.ErrUnauthorized)
	}
	slug, suffix := rest[:i], rest[i+1:]
	if !ValidSlug(slug) {
		return "", fmt.Errorf("key carries invalid slug: %w", domain.ErrUnauthorized)
	}
	if len(suffix) != suffixLen || !hexPattern.MatchString(suffix) {
		return "", fmt.Errorf("key suffix malformed: %w", domain.ErrUnauthorized)
	}
	return slug, nil
}
