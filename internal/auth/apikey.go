package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/af-corp/protobridge/internal/types"
)

const (
	alphanumeric = "abcdefghijklmnopqrstuvwxyz0123456789"
	keyScheme    = "pb"
)

// GenerateKey creates a new API key with the format: pb-{env}-{32 random alphanumeric chars}
func GenerateKey(env string) (string, error) {
	random, err := randomString(32)
	if err != nil {
		return "", fmt.Errorf("generate random: %w", err)
	}
	return fmt.Sprintf("%s-%s-%s", keyScheme, env, random), nil
}

// HashKey returns the SHA-256 hex digest of an API key.
func HashKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x", h)
}

// KeyPrefix extracts a display-safe prefix from a key: pb-{env}-{first 8 chars}
func KeyPrefix(key string) string {
	scheme, rest, ok := strings.Cut(key, "-")
	if !ok {
		return truncate(key, 16)
	}
	env, random, ok := strings.Cut(rest, "-")
	if !ok {
		return truncate(key, 16)
	}
	return scheme + "-" + env + "-" + truncate(random, 8)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func randomString(n int) (string, error) {
	b := make([]byte, n)
	max := big.NewInt(int64(len(alphanumeric)))
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = alphanumeric[idx.Int64()]
	}
	return string(b), nil
}

// KeyMetadata holds the cached metadata for an API key.
type KeyMetadata struct {
	ID       string `json:"id"`
	ClientID string `json:"client_id"`
	Name     string `json:"name"`
	// AllowedProtocols restricts which protocols the key may convert from or
	// to. Entries are "name" or "name@version"; empty allows all.
	AllowedProtocols     []string  `json:"allowed_protocols,omitempty"`
	RPMLimit             *int      `json:"rpm_limit,omitempty"`
	DailyConversionLimit *int      `json:"daily_conversion_limit,omitempty"`
	ExpiresAt            time.Time `json:"expires_at"`
}

// ProtocolAllowed reports whether d matches an entry of allowed. An empty
// list allows every protocol.
func ProtocolAllowed(allowed []string, d types.Descriptor) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		name, version, hasVersion := strings.Cut(a, "@")
		if !strings.EqualFold(name, d.Name) {
			continue
		}
		if !hasVersion || version == d.Version {
			return true
		}
	}
	return false
}

// ParseDuration parses a duration string like "365d", "30d", "24h".
func ParseDuration(s string) (time.Duration, error) {
	if len(s) == 0 {
		return 0, fmt.Errorf("empty duration")
	}
	last := s[len(s)-1]
	if last == 'd' {
		var days int
		_, err := fmt.Sscanf(s, "%dd", &days)
		if err != nil {
			return 0, fmt.Errorf("parse days: %w", err)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}
