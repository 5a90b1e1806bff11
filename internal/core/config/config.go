// Package config provides configuration management for editcheck commands.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"
)

// Environment variables holding secrets. These are never read from files.
const (
	EnvHMACSecret   = "EC_HMAC_SECRET"
	EnvLookupAPIKey = "EC_LOOKUP_API_KEY"
)

// Config is the full editcheck configuration.
type Config struct {
	DatabaseURL string
	Log         LogConfig
	Engine      EngineConfig
	Catalog     CatalogConfig
	Lookup      LookupConfig
	LookupAPI   LookupAPIConfig
}

// LogConfig selects the slog level and handler.
type LogConfig struct {
	Level  string
	Format string
}

// EngineConfig tunes validation runs.
type EngineConfig struct {
	Year                 int
	RecordConcurrency    int
	AggregateConcurrency int
}

// CatalogConfig selects where edits come from: "builtin" or "db".
type CatalogConfig struct {
	Source string
}

// LookupConfig configures the lookup collaborator used during validation.
// Mode "local" reads the reference tables in DatabaseURL, "remote" calls a
// lookup server at Address. CacheURL enables the Redis read-through cache.
type LookupConfig struct {
	Mode     string
	Address  string
	Timeout  time.Duration
	CacheURL string
	CacheTTL time.Duration
	APIKey   string
}

// LookupAPIConfig holds configuration for the gRPC lookup server.
type LookupAPIConfig struct {
	Host           string
	Port           int
	MaxConnections int
	RequestTimeout time.Duration
}

// DefaultConfig returns configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		DatabaseURL: "sqlite://./editcheck.db",
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Engine: EngineConfig{
			Year:                 2017,
			RecordConcurrency:    100,
			AggregateConcurrency: 10,
		},
		Catalog: CatalogConfig{Source: "builtin"},
		Lookup: LookupConfig{
			Mode:     "local",
			Address:  "localhost:50051",
			Timeout:  5 * time.Second,
			CacheTTL: 24 * time.Hour,
		},
		LookupAPI: LookupAPIConfig{
			Host:           "0.0.0.0",
			Port:           50051,
			MaxConnections: 1000,
			RequestTimeout: 30 * time.Second,
		},
	}
}

// Addr is the host:port the lookup server listens on.
func (c LookupAPIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// HMACSecrets extracts HMAC secrets from environment variables.
// Supports EC_HMAC_SECRET (single) and EC_HMAC_SECRET_N (rotation).
// Returns map of secret_id -> decoded secret bytes.
func HMACSecrets() (map[string][]byte, error) {
	secrets := make(map[string][]byte)

	add := func(key, val string) error {
		secretID, decoded, err := ParseHMACSecretWithID(val)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if _, exists := secrets[secretID]; exists {
			return fmt.Errorf("duplicate secret_id '%s' found in environment variables (check %s and %s_* for conflicts)", secretID, EnvHMACSecret, EnvHMACSecret)
		}
		secrets[secretID] = decoded
		return nil
	}

	if val := os.Getenv(EnvHMACSecret); val != "" {
		if err := add(EnvHMACSecret, val); err != nil {
			return nil, err
		}
	}

	// Numbered secrets keep old and new keys valid during rotation.
	for i := 1; ; i++ {
		key := fmt.Sprintf("%s_%d", EnvHMACSecret, i)
		val := os.Getenv(key)
		if val == "" {
			break
		}
		if err := add(key, val); err != nil {
			return nil, err
		}
	}

	return secrets, nil
}

// ParseHMACSecret decodes a base64-encoded HMAC secret.
func ParseHMACSecret(envValue string) ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(envValue))
	if err != nil {
		return nil, fmt.Errorf("invalid base64 encoding: %w", err)
	}
	if len(decoded) < 32 {
		return nil, fmt.Errorf("secret must be at least 32 bytes, got %d", len(decoded))
	}
	return decoded, nil
}

// ParseHMACSecretWithID parses secret_id:base64_secret format.
// Secret ID must be 32 hex chars (a UUID without hyphens).
func ParseHMACSecretWithID(envValue string) (secretID string, secret []byte, err error) {
	parts := strings.SplitN(strings.TrimSpace(envValue), ":", 2)
	if len(parts) != 2 {
		return "", nil, fmt.Errorf("format must be <secret_id>:<base64_secret>")
	}

	secretID = parts[0]
	if len(secretID) != 32 {
		return "", nil, fmt.Errorf("secret_id must be 32 hex chars (UUID without hyphens)")
	}
	for _, c := range secretID {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return "", nil, fmt.Errorf("secret_id must be hex chars only")
		}
	}

	secret, err = ParseHMACSecret(parts[1])
	if err != nil {
		return "", nil, err
	}
	return secretID, secret, nil
}
