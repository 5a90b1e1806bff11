package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagKeys maps root and subcommand flag names to config keys.
var flagKeys = map[string]string{
	"db-url":                "database.url",
	"log-level":             "log.level",
	"log-format":            "log.format",
	"year":                  "engine.year",
	"record-concurrency":    "engine.record_concurrency",
	"aggregate-concurrency": "engine.aggregate_concurrency",
	"catalog":               "catalog.source",
	"lookup-mode":           "lookup.mode",
	"lookup-address":        "lookup.address",
	"lookup-cache":          "lookup.cache_url",
	"host":                  "lookup_api.host",
	"port":                  "lookup_api.port",
}

// LoadConfig loads configuration from file using viper.
// Environment > config file > defaults precedence.
func LoadConfig(configPath string) (*Config, error) {
	return Load(configPath, nil)
}

// Load is LoadConfig with command-line flags taking precedence over
// everything else. Only flags the user actually set are applied.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix("EC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Secrets must be environment-only.
	if err := validateNoSecretsInConfig(v); err != nil {
		return nil, err
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag --%s: %w", name, err)
				}
			}
		}
	}

	cfg := &Config{
		DatabaseURL: v.GetString("database.url"),
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Engine: EngineConfig{
			Year:                 v.GetInt("engine.year"),
			RecordConcurrency:    v.GetInt("engine.record_concurrency"),
			AggregateConcurrency: v.GetInt("engine.aggregate_concurrency"),
		},
		Catalog: CatalogConfig{Source: v.GetString("catalog.source")},
		Lookup: LookupConfig{
			Mode:     v.GetString("lookup.mode"),
			Address:  v.GetString("lookup.address"),
			Timeout:  v.GetDuration("lookup.timeout"),
			CacheURL: v.GetString("lookup.cache_url"),
			CacheTTL: v.GetDuration("lookup.cache_ttl"),
			APIKey:   os.Getenv(EnvLookupAPIKey),
		},
		LookupAPI: LookupAPIConfig{
			Host:           v.GetString("lookup_api.host"),
			Port:           v.GetInt("lookup_api.port"),
			MaxConnections: v.GetInt("lookup_api.max_connections"),
			RequestTimeout: v.GetDuration("lookup_api.request_timeout"),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("database.url", d.DatabaseURL)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("engine.year", d.Engine.Year)
	v.SetDefault("engine.record_concurrency", d.Engine.RecordConcurrency)
	v.SetDefault("engine.aggregate_concurrency", d.Engine.AggregateConcurrency)
	v.SetDefault("catalog.source", d.Catalog.Source)
	v.SetDefault("lookup.mode", d.Lookup.Mode)
	v.SetDefault("lookup.address", d.Lookup.Address)
	v.SetDefault("lookup.timeout", d.Lookup.Timeout.String())
	v.SetDefault("lookup.cache_url", d.Lookup.CacheURL)
	v.SetDefault("lookup.cache_ttl", d.Lookup.CacheTTL.String())
	v.SetDefault("lookup_api.host", d.LookupAPI.Host)
	v.SetDefault("lookup_api.port", d.LookupAPI.Port)
	v.SetDefault("lookup_api.max_connections", d.LookupAPI.MaxConnections)
	v.SetDefault("lookup_api.request_timeout", d.LookupAPI.RequestTimeout.String())
}

func validateConfig(cfg *Config) error {
	if cfg.Engine.Year <= 0 {
		return fmt.Errorf("engine.year must be positive, got %d", cfg.Engine.Year)
	}
	if cfg.Engine.RecordConcurrency <= 0 {
		return fmt.Errorf("engine.record_concurrency must be positive, got %d", cfg.Engine.RecordConcurrency)
	}
	if cfg.Engine.AggregateConcurrency <= 0 {
		return fmt.Errorf("engine.aggregate_concurrency must be positive, got %d", cfg.Engine.AggregateConcurrency)
	}
	switch cfg.Catalog.Source {
	case "builtin", "db":
	default:
		return fmt.Errorf("catalog.source must be builtin or db, got %q", cfg.Catalog.Source)
	}
	switch cfg.Lookup.Mode {
	case "local", "remote":
	default:
		return fmt.Errorf("lookup.mode must be local or remote, got %q", cfg.Lookup.Mode)
	}
	if cfg.Lookup.Timeout <= 0 {
		return fmt.Errorf("lookup.timeout must be positive, got %v", cfg.Lookup.Timeout)
	}
	if cfg.Lookup.CacheTTL <= 0 {
		return fmt.Errorf("lookup.cache_ttl must be positive, got %v", cfg.Lookup.CacheTTL)
	}
	if cfg.LookupAPI.Port <= 0 || cfg.LookupAPI.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", cfg.LookupAPI.Port)
	}
	if cfg.LookupAPI.MaxConnections <= 0 {
		return fmt.Errorf("max_connections must be positive, got %d", cfg.LookupAPI.MaxConnections)
	}
	if cfg.LookupAPI.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", cfg.LookupAPI.RequestTimeout)
	}
	return nil
}

func validateNoSecretsInConfig(v *viper.Viper) error {
	for _, key := range []string{"hmac_secret", "lookup_api.hmac_secret"} {
		if v.InConfig(key) {
			return fmt.Errorf("HMAC secrets not allowed in config files (use %s environment variable)", EnvHMACSecret)
		}
	}
	for _, key := range []string{"api_key", "lookup.api_key"} {
		if v.InConfig(key) {
			return fmt.Errorf("API keys not allowed in config files (use %s environment variable)", EnvLookupAPIKey)
		}
	}
	return nil
}
