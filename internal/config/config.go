// Package config loads service configuration from layered sources: struct
// defaults first, then an optional YAML file, then environment variables.
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

// DefaultConfigPaths lists where config files are searched, first match wins.
var DefaultConfigPaths = []string{
	"calendard.yaml",
	"calendard.yml",
	"/etc/calendard/config.yaml",
	"/etc/calendard/config.yml",
}

// ConfigPathEnvVar overrides the config file path when set.
const ConfigPathEnvVar = "CALENDARD_CONFIG"

// envPrefix namespaces the environment overrides, e.g.
// CALENDARD_API_BASE_URL -> api.base_url.
const envPrefix = "CALENDARD_"

// Config captures every tunable of the aggregation service.
type Config struct {
	HTTP    HTTPConfig    `koanf:"http"`
	API     APIConfig     `koanf:"api"`
	Cache   CacheConfig   `koanf:"cache"`
	Dedupe  DedupeConfig  `koanf:"dedupe"`
	Prefs   PrefsConfig   `koanf:"prefs"`
	Logging LoggingConfig `koanf:"logging"`
}

// HTTPConfig controls the local read surface.
type HTTPConfig struct {
	Port    int           `koanf:"port"`
	Host    string        `koanf:"host"`
	Timeout time.Duration `koanf:"timeout"`
}

// APIConfig describes the upstream scheduling API the fetchers call.
type APIConfig struct {
	BaseURL        string        `koanf:"base_url"`
	Token          string        `koanf:"token"`
	Timeout        time.Duration `koanf:"timeout"`
	RatePerSecond  float64       `koanf:"rate_per_second"`
	RateBurst      int           `koanf:"rate_burst"`
	BreakerEnabled bool          `koanf:"breaker_enabled"`
}

// CacheConfig sets the per-source freshness windows. Availability records
// change far less often than bookings, hence the longer default.
type CacheConfig struct {
	BookingsTTL     time.Duration `koanf:"bookings_ttl"`
	ExternalTTL     time.Duration `koanf:"external_ttl"`
	AvailabilityTTL time.Duration `koanf:"availability_ttl"`
}

// DedupeConfig tunes the booking/external duplicate heuristic. The match has
// no authoritative cross-reference, so the thresholds stay configurable.
type DedupeConfig struct {
	StartTolerance time.Duration `koanf:"start_tolerance"`
	MatchLocation  bool          `koanf:"match_location"`
}

// PrefsConfig locates the preference store.
type PrefsConfig struct {
	SQLiteDSN       string `koanf:"sqlite_dsn"`
	DefaultTimezone string `koanf:"default_timezone"`
}

// LoggingConfig controls process log output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

func defaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Port:    8080,
			Host:    "0.0.0.0",
			Timeout: 30 * time.Second,
		},
		API: APIConfig{
			BaseURL:        "",
			Token:          "",
			Timeout:        15 * time.Second,
			RatePerSecond:  10,
			RateBurst:      20,
			BreakerEnabled: true,
		},
		Cache: CacheConfig{
			BookingsTTL:     5 * time.Minute,
			ExternalTTL:     5 * time.Minute,
			AvailabilityTTL: 30 * time.Minute,
		},
		Dedupe: DedupeConfig{
			StartTolerance: time.Minute,
			MatchLocation:  true,
		},
		Prefs: PrefsConfig{
			SQLiteDSN:       "file:calendard.db?_foreign_keys=on",
			DefaultTimezone: "",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load assembles the configuration from defaults, an optional YAML file and
// environment overrides, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "_", ".", 1)
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
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

// Validate reports every invalid field at once rather than failing on the first.
func (c *Config) Validate() error {
	invalid := make([]string, 0, 2)

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		invalid = append(invalid, "http.port")
	}
	if c.API.BaseURL == "" {
		invalid = append(invalid, "api.base_url")
	}
	if c.API.Timeout <= 0 {
		invalid = append(invalid, "api.timeout")
	}
	if c.Cache.BookingsTTL <= 0 {
		invalid = append(invalid, "cache.bookings_ttl")
	}
	if c.Cache.ExternalTTL <= 0 {
		invalid = append(invalid, "cache.external_ttl")
	}
	if c.Cache.AvailabilityTTL <= 0 {
		invalid = append(invalid, "cache.availability_ttl")
	}
	if c.Dedupe.StartTolerance < 0 {
		invalid = append(invalid, "dedupe.start_tolerance")
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid configuration values: %s", strings.Join(invalid, ", "))
	}
	return nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
