// Package config parses ttsd configuration from command-line flags and
// environment variables.
//
// Supported configuration sources (in order of precedence):
//  1. Command-line flags
//  2. Environment variables
//  3. Default values
//
// An optional measurement adapter is configured with ADAPTER (csv or http)
// and ADAPTER_* variables, e.g. ADAPTER_URL or ADAPTER_SERIES_PATH, which
// are collected into a camelCase map for adapters.New.
//
// Example usage:
//
//	cfg := config.ParseFlags()
//	if err := cfg.Validate(); err != nil {
//	    // exit
//	}
package config

import (
	"flag"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/HatiCode/mastercurve/pkg/shift"
)

// Config holds all ttsd configuration.
type Config struct {
	Listen    string
	LogFormat string
	LogLevel  string

	Storage       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration
	SnapshotTTL   time.Duration

	// ReferenceTemp is the fit reference temperature in °C used when a
	// request does not name one.
	ReferenceTemp float64
	AxisPoints    int
	ExportStep    float64

	Adapter       string
	AdapterConfig map[string]string
}

// ParseFlags parses command-line flags and environment variables into a Config.
func ParseFlags() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.Listen, "listen", getEnv("LISTEN", ":8090"), "HTTP listen address")

	flag.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format: text or json")
	flag.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")

	flag.StringVar(&cfg.Storage, "storage", getEnv("STORAGE", "memory"), "Snapshot storage backend: memory or redis")
	flag.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", "localhost:6379"), "Redis server address")
	flag.StringVar(&cfg.RedisPassword, "redis-password", getEnv("REDIS_PASSWORD", ""), "Redis password")
	flag.IntVar(&cfg.RedisDB, "redis-db", getEnvInt("REDIS_DB", 0), "Redis database number")
	flag.DurationVar(&cfg.RedisTTL, "redis-ttl", getEnvDuration("REDIS_TTL", 30*time.Minute), "Redis snapshot TTL")
	flag.DurationVar(&cfg.SnapshotTTL, "snapshot-ttl", getEnvDuration("SNAPSHOT_TTL", 0), "In-memory snapshot TTL (0 keeps snapshots until restart)")

	flag.Float64Var(&cfg.ReferenceTemp, "reference-temp", getEnvFloat("REFERENCE_TEMP", 40), "Default fit reference temperature in °C")
	flag.IntVar(&cfg.AxisPoints, "axis-points", getEnvInt("AXIS_POINTS", shift.DefaultAxis.Points), "Points on the estimate temperature axis")
	flag.Float64Var(&cfg.ExportStep, "export-step", getEnvFloat("EXPORT_STEP", shift.ExportAxis.StepC), "Temperature step in °C of the fit export axis")

	flag.StringVar(&cfg.Adapter, "adapter", getEnv("ADAPTER", ""), "Measurement adapter for /v1/shift requests without series: csv or http")

	flag.Parse()

	cfg.AdapterConfig = parseAdapterConfig()

	return cfg
}

// Validate checks value ranges and cross-field requirements.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address cannot be empty")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q (must be text or json)", c.LogFormat)
	}
	switch c.Storage {
	case "memory":
		if c.SnapshotTTL < 0 {
			return fmt.Errorf("snapshot TTL cannot be negative")
		}
	case "redis":
		if c.RedisAddr == "" {
			return fmt.Errorf("redis address is required when storage=redis")
		}
		if c.RedisDB < 0 {
			return fmt.Errorf("redis database number must be >= 0")
		}
		if c.RedisTTL <= 0 {
			return fmt.Errorf("redis TTL must be > 0")
		}
	default:
		return fmt.Errorf("invalid storage %q (must be memory or redis)", c.Storage)
	}
	if math.IsNaN(c.ReferenceTemp) || math.IsInf(c.ReferenceTemp, 0) {
		return fmt.Errorf("reference temperature must be finite")
	}
	if err := c.EstimateAxis().Validate(); err != nil {
		return fmt.Errorf("axis points: %w", err)
	}
	if err := c.ExportAxis().Validate(); err != nil {
		return fmt.Errorf("export step: %w", err)
	}
	switch c.Adapter {
	case "", "csv", "http":
	default:
		return fmt.Errorf("invalid adapter %q (must be csv or http)", c.Adapter)
	}
	return nil
}

// EstimateAxis is the default axis with the configured point count.
func (c *Config) EstimateAxis() shift.Axis {
	a := shift.DefaultAxis
	a.Points = c.AxisPoints
	return a
}

// ExportAxis is the fit export axis with the configured step.
func (c *Config) ExportAxis() shift.Axis {
	a := shift.ExportAxis
	a.StepC = c.ExportStep
	return a
}

// parseAdapterConfig collects ADAPTER_* environment variables into a map
// keyed by the lower camelCase remainder (ADAPTER_SERIES_PATH -> seriesPath).
func parseAdapterConfig() map[string]string {
	config := make(map[string]string)

	for _, env := range os.Environ() {
		name, value, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(name, "ADAPTER_") {
			continue
		}
		config[toLowerCamelCase(strings.TrimPrefix(name, "ADAPTER_"))] = value
	}

	return config
}

func toLowerCamelCase(s string) string {
	parts := strings.Split(strings.ToLower(s), "_")
	var b strings.Builder
	for i, p := range parts {
		if p == "" {
			continue
		}
		if i > 0 && b.Len() > 0 {
			b.WriteString(strings.ToUpper(p[:1]))
			b.WriteString(p[1:])
			continue
		}
		b.WriteString(p)
	}
	return b.String()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var f float64
		if _, err := fmt.Sscanf(value, "%g", &f); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
