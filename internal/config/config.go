// Package config reads the analysis defaults from the environment.
package config

import (
	"os"
	"strconv"
)

// Config represents the complete application configuration
type Config struct {
	Analysis AnalysisDefaults
	LogLevel string
}

// AnalysisDefaults holds pipeline settings overridable per invocation
type AnalysisDefaults struct {
	Seed                     int64
	Workers                  int
	BootstrapCovarianceCount int
	BootstrapStatisticCount  int
	Cutoff                   float64
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Analysis: AnalysisDefaults{
			Seed:                     getEnvInt64OrDefault("SYNERGY_SEED", 1),
			Workers:                  getEnvIntOrDefault("SYNERGY_WORKERS", 4),
			BootstrapCovarianceCount: getEnvIntOrDefault("SYNERGY_CP_RESAMPLES", 200),
			BootstrapStatisticCount:  getEnvIntOrDefault("SYNERGY_STAT_RESAMPLES", 0),
			Cutoff:                   getEnvFloatOrDefault("SYNERGY_CUTOFF", 0.95),
		},
		LogLevel: getEnvOrDefault("LOG_LEVEL", "WARN"),
	}
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvInt64OrDefault(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getEnvFloatOrDefault(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
