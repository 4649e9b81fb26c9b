// Package config reads server settings from the environment.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all server settings.
type Config struct {
	Port        string
	CatalogPath string // empty uses the built-in puzzle set

	// NATSURL enables the observer event mirror when non-empty.
	NATSURL       string
	SubjectPrefix string

	TeamSize         int
	GracePeriod      time.Duration
	SweepInterval    time.Duration
	HoldDuration     time.Duration
	Staleness        time.Duration
	SnapshotInterval time.Duration

	LogLevel string
}

// NewConfigFromEnv reads HEIST_* environment variables (with defaults).
func NewConfigFromEnv() Config {
	return Config{
		Port:             getEnv("PORT", "8080"),
		CatalogPath:      getEnv("HEIST_CATALOG_PATH", ""),
		NATSURL:          getEnv("NATS_URL", ""),
		SubjectPrefix:    getEnv("HEIST_SUBJECT_PREFIX", "heist.events"),
		TeamSize:         getEnvAsInt("HEIST_TEAM_SIZE", 4),
		GracePeriod:      getEnvAsSeconds("HEIST_GRACE_SEC", 30),
		SweepInterval:    getEnvAsSeconds("HEIST_SWEEP_SEC", 10),
		HoldDuration:     getEnvAsSeconds("HEIST_HOLD_SEC", 3),
		Staleness:        getEnvAsMillis("HEIST_STALENESS_MS", 2000),
		SnapshotInterval: getEnvAsSeconds("HEIST_SNAPSHOT_SEC", 5),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsSeconds(key string, defaultValue int) time.Duration {
	return time.Duration(getEnvAsInt(key, defaultValue)) * time.Second
}

func getEnvAsMillis(key string, defaultValue int) time.Duration {
	return time.Duration(getEnvAsInt(key, defaultValue)) * time.Millisecond
}
