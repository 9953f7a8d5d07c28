package config

import (
	"os"
	"strconv"
)

// Config holds all application configuration
type Config struct {
	// Servers
	WSAddr   string
	HTTPAddr string

	// Channels
	BackPressureSize      int
	RecreateAttemptsCount int
	Stats                 bool
	SendQueueSize         int

	// Snapshot storage
	StorageType   string // "local" or "gcs"
	StorageDir    string
	GCSBucketName string
	GCSBaseDir    string
	SnapshotEvery int
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	return &Config{
		WSAddr:                getEnv("WS_ADDR", ":8765"),
		HTTPAddr:              getEnv("HTTP_ADDR", ":8080"),
		BackPressureSize:      getIntEnv("BACK_PRESSURE_SIZE", 5),
		RecreateAttemptsCount: getIntEnv("RECREATE_ATTEMPTS_COUNT", 5),
		Stats:                 getBoolEnv("STATS", false),
		SendQueueSize:         getIntEnv("SEND_QUEUE_SIZE", 64),
		StorageType:           getEnv("STORAGE_TYPE", "local"),
		StorageDir:            getEnv("STORAGE_DIR", "./data/snapshots"),
		GCSBucketName:         getEnv("GCS_BUCKET_NAME", ""),
		GCSBaseDir:            getEnv("GCS_BASE_DIR", "snapshots"),
		SnapshotEvery:         getIntEnv("SNAPSHOT_EVERY", 30),
	}
}

// Helper functions to get environment variables with defaults

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
