// Package config lädt die Anwendungskonfiguration aus Umgebungsvariablen.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config hält die gesamte Anwendungskonfiguration.
// Wird beim Start einmal aus Umgebungsvariablen gelesen und danach als
// unveränderlich behandelt.
type Config struct {
	// Database
	DatabaseURL string

	// Auth
	JWTSecret  string
	SessionTTL time.Duration

	// Retention
	AntragRetentionDays  int
	WaisenFristTage      int
	AnonymisierungsJahre int

	// Cleanup
	CleanupSchedule      string
	SessionSweepSchedule string
	CleanupBatchSize     int
	CleanupMaxParallel   int
	CleanupOpTimeout     time.Duration

	// Storage
	UploadDir string
	ExportDir string

	// Server
	ServerPort string

	// Rate Limit (Anfragen pro Minute, pro Admin)
	RateLimitProMinute int
}

// Load liest die Konfiguration aus Umgebungsvariablen.
// Fehlen Pflichtvariablen, wird ein Fehler zurückgegeben.
func Load() (*Config, error) {
	cfg := &Config{}

	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optionale Variablen mit Defaults. Die Aufbewahrungsfristen entsprechen
	// der mit dem Datenschutzbeauftragten abgestimmten Löschrichtlinie.
	cfg.SessionTTL = getEnvDuration("SESSION_TTL", 24*time.Hour)
	cfg.AntragRetentionDays = getEnvInt("ANTRAG_RETENTION_DAYS", 30)
	cfg.WaisenFristTage = getEnvInt("ORPHAN_GRACE_DAYS", 30)
	cfg.AnonymisierungsJahre = getEnvInt("ANONYMIZE_AFTER_YEARS", 3)
	cfg.CleanupSchedule = getEnvString("CLEANUP_SCHEDULE", "0 3 * * *")
	cfg.SessionSweepSchedule = getEnvString("SESSION_SWEEP_SCHEDULE", "0 * * * *")
	cfg.CleanupBatchSize = getEnvInt("CLEANUP_BATCH_SIZE", 500)
	cfg.CleanupMaxParallel = getEnvInt("CLEANUP_MAX_CONCURRENT", 4)
	cfg.CleanupOpTimeout = getEnvDuration("CLEANUP_OP_TIMEOUT", 10*time.Second)
	cfg.UploadDir = getEnvString("UPLOAD_DIR", "uploads")
	cfg.ExportDir = getEnvString("EXPORT_DIR", "exports")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.RateLimitProMinute = getEnvInt("RATE_LIMIT_GENERAL", 120)

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
