// Package config loads environment defaults for the CLI. Every value here
// can be overridden by a command-line flag; the environment only supplies
// the default, so secrets like the password can stay out of shell history.
package config

import (
	"os"
	"strconv"
)

// Config holds the environment-provided defaults.
type Config struct {
	Host      string // TABLEWATCH_DB_HOST
	Port      int    // TABLEWATCH_DB_PORT
	User      string // TABLEWATCH_DB_USER
	Password  string // TABLEWATCH_DB_PASSWORD
	Database  string // TABLEWATCH_DATABASE
	OutputDir string // TABLEWATCH_OUTPUT_DIR
	ServerID  int    // TABLEWATCH_SERVER_ID
	Autosave  string // TABLEWATCH_AUTOSAVE (cron expression, empty disables)

	// DatabaseURL is the full DSN used by the migrate command (DATABASE_URL).
	DatabaseURL string
}

// FromEnv loads configuration from environment variables, applying the same
// defaults the command-line flags document.
func FromEnv() *Config {
	return &Config{
		Host:        getEnv("TABLEWATCH_DB_HOST", "localhost"),
		Port:        getEnvInt("TABLEWATCH_DB_PORT", 3306),
		User:        getEnv("TABLEWATCH_DB_USER", "root"),
		Password:    getEnv("TABLEWATCH_DB_PASSWORD", ""),
		Database:    getEnv("TABLEWATCH_DATABASE", ""),
		OutputDir:   getEnv("TABLEWATCH_OUTPUT_DIR", "./logs"),
		ServerID:    getEnvInt("TABLEWATCH_SERVER_ID", 100),
		Autosave:    getEnv("TABLEWATCH_AUTOSAVE", ""),
		DatabaseURL: getEnv("DATABASE_URL", ""),
	}
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultVal
	}
	return n
}
