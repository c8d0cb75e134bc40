// Package cli consolidates the initialization shared by the gastos
// binaries: environment loading, config validation, logging and
// storage setup.
package cli

import (
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"

	"gastos/internal/config"
	applog "gastos/internal/log"
	"gastos/internal/storage"
)

// LoadEnv loads the .env file for local development. Errors are
// ignored silently as the file is optional in production.
func LoadEnv() {
	_ = godotenv.Load()
}

// LoadConfig reads and validates the environment configuration.
func LoadConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetupLogger builds the component logger and installs it as the
// process-wide slog default.
func SetupLogger(component, level string) *applog.Logger {
	logger := applog.New(applog.Config{
		Level:     LogLevel(level),
		Component: component,
	})
	applog.SetDefault(logger)
	return logger
}

// OpenRepository opens the SQLite repository, running migrations.
func OpenRepository(cfg *config.Config) (*storage.SQLiteRepository, error) {
	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("open repository at %s: %w", cfg.SQLiteDBPath, err)
	}
	return repo, nil
}

// LogLevel maps the configured level name onto slog.
func LogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
