package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/teslashibe/go-handscore/internal/config"
)

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

// loadConfig reads the config file and applies the shared flags. A broken
// file falls back to defaults with a warning.
func loadConfig(flags *rootFlags) *config.Config {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config from %s: %v\n", flags.configPath, err)
		cfg = config.Default()
	}
	if flags.debug {
		cfg.Logging.Level = "debug"
	}
	return cfg
}
