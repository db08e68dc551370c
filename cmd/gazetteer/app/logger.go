package app

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/placelore/gazetteer/internal/config"
	"github.com/placelore/gazetteer/pkg/logging"
)

// NewLogger creates a configured logger based on the application
// configuration. Log level precedence (highest to lowest):
//  1. -v/--verbose flag (shortcut for debug)
//  2. -q/--quiet flag (shortcut for warn)
//  3. LOG_LEVEL environment variable
//  4. Default (info)
func NewLogger(cfg *config.Config) zerolog.Logger {
	level := determineLogLevel(cfg)
	zerolog.SetGlobalLevel(level)

	var logger zerolog.Logger
	if cfg.LogFormat == "json" {
		logger = logging.NewJSON(os.Stderr)
	} else {
		logger = logging.NewConsole()
	}
	logger = logger.Level(level)

	logging.SetDefault(logger)
	return logger
}

// determineLogLevel determines the log level using clear precedence rules.
func determineLogLevel(cfg *config.Config) zerolog.Level {
	if cfg.Verbose && cfg.Quiet {
		fmt.Fprintln(os.Stderr, "Warning: both --verbose and --quiet specified, using --quiet")
		return zerolog.WarnLevel
	}
	if cfg.Verbose {
		return zerolog.DebugLevel
	}
	if cfg.Quiet {
		return zerolog.WarnLevel
	}

	if cfg.LogLevel != "" {
		level, err := zerolog.ParseLevel(cfg.LogLevel)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: invalid log level %q, using \"info\"\n", cfg.LogLevel)
			return zerolog.InfoLevel
		}
		return level
	}
	return zerolog.InfoLevel
}
