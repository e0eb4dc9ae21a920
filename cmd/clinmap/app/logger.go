package app

import (
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/agentstation/clinmap/pkg/errors"
	"github.com/agentstation/clinmap/pkg/logging"
)

var logLevels = []string{"trace", "debug", "info", "warn", "error"}

// NewLogger builds the process logger from config and installs it as the
// default. Level precedence, highest first:
//  1. --log-level
//  2. -q/--quiet (warn), which beats -v/--verbose when both are given
//  3. -v/--verbose (debug)
//  4. CLINMAP_LOG_LEVEL or log_level in the config file
//  5. info
func NewLogger(config *Config) (zerolog.Logger, error) {
	level, err := determineLogLevel(config)
	if err != nil {
		return zerolog.Nop(), err
	}

	logger, err := logging.Build(logging.Config{
		Level:   level,
		Format:  config.LogFormat,
		Output:  config.LogOutput,
		NoColor: config.NoColor || os.Getenv("NO_COLOR") != "",
	})
	if err != nil {
		return zerolog.Nop(), errors.NewConfigError("log_output", err.Error(), err)
	}
	logging.SetDefault(logger)

	if config.Verbose && config.Quiet && config.LogLevel == "" {
		logger.Warn().Msg("Both --verbose and --quiet given; using --quiet")
	}
	return logger, nil
}

func determineLogLevel(config *Config) (string, error) {
	switch {
	case config.LogLevel != "":
		if !validLogLevel(config.LogLevel) {
			return "", errors.NewValidationError("log-level", config.LogLevel,
				"must be one of: "+strings.Join(logLevels, ", "))
		}
		return config.LogLevel, nil
	case config.Quiet:
		return "warn", nil
	case config.Verbose:
		return "debug", nil
	case validLogLevel(config.EnvLogLevel):
		return config.EnvLogLevel, nil
	default:
		return "info", nil
	}
}

func validLogLevel(level string) bool {
	for _, l := range logLevels {
		if level == l {
			return true
		}
	}
	return false
}
