package app

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/clinmap/pkg/errors"
	"github.com/agentstation/clinmap/pkg/logging"
)

func TestDetermineLogLevel(t *testing.T) {
	tests := []struct {
		name     string
		config   *Config
		expected string
	}{
		{"default level when nothing set", &Config{}, "info"},
		{"verbose flag sets debug", &Config{Verbose: true}, "debug"},
		{"quiet flag sets warn", &Config{Quiet: true}, "warn"},
		{"explicit log-level overrides verbose", &Config{LogLevel: "error", Verbose: true}, "error"},
		{"explicit log-level overrides quiet", &Config{LogLevel: "trace", Quiet: true}, "trace"},
		{"quiet wins over verbose", &Config{Verbose: true, Quiet: true}, "warn"},
		{"env level used when no flags", &Config{EnvLogLevel: "error"}, "error"},
		{"verbose overrides env level", &Config{EnvLogLevel: "error", Verbose: true}, "debug"},
		{"invalid env level falls back to info", &Config{EnvLogLevel: "loud"}, "info"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level, err := determineLogLevel(tt.config)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, level)
		})
	}
}

func TestDetermineLogLevelRejectsExplicitTypo(t *testing.T) {
	_, err := determineLogLevel(&Config{LogLevel: "WARN"})
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
}

func TestNewLogger(t *testing.T) {
	logging.DisableLoggingForTest(t)

	logger, err := NewLogger(&Config{LogLevel: "warn", LogOutput: "discard"})
	require.NoError(t, err)
	assert.Equal(t, "warn", logger.GetLevel().String())

	_, err = NewLogger(&Config{LogOutput: filepath.Join(t.TempDir(), "missing", "clinmap.log")})
	var cfgErr *errors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}
