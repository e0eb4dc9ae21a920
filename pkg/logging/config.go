package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentstation/clinmap/pkg/constants"
)

// Log encodings accepted by Config.Format.
const (
	FormatAuto    = "auto"
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Config describes the process logger.
type Config struct {
	// Level is the minimum level written: trace, debug, info, warn, error
	// or off.
	Level string
	// Format is json, console, or auto. Auto picks console only when the
	// output is a terminal.
	Format string
	// Output is stderr, stdout, discard, or a file path opened for append.
	Output string
	// NoColor disables ANSI colors in console output.
	NoColor bool
	// Fields are attached to every event.
	Fields map[string]any
}

// Build returns the logger described by cfg. Debug and trace loggers
// record the caller.
func Build(cfg Config) (zerolog.Logger, error) {
	out, err := openOutput(cfg.Output)
	if err != nil {
		return zerolog.Nop(), err
	}

	level := ParseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	lc := zerolog.New(encoder(out, cfg)).Level(level).With().Timestamp()
	if level <= zerolog.DebugLevel {
		lc = lc.Caller()
	}
	for k, v := range cfg.Fields {
		lc = addField(lc, k, v)
	}
	return lc.Logger(), nil
}

func openOutput(output string) (io.Writer, error) {
	switch strings.ToLower(output) {
	case "", "stderr":
		return os.Stderr, nil
	case "stdout":
		return os.Stdout, nil
	case "discard", "none":
		return io.Discard, nil
	}
	// the file stays open for the life of the process
	f, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, constants.FilePermissions) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("open log output %s: %w", output, err)
	}
	return f, nil
}

func encoder(out io.Writer, cfg Config) io.Writer {
	format := strings.ToLower(cfg.Format)
	if format == "" || format == FormatAuto {
		format = FormatJSON
		if f, ok := out.(*os.File); ok && isTerminal(f) {
			format = FormatConsole
		}
	}
	if format != FormatConsole && format != "pretty" {
		return out
	}
	return zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.TimeOnly,
		NoColor:    cfg.NoColor,
	}
}

// ParseLevel parses a log level string, falling back to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "", "info":
		return zerolog.InfoLevel
	case "warning":
		return zerolog.WarnLevel
	case "off", "none", "disabled":
		return zerolog.Disabled
	}
	l, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.InfoLevel
	}
	return l
}
