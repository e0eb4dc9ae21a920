// Package logging provides structured logging for the clinmap pipelines using zerolog.
// Console output is used on terminals and JSON lines everywhere else, so batch
// runs under a scheduler produce machine-readable logs.
//
// Pipelines carry their logger in the context, tagged with the run ID and the
// current stage or batch:
//
//	ctx = logging.WithRun(ctx, runID)
//	ctx = logging.WithStage(ctx, "annotate")
//	logging.FromContext(ctx).Info().Int("batches", 3).Msg("Dispatching batches")
package logging

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var defaultLogger = initialLogger()

// initialLogger is used until the CLI installs its configured logger. It
// honors CLINMAP_LOG_LEVEL and CLINMAP_LOG_FORMAT so library callers get
// the same switches.
func initialLogger() zerolog.Logger {
	logger, err := Build(Config{
		Level:   os.Getenv("CLINMAP_LOG_LEVEL"),
		Format:  os.Getenv("CLINMAP_LOG_FORMAT"),
		NoColor: os.Getenv("NO_COLOR") != "",
	})
	if err != nil {
		return zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	return logger
}

// Default returns the process logger.
func Default() *zerolog.Logger {
	return &defaultLogger
}

// SetDefault replaces the process logger, including zerolog's global one.
// It is not safe to call while pipelines are running.
func SetDefault(logger zerolog.Logger) {
	defaultLogger = logger
	log.Logger = logger
}

// New creates a JSON logger on w at the global level.
func New(w io.Writer) zerolog.Logger {
	return zerolog.New(w).
		Level(zerolog.GlobalLevel()).
		With().
		Timestamp().
		Logger()
}

func isTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
