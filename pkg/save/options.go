package save

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/agentstation/clinmap/pkg/constants"
)

// Format selects the encoding used by Encode.
type Format int

// Format constants.
const (
	FormatJSON Format = iota
	FormatYAML
)

// String returns the string representation of the format.
func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatYAML:
		return "yaml"
	}
	return "unknown"
}

// FormatFromPath picks JSON for .json paths and YAML otherwise.
func FormatFromPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// Options is the configuration for save.
type Options struct {
	perm    os.FileMode
	dirPerm os.FileMode
	syncDir bool
}

// Defaults returns the default save options.
func Defaults() *Options {
	return &Options{
		perm:    constants.FilePermissions,
		dirPerm: constants.DirPermissions,
		syncDir: true,
	}
}

// Apply applies the given options to the save options.
func (s *Options) Apply(opts ...Option) Options {
	for _, opt := range opts {
		opt(s)
	}
	return *s
}

// Option is a function that configures save options.
type Option func(*Options)

// WithPerm sets the mode of the written file.
func WithPerm(perm os.FileMode) Option {
	return func(s *Options) {
		s.perm = perm
	}
}

// WithDirSync controls whether the parent directory is synced after the
// rename so the new entry survives a crash.
func WithDirSync(enabled bool) Option {
	return func(s *Options) {
		s.syncDir = enabled
	}
}
