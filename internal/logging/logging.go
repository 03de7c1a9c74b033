// Package logging builds the process-wide zerolog root logger. Components
// derive children via log.With().Str("component", ...).
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New returns a root logger writing console output to stderr at the given
// level. Unknown level strings fall back to info.
func New(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}
