// Package sysutil holds process-level helpers shared by the entry point and
// the HTTP layer.
package sysutil

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SetLogLevel applies lvl (any zerolog level name, plus "warning") as the
// global level. Blank or unknown names select info.
func SetLogLevel(lvl string) {
	lvl = strings.ToLower(strings.TrimSpace(lvl))
	if lvl == "warning" {
		lvl = "warn"
	}
	l, err := zerolog.ParseLevel(lvl)
	if err != nil || l == zerolog.NoLevel {
		l = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(l)
}

// ConfigureLogging points the global logger at w, as JSON or, when pretty is
// set, as a human-readable console stream, and applies lvl.
func ConfigureLogging(w io.Writer, lvl string, pretty bool) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
	SetLogLevel(lvl)
}

// IsTruthy reports whether a query flag is switched on: 1, true, yes, y or
// on, in any case.
func IsTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}
