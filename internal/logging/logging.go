package logging

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	clierr "github.com/ggonzalez94/token-intel/internal/errors"
	"github.com/ggonzalez94/token-intel/internal/version"
)

const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// SetupWriter configures the global zerolog logger. The CLI passes stderr so
// stdout carries only envelopes.
func SetupWriter(w io.Writer, level, format string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	var sink io.Writer = w
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatJSON:
	case FormatConsole:
		sink = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	default:
		return clierr.New(clierr.CodeUsage, "log format must be json or console")
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = zerolog.New(sink).Level(lvl).With().
		Timestamp().
		Str("service", version.CLIName).
		Logger()
	return nil
}

func ParseLevel(level string) (zerolog.Level, error) {
	raw := strings.ToLower(strings.TrimSpace(level))
	if raw == "" {
		return zerolog.WarnLevel, nil
	}
	if raw == "warning" {
		raw = "warn"
	}
	lvl, err := zerolog.ParseLevel(raw)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.WarnLevel, clierr.New(clierr.CodeUsage, "log level must be one of debug, info, warn, error")
	}
	return lvl, nil
}
