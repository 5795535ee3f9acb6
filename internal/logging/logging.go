// Package logging builds the daemon's zerolog loggers: one per channel
// (daemon, enforcement, api, error), each optionally rotated via
// lumberjack when writing to --log-dir, plus MaskedStr, which call sites
// use to write credential-shaped fields as a redacted placeholder.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Config controls how a Logger is constructed, matching the shape used at
// the daemon's startup call site (level + pretty-print switch), extended
// with the log directory and channel name needed to route each channel to
// its own rotated file.
type Config struct {
	Level   string
	Pretty  bool
	LogDir  string // empty ⇒ stderr only, no rotation
	Channel string // "daemon", "enforcement", "api", "error"
}

// Channel names as specified by SPEC_FULL.md §6 persisted-state layout.
const (
	ChannelDaemon      = "daemon"
	ChannelEnforcement = "enforcement"
	ChannelAPI         = "api"
	ChannelError       = "error"
)

// New builds a zerolog.Logger for one channel.
func New(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var w io.Writer = os.Stderr
	if cfg.Pretty {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	if cfg.LogDir != "" {
		fileWriter := &lumberjack.Logger{
			Filename:   cfg.LogDir + "/" + cfg.Channel + ".log",
			MaxSize:    100, // megabytes
			MaxBackups: 10,
			MaxAge:     30, // days
			Compress:   true,
		}
		if cfg.Pretty {
			w = zerolog.MultiLevelWriter(w, fileWriter)
		} else {
			w = zerolog.MultiLevelWriter(os.Stderr, fileWriter)
		}
	}

	logger := zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("channel", cfg.Channel).
		Logger()

	return logger
}

// maskedFields lists the field names masked before any event is written,
// per SPEC_FULL.md §6's "sensitive fields ... are masked by a filter".
// Zerolog hooks see the rendered message, not the field map, so masking is
// applied at the call site via MaskedStr rather than as a global hook — the
// same discipline the teacher's SDK client uses by never passing privateKey
// to a log call in the first place.
var maskedFields = []string{"token", "apikey", "authorization"}

// MaskedStr adds field with the value "***redacted***" when field matches one
// of maskedFields (case-insensitively), for fields that must never reach a
// log sink in the clear (tokens, API keys, Authorization headers). Any other
// field name leaves e unchanged.
func MaskedStr(e *zerolog.Event, field string) *zerolog.Event {
	for _, m := range maskedFields {
		if strings.EqualFold(field, m) {
			return e.Str(field, "***redacted***")
		}
	}
	return e
}
