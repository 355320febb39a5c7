// Package observability initializes the process-wide zerolog logger.
// Grounded on internal/observability/logging.go: stdout by default, an
// optional append-mode log file, and the standard library logger redirected
// so every log call funnels through the same structured sink.
package observability

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config is the slice of the service's config the logger cares about: a
// destination path (empty means stdout) and the minimum level to emit.
type Config struct {
	LogPath  string
	LogLevel string
}

// Init applies cfg to the global zerolog logger and redirects the standard
// library logger through it, so every log call in the process funnels
// through the same structured sink. A failure to open LogPath falls back to
// stdout with a message on stderr.
func Init(cfg Config) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	var w io.Writer = os.Stdout
	if cfg.LogPath != "" {
		if f, err := os.OpenFile(cfg.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			w = f
		} else {
			_, _ = fmt.Fprintf(os.Stderr, "failed to open log file %q: %v\n", cfg.LogPath, err)
		}
	}
	log.Logger = log.Output(w).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(parseLevel(cfg.LogLevel))

	stdlog.SetFlags(0)
	stdlog.SetOutput(log.Logger)
}

func parseLevel(level string) zerolog.Level {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		level = "warn"
	}
	if level == "" {
		return zerolog.InfoLevel
	}
	if l, err := zerolog.ParseLevel(level); err == nil {
		return l
	}
	return zerolog.InfoLevel
}
