// Package observability carries the logging and metrics plumbing shared
// by the lancast binaries.
package observability

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// LogLevelEnv overrides the log level when no --log-level flag is given.
const LogLevelEnv = "LANCAST_LOG"

// NewLogger builds the root logger for a binary. Every line carries the
// service name and a fresh session id so interleaved server and client
// output stays attributable.
func NewLogger(service, level string, output io.Writer) zerolog.Logger {
	if output == nil {
		output = os.Stderr
	}
	if level == "" {
		level = os.Getenv(LogLevelEnv)
	}
	lvl := parseLevel(level)

	zerolog.TimeFieldFormat = time.RFC3339
	w := zerolog.ConsoleWriter{Out: output, TimeFormat: "15:04:05"}
	return zerolog.New(w).Level(lvl).With().
		Timestamp().
		Str("service", service).
		Str("session_id", uuid.NewString()).
		Logger()
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "", "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
