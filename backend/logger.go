package backend

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is the package-level structured logger.
// All backend code should use this instead of fmt.Printf.
var Logger = slog.Default()

// InitLogger initialises the slog default logger on stdout.
// logLevel should be one of: "debug", "info", "warn", "error".
// The LOG_LEVEL environment variable overrides the config value.
func InitLogger(logLevel string) {
	InitLoggerWithWriter(logLevel, os.Stdout)
}

// InitLoggerWithWriter is InitLogger with an explicit destination.
// The CLI logs to stderr so stdout stays reserved for command output.
func InitLoggerWithWriter(logLevel string, w io.Writer) {
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		logLevel = env
	}

	opts := &slog.HandlerOptions{Level: parseLogLevel(logLevel)}

	var handler slog.Handler
	if os.Getenv("LOG_FORMAT") == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	Logger = logger
}

func parseLogLevel(logLevel string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(logLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
