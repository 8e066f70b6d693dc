package backend

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"unknown_level", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLogLevel(tt.input); got != tt.want {
				t.Errorf("parseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestInitLoggerWithWriter(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LOG_FORMAT", "")
	old := Logger
	defer func() {
		Logger = old
		slog.SetDefault(old)
	}()

	var buf bytes.Buffer
	InitLoggerWithWriter("warn", &buf)

	Logger.Info("hidden")
	Logger.Warn("shown", "job", "abc")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record written at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "job=abc") {
		t.Errorf("warn record missing: %q", out)
	}
}

func TestInitLogger_EnvOverride(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "json")
	old := Logger
	defer func() {
		Logger = old
		slog.SetDefault(old)
	}()

	var buf bytes.Buffer
	InitLoggerWithWriter("error", &buf)
	Logger.Debug("probe")

	if !strings.Contains(buf.String(), `"msg":"probe"`) {
		t.Errorf("expected json debug record, got %q", buf.String())
	}
}
