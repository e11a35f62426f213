package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"trace":   zerolog.TraceLevel,
		" DEBUG ": zerolog.DebugLevel,
		"warning": zerolog.WarnLevel,
		"off":     zerolog.Disabled,
	}
	for raw, want := range cases {
		got, ok := ParseLevel(raw)
		if !ok || got != want {
			t.Fatalf("expected %q to parse as %v, got %v (ok=%v)", raw, want, got, ok)
		}
	}
	if _, ok := ParseLevel("loud"); ok {
		t.Fatalf("expected unknown level to be rejected")
	}
	if _, ok := ParseLevel(""); ok {
		t.Fatalf("expected empty level to be rejected")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogTimestamp, "true")
	t.Setenv(EnvLogNoColor, "not-a-bool")

	cfg := defaultConfig(ProfileTest)
	applyEnvOverrides(&cfg)
	if cfg.Level != zerolog.ErrorLevel {
		t.Fatalf("expected error level, got %v", cfg.Level)
	}
	if !cfg.Timestamp {
		t.Fatalf("expected timestamp override")
	}
	if cfg.NoColor {
		t.Fatalf("expected invalid bool to leave NoColor unset")
	}
}

func TestNewLoggerWritesToOut(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Level: zerolog.InfoLevel, NoColor: true, Out: &buf})
	logger.Debug().Msg("hidden")
	logger.Info().Str("file", "report.bin").Msg("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("expected debug line to be filtered, got %q", out)
	}
	if !strings.Contains(out, "visible") || !strings.Contains(out, "report.bin") {
		t.Fatalf("expected info line with field, got %q", out)
	}
}
