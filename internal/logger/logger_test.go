package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestJSONLevelFiltering(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelWarn).With("file", "calexp.fits")
	log.Info("should not appear")
	if buf.Len() > 0 {
		t.Fatalf("expected no output for info at warn level, got: %s", buf.String())
	}

	log.Warn("dropped header value", "key", "DATE-OBS")
	out := buf.String()
	for _, want := range []string{`"level":"WARN"`, `"file":"calexp.fits"`, `"key":"DATE-OBS"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in output, got: %s", want, out)
		}
	}
}

func TestDiscard(t *testing.T) {
	t.Parallel()
	log := Discard()
	log.Error("dropped")
	log.With("hdu", 1).WithGroup("cursor").Warn("also dropped")
}

func TestBuild(t *testing.T) {
	t.Parallel()
	for _, format := range []string{"", "pretty", "json", "TEXT"} {
		var buf bytes.Buffer
		log, err := Build(&buf, format, slog.LevelInfo)
		if err != nil {
			t.Fatalf("Build(%q): %v", format, err)
		}
		log.Info("built", "format", format)
		if !strings.Contains(buf.String(), "built") {
			t.Fatalf("Build(%q) output missing message: %s", format, buf.String())
		}
	}
	if _, err := Build(&bytes.Buffer{}, "xml", slog.LevelInfo); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestPrettyOutput(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := Pretty(&buf, slog.LevelDebug)
	log.WithGroup("fits").WithGroup("tile").Debug("plain", "file", "a b.fits", "algorithm", "RICE_1")

	out := buf.String()
	if strings.Contains(out, "\033[") {
		t.Fatalf("expected no escape sequences for non-terminal writer, got: %q", out)
	}
	for _, want := range []string{"DEBUG plain", `fits.tile.file="a b.fits"`, "fits.tile.algorithm=RICE_1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in output, got: %s", want, out)
		}
	}
}

func TestPrettyHandler(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})
	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("expected info to be disabled at warn level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Error("expected error to be enabled at warn level")
	}
	if h.WithGroup("") != h {
		t.Fatal("WithGroup empty string should return same handler")
	}
	slog.New(h.WithAttrs([]slog.Attr{slog.Int("hdu", 2)})).Warn("with attrs")
	if !strings.Contains(buf.String(), "hdu=2") {
		t.Fatalf("expected 'hdu=2' in output, got: %s", buf.String())
	}
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()
	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext with no logger returned nil")
	}

	var buf bytes.Buffer
	ctx := WithContext(context.Background(), JSON(&buf, slog.LevelInfo))
	FromContext(ctx).Info("roundtrip test")
	if !strings.Contains(buf.String(), "roundtrip test") {
		t.Fatalf("expected message via context logger, got: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"DEBUG", slog.LevelDebug},
		{" Warn ", slog.LevelWarn},
	}
	for _, tc := range tests {
		if got := ParseLevel(tc.input); got != tc.expected {
			t.Errorf("ParseLevel(%q): got %v want %v", tc.input, got, tc.expected)
		}
	}
}

func TestNeedsQuoting(t *testing.T) {
	t.Parallel()

	tests := map[string]bool{
		"simple":     false,
		"has space":  true,
		"has\ttab":   true,
		`has"quote`:  true,
		"":           false,
		"NGC-253.fz": false,
	}
	for in, want := range tests {
		if got := needsQuoting(in); got != want {
			t.Errorf("needsQuoting(%q): got %v want %v", in, got, want)
		}
	}
}
