package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLevelName(t *testing.T) {
	tests := []struct {
		level slog.Level
		want  string
	}{
		{slog.LevelDebug, "DEBUG"},
		{slog.LevelInfo, "INFO"},
		{slog.LevelWarn, "WARNING"},
		{slog.LevelError, "ERROR"},
		{LevelCritical, "CRITICAL"},
	}
	for _, tt := range tests {
		if got := LevelName(tt.level); got != tt.want {
			t.Errorf("LevelName(%v) = %q, want %q", tt.level, got, tt.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"Warning", slog.LevelWarn, false},
		{"warn", slog.LevelWarn, false},
		{"ERROR", slog.LevelError, false},
		{"critical", LevelCritical, false},
		{"", slog.LevelInfo, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLineHandler_Format(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewLineHandler(&buf, "PaddleOCRVL", slog.LevelDebug))

	logger.With("component", "ocr").Warn("request failed", "status", 502, "error", "bad gateway")

	line := buf.String()
	for _, want := range []string{
		" - PaddleOCRVL - WARNING - request failed",
		"component=ocr",
		"status=502",
		`error="bad gateway"`,
	} {
		if !strings.Contains(line, want) {
			t.Errorf("log line %q does not contain %q", line, want)
		}
	}
	if !strings.HasSuffix(line, "\n") {
		t.Errorf("expected trailing newline, got %q", line)
	}
}

func TestLineHandler_Group(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewLineHandler(&buf, "ocrdesk", slog.LevelDebug))

	logger.WithGroup("req").Info("done", "id", "abc")

	if !strings.Contains(buf.String(), "req.id=abc") {
		t.Errorf("expected grouped key, got %q", buf.String())
	}
}

func TestMultiHandler_RespectsLevels(t *testing.T) {
	var console, file bytes.Buffer
	logger := slog.New(slog.NewMultiHandler(
		NewLineHandler(&console, "ocrdesk", slog.LevelDebug),
		NewLineHandler(&file, "ocrdesk", slog.LevelInfo),
	))

	logger.Debug("debug only")
	logger.Log(context.Background(), LevelCritical, "fatal")

	if !strings.Contains(console.String(), "debug only") {
		t.Errorf("console should contain debug record, got %q", console.String())
	}
	if strings.Contains(file.String(), "debug only") {
		t.Errorf("file should not contain debug record, got %q", file.String())
	}
	if !strings.Contains(file.String(), "CRITICAL - fatal") {
		t.Errorf("file should contain critical record, got %q", file.String())
	}
}

func TestSetup_WritesLogFile(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	dir := filepath.Join(t.TempDir(), "logs")
	var console bytes.Buffer
	opts := DefaultOptions()
	opts.Dir = dir
	opts.Console = &console

	logger, closer, err := Setup(opts)
	if err != nil {
		t.Fatalf("Setup error: %v", err)
	}
	logger.Info("hello file")
	logger.Debug("not in file")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, DefaultFileName))
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "INFO - hello file") {
		t.Errorf("log file missing info record: %q", string(data))
	}
	if strings.Contains(string(data), "not in file") {
		t.Errorf("log file should not contain debug record: %q", string(data))
	}
	if !strings.Contains(console.String(), "not in file") {
		t.Errorf("console should contain debug record: %q", console.String())
	}
}
