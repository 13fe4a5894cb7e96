package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LevelCritical sits above slog.LevelError for failures that stop the application.
const LevelCritical = slog.Level(12)

const (
	DefaultDir        = "logs"
	DefaultFileName   = "ocr_assistant.log"
	DefaultName       = "ocrdesk"
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 5
)

// Options configures the console and rotating file outputs.
type Options struct {
	Name         string
	Dir          string
	FileName     string
	ConsoleLevel slog.Level
	FileLevel    slog.Level
	MaxSizeMB    int
	MaxBackups   int
	// Console defaults to os.Stderr when nil.
	Console io.Writer
}

// DefaultOptions logs DEBUG and above to the console and INFO and above to logs/ocr_assistant.log.
func DefaultOptions() Options {
	return Options{
		Name:         DefaultName,
		Dir:          DefaultDir,
		FileName:     DefaultFileName,
		ConsoleLevel: slog.LevelDebug,
		FileLevel:    slog.LevelInfo,
		MaxSizeMB:    DefaultMaxSizeMB,
		MaxBackups:   DefaultMaxBackups,
	}
}

// Setup builds the logger and installs it as the slog default.
// The returned closer flushes and closes the log file.
func Setup(opts Options) (*slog.Logger, io.Closer, error) {
	opts = withDefaults(opts)

	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory %s: %w", opts.Dir, err)
	}

	file := &lumberjack.Logger{
		Filename:   filepath.Join(opts.Dir, opts.FileName),
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
	}

	handler := slog.NewMultiHandler(
		NewLineHandler(opts.Console, opts.Name, opts.ConsoleLevel),
		NewLineHandler(file, opts.Name, opts.FileLevel),
	)
	logger := slog.New(handler)
	slog.SetDefault(logger)

	logger.Info("logging initialized",
		"file", file.Filename,
		"console_level", LevelName(opts.ConsoleLevel),
		"file_level", LevelName(opts.FileLevel))

	return logger, file, nil
}

func withDefaults(opts Options) Options {
	def := DefaultOptions()
	if opts.Name == "" {
		opts.Name = def.Name
	}
	if opts.Dir == "" {
		opts.Dir = def.Dir
	}
	if opts.FileName == "" {
		opts.FileName = def.FileName
	}
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = def.MaxSizeMB
	}
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = def.MaxBackups
	}
	if opts.Console == nil {
		opts.Console = os.Stderr
	}
	return opts
}

// LevelName returns the upper-case name used in log lines.
func LevelName(level slog.Level) string {
	switch {
	case level >= LevelCritical:
		return "CRITICAL"
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARNING"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}

// ParseLevel accepts DEBUG, INFO, WARNING (or WARN), ERROR and CRITICAL, case-insensitive.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO", "":
		return slog.LevelInfo, nil
	case "WARNING", "WARN":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	case "CRITICAL":
		return LevelCritical, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %s", s)
	}
}
