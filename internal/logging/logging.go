package logging

import (
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Config contains logging configuration.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string
	// FilePath is the path to the log file. Setup always opens it, so an
	// empty path makes Setup fail.
	FilePath string
	// MaxSizeMB is the maximum size in MB before rotation (default: 10).
	MaxSizeMB int
	// MaxFiles is the maximum number of rotated files to keep (default: 5).
	MaxFiles int
	// WriteToStderr controls whether a second handler also writes to
	// stderr, human-readable if stderr is a terminal, JSON otherwise.
	// ChildConfig sets this false: the isolated embedder child logs only
	// to its file (§6 — its stdout is reserved for the IPC wire protocol).
	WriteToStderr bool
}

// DefaultConfig returns sensible defaults for the parent process's log file.
func DefaultConfig() Config {
	return Config{
		Level:         "info",
		FilePath:      DefaultLogPath(),
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: true,
	}
}

// ChildConfig returns the configuration used by the isolated embedder
// child process: file-only, debug level, stdout/stderr untouched.
func ChildConfig() Config {
	return Config{
		Level:         "debug",
		FilePath:      ChildLogPath(),
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: false,
	}
}

// Setup initializes rotating file logging (and an optional stderr fan-out)
// and returns the logger plus a cleanup function to flush and close the
// file on shutdown.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	if err := os.MkdirAll(DefaultLogDir(), 0o755); err != nil {
		return nil, nil, err
	}

	writer, err := NewRotatingWriter(cfg.FilePath, cfg.MaxSizeMB, cfg.MaxFiles)
	if err != nil {
		return nil, nil, err
	}

	level := parseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level}
	handler := slog.Handler(slog.NewJSONHandler(writer, opts))

	if cfg.WriteToStderr {
		var stderrHandler slog.Handler
		if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
			stderrHandler = slog.NewTextHandler(os.Stderr, opts)
		} else {
			stderrHandler = slog.NewJSONHandler(os.Stderr, opts)
		}
		handler = fanout(handler, stderrHandler)
	}

	logger := slog.New(handler)

	cleanup := func() {
		_ = writer.Sync()
		_ = writer.Close()
	}

	return logger, cleanup, nil
}

// SetupDefault sets up logging with DefaultConfig and installs it as the
// package-level slog default. Returns the cleanup function.
func SetupDefault() (func(), error) {
	logger, cleanup, err := Setup(DefaultConfig())
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return cleanup, nil
}

// SetupChild sets up logging for the isolated embedder child: file-only,
// so the IPC wire protocol on stdin/stdout is never corrupted by log
// output (§6's error string convention assumes a clean stdout stream).
func SetupChild() (func(), error) {
	logger, cleanup, err := Setup(ChildConfig())
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return cleanup, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LevelFromString converts a string level to slog.Level.
func LevelFromString(level string) slog.Level {
	return parseLevel(level)
}
