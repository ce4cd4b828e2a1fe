package config

import (
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
)

// ParseLevel maps a level name onto slog.Level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// SetupLogger creates a JSON logger on stdout. When cfg.File is set the same
// records are also appended to that file.
// Returns the logger and a cleanup function to close the file.
func SetupLogger(cfg LogConfig) (*slog.Logger, func() error) {
	level := ParseLevel(cfg.Level)
	stdoutHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})

	if cfg.File == "" {
		return slog.New(stdoutHandler), func() error { return nil }
	}

	file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		logger := slog.New(stdoutHandler)
		logger.Error("failed to open log file, using stdout only", "error", err, "file", cfg.File)
		return logger, func() error { return nil }
	}

	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})
	logger := slog.New(slogmulti.Fanout(stdoutHandler, fileHandler))

	return logger, file.Close
}

// SetupLoggerWithWriters fans out to arbitrary writers (for testing).
func SetupLoggerWithWriters(primary, secondary io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slogmulti.Fanout(
		slog.NewJSONHandler(primary, &slog.HandlerOptions{Level: level}),
		slog.NewJSONHandler(secondary, &slog.HandlerOptions{Level: level}),
	))
}
