// Package logging builds the archiver's dual-sink structured logger:
// human-readable text to stderr and newline-delimited JSON to a rotating
// log file, mirroring the console/file split most of this codebase's
// adapters assume slog.Default() already provides.
package logging

import (
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/fnal-sbnd/rrarchiver/internal/config"
)

const (
	maxLogSizeMB  = 500
	maxLogAgeDays = 14
	maxLogBackups = 5
)

// New builds a logger from app. verbose forces debug level regardless of
// app.LogLevel. The returned close func flushes and closes the rotating
// file sink; callers should defer it. When app.LogFile is empty, logging
// goes to stderr only and close is a no-op.
func New(app config.AppConfig, verbose bool) (*slog.Logger, func() error) {
	level := parseLevel(app.LogLevel)
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	handlers := []slog.Handler{slog.NewTextHandler(os.Stderr, opts)}

	var rotated *lumberjack.Logger
	if app.LogFile != "" {
		rotated = &lumberjack.Logger{
			Filename:   app.LogFile,
			MaxSize:    maxLogSizeMB,
			MaxAge:     maxLogAgeDays,
			MaxBackups: maxLogBackups,
		}
		handlers = append(handlers, slog.NewJSONHandler(rotated, opts))
	}

	logger := slog.New(fanOut(handlers))
	closeFn := func() error {
		if rotated == nil {
			return nil
		}
		return rotated.Close()
	}
	return logger, closeFn
}

func parseLevel(name string) slog.Level {
	switch strings.ToUpper(name) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
