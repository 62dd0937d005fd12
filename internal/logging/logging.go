// Package logging builds the process-wide slog logger.
//
// Output is JSON, to stdout by default or to a size-rotated file when
// log.file is set. The level lives in a slog.LevelVar so a config reload can
// change it without rebuilding the handler.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dbfleet/dbfleet/internal/config"
)

// Handle owns the logger, its level and the file writer if one is open.
type Handle struct {
	Logger *slog.Logger
	level  *slog.LevelVar
	file   *lumberjack.Logger
}

// ParseLevel maps debug | info | warn | error to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("logging: unknown level %q", s)
}

// New builds a JSON logger from cfg. When cfg.File is empty, records go to
// stdout; in debug mode with a file they go to both.
func New(cfg config.LogConfig, stdout io.Writer) (*Handle, error) {
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	h := &Handle{level: new(slog.LevelVar)}
	h.level.Set(lvl)

	out := stdout
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, fmt.Errorf("logging: create log directory: %w", err)
		}
		h.file = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		out = h.file
		if lvl == slog.LevelDebug {
			out = io.MultiWriter(stdout, h.file)
		}
	}

	h.Logger = slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: h.level}))
	return h, nil
}

// Setup builds the logger and installs it as the slog default.
func Setup(cfg config.LogConfig) (*Handle, error) {
	h, err := New(cfg, os.Stdout)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(h.Logger)
	return h, nil
}

// SetLevel changes the level of every logger built from h.
func (h *Handle) SetLevel(name string) error {
	lvl, err := ParseLevel(name)
	if err != nil {
		return err
	}
	if h.level.Level() != lvl {
		h.level.Set(lvl)
		h.Logger.Info("logging: level changed", "level", lvl.String())
	}
	return nil
}

// Level returns the current level.
func (h *Handle) Level() slog.Level { return h.level.Level() }

// Close flushes and closes the log file, if any.
func (h *Handle) Close() error {
	if h.file == nil {
		return nil
	}
	return h.file.Close()
}
