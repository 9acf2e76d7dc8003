// Package logging wires the daemon's structured logging: zerolog with
// optional rotation to disk, scoped per component.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Config controls where and how logs are written.
type Config struct {
	Path       string // empty means stderr, no rotation
	Level      string // zerolog level name, defaults to "info"
	Console    bool   // human-readable output instead of JSON
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

var (
	mu          sync.Mutex
	root        zerolog.Logger
	initialized bool
)

// Init configures the package-level root logger. Safe to call once at
// startup; subsequent calls are no-ops.
func Init(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()
	if initialized {
		return nil
	}
	l, err := build(cfg)
	if err != nil {
		return err
	}
	root = l
	initialized = true
	return nil
}

func build(cfg Config) (zerolog.Logger, error) {
	var w io.Writer = os.Stderr
	if cfg.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return zerolog.Logger{}, err
		}
		w = &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    nonZero(cfg.MaxSizeMB, 50),
			MaxBackups: nonZero(cfg.MaxBackups, 5),
			MaxAge:     nonZero(cfg.MaxAgeDays, 28),
			Compress:   true,
		}
	}
	if cfg.Console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	l := zerolog.New(w).With().Timestamp().Logger()

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	return l.Level(level), nil
}

func nonZero(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// For returns a logger scoped to the named component. If Init was never
// called, it falls back to a bare stderr logger at info level so tests
// and library callers never need to initialize logging explicitly.
func For(component string) zerolog.Logger {
	mu.Lock()
	if !initialized {
		root, _ = build(Config{})
		initialized = true
	}
	l := root
	mu.Unlock()
	return l.With().Str("component", component).Logger()
}
