// Package logging provides structured loggers for the chat core components.
// Each component can get its own log file stored in the application's config directory.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Options controls where component loggers write.
type Options struct {
	Level  string // "debug", "info", "warn", "error"; empty means info
	Dir    string // Directory for per-component files; empty disables files
	Pretty bool   // Human-readable console output instead of JSON
	Stderr io.Writer
}

type componentLogger struct {
	logger zerolog.Logger
	file   *os.File
}

var (
	loggers   = make(map[string]*componentLogger)
	loggersMu sync.RWMutex
)

// DefaultDir returns <UserConfigDir>/Chatter/logs.
func DefaultDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get config directory: %w", err)
	}
	return filepath.Join(configDir, "Chatter", "logs"), nil
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Get returns the logger for a component, creating it on first use.
// Later calls with the same component return the cached logger regardless of opts.
func Get(component string, opts Options) (zerolog.Logger, error) {
	loggersMu.RLock()
	if cl, ok := loggers[component]; ok {
		loggersMu.RUnlock()
		return cl.logger, nil
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()

	// Double-check after acquiring write lock
	if cl, ok := loggers[component]; ok {
		return cl.logger, nil
	}

	var console io.Writer = opts.Stderr
	if console == nil {
		console = os.Stderr
	}
	if opts.Pretty {
		console = zerolog.ConsoleWriter{Out: console, TimeFormat: time.TimeOnly}
	}

	cl := &componentLogger{}
	out := console
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0750); err != nil {
			return zerolog.Nop(), fmt.Errorf("failed to create log directory: %w", err)
		}
		path := filepath.Join(opts.Dir, component+".log")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("failed to open log file: %w", err)
		}
		cl.file = f
		out = io.MultiWriter(f, console)
	}

	cl.logger = zerolog.New(out).
		Level(ParseLevel(opts.Level)).
		With().
		Timestamp().
		Str("component", component).
		Logger()

	loggers[component] = cl
	return cl.logger, nil
}

// MustGet is Get that falls back to a console-only logger when the file cannot be opened.
func MustGet(component string, opts Options) zerolog.Logger {
	l, err := Get(component, opts)
	if err == nil {
		return l
	}
	fallback := opts
	fallback.Dir = ""
	l, _ = Get(component, fallback)
	l.Warn().Err(err).Msg("log_file_unavailable")
	return l
}

// CloseAll closes every component log file and forgets the cached loggers.
func CloseAll() error {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	var firstErr error
	for _, cl := range loggers {
		if cl.file == nil {
			continue
		}
		if err := cl.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	loggers = make(map[string]*componentLogger)
	return firstErr
}

// CleanupOldLogs removes .log files in dir last modified more than days ago.
// It returns the number of files removed.
func CleanupOldLogs(dir string, days int) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil // Directory doesn't exist, nothing to clean
		}
		return 0, fmt.Errorf("failed to read log directory: %w", err)
	}

	cutoff := time.Now().AddDate(0, 0, -days)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".log" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(dir, entry.Name())); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}
