// Package logging provides the component-scoped logger used across the
// supervisor, store, worker, and intake packages.
package logging

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/fatih/color"
)

// Logger is the narrow logging capability consumed by internal packages.
// Each method is printf-style, matching the call sites that expect it.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// ComponentLogger wraps slog with a component-name prefix and TTY coloring
// for warning/error levels.
type ComponentLogger struct {
	name   string
	base   *slog.Logger
	mu     sync.Mutex
	warnC  *color.Color
	errorC *color.Color
}

var defaultHandler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})

// NewComponentLogger builds a Logger prefixed with the given component name.
func NewComponentLogger(name string) *ComponentLogger {
	return &ComponentLogger{
		name:   name,
		base:   slog.New(defaultHandler).With("component", name),
		warnC:  color.New(color.FgYellow),
		errorC: color.New(color.FgRed),
	}
}

func (c *ComponentLogger) format(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}

// Debug logs at debug level.
func (c *ComponentLogger) Debug(format string, args ...any) {
	c.base.Debug(c.format(format, args...))
}

// Info logs at info level.
func (c *ComponentLogger) Info(format string, args ...any) {
	c.base.Info(c.format(format, args...))
}

// Warn logs at warn level, colorized on a TTY.
func (c *ComponentLogger) Warn(format string, args ...any) {
	msg := c.format(format, args...)
	if color.NoColor {
		c.base.Warn(msg)
		return
	}
	c.mu.Lock()
	c.warnC.Fprintf(os.Stderr, "[%s] WARN: %s\n", c.name, msg)
	c.mu.Unlock()
}

// Error logs at error level, colorized on a TTY.
func (c *ComponentLogger) Error(format string, args ...any) {
	msg := c.format(format, args...)
	if color.NoColor {
		c.base.Error(msg)
		return
	}
	c.mu.Lock()
	c.errorC.Fprintf(os.Stderr, "[%s] ERROR: %s\n", c.name, msg)
	c.mu.Unlock()
}
