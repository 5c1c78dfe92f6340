// Package logging provides the component-scoped structured logger used
// across the run-control subsystem. It follows the same shape the rest of
// the codebase has settled on: a small interface, a context-carried
// instance, and a colorized console writer for local development.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
)

// Logger is the minimal logging surface every component depends on.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)

	// With returns a logger that prefixes every line with component.
	With(component string) Logger
}

type level int

const (
	levelDebug level = iota
	levelInfo
	levelWarn
	levelError
)

func parseLevel(s string) level {
	switch s {
	case "debug":
		return levelDebug
	case "warn", "warning":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

func (l level) String() string {
	switch l {
	case levelDebug:
		return "DEBUG"
	case levelWarn:
		return "WARN"
	case levelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

var colorByLevel = map[level]*color.Color{
	levelDebug: color.New(color.FgHiBlack),
	levelInfo:  color.New(color.FgBlue),
	levelWarn:  color.New(color.FgYellow),
	levelError: color.New(color.FgRed),
}

type consoleLogger struct {
	mu        *sync.Mutex
	out       io.Writer
	component string
	minLevel  level
	colorize  bool
}

// Options configures the root logger constructed by New.
type Options struct {
	Out       io.Writer
	Level     string
	Colorize  bool
}

// New builds the root logger components derive from via With.
func New(opts Options) Logger {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	return &consoleLogger{
		mu:       &sync.Mutex{},
		out:      out,
		minLevel: parseLevel(opts.Level),
		colorize: opts.Colorize,
	}
}

// NewComponentLogger builds a ready-to-use logger scoped to component,
// reading sensibly from the environment (info level, color on a TTY).
func NewComponentLogger(component string) Logger {
	root := New(Options{
		Out:      os.Stderr,
		Level:    "info",
		Colorize: isTerminal(os.Stderr),
	})
	return root.With(component)
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

func (l *consoleLogger) With(component string) Logger {
	next := *l
	if l.component != "" {
		next.component = l.component + "." + component
	} else {
		next.component = component
	}
	return &next
}

func (l *consoleLogger) log(lv level, format string, args ...any) {
	if lv < l.minLevel {
		return
	}
	msg := fmt.Sprintf(format, args...)
	ts := time.Now().UTC().Format(time.RFC3339Nano)
	line := fmt.Sprintf("%s [%s] %s %s\n", ts, lv.String(), l.component, msg)
	if l.colorize {
		if c, ok := colorByLevel[lv]; ok {
			line = c.Sprint(line)
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = io.WriteString(l.out, line)
}

func (l *consoleLogger) Debug(format string, args ...any) { l.log(levelDebug, format, args...) }
func (l *consoleLogger) Info(format string, args ...any)  { l.log(levelInfo, format, args...) }
func (l *consoleLogger) Warn(format string, args ...any)  { l.log(levelWarn, format, args...) }
func (l *consoleLogger) Error(format string, args ...any) { l.log(levelError, format, args...) }

type nopLogger struct{}

func (nopLogger) Debug(string, ...any)    {}
func (nopLogger) Info(string, ...any)     {}
func (nopLogger) Warn(string, ...any)     {}
func (nopLogger) Error(string, ...any)    {}
func (n nopLogger) With(string) Logger    { return n }

// Nop is a logger that discards everything; useful as a safe default.
var Nop Logger = nopLogger{}

// IsNil reports whether logger is a nil interface value.
func IsNil(logger Logger) bool { return logger == nil }

// OrNop returns logger unless it is nil, in which case it returns Nop.
func OrNop(logger Logger) Logger {
	if IsNil(logger) {
		return Nop
	}
	return logger
}

type ctxKey struct{}

// WithContext attaches logger to ctx so deeper call frames can recover it
// without threading it through every signature.
func WithContext(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext recovers a logger attached via WithContext, falling back to
// fallback (itself normalized through OrNop) if none is present.
func FromContext(ctx context.Context, fallback Logger) Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(ctxKey{}).(Logger); ok {
			return OrNop(logger)
		}
	}
	return OrNop(fallback)
}
