package log

import (
	"io"
	"log/slog"
	"os"
	"sync/atomic"
)

var root atomic.Value

func init() {
	root.Store(NewLogger(slog.NewTextHandler(io.Discard, nil)))
}

// InitLogger installs a terminal root logger on stderr at the named level.
func InitLogger(level string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	SetDefault(NewLogger(NewTerminalHandler(os.Stderr, lvl)))
	return nil
}

// SetDefault replaces the root logger.
func SetDefault(l Logger) {
	root.Store(l)
	if lg, ok := l.(*logger); ok {
		slog.SetDefault(lg.inner)
	}
}

// Root returns the root logger.
func Root() Logger {
	return root.Load().(Logger)
}

// New returns the root logger with extra attributes.
func New(ctx ...any) Logger {
	return Root().With(ctx...)
}

func Trace(msg string, ctx ...any) { Root().Write(LevelTrace, msg, ctx...) }
func Debug(msg string, ctx ...any) { Root().Write(LevelDebug, msg, ctx...) }
func Info(msg string, ctx ...any)  { Root().Write(LevelInfo, msg, ctx...) }
func Warn(msg string, ctx ...any)  { Root().Write(LevelWarn, msg, ctx...) }
func Error(msg string, ctx ...any) { Root().Write(LevelError, msg, ctx...) }

// Crit logs through the root logger and exits the process.
func Crit(msg string, ctx ...any) {
	Root().Write(LevelCrit, msg, ctx...)
	os.Exit(1)
}
