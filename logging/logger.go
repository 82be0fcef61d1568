package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/m-mizutani/clog"
)

type ctxKey struct{}

var (
	mu     sync.RWMutex
	logger *slog.Logger
)

func init() {
	logger = New(os.Getenv("MNEMO_LOG_LEVEL"), os.Stderr)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a console slog.Logger at the given level. An empty level
// means "info".
func New(level string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	handler := clog.New(
		clog.WithWriter(w),
		clog.WithLevel(parseLevel(level)),
		clog.WithTimeFmt("15:04:05"),
		clog.WithSource(false),
		clog.WithAttrHook(clog.GoerrHook),
	)
	return slog.New(handler)
}

func Default() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func SetDefault(l *slog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

// With attaches a logger to the context.
func With(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From returns the logger attached to the context, or the default one.
func From(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return Default()
}
