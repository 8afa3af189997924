package ddbstore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// SlogLogger adapts a slog.Logger to the badger.Logger interface.
// Badger is chatty at info level, so its info messages are logged at debug.
type SlogLogger struct {
	Logger *slog.Logger
}

func (l SlogLogger) logf(level slog.Level, format string, args ...any) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Log(context.Background(), level, strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}

// Errorf logs at error level.
func (l SlogLogger) Errorf(format string, args ...any) { l.logf(slog.LevelError, format, args...) }

// Warningf logs at warn level.
func (l SlogLogger) Warningf(format string, args ...any) { l.logf(slog.LevelWarn, format, args...) }

// Infof logs at debug level.
func (l SlogLogger) Infof(format string, args ...any) { l.logf(slog.LevelDebug, format, args...) }

// Debugf logs at debug level.
func (l SlogLogger) Debugf(format string, args ...any) { l.logf(slog.LevelDebug, format, args...) }
