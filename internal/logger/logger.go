// Package logger provides structured logging setup for Daybook.
package logger

import (
	"log/slog"
	"os"
	"strings"

	"github.com/daybookhq/daybook/internal/config"
)

// levelNames maps config strings to slog levels. Unknown names fall back to
// info so a typo in DAYBOOK_LOG_LEVEL never silences the service.
var levelNames = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// New builds the service logger: JSON records on stdout, every record tagged
// with the service name. With cfg.Async the records detour through a buffered
// AsyncHandler and the returned Closer flushes it on shutdown; otherwise the
// Closer is a no-op.
func New(cfg config.Logging) (*slog.Logger, Closer) {
	var (
		handler slog.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: parseLevel(cfg.Level),
		})
		closer Closer = nopCloser{}
	)

	if cfg.Async {
		async := NewAsyncHandler(handler, 4096, 2)
		handler, closer = async, async
	}

	return slog.New(handler).With("service", cfg.Service), closer
}

func parseLevel(s string) slog.Level {
	if lvl, ok := levelNames[strings.ToLower(s)]; ok {
		return lvl
	}
	return slog.LevelInfo
}
