package logging

import (
	"log/slog"
	"os"
)

// New builds the process logger. It reads the LOG_FORMAT environment
// variable to determine the output format ("text" for development, "json"
// for production) and returns the instance so callers inject it explicitly;
// components never reach for process-wide mutable state. It is also set as
// slog's default once, for third-party code that logs through slog directly.
func New() *slog.Logger {
	logFormat := os.Getenv("LOG_FORMAT")
	if logFormat == "" {
		logFormat = "text"
	}

	var handler slog.Handler
	switch logFormat {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
