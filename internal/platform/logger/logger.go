package logger

import (
	"log/slog"
	"os"
)

// New returns the process-wide structured logger. Services receive it
// via options; nothing logs through a package-level default.
func New() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}
