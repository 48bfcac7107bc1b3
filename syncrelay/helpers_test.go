package syncrelay

import (
	"log/slog"
	"os"
)

// testLogger returns a quiet logger for tests; failures still surface through
// testify, not log noise.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}
