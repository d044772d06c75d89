package feesharetesting

import (
	"log/slog"
	"os"

	"github.com/moltpump/feeshare/utils/pkg/logger"
)

// NewLogger returns a logger for tests. DEBUG=2 enables debug output, DEBUG=1
// info; otherwise only errors are shown.
func NewLogger() *slog.Logger {
	switch os.Getenv("DEBUG") {
	case "2":
		return logger.NewWithOptions(logger.Options{Verbose: true, NoColor: true, Output: os.Stderr})
	case "1":
		return logger.NewWithOptions(logger.Options{NoColor: true, Output: os.Stderr})
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}
