package schedule

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// cronLogger routes the cron runner's own messages (skipped runs, recovered panics)
// through slog.
type cronLogger struct {
	logger *slog.Logger
}

var _ cron.Logger = cronLogger{}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
}
