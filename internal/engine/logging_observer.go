package engine

import "log/slog"

// LoggingObserver logs every event at debug level using structured fields.
type LoggingObserver struct {
	logger *slog.Logger
}

// NewLoggingObserver creates an observer logging through logger, or
// slog.Default() if logger is nil.
func NewLoggingObserver(logger *slog.Logger) *LoggingObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{logger: logger}
}

func (lo *LoggingObserver) OnEvent(event Event) {
	lo.logger.Debug("table_txn",
		"event", event.Type,
		"table", event.Table,
		"timestamp", event.Timestamp,
		"data", event.Data,
	)
}
