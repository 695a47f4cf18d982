package audit

import (
	"context"
	"log/slog"
)

// LogSink writes events as structured log lines. It is the default sink when
// no broker is configured.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger.With("component", "audit")}
}

func (s *LogSink) Append(ctx context.Context, events []Event) error {
	for _, e := range events {
		attrs := []any{
			"action", string(e.Action),
			"session_id", e.SessionID,
			"request_id", e.RequestID,
			"occurred_at", e.Timestamp,
		}
		if e.Outcome != "" {
			attrs = append(attrs, "outcome", e.Outcome)
		}
		if e.Device != "" {
			attrs = append(attrs, "device", e.Device)
		}
		for k, v := range e.Detail {
			attrs = append(attrs, "detail."+k, v)
		}
		s.logger.InfoContext(ctx, "audit event", attrs...)
	}
	return nil
}
