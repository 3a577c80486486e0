package notify

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"collective-ledger/internal/domain/ports/adapter"
)

var (
	_ adapter.NotificationSink = (*MultiSink)(nil)
	_ adapter.NotificationSink = (*LogSink)(nil)
)

// MultiSink delivers each event to every sink and joins their errors.
type MultiSink struct {
	sinks []adapter.NotificationSink
}

func NewMultiSink(sinks ...adapter.NotificationSink) *MultiSink {
	out := make([]adapter.NotificationSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return &MultiSink{sinks: out}
}

func (m *MultiSink) Notify(ctx context.Context, event string, payload any) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Notify(ctx, event, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes events to the log; used when no sink is configured.
type LogSink struct {
	log *zerolog.Logger
}

func NewLogSink(logger *zerolog.Logger) *LogSink {
	l := logger.With().Str("component", "LogSink").Logger()
	return &LogSink{log: &l}
}

func (s *LogSink) Notify(ctx context.Context, event string, payload any) error {
	s.log.Info().Str("event", event).Interface("payload", payload).Msg("notification")
	return nil
}
