// File: internal/usecase/notify.go
package usecase

import (
	"context"

	"github.com/rs/zerolog"

	"collective-ledger/internal/domain/ports/adapter"
	"collective-ledger/internal/infra/worker"
)

// TaskSubmitter queues background work; *worker.Pool implements it.
type TaskSubmitter interface {
	Submit(task worker.Task) error
}

// Notifier hands events to the notification sink off the caller's path.
// Delivery failures are logged and dropped.
type Notifier struct {
	sink adapter.NotificationSink
	jobs TaskSubmitter
	log  *zerolog.Logger
}

func NewNotifier(sink adapter.NotificationSink, jobs TaskSubmitter, logger *zerolog.Logger) *Notifier {
	l := logger.With().Str("component", "Notifier").Logger()
	return &Notifier{sink: sink, jobs: jobs, log: &l}
}

func (n *Notifier) emit(event string, payload any) {
	if n == nil || n.sink == nil || n.jobs == nil {
		return
	}
	task := func(ctx context.Context) error {
		if err := n.sink.Notify(ctx, event, payload); err != nil {
			n.log.Warn().Err(err).Str("event", event).Msg("notification failed")
		}
		return nil
	}
	if err := n.jobs.Submit(task); err != nil {
		n.log.Warn().Err(err).Str("event", event).Msg("notification dropped")
	}
}
