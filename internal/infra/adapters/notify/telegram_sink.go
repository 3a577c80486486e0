package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"collective-ledger/internal/domain/model"
	"collective-ledger/internal/domain/ports/adapter"
	"collective-ledger/internal/infra/i18n"
	"collective-ledger/internal/infra/metrics"
)

var _ adapter.NotificationSink = (*TelegramSink)(nil)

type messageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSink posts operator-facing events to a list of Telegram chats.
// Events meant for downstream systems only are ignored.
type TelegramSink struct {
	bot     messageSender
	chatIDs []int64
	tr      *i18n.Translator
}

// NewTelegramSink renders messages with tr; nil means the default catalog.
func NewTelegramSink(token string, chatIDs []int64, tr *i18n.Translator) (*TelegramSink, error) {
	if token == "" {
		return nil, errors.New("telegram token empty")
	}
	if len(chatIDs) == 0 {
		return nil, errors.New("telegram sink needs at least one chat id")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &TelegramSink{bot: bot, chatIDs: chatIDs, tr: tr}, nil
}

func (s *TelegramSink) Notify(ctx context.Context, event string, payload any) error {
	tr := s.tr
	if tr == nil {
		tr = i18n.Default()
	}
	text, ok := formatOperatorMessage(tr, event, payload)
	if !ok {
		return nil
	}
	var errs []error
	for _, id := range s.chatIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := s.bot.Send(tgbotapi.NewMessage(id, text)); err != nil {
			metrics.IncNotification("telegram", "failed")
			errs = append(errs, fmt.Errorf("chat %d: %w", id, err))
			continue
		}
		metrics.IncNotification("telegram", "sent")
	}
	return errors.Join(errs...)
}

// formatOperatorMessage renders the events operators act on.
func formatOperatorMessage(tr *i18n.Translator, event string, payload any) (string, bool) {
	switch event {
	case adapter.EventBillingRunReport:
		r, ok := payload.(*model.RunReport)
		if !ok {
			return "", false
		}
		var b strings.Builder
		b.WriteString(tr.T("billing_run_header", r.RunID, r.Processed, r.Succeeded, r.Failed, r.Deactivated, r.Skipped))
		b.WriteByte('\n')
		for _, it := range r.Items {
			if it.Status == model.ItemError || it.Status == model.ItemDeactivated {
				b.WriteString(tr.T("billing_run_item", it.OrderID, it.Status, it.FailureReason, it.Error))
				b.WriteByte('\n')
			}
		}
		return strings.TrimRight(b.String(), "\n"), true
	case adapter.EventLedgerAlert, adapter.EventSubscriptionDeactivated:
		body, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return "", false
		}
		return tr.T("event."+event) + "\n" + string(body), true
	}
	return "", false
}
