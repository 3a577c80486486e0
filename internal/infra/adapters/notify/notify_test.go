//go:build !integration

package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collective-ledger/internal/domain/model"
	"collective-ledger/internal/domain/ports/adapter"
	"collective-ledger/internal/infra/i18n"
)

type fakeSender struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

type recordingSink struct {
	events []string
	err    error
}

func (r *recordingSink) Notify(ctx context.Context, event string, payload any) error {
	r.events = append(r.events, event)
	return r.err
}

func TestTelegramSink(t *testing.T) {
	ctx := context.Background()

	t.Run("should summarise a run report for every operator chat", func(t *testing.T) {
		bot := &fakeSender{}
		sink := &TelegramSink{bot: bot, chatIDs: []int64{1, 2}}
		report := &model.RunReport{RunID: "run1"}
		report.Add(model.ItemResult{OrderID: 7, Status: model.ItemCharged})
		report.Add(model.ItemResult{OrderID: 8, Status: model.ItemDeactivated, FailureReason: "card_declined"})

		require.NoError(t, sink.Notify(ctx, adapter.EventBillingRunReport, report))

		require.Len(t, bot.sent, 2)
		assert.Equal(t, int64(2), bot.sent[1].ChatID)
		assert.Contains(t, bot.sent[0].Text, "Billing run run1")
		assert.Contains(t, bot.sent[0].Text, "processed 2, charged 1, failed 1, deactivated 1")
		assert.Contains(t, bot.sent[0].Text, "order 8: deactivated card_declined")
		assert.NotContains(t, bot.sent[0].Text, "order 7")
	})

	t.Run("should render messages in the configured language", func(t *testing.T) {
		bot := &fakeSender{}
		fa, err := i18n.NewTranslator(i18n.LocalesFS, "fa")
		require.NoError(t, err)
		sink := &TelegramSink{bot: bot, chatIDs: []int64{1}, tr: fa}

		require.NoError(t, sink.Notify(ctx, adapter.EventLedgerAlert, map[string]any{"kind": "CONTRIBUTION"}))

		require.Len(t, bot.sent, 1)
		assert.True(t, strings.HasPrefix(bot.sent[0].Text, "هشدار دفتر کل\n"))
		assert.Contains(t, bot.sent[0].Text, `"kind": "CONTRIBUTION"`)
	})

	t.Run("should ignore events that are not for operators", func(t *testing.T) {
		bot := &fakeSender{}
		sink := &TelegramSink{bot: bot, chatIDs: []int64{1}}

		require.NoError(t, sink.Notify(ctx, adapter.EventRefundProcessed, map[string]any{"refund_id": 1}))
		assert.Empty(t, bot.sent)
	})

	t.Run("should return delivery errors", func(t *testing.T) {
		sink := &TelegramSink{bot: &fakeSender{err: errors.New("blocked")}, chatIDs: []int64{1}}

		err := sink.Notify(ctx, adapter.EventLedgerAlert, map[string]any{"kind": "CONTRIBUTION"})
		assert.ErrorContains(t, err, "blocked")
	})
}

func TestKafkaSink(t *testing.T) {
	w := &fakeWriter{}
	sink := &KafkaSink{writer: w, topic: "ledger.events"}

	require.NoError(t, sink.Notify(context.Background(), adapter.EventOrderCancelled, map[string]any{"order_id": 3}))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "ledger.events", msg.Topic)
	assert.Equal(t, adapter.EventOrderCancelled, string(msg.Key))
	var env struct {
		Event   string         `json:"event"`
		Payload map[string]any `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(msg.Value, &env))
	assert.Equal(t, adapter.EventOrderCancelled, env.Event)
	assert.Equal(t, float64(3), env.Payload["order_id"])

	w.err = errors.New("broker down")
	assert.Error(t, sink.Notify(context.Background(), adapter.EventOrderCancelled, nil))
}

func TestMultiSink(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{err: errors.New("b failed")}
	m := NewMultiSink(a, nil, b)

	err := m.Notify(context.Background(), adapter.EventLedgerAlert, nil)

	assert.ErrorContains(t, err, "b failed")
	assert.Equal(t, []string{adapter.EventLedgerAlert}, a.events)
	assert.Equal(t, []string{adapter.EventLedgerAlert}, b.events)
}
