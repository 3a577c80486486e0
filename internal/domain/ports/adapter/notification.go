package adapter

import "context"

// Events published on the notification sink.
const (
	EventBillingRunReport        = "billing.run_report"
	EventSubscriptionDeactivated = "subscription.deactivated"
	EventOrderCancelled          = "order.cancelled"
	EventRefundProcessed         = "refund.processed"
	EventLedgerAlert             = "ledger.alert"
)

// NotificationSink delivers operational events. Delivery is best-effort:
// callers log failures and carry on.
type NotificationSink interface {
	Notify(ctx context.Context, event string, payload any) error
}
