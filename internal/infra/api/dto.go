package api

import (
	"encoding/json"
	"net/http"
	"time"

	"collective-ledger/internal/domain/model"
	"collective-ledger/internal/usecase"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type Transaction struct {
	ID                                int64      `json:"id"`
	TransactionGroup                  string     `json:"transaction_group"`
	Type                              string     `json:"type"`
	Kind                              string     `json:"kind"`
	Description                       string     `json:"description,omitempty"`
	Amount                            int64      `json:"amount"`
	Currency                          string     `json:"currency"`
	HostCurrency                      string     `json:"host_currency,omitempty"`
	HostCurrencyFxRate                string     `json:"host_currency_fx_rate"`
	AmountInHostCurrency              int64      `json:"amount_in_host_currency"`
	NetAmountInCollectiveCurrency     int64      `json:"net_amount_in_collective_currency"`
	HostFeeInHostCurrency             int64      `json:"host_fee_in_host_currency"`
	PlatformFeeInHostCurrency         int64      `json:"platform_fee_in_host_currency"`
	PaymentProcessorFeeInHostCurrency int64      `json:"payment_processor_fee_in_host_currency"`
	IsRefund                          bool       `json:"is_refund"`
	RefundTransactionID               *int64     `json:"refund_transaction_id,omitempty"`
	OrderID                           *int64     `json:"order_id,omitempty"`
	FromCollectiveID                  int64      `json:"from_collective_id"`
	CollectiveID                      int64      `json:"collective_id"`
	HostCollectiveID                  *int64     `json:"host_collective_id,omitempty"`
	CreatedAt                         time.Time  `json:"created_at"`
	DeletedAt                         *time.Time `json:"deleted_at,omitempty"`
}

func toTransaction(t *model.Transaction) *Transaction {
	if t == nil {
		return nil
	}
	return &Transaction{
		ID:                                t.ID,
		TransactionGroup:                  t.TransactionGroup.String(),
		Type:                              string(t.Type),
		Kind:                              string(t.Kind),
		Description:                       t.Description,
		Amount:                            t.Amount,
		Currency:                          t.Currency,
		HostCurrency:                      t.HostCurrency,
		HostCurrencyFxRate:                t.HostCurrencyFxRate.String(),
		AmountInHostCurrency:              t.AmountInHostCurrency,
		NetAmountInCollectiveCurrency:     t.NetAmountInCollectiveCurrency,
		HostFeeInHostCurrency:             t.HostFeeInHostCurrency,
		PlatformFeeInHostCurrency:         t.PlatformFeeInHostCurrency,
		PaymentProcessorFeeInHostCurrency: t.PaymentProcessorFeeInHostCurrency,
		IsRefund:                          t.IsRefund,
		RefundTransactionID:               t.RefundTransactionID,
		OrderID:                           t.OrderID,
		FromCollectiveID:                  t.FromCollectiveID,
		CollectiveID:                      t.CollectiveID,
		HostCollectiveID:                  t.HostCollectiveID,
		CreatedAt:                         t.CreatedAt,
		DeletedAt:                         t.DeletedAt,
	}
}

func toTransactions(rows []*model.Transaction) []*Transaction {
	out := make([]*Transaction, 0, len(rows))
	for _, r := range rows {
		out = append(out, toTransaction(r))
	}
	return out
}

type Pair struct {
	Credit *Transaction `json:"credit"`
	Debit  *Transaction `json:"debit"`
}

func toPair(p *model.TransactionPair) *Pair {
	if p == nil {
		return nil
	}
	return &Pair{Credit: toTransaction(p.Credit), Debit: toTransaction(p.Debit)}
}

type Refund struct {
	Reversal          *Pair   `json:"reversal"`
	Cover             *Pair   `json:"cover,omitempty"`
	FeeReversals      []*Pair `json:"fee_reversals,omitempty"`
	ProcessorRefundID string  `json:"processor_refund_id"`
	FeeRefunded       bool    `json:"fee_refunded"`
}

func toRefund(o *usecase.RefundOutcome) Refund {
	out := Refund{
		Reversal:          toPair(o.Reversal),
		Cover:             toPair(o.Cover),
		ProcessorRefundID: o.ProcessorRefundID,
		FeeRefunded:       o.FeeRefunded,
	}
	for _, p := range o.FeeReversals {
		out.FeeReversals = append(out.FeeReversals, toPair(p))
	}
	return out
}

type HostBalance struct {
	HostCollectiveID *int64 `json:"host_collective_id"`
	HostCurrency     string `json:"host_currency"`
	Currency         string `json:"currency"`
	Net              int64  `json:"net"`
	NetInHost        int64  `json:"net_in_host_currency"`
}

type Carryforward struct {
	Balance int64        `json:"balance"`
	Warning string       `json:"warning,omitempty"`
	Closing *Transaction `json:"closing"`
	Opening *Transaction `json:"opening"`
}

type Subscription struct {
	IsActive           bool       `json:"is_active"`
	NextChargeDate     *time.Time `json:"next_charge_date,omitempty"`
	ChargeRetryCount   int        `json:"charge_retry_count"`
	LastFailureReason  string     `json:"last_failure_reason,omitempty"`
	DeactivationReason string     `json:"deactivation_reason,omitempty"`
}

type Order struct {
	ID                int64         `json:"id"`
	FromAccountID     int64         `json:"from_account_id"`
	ToAccountID       int64         `json:"to_account_id"`
	Amount            int64         `json:"amount"`
	PlatformTipAmount int64         `json:"platform_tip_amount"`
	Currency          string        `json:"currency"`
	Status            string        `json:"status"`
	Interval          string        `json:"interval,omitempty"`
	Description       string        `json:"description"`
	CreatedAt         time.Time     `json:"created_at"`
	Subscription      *Subscription `json:"subscription,omitempty"`
}

type CreateOrderResponse struct {
	Order  Order            `json:"order"`
	Charge model.ItemResult `json:"charge"`
}

func toOrder(o *model.Order) Order {
	out := Order{
		ID:                o.ID,
		FromAccountID:     o.FromAccountID,
		ToAccountID:       o.ToAccountID,
		Amount:            o.Amount,
		PlatformTipAmount: o.PlatformTipAmount,
		Currency:          o.Currency,
		Status:            string(o.Status),
		Interval:          string(o.Interval),
		Description:       o.Description,
		CreatedAt:         o.CreatedAt,
	}
	if s := o.Subscription; s != nil {
		out.Subscription = &Subscription{
			IsActive:           s.IsActive,
			NextChargeDate:     s.NextChargeDate,
			ChargeRetryCount:   s.ChargeRetryCount,
			LastFailureReason:  s.LastFailureReason,
			DeactivationReason: s.DeactivationReason,
		}
	}
	return out
}
