package adapter

import (
	"context"
)

// ChargeRequest asks the processor to take money from a stored payment method.
type ChargeRequest struct {
	PaymentMethodToken string
	Amount             int64 // minor units
	Currency           string
	Description        string
	// IdempotencyKey makes a retried request return the original charge.
	IdempotencyKey string
}

// ChargeResult is the processor's answer to a charge. A decline is a result
// with Succeeded=false, not an error.
type ChargeResult struct {
	ID            string
	Succeeded     bool
	FeeAmount     int64 // processor fee in the charge currency, if reported
	FailureReason string
}

// RefundResult describes a processed refund.
type RefundResult struct {
	ID             string
	AmountRefunded int64
	// FeeRefunded reports whether the processor returned its fee; nil when
	// the processor does not say.
	FeeRefunded *bool
}

// FeeBreakdown splits the fees the processor took on a charge.
type FeeBreakdown struct {
	ProcessorFee   int64
	ApplicationFee int64
}

// PaymentProcessor is the hex port for card/payment processors.
//
// Errors wrapping domain.ErrProcessorTransient are safe to retry later with
// the same idempotency key; anything else is final.
type PaymentProcessor interface {
	Name() string
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
	Refund(ctx context.Context, chargeID string) (RefundResult, error)
	GetFeeBreakdown(ctx context.Context, chargeID string) (FeeBreakdown, error)
}
