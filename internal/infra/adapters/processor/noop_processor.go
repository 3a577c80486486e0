package processor

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"collective-ledger/internal/domain"
	"collective-ledger/internal/domain/ports/adapter"
)

var _ adapter.PaymentProcessor = (*NoopProcessor)(nil)

// NoopProcessor is an in-memory processor for local runs. Tokens starting
// with "decline" are declined; every other charge succeeds with a fee of
// feePercent of the amount plus 30 minor units.
type NoopProcessor struct {
	mu         sync.Mutex
	seq        int64
	feePercent int64
	charges    map[string]adapter.ChargeResult // charge id -> result
	byKey      map[string]string               // idempotency key -> charge id
	refunded   map[string]bool
}

func NewNoopProcessor(feePercent int64) *NoopProcessor {
	return &NoopProcessor{
		feePercent: feePercent,
		charges:    make(map[string]adapter.ChargeResult),
		byKey:      make(map[string]string),
		refunded:   make(map[string]bool),
	}
}

func (p *NoopProcessor) Name() string { return "noop" }

func (p *NoopProcessor) Charge(ctx context.Context, req adapter.ChargeRequest) (adapter.ChargeResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id, ok := p.byKey[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		return p.charges[id], nil
	}
	p.seq++
	id := fmt.Sprintf("noop_ch_%d", p.seq)
	res := adapter.ChargeResult{ID: id, Succeeded: true, FeeAmount: req.Amount*p.feePercent/100 + 30}
	if strings.HasPrefix(req.PaymentMethodToken, "decline") {
		res = adapter.ChargeResult{ID: id, FailureReason: "card_declined"}
	}
	p.charges[id] = res
	if req.IdempotencyKey != "" {
		p.byKey[req.IdempotencyKey] = id
	}
	return res, nil
}

func (p *NoopProcessor) Refund(ctx context.Context, chargeID string) (adapter.RefundResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.charges[chargeID]
	if !ok || !ch.Succeeded {
		return adapter.RefundResult{}, fmt.Errorf("noop: charge %s: %w", chargeID, domain.ErrNotFound)
	}
	if p.refunded[chargeID] {
		return adapter.RefundResult{}, fmt.Errorf("noop: charge %s: %w", chargeID, domain.ErrAlreadyRefunded)
	}
	p.refunded[chargeID] = true
	return adapter.RefundResult{ID: "noop_re_" + chargeID}, nil
}

func (p *NoopProcessor) GetFeeBreakdown(ctx context.Context, chargeID string) (adapter.FeeBreakdown, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.charges[chargeID]
	if !ok {
		return adapter.FeeBreakdown{}, fmt.Errorf("noop: charge %s: %w", chargeID, domain.ErrNotFound)
	}
	return adapter.FeeBreakdown{ProcessorFee: ch.FeeAmount}, nil
}
