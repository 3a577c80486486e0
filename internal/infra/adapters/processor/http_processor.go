// File: internal/infra/adapters/processor/http_processor.go
package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"collective-ledger/internal/domain"
	"collective-ledger/internal/domain/ports/adapter"
)

var _ adapter.PaymentProcessor = (*HTTPProcessor)(nil)

// HTTPProcessor talks to a card processor over its REST API:
//
//	POST /v1/charges               (Idempotency-Key header)
//	POST /v1/charges/{id}/refunds
//	GET  /v1/charges/{id}/fees
//
// Network failures, 429 and 5xx answers are transient and retried up to
// maxRetries times; a 402 is a decline.
type HTTPProcessor struct {
	name       string
	baseURL    string
	apiKey     string
	client     *http.Client
	maxRetries int
	backoff    time.Duration
	log        *zerolog.Logger
}

func NewHTTPProcessor(name, baseURL, apiKey string, timeout time.Duration, maxRetries int, logger *zerolog.Logger) (*HTTPProcessor, error) {
	if baseURL == "" {
		return nil, errors.New("processor base url empty")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid processor url: %w", err)
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	if name == "" {
		name = "http"
	}
	l := logger.With().Str("component", "HTTPProcessor").Str("processor", name).Logger()
	return &HTTPProcessor{
		name:       name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		client:     &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
		backoff:    200 * time.Millisecond,
		log:        &l,
	}, nil
}

func (p *HTTPProcessor) Name() string { return p.name }

type chargeResponse struct {
	ID          string `json:"id"`
	Status      string `json:"status"` // succeeded | failed
	Fee         int64  `json:"fee"`
	FailureCode string `json:"failure_code"`
}

func (p *HTTPProcessor) Charge(ctx context.Context, req adapter.ChargeRequest) (adapter.ChargeResult, error) {
	payload := map[string]any{
		"payment_method": req.PaymentMethodToken,
		"amount":         req.Amount,
		"currency":       strings.ToLower(req.Currency),
		"description":    req.Description,
	}
	var out chargeResponse
	status, err := p.do(ctx, http.MethodPost, "/v1/charges", req.IdempotencyKey, payload, &out)
	if err != nil {
		return adapter.ChargeResult{}, err
	}
	if status == http.StatusPaymentRequired || out.Status == "failed" {
		reason := out.FailureCode
		if reason == "" {
			reason = "declined"
		}
		return adapter.ChargeResult{ID: out.ID, FailureReason: reason}, nil
	}
	if out.ID == "" {
		return adapter.ChargeResult{}, errors.New("processor returned a charge without id")
	}
	return adapter.ChargeResult{ID: out.ID, Succeeded: true, FeeAmount: out.Fee}, nil
}

func (p *HTTPProcessor) Refund(ctx context.Context, chargeID string) (adapter.RefundResult, error) {
	var out struct {
		ID          string `json:"id"`
		Amount      int64  `json:"amount"`
		FeeRefunded *bool  `json:"fee_refunded"`
	}
	// the charge id doubles as idempotency key: one full refund per charge
	status, err := p.do(ctx, http.MethodPost, "/v1/charges/"+url.PathEscape(chargeID)+"/refunds", "refund-"+chargeID, nil, &out)
	if err != nil {
		return adapter.RefundResult{}, err
	}
	if status == http.StatusPaymentRequired || out.ID == "" {
		return adapter.RefundResult{}, fmt.Errorf("processor refused refund of %s", chargeID)
	}
	return adapter.RefundResult{ID: out.ID, AmountRefunded: out.Amount, FeeRefunded: out.FeeRefunded}, nil
}

func (p *HTTPProcessor) GetFeeBreakdown(ctx context.Context, chargeID string) (adapter.FeeBreakdown, error) {
	var out struct {
		ProcessorFee   int64 `json:"processor_fee"`
		ApplicationFee int64 `json:"application_fee"`
	}
	if _, err := p.do(ctx, http.MethodGet, "/v1/charges/"+url.PathEscape(chargeID)+"/fees", "", nil, &out); err != nil {
		return adapter.FeeBreakdown{}, err
	}
	return adapter.FeeBreakdown{ProcessorFee: out.ProcessorFee, ApplicationFee: out.ApplicationFee}, nil
}

// do sends the request, retrying transient failures. It returns the final
// HTTP status for 2xx and 402 answers.
func (p *HTTPProcessor) do(ctx context.Context, method, path, idemKey string, payload any, out any) (int, error) {
	var body []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return 0, err
		}
		body = b
	}

	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return 0, fmt.Errorf("%w: %v", domain.ErrProcessorTransient, ctx.Err())
			case <-time.After(p.backoff * time.Duration(attempt)):
			}
		}
		status, err := p.once(ctx, method, path, idemKey, body, out)
		if err == nil {
			return status, nil
		}
		if !errors.Is(err, domain.ErrProcessorTransient) {
			return 0, err
		}
		lastErr = err
		p.log.Warn().Err(err).Str("path", path).Int("attempt", attempt+1).Msg("processor call failed, retrying")
	}
	return 0, lastErr
}

func (p *HTTPProcessor) once(ctx context.Context, method, path, idemKey string, body []byte, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrProcessorTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return 0, fmt.Errorf("%w: http %d", domain.ErrProcessorTransient, resp.StatusCode)
	case resp.StatusCode == http.StatusPaymentRequired:
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return 0, fmt.Errorf("processor %s %s: http %d", method, path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return 0, fmt.Errorf("decode processor response: %w", err)
	}
	return resp.StatusCode, nil
}
