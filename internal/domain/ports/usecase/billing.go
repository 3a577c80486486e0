package usecase

import (
	"context"
	"time"

	"collective-ledger/internal/domain/model"
)

// BillingRunner is what background workers need from billing.
type BillingRunner interface {
	Run(ctx context.Context, now time.Time) (*model.RunReport, error)
}
