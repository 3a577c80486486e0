package model

import "time"

type ItemStatus string

const (
	ItemCharged     ItemStatus = "charged"
	ItemDuplicate   ItemStatus = "duplicate"   // charge already recorded for this period
	ItemDeclined    ItemStatus = "declined"    // retry scheduled
	ItemDeactivated ItemStatus = "deactivated" // retries exhausted
	ItemSkipped     ItemStatus = "skipped"     // not due anymore or rate limited
	ItemError       ItemStatus = "error"       // transient failure, state unchanged
)

// ItemResult is the outcome of charging one order.
type ItemResult struct {
	OrderID       int64        `json:"order_id"`
	Status        ItemStatus   `json:"status"`
	ChargeID      string       `json:"charge_id,omitempty"`
	Transaction   *Transaction `json:"-"`
	FailureReason string       `json:"failure_reason,omitempty"`
	Err           error        `json:"-"`
	Error         string       `json:"error,omitempty"`
}

// RunReport aggregates one billing run.
type RunReport struct {
	RunID       string       `json:"run_id"`
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  time.Time    `json:"finished_at"`
	Processed   int          `json:"processed"`
	Succeeded   int          `json:"succeeded"`
	Failed      int          `json:"failed"`
	Deactivated int          `json:"deactivated"`
	Skipped     int          `json:"skipped"`
	Items       []ItemResult `json:"items"`
}

// Add folds an item into the report counters.
func (r *RunReport) Add(item ItemResult) {
	if item.Err != nil && item.Error == "" {
		item.Error = item.Err.Error()
	}
	r.Processed++
	switch item.Status {
	case ItemCharged, ItemDuplicate:
		r.Succeeded++
	case ItemDeclined, ItemError:
		r.Failed++
	case ItemDeactivated:
		r.Failed++
		r.Deactivated++
	case ItemSkipped:
		r.Skipped++
	}
	r.Items = append(r.Items, item)
}
