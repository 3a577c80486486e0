package fx

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"collective-ledger/internal/domain"
	"collective-ledger/internal/domain/ports/adapter"
)

var _ adapter.FxRateProvider = (*StaticProvider)(nil)

// pivot is tried when neither the pair nor its inverse is configured.
const pivot = "USD"

// StaticProvider serves rates from a fixed table keyed "FROM/TO", where the
// value is how many TO one FROM buys. Inverse pairs are derived.
type StaticProvider struct {
	rates map[string]decimal.Decimal
}

func NewStaticProvider(table map[string]string) (*StaticProvider, error) {
	rates := make(map[string]decimal.Decimal, len(table))
	for pair, v := range table {
		from, to, ok := strings.Cut(strings.ToUpper(strings.TrimSpace(pair)), "/")
		if !ok || len(from) != 3 || len(to) != 3 {
			return nil, fmt.Errorf("fx: invalid pair %q", pair)
		}
		r, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil || !r.IsPositive() {
			return nil, fmt.Errorf("fx: invalid rate %q for %s", v, pair)
		}
		rates[from+"/"+to] = r
	}
	return &StaticProvider{rates: rates}, nil
}

func (p *StaticProvider) Rate(ctx context.Context, from, to string, at time.Time) (decimal.Decimal, error) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	if r, ok := p.lookup(from, to); ok {
		return r, nil
	}
	if from != pivot && to != pivot {
		a, okA := p.lookup(from, pivot)
		b, okB := p.lookup(pivot, to)
		if okA && okB {
			return a.Mul(b), nil
		}
	}
	return decimal.Zero, fmt.Errorf("%w: %s/%s", domain.ErrFxRateUnavailable, from, to)
}

func (p *StaticProvider) lookup(from, to string) (decimal.Decimal, bool) {
	if r, ok := p.rates[from+"/"+to]; ok {
		return r, true
	}
	if r, ok := p.rates[to+"/"+from]; ok {
		return decimal.NewFromInt(1).DivRound(r, 10), true
	}
	return decimal.Zero, false
}
