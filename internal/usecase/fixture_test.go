//go:build !integration

package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"collective-ledger/internal/domain/model"
	"collective-ledger/internal/usecase"
)

const (
	hostID        int64 = 10 // connected after the fee refund cutoff
	legacyHostID  int64 = 11 // connected before it
	collectiveID  int64 = 20
	eurCollective int64 = 21
	legacyColl    int64 = 22
	payerID       int64 = 30
	platformID    int64 = 40
	hostAdminID   int64 = 100
)

var feeRefundCutoff = time.Date(2017, 9, 1, 0, 0, 0, 0, time.UTC)

func accounts() []*model.Account {
	connected := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	legacy := time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC)
	return []*model.Account{
		{ID: hostID, Name: "Host", Currency: "USD", ProcessorConnectedAt: &connected, AdminIDs: []int64{hostAdminID}},
		{ID: legacyHostID, Name: "Legacy Host", Currency: "USD", ProcessorConnectedAt: &legacy, AdminIDs: []int64{hostAdminID}},
		{ID: collectiveID, Name: "Webpack", Currency: "USD", HostID: i64(hostID), HostFeePercent: decimal.NewFromInt(10)},
		{ID: eurCollective, Name: "Berlin Meetup", Currency: "EUR", HostID: i64(hostID), HostFeePercent: decimal.NewFromInt(10)},
		{ID: legacyColl, Name: "Old Collective", Currency: "USD", HostID: i64(legacyHostID), HostFeePercent: decimal.NewFromInt(10)},
		{ID: payerID, Name: "Backer", Currency: "USD"},
		{ID: platformID, Name: "Platform", Currency: "USD"},
	}
}

// world wires every use case over in-memory adapters.
type world struct {
	txs     *MockTransactionRepo
	subs    *MockSubscriptionRepo
	orders  *MockOrderRepo
	tm      *MockTxManager
	dir     *MockDirectory
	fx      *MockFx
	proc    *MockProcessor
	sink    *MockSink
	locker  *MockLocker
	limiter *MockLimiter

	ledger  usecase.LedgerUseCase
	refund  usecase.RefundUseCase
	billing usecase.BillingUseCase
	order   usecase.OrderUseCase
	balance usecase.BalanceUseCase
}

type worldOption func(*usecase.BillingOptions)

func newWorld(t *testing.T, procFee int64, opts ...worldOption) *world {
	t.Helper()
	w := &world{
		txs:     NewMockTransactionRepo(),
		subs:    NewMockSubscriptionRepo(),
		dir:     NewMockDirectory(accounts()...),
		fx:      &MockFx{Rates: map[string]decimal.Decimal{"EUR/USD": decimal.RequireFromString("1.1")}},
		proc:    NewMockProcessor(procFee),
		sink:    &MockSink{},
		locker:  NewMockLocker(),
		limiter: NewMockLimiter(),
	}
	w.orders = NewMockOrderRepo(w.subs)
	w.tm = NewMockTxManager(w.txs, w.subs, w.orders)

	log := newTestLogger()
	notify := usecase.NewNotifier(w.sink, syncSubmitter{}, log)

	bo := usecase.BillingOptions{
		BatchSize:   2,
		Concurrency: 1,
		LockTTL:     time.Minute,
		Retry:       usecase.RetryPolicy{MaxRetries: 3, BackoffDays: []int{2, 5, 7}},
	}
	for _, o := range opts {
		o(&bo)
	}

	w.ledger = usecase.NewLedgerUseCase(w.txs, w.tm, w.dir, w.fx, notify, log)
	w.refund = usecase.NewRefundUseCase(w.txs, w.tm, w.ledger, w.dir, w.proc, notify, feeRefundCutoff, log)
	w.billing = usecase.NewBillingUseCase(w.orders, w.subs, w.txs, w.tm, w.ledger, w.dir, w.fx, w.proc, w.locker, w.limiter, notify, bo, log)
	w.order = usecase.NewOrderUseCase(w.orders, w.subs, w.tm, w.dir, w.billing, notify, log)
	w.balance = usecase.NewBalanceUseCase(w.txs, w.tm, w.ledger, w.dir, log)
	return w
}

func (w *world) balanceOf(t *testing.T, accountID int64) int64 {
	t.Helper()
	b, err := w.balance.GetBalance(context.Background(), model.SystemActor, accountID, nil)
	require.NoError(t, err)
	return b.Amount
}

// seedOrder stores an order (and its subscription when recurring) without
// charging it.
func (w *world) seedOrder(t *testing.T, o *model.Order, due time.Time) *model.Order {
	t.Helper()
	ctx := context.Background()
	if o.Status == "" {
		o.Status = model.OrderStatusNew
	}
	if o.PaymentMethod.Service == "" {
		o.PaymentMethod = model.PaymentMethod{Service: "mock", Token: "pm_ok"}
	}
	require.NoError(t, w.orders.Create(ctx, nil, o))
	if o.IsRecurring() {
		require.NoError(t, w.subs.Create(ctx, nil, model.NewSubscription(o.ID, o.Interval, due)))
	}
	fresh, err := w.orders.FindByID(ctx, nil, o.ID)
	require.NoError(t, err)
	return fresh
}

func monthly(from, to, amount int64, currency string) *model.Order {
	return &model.Order{
		FromAccountID: from,
		ToAccountID:   to,
		Amount:        amount,
		Currency:      currency,
		Interval:      model.IntervalMonth,
		Description:   "Monthly donation",
	}
}
