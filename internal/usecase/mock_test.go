//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"collective-ledger/internal/domain"
	"collective-ledger/internal/domain/model"
	"collective-ledger/internal/domain/ports/adapter"
	"collective-ledger/internal/domain/ports/repository"
	"collective-ledger/internal/infra/worker"
)

// -----------------------------
// Utilities: tiny helpers
// -----------------------------

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

func i64(v int64) *int64 { return &v }

// snapshotter is implemented by in-memory stores that can roll back.
type snapshotter interface {
	snapshot() func()
}

// =============================
// Transaction manager
// =============================

// mockTx is the handle passed to repositories inside WithTx.
type mockTx struct{ id int }

type MockTxManager struct {
	mu         sync.Mutex
	depth      int
	seq        int
	Stores     []snapshotter
	Locks      []string
	Commits    int
	Rollbacks  int
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

func NewMockTxManager(stores ...snapshotter) *MockTxManager {
	return &MockTxManager{Stores: stores}
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs fn with a fake handle. When fn fails the registered stores are
// restored to their state before the outermost call.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	m.mu.Lock()
	outer := m.depth == 0
	m.depth++
	m.seq++
	tx := &mockTx{id: m.seq}
	var restores []func()
	if outer {
		for _, s := range m.Stores {
			restores = append(restores, s.snapshot())
		}
	}
	m.mu.Unlock()

	err := fn(ctx, tx)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.depth--
	if err != nil {
		m.Rollbacks++
		for _, r := range restores {
			r()
		}
		return err
	}
	m.Commits++
	return nil
}

func (m *MockTxManager) AdvisoryLock(ctx context.Context, tx repository.Tx, key string) error {
	if tx == nil {
		return domain.ErrInvalidExecContext
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Locks = append(m.Locks, key)
	return nil
}

// =============================
// Repositories
// =============================

// ---- In-memory TransactionRepository ----

type MockTransactionRepo struct {
	mu        sync.Mutex
	nextID    int64
	rows      map[int64]*model.Transaction
	InsertErr error
	// FailInsertAfter makes the n-th and later inserts fail when > 0.
	FailInsertAfter int
	inserts         int
}

func NewMockTransactionRepo() *MockTransactionRepo {
	return &MockTransactionRepo{rows: make(map[int64]*model.Transaction)}
}

var _ repository.TransactionRepository = (*MockTransactionRepo)(nil)

func (m *MockTransactionRepo) snapshot() func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	saved := make(map[int64]*model.Transaction, len(m.rows))
	for id, r := range m.rows {
		cp := *r
		saved[id] = &cp
	}
	next := m.nextID
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.rows, m.nextID = saved, next
	}
}

func (m *MockTransactionRepo) Insert(ctx context.Context, tx repository.Tx, t *model.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserts++
	if m.InsertErr != nil {
		return m.InsertErr
	}
	if m.FailInsertAfter > 0 && m.inserts >= m.FailInsertAfter {
		return domain.ErrOperationFailed
	}
	m.nextID++
	t.ID = m.nextID
	cp := *t
	m.rows[t.ID] = &cp
	return nil
}

func (m *MockTransactionRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MockTransactionRepo) filter(keep func(*model.Transaction) bool) []*model.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Transaction
	for _, r := range m.rows {
		if keep(r) {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MockTransactionRepo) FindByGroup(ctx context.Context, tx repository.Tx, group uuid.UUID) ([]*model.Transaction, error) {
	return m.filter(func(r *model.Transaction) bool { return r.TransactionGroup == group }), nil
}

func (m *MockTransactionRepo) FindByChargeID(ctx context.Context, tx repository.Tx, chargeID string, kind model.TransactionKind) (*model.Transaction, error) {
	rows := m.filter(func(r *model.Transaction) bool {
		return r.ProcessorChargeID == chargeID && r.Kind == kind && !r.IsRefund &&
			r.Type == model.TransactionTypeCredit && r.DeletedAt == nil
	})
	if len(rows) == 0 {
		return nil, domain.ErrNotFound
	}
	return rows[0], nil
}

func (m *MockTransactionRepo) FindByOrder(ctx context.Context, tx repository.Tx, orderID int64) ([]*model.Transaction, error) {
	return m.filter(func(r *model.Transaction) bool { return r.OrderID != nil && *r.OrderID == orderID }), nil
}

func (m *MockTransactionRepo) List(ctx context.Context, tx repository.Tx, q model.TransactionQuery) ([]*model.Transaction, error) {
	rows := m.filter(func(r *model.Transaction) bool {
		switch {
		case r.CollectiveID != q.AccountID:
			return false
		case !q.IncludeDeleted && r.DeletedAt != nil:
			return false
		case q.Type != "" && r.Type != q.Type:
			return false
		case q.Kind != "" && r.Kind != q.Kind:
			return false
		}
		return true
	})
	if q.Offset >= len(rows) {
		return nil, nil
	}
	rows = rows[q.Offset:]
	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	return rows, nil
}

func (m *MockTransactionRepo) SetRefundTransactionID(ctx context.Context, tx repository.Tx, id, refundID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	r.RefundTransactionID = &refundID
	return nil
}

func (m *MockTransactionRepo) SoftDeleteGroup(ctx context.Context, tx repository.Tx, group uuid.UUID, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, r := range m.rows {
		if r.TransactionGroup == group && r.DeletedAt == nil {
			r.DeletedAt = &at
			n++
		}
	}
	return n, nil
}

func visible(r *model.Transaction, accountID int64, asOf *time.Time) bool {
	return r.CollectiveID == accountID && r.DeletedAt == nil && (asOf == nil || !r.CreatedAt.After(*asOf))
}

func (m *MockTransactionRepo) SumNet(ctx context.Context, tx repository.Tx, accountID int64, asOf *time.Time) (int64, error) {
	var sum int64
	for _, r := range m.filter(func(r *model.Transaction) bool { return visible(r, accountID, asOf) }) {
		sum += r.NetAmountInCollectiveCurrency
	}
	return sum, nil
}

func (m *MockTransactionRepo) SumByHost(ctx context.Context, tx repository.Tx, accountID int64, asOf *time.Time) ([]model.HostBalance, error) {
	type key struct {
		host     int64
		currency string
	}
	byKey := map[key]*model.HostBalance{}
	var order []key
	for _, r := range m.filter(func(r *model.Transaction) bool { return visible(r, accountID, asOf) }) {
		k := key{currency: r.HostCurrency}
		if r.HostCollectiveID != nil {
			k.host = *r.HostCollectiveID
		}
		hb, ok := byKey[k]
		if !ok {
			hb = &model.HostBalance{HostCollectiveID: r.HostCollectiveID, HostCurrency: r.HostCurrency, Currency: r.Currency}
			byKey[k] = hb
			order = append(order, k)
		}
		hb.Net += r.NetAmountInCollectiveCurrency
		hb.NetInHost += r.AmountInHostCurrency + r.Fees()
	}
	out := make([]model.HostBalance, 0, len(order))
	for _, k := range order {
		out = append(out, *byKey[k])
	}
	return out, nil
}

// Rows returns every stored row ordered by id.
func (m *MockTransactionRepo) Rows() []*model.Transaction {
	return m.filter(func(*model.Transaction) bool { return true })
}

// ---- In-memory SubscriptionRepository ----

type MockSubscriptionRepo struct {
	mu      sync.Mutex
	nextID  int64
	byOrder map[int64]*model.Subscription
	SaveErr error
}

func NewMockSubscriptionRepo() *MockSubscriptionRepo {
	return &MockSubscriptionRepo{byOrder: make(map[int64]*model.Subscription)}
}

var _ repository.SubscriptionRepository = (*MockSubscriptionRepo)(nil)

func (m *MockSubscriptionRepo) snapshot() func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	saved := make(map[int64]*model.Subscription, len(m.byOrder))
	for k, s := range m.byOrder {
		cp := *s
		saved[k] = &cp
	}
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.byOrder = saved
	}
}

func (m *MockSubscriptionRepo) Create(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byOrder[s.OrderID]; ok {
		return domain.ErrAlreadyExists
	}
	m.nextID++
	s.ID = m.nextID
	cp := *s
	m.byOrder[s.OrderID] = &cp
	return nil
}

func (m *MockSubscriptionRepo) FindByOrderID(ctx context.Context, tx repository.Tx, orderID int64) (*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byOrder[orderID]
	if !ok {
		return nil, domain.ErrSubscriptionNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MockSubscriptionRepo) Save(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	cp := *s
	m.byOrder[s.OrderID] = &cp
	return nil
}

func (m *MockSubscriptionRepo) CountByState(ctx context.Context, tx repository.Tx) (map[model.BillingState]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[model.BillingState]int{}
	for _, s := range m.byOrder {
		out[s.State()]++
	}
	return out, nil
}

// ---- In-memory OrderRepository ----

type MockOrderRepo struct {
	mu     sync.Mutex
	nextID int64
	orders map[int64]*model.Order
	subs   *MockSubscriptionRepo
}

func NewMockOrderRepo(subs *MockSubscriptionRepo) *MockOrderRepo {
	return &MockOrderRepo{orders: make(map[int64]*model.Order), subs: subs}
}

var _ repository.OrderRepository = (*MockOrderRepo)(nil)

func (m *MockOrderRepo) snapshot() func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	saved := make(map[int64]*model.Order, len(m.orders))
	for k, o := range m.orders {
		cp := *o
		saved[k] = &cp
	}
	next := m.nextID
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.orders, m.nextID = saved, next
	}
}

func (m *MockOrderRepo) Create(ctx context.Context, tx repository.Tx, o *model.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	o.ID = m.nextID
	cp := *o
	cp.Subscription = nil
	m.orders[o.ID] = &cp
	return nil
}

func (m *MockOrderRepo) get(ctx context.Context, id int64) (*model.Order, bool) {
	m.mu.Lock()
	o, ok := m.orders[id]
	var cp model.Order
	if ok {
		cp = *o
	}
	m.mu.Unlock()
	if !ok {
		return nil, false
	}
	if cp.IsRecurring() && m.subs != nil {
		if s, err := m.subs.FindByOrderID(ctx, nil, id); err == nil {
			cp.Subscription = s
		}
	}
	return &cp, true
}

func (m *MockOrderRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.Order, error) {
	o, ok := m.get(ctx, id)
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return o, nil
}

func (m *MockOrderRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id int64, status model.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	o.Status = status
	return nil
}

func (m *MockOrderRepo) ids() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int64, 0, len(m.orders))
	for id := range m.orders {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (m *MockOrderRepo) FindDue(ctx context.Context, tx repository.Tx, now time.Time, afterID int64, limit int) ([]*model.Order, error) {
	var out []*model.Order
	for _, id := range m.ids() {
		if id <= afterID {
			continue
		}
		o, _ := m.get(ctx, id)
		if o.Subscription == nil || !o.Subscription.IsDue(now) {
			continue
		}
		out = append(out, o)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MockOrderRepo) ListRecurringByAccount(ctx context.Context, tx repository.Tx, accountID int64) ([]*model.Order, error) {
	var out []*model.Order
	for _, id := range m.ids() {
		o, _ := m.get(ctx, id)
		if o.FromAccountID != accountID && o.ToAccountID != accountID {
			continue
		}
		if o.Subscription == nil || !o.Subscription.IsActive {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

// =============================
// Adapters
// =============================

// ---- Account directory ----

type MockDirectory struct {
	mu       sync.Mutex
	accounts map[int64]*model.Account
}

func NewMockDirectory(accs ...*model.Account) *MockDirectory {
	d := &MockDirectory{accounts: make(map[int64]*model.Account)}
	for _, a := range accs {
		d.accounts[a.ID] = a
	}
	return d
}

var _ adapter.AccountDirectory = (*MockDirectory)(nil)

func (d *MockDirectory) GetAccount(ctx context.Context, id int64) (*model.Account, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

// ---- FX rates ----

type MockFx struct {
	Rates map[string]decimal.Decimal // "USD/EUR"
	Calls int
}

var _ adapter.FxRateProvider = (*MockFx)(nil)

func (f *MockFx) Rate(ctx context.Context, from, to string, at time.Time) (decimal.Decimal, error) {
	f.Calls++
	if r, ok := f.Rates[from+"/"+to]; ok {
		return r, nil
	}
	return decimal.Zero, fmt.Errorf("%w: %s/%s", domain.ErrFxRateUnavailable, from, to)
}

// ---- Payment processor ----

type MockProcessor struct {
	mu       sync.Mutex
	Charges  []adapter.ChargeRequest
	Refunds  []string
	seq      int
	byKey    map[string]adapter.ChargeResult
	Fee      int64
	Declines map[string]string // token -> reason

	ChargeFunc func(ctx context.Context, req adapter.ChargeRequest) (adapter.ChargeResult, error)
	RefundFunc func(ctx context.Context, chargeID string) (adapter.RefundResult, error)
	FeeFunc    func(ctx context.Context, chargeID string) (adapter.FeeBreakdown, error)
}

func NewMockProcessor(fee int64) *MockProcessor {
	return &MockProcessor{Fee: fee, byKey: map[string]adapter.ChargeResult{}, Declines: map[string]string{}}
}

var _ adapter.PaymentProcessor = (*MockProcessor)(nil)

func (p *MockProcessor) Name() string { return "mock" }

// Charge honours idempotency keys the way real processors do.
func (p *MockProcessor) Charge(ctx context.Context, req adapter.ChargeRequest) (adapter.ChargeResult, error) {
	p.mu.Lock()
	p.Charges = append(p.Charges, req)
	p.mu.Unlock()
	if p.ChargeFunc != nil {
		return p.ChargeFunc(ctx, req)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if reason, ok := p.Declines[req.PaymentMethodToken]; ok {
		return adapter.ChargeResult{FailureReason: reason}, nil
	}
	if r, ok := p.byKey[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		return r, nil
	}
	p.seq++
	r := adapter.ChargeResult{ID: fmt.Sprintf("ch_%d", p.seq), Succeeded: true, FeeAmount: p.Fee}
	p.byKey[req.IdempotencyKey] = r
	return r, nil
}

func (p *MockProcessor) Refund(ctx context.Context, chargeID string) (adapter.RefundResult, error) {
	p.mu.Lock()
	p.Refunds = append(p.Refunds, chargeID)
	p.mu.Unlock()
	if p.RefundFunc != nil {
		return p.RefundFunc(ctx, chargeID)
	}
	return adapter.RefundResult{ID: "re_" + chargeID}, nil
}

func (p *MockProcessor) GetFeeBreakdown(ctx context.Context, chargeID string) (adapter.FeeBreakdown, error) {
	if p.FeeFunc != nil {
		return p.FeeFunc(ctx, chargeID)
	}
	return adapter.FeeBreakdown{ProcessorFee: p.Fee}, nil
}

// ---- Notification sink ----

type sentEvent struct {
	Event   string
	Payload any
}

type MockSink struct {
	mu     sync.Mutex
	Events []sentEvent
	Err    error
}

var _ adapter.NotificationSink = (*MockSink)(nil)

func (s *MockSink) Notify(ctx context.Context, event string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Events = append(s.Events, sentEvent{Event: event, Payload: payload})
	return s.Err
}

func (s *MockSink) Count(event string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.Events {
		if e.Event == event {
			n++
		}
	}
	return n
}

// syncSubmitter runs background tasks inline so tests can assert on them.
type syncSubmitter struct{}

func (syncSubmitter) Submit(task worker.Task) error {
	if task == nil {
		return worker.ErrNilTask
	}
	return task(context.Background())
}

// ---- Locker and rate limiter ----

type MockLocker struct {
	mu   sync.Mutex
	held map[string]string
	seq  int
}

func NewMockLocker() *MockLocker { return &MockLocker{held: map[string]string{}} }

var _ adapter.Locker = (*MockLocker)(nil)

var errLockHeld = errors.New("lock held")

func (l *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return "", errLockHeld
	}
	l.seq++
	token := fmt.Sprintf("tok-%d", l.seq)
	l.held[key] = token
	return token, nil
}

func (l *MockLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] != token {
		return errors.New("not owner")
	}
	delete(l.held, key)
	return nil
}

func (l *MockLocker) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[key]
	return ok
}

type MockLimiter struct {
	mu     sync.Mutex
	counts map[string]int
	Err    error
}

func NewMockLimiter() *MockLimiter { return &MockLimiter{counts: map[string]int{}} }

var _ adapter.RateLimiter = (*MockLimiter)(nil)

func (l *MockLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if l.Err != nil {
		return false, l.Err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counts[key]++
	return l.counts[key] <= limit, nil
}
