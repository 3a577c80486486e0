//go:build !integration

package postgres

import (
	"context"
	"time"

	"collective-ledger/internal/domain"
	"collective-ledger/internal/domain/model"
	"collective-ledger/internal/domain/ports/repository"
	red "collective-ledger/internal/infra/redis"
)

type mockRedisClient struct {
	GetFunc func(ctx context.Context, key string) (string, error)
	SetFunc func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc func(ctx context.Context, keys ...string) error
}

var _ red.RedisClient = (*mockRedisClient)(nil)

func (m *mockRedisClient) Ping(ctx context.Context) error { return nil }

func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.SetFunc != nil {
		return m.SetFunc(ctx, key, value, expiration)
	}
	return nil
}

func (m *mockRedisClient) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	return true, nil
}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	return "", red.Nil
}

func (m *mockRedisClient) Incr(ctx context.Context, key string) (int64, error) { return 1, nil }

func (m *mockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return nil
}

func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	if m.DelFunc != nil {
		return m.DelFunc(ctx, keys...)
	}
	return nil
}

func (m *mockRedisClient) DelIfEquals(ctx context.Context, key, value string) (bool, error) {
	return true, nil
}

func (m *mockRedisClient) Close() error { return nil }

type mockInnerAccountRepo struct {
	FindByIDFunc func(ctx context.Context, tx repository.Tx, id int64) (*model.Account, error)
	SaveFunc     func(ctx context.Context, tx repository.Tx, a *model.Account) error
	AddAdminFunc func(ctx context.Context, tx repository.Tx, accountID, adminID int64) error
}

var _ repository.AccountRepository = (*mockInnerAccountRepo)(nil)

func (m *mockInnerAccountRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.Account, error) {
	return m.FindByIDFunc(ctx, tx, id)
}

func (m *mockInnerAccountRepo) Save(ctx context.Context, tx repository.Tx, a *model.Account) error {
	return m.SaveFunc(ctx, tx, a)
}

func (m *mockInnerAccountRepo) AddAdmin(ctx context.Context, tx repository.Tx, accountID, adminID int64) error {
	return m.AddAdminFunc(ctx, tx, accountID, adminID)
}

// mockInnerOrderRepo keeps orders as stored, so tests can inspect the
// persisted payment token.
type mockInnerOrderRepo struct {
	stored map[int64]model.Order
	seq    int64
}

var _ repository.OrderRepository = (*mockInnerOrderRepo)(nil)

func (m *mockInnerOrderRepo) Create(ctx context.Context, tx repository.Tx, o *model.Order) error {
	if m.stored == nil {
		m.stored = map[int64]model.Order{}
	}
	m.seq++
	o.ID = m.seq
	m.stored[o.ID] = *o
	return nil
}

func (m *mockInnerOrderRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.Order, error) {
	o, ok := m.stored[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return &o, nil
}

func (m *mockInnerOrderRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id int64, status model.OrderStatus) error {
	o, ok := m.stored[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	o.Status = status
	m.stored[id] = o
	return nil
}

func (m *mockInnerOrderRepo) FindDue(ctx context.Context, tx repository.Tx, now time.Time, afterID int64, limit int) ([]*model.Order, error) {
	var out []*model.Order
	for id := int64(1); id <= m.seq; id++ {
		if o, ok := m.stored[id]; ok && id > afterID && len(out) < limit {
			out = append(out, &o)
		}
	}
	return out, nil
}

func (m *mockInnerOrderRepo) ListRecurringByAccount(ctx context.Context, tx repository.Tx, accountID int64) ([]*model.Order, error) {
	return m.FindDue(ctx, tx, time.Time{}, 0, int(m.seq))
}
