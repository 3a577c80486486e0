package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"collective-ledger/internal/domain/model"
	"collective-ledger/internal/domain/ports/adapter"
	"collective-ledger/internal/domain/ports/repository"
	"collective-ledger/internal/infra/metrics"
	red "collective-ledger/internal/infra/redis"
)

var (
	_ repository.AccountRepository = (*accountRepoCacheDecorator)(nil)
	_ adapter.AccountDirectory     = (*accountRepoCacheDecorator)(nil)
)

type accountRepoCacheDecorator struct {
	inner repository.AccountRepository
	cache red.RedisClient
	ttl   time.Duration
	log   *zerolog.Logger
}

// NewAccountRepoCacheDecorator caches account reads outside transactions.
// Reads inside a transaction always go to the database.
func NewAccountRepoCacheDecorator(inner repository.AccountRepository, cache red.RedisClient, ttl time.Duration, logger *zerolog.Logger) *accountRepoCacheDecorator {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	l := logger.With().Str("component", "AccountCache").Logger()
	return &accountRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl, log: &l}
}

func accountKey(id int64) string { return fmt.Sprintf("account:%d", id) }

func (d *accountRepoCacheDecorator) GetAccount(ctx context.Context, id int64) (*model.Account, error) {
	return d.FindByID(ctx, nil, id)
}

func (d *accountRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.Account, error) {
	if tx != nil {
		return d.inner.FindByID(ctx, tx, id)
	}
	key := accountKey(id)
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		var acc model.Account
		if json.Unmarshal([]byte(val), &acc) == nil {
			metrics.IncCacheRequest("account", "hit")
			return &acc, nil
		}
	} else if !errors.Is(err, red.Nil) {
		d.log.Warn().Err(err).Str("key", key).Msg("cache read failed")
	}

	metrics.IncCacheRequest("account", "miss")
	acc, err := d.inner.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if bytes, err := json.Marshal(acc); err == nil {
		if err := d.cache.Set(ctx, key, bytes, d.ttl); err != nil {
			d.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
		}
	}
	return acc, nil
}

func (d *accountRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, a *model.Account) error {
	if err := d.inner.Save(ctx, tx, a); err != nil {
		return err
	}
	d.invalidate(ctx, a.ID)
	return nil
}

func (d *accountRepoCacheDecorator) AddAdmin(ctx context.Context, tx repository.Tx, accountID, adminID int64) error {
	if err := d.inner.AddAdmin(ctx, tx, accountID, adminID); err != nil {
		return err
	}
	d.invalidate(ctx, accountID)
	return nil
}

func (d *accountRepoCacheDecorator) invalidate(ctx context.Context, id int64) {
	if err := d.cache.Del(ctx, accountKey(id)); err != nil {
		d.log.Warn().Err(err).Int64("account_id", id).Msg("cache invalidation failed")
	}
}
