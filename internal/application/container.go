// Package application wires configuration, infrastructure and use cases into
// one container shared by the server and the operator CLI.
package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"collective-ledger/internal/config"
	"collective-ledger/internal/domain/ports/adapter"
	"collective-ledger/internal/domain/ports/repository"
	fxprovider "collective-ledger/internal/infra/adapters/fx"
	"collective-ledger/internal/infra/adapters/notify"
	"collective-ledger/internal/infra/adapters/processor"
	"collective-ledger/internal/infra/api"
	pg "collective-ledger/internal/infra/db/postgres"
	"collective-ledger/internal/infra/i18n"
	red "collective-ledger/internal/infra/redis"
	"collective-ledger/internal/infra/security"
	"collective-ledger/internal/infra/worker"
	"collective-ledger/internal/usecase"
)

// Container holds every long-lived dependency of the process.
type Container struct {
	Config *config.Config
	Log    *zerolog.Logger

	Pool  *pgxpool.Pool
	Redis *red.Client
	Jobs  *worker.Pool

	Accounts  repository.AccountRepository
	Processor adapter.PaymentProcessor

	Ledger  usecase.LedgerUseCase
	Billing usecase.BillingUseCase
	Orders  usecase.OrderUseCase
	Refunds usecase.RefundUseCase
	Balance usecase.BalanceUseCase

	Auth *api.Authenticator

	closers []func() error
}

// Build connects postgres and redis and constructs the use cases. Call Start
// before using anything that notifies, and Close on shutdown.
func Build(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*Container, error) {
	c := &Container{Config: cfg, Log: logger}

	pool, err := pg.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	c.Pool = pool
	c.closers = append(c.closers, func() error { pool.Close(); return nil })

	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}
	c.Redis = redisClient
	c.closers = append(c.closers, redisClient.Close)

	proc, err := NewProcessor(cfg.Processor, logger)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	c.Processor = proc

	rates, err := fxprovider.NewStaticProvider(cfg.Fx.Rates)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("fx: %w", err)
	}

	sink, closeSink, err := NewSink(cfg.Notify, logger)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	c.closers = append(c.closers, closeSink)

	c.Jobs = worker.NewPool(cfg.Notify.Workers, logger)
	notifier := usecase.NewNotifier(sink, c.Jobs, logger)

	accounts := pg.NewAccountRepoCacheDecorator(pg.NewAccountRepo(pool), redisClient, cfg.Redis.TTL, logger)
	c.Accounts = accounts
	txs := pg.NewTransactionRepo(pool)
	var orders repository.OrderRepository = pg.NewOrderRepo(pool)
	if cfg.Security.TokenKey != "" {
		sealer, err := security.NewEncryptionService(cfg.Security.TokenKey)
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("security.token_key: %w", err)
		}
		orders = pg.NewSealedOrderRepo(orders, sealer, security.IsSealed)
	} else {
		logger.Warn().Msg("security.token_key not set; payment tokens are stored in clear")
	}
	subs := pg.NewSubscriptionRepo(pool)
	tm := pg.NewTxManager(pool)

	c.Ledger = usecase.NewLedgerUseCase(txs, tm, accounts, rates, notifier, logger)
	c.Billing = usecase.NewBillingUseCase(
		orders, subs, txs, tm, c.Ledger, accounts, rates, proc,
		red.NewLocker(redisClient), red.NewRateLimiter(redisClient),
		notifier, BillingOptions(cfg), logger,
	)
	c.Orders = usecase.NewOrderUseCase(orders, subs, tm, accounts, c.Billing, notifier, logger)
	c.Refunds = usecase.NewRefundUseCase(txs, tm, c.Ledger, accounts, proc, notifier, cfg.Refund.Cutoff, logger)
	c.Balance = usecase.NewBalanceUseCase(txs, tm, c.Ledger, accounts, logger)

	c.Auth = api.NewAuthenticator(cfg.API.JWTSecret, cfg.Ledger.OperatorIDs, 0)
	return c, nil
}

// Start launches the notification workers. They keep running after ctx is
// cancelled so Close can drain the queue.
func (c *Container) Start(ctx context.Context) {
	c.Jobs.Start(context.WithoutCancel(ctx))
}

// APIServer builds the HTTP API over the container's use cases.
func (c *Container) APIServer() *api.Server {
	return api.NewServer(c.Ledger, c.Refunds, c.Orders, c.Balance, c.Auth, api.Options{
		AllowedOrigins: c.Config.API.AllowedOrigins,
		RequestTimeout: c.Config.API.RequestTimeout,
	}, c.Log)
}

// Close drains queued notifications and releases connections in reverse
// order of creation.
func (c *Container) Close() error {
	if c.Jobs != nil {
		c.Jobs.Stop()
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

// NewProcessor returns the in-process processor for "noop" and a REST client
// for any other name.
func NewProcessor(cfg config.ProcessorConfig, logger *zerolog.Logger) (adapter.PaymentProcessor, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Name))
	if name == "" || name == "noop" {
		return processor.NewNoopProcessor(cfg.FeePercent), nil
	}
	p, err := processor.NewHTTPProcessor(name, cfg.BaseURL, cfg.APIKey, cfg.Timeout, cfg.MaxRetries, logger)
	if err != nil {
		return nil, fmt.Errorf("processor %s: %w", name, err)
	}
	return p, nil
}

// NewSink fans notifications out to the log and to whichever of telegram and
// kafka are configured. The returned func closes the kafka writer.
func NewSink(cfg config.NotifyConfig, logger *zerolog.Logger) (adapter.NotificationSink, func() error, error) {
	sinks := []adapter.NotificationSink{notify.NewLogSink(logger)}
	closeFn := func() error { return nil }

	if cfg.Telegram.Token != "" {
		tr, err := i18n.NewTranslator(i18n.LocalesFS, cfg.Telegram.Lang)
		if err != nil {
			return nil, nil, fmt.Errorf("telegram sink: %w", err)
		}
		tg, err := notify.NewTelegramSink(cfg.Telegram.Token, cfg.Telegram.ChatIDs, tr)
		if err != nil {
			return nil, nil, fmt.Errorf("telegram sink: %w", err)
		}
		sinks = append(sinks, tg)
	}
	if len(cfg.Kafka.Brokers) > 0 {
		k, err := notify.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return nil, nil, fmt.Errorf("kafka sink: %w", err)
		}
		sinks = append(sinks, k)
		closeFn = k.Close
	}
	return notify.NewMultiSink(sinks...), closeFn, nil
}

// BillingOptions maps configuration onto the billing use case options.
func BillingOptions(cfg *config.Config) usecase.BillingOptions {
	opts := usecase.BillingOptions{
		BatchSize:         cfg.Billing.BatchSize,
		Concurrency:       cfg.Billing.Concurrency,
		HostRateLimit:     cfg.Billing.HostRateLimit,
		LockTTL:           cfg.Billing.LockTTL,
		Retry:             retryPolicy(cfg.Billing.Retry),
		SeparateHostFee:   cfg.Ledger.SeparateHostFee,
		PlatformAccountID: cfg.Ledger.PlatformAccountID,
		LogPaymentTokens:  cfg.Runtime.Dev,
	}
	if len(cfg.Billing.RetryByProcessor) > 0 {
		opts.RetryByProcessor = make(map[string]usecase.RetryPolicy, len(cfg.Billing.RetryByProcessor))
		for name, r := range cfg.Billing.RetryByProcessor {
			opts.RetryByProcessor[strings.ToLower(name)] = retryPolicy(r)
		}
	}
	return opts
}

func retryPolicy(r config.RetryConfig) usecase.RetryPolicy {
	return usecase.RetryPolicy{MaxRetries: r.MaxRetries, BackoffDays: append([]int(nil), r.BackoffDays...)}
}
