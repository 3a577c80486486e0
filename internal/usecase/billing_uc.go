// File: internal/usecase/billing_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"collective-ledger/internal/domain"
	"collective-ledger/internal/domain/model"
	"collective-ledger/internal/domain/money"
	"collective-ledger/internal/domain/ports/adapter"
	"collective-ledger/internal/domain/ports/repository"
	portsuc "collective-ledger/internal/domain/ports/usecase"
	"collective-ledger/internal/infra/logging"
	"collective-ledger/internal/infra/metrics"
	"collective-ledger/internal/infra/worker"
)

// Compile-time check
var (
	_ BillingUseCase        = (*billingUC)(nil)
	_ portsuc.BillingRunner = (*billingUC)(nil)
)

type BillingUseCase interface {
	// FindDue pages through orders whose subscription is due at now.
	FindDue(ctx context.Context, now time.Time, afterID int64, limit int) ([]*model.Order, error)
	// Run charges every due order once and reports per-order outcomes.
	Run(ctx context.Context, now time.Time) (*model.RunReport, error)
	// ChargeOrder charges one order and updates its billing state in a
	// single database transaction.
	ChargeOrder(ctx context.Context, order *model.Order, now time.Time) model.ItemResult
}

// RetryPolicy schedules retries of declined charges.
type RetryPolicy struct {
	MaxRetries  int
	BackoffDays []int
}

// Delay returns the wait before the given retry (1-based). The last backoff
// entry repeats.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if len(p.BackoffDays) == 0 {
		return 24 * time.Hour
	}
	i := attempt - 1
	if i < 0 {
		i = 0
	}
	if i >= len(p.BackoffDays) {
		i = len(p.BackoffDays) - 1
	}
	return time.Duration(p.BackoffDays[i]) * 24 * time.Hour
}

type BillingOptions struct {
	BatchSize     int
	Concurrency   int
	HostRateLimit int // charges per host per minute, 0 disables
	LockTTL       time.Duration

	Retry            RetryPolicy
	RetryByProcessor map[string]RetryPolicy

	// SeparateHostFee records host fees as HOST_FEE pairs instead of a fee
	// column on the contribution.
	SeparateHostFee   bool
	PlatformAccountID int64

	// LogPaymentTokens logs payment method tokens in clear; dev only.
	LogPaymentTokens bool
}

const billingLockKey = "billing:run"

type billingUC struct {
	orders    repository.OrderRepository
	subs      repository.SubscriptionRepository
	txs       repository.TransactionRepository
	tm        repository.TransactionManager
	ledger    LedgerUseCase
	directory adapter.AccountDirectory
	fx        adapter.FxRateProvider
	processor adapter.PaymentProcessor
	locker    adapter.Locker
	limiter   adapter.RateLimiter
	notify    *Notifier
	opts      BillingOptions
	log       *zerolog.Logger
}

func NewBillingUseCase(
	orders repository.OrderRepository,
	subs repository.SubscriptionRepository,
	txs repository.TransactionRepository,
	tm repository.TransactionManager,
	ledger LedgerUseCase,
	directory adapter.AccountDirectory,
	fx adapter.FxRateProvider,
	processor adapter.PaymentProcessor,
	locker adapter.Locker,
	limiter adapter.RateLimiter,
	notify *Notifier,
	opts BillingOptions,
	logger *zerolog.Logger,
) *billingUC {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Minute
	}
	if opts.Retry.MaxRetries <= 0 {
		opts.Retry.MaxRetries = 3
	}
	l := logger.With().Str("component", "BillingUC").Logger()
	return &billingUC{
		orders:    orders,
		subs:      subs,
		txs:       txs,
		tm:        tm,
		ledger:    ledger,
		directory: directory,
		fx:        fx,
		processor: processor,
		locker:    locker,
		limiter:   limiter,
		notify:    notify,
		opts:      opts,
		log:       &l,
	}
}

func (u *billingUC) FindDue(ctx context.Context, now time.Time, afterID int64, limit int) ([]*model.Order, error) {
	if limit <= 0 {
		limit = u.opts.BatchSize
	}
	return u.orders.FindDue(ctx, repository.NoTX, now, afterID, limit)
}

func (u *billingUC) Run(ctx context.Context, now time.Time) (*model.RunReport, error) {
	defer logging.TraceDuration(u.log, "BillingUC.Run")()

	report := &model.RunReport{RunID: ulid.Make().String(), StartedAt: time.Now().UTC()}
	ctx = logging.WithRunID(ctx, report.RunID)
	log := logging.With(ctx, u.log)

	if u.locker != nil {
		token, err := u.locker.TryLock(ctx, billingLockKey, u.opts.LockTTL)
		if err != nil {
			metrics.ObserveBillingRun("locked", 0)
			return nil, fmt.Errorf("%w: %v", domain.ErrBillingRunInProgress, err)
		}
		defer func() {
			// the run context may already be cancelled
			if err := u.locker.Unlock(context.Background(), billingLockKey, token); err != nil {
				log.Warn().Err(err).Msg("failed to release billing lock")
			}
		}()
	}

	var afterID int64
	for {
		if err := ctx.Err(); err != nil {
			return u.finish(ctx, report, err)
		}
		batch, err := u.FindDue(ctx, now, afterID, u.opts.BatchSize)
		if err != nil {
			return u.finish(ctx, report, fmt.Errorf("find due orders: %w", err))
		}
		if len(batch) == 0 {
			break
		}
		results := worker.RunBatch(ctx, batch, u.opts.Concurrency, func(ctx context.Context, o *model.Order) model.ItemResult {
			return u.chargeLimited(ctx, o, now)
		})
		for _, r := range results {
			report.Add(r)
		}
		afterID = batch[len(batch)-1].ID
		if len(batch) < u.opts.BatchSize {
			break
		}
	}
	return u.finish(ctx, report, nil)
}

func (u *billingUC) finish(ctx context.Context, report *model.RunReport, runErr error) (*model.RunReport, error) {
	report.FinishedAt = time.Now().UTC()
	result := "completed"
	if runErr != nil {
		result = "failed"
	}
	metrics.ObserveBillingRun(result, report.FinishedAt.Sub(report.StartedAt))
	if counts, err := u.subs.CountByState(ctx, repository.NoTX); err == nil {
		metrics.SetSubscriptionsByState(counts)
	}

	log := logging.With(ctx, u.log)
	var ev *zerolog.Event
	if runErr != nil {
		ev = log.Error().Err(runErr)
	} else {
		ev = log.Info()
	}
	ev.Int("processed", report.Processed).
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Int("deactivated", report.Deactivated).
		Int("skipped", report.Skipped).
		Msg("billing run finished")

	if report.Processed > 0 || runErr != nil {
		u.notify.emit(adapter.EventBillingRunReport, report)
	}
	return report, runErr
}

// chargeLimited applies the per-host rate limit before charging.
func (u *billingUC) chargeLimited(ctx context.Context, o *model.Order, now time.Time) model.ItemResult {
	if u.limiter == nil || u.opts.HostRateLimit <= 0 {
		return u.ChargeOrder(ctx, o, now)
	}
	key := "billing:host:" + strconv.FormatInt(o.ToAccountID, 10)
	if acc, err := u.directory.GetAccount(ctx, o.ToAccountID); err == nil && acc.IsHosted() {
		key = "billing:host:" + strconv.FormatInt(*acc.HostID, 10)
	}
	ok, err := u.limiter.Allow(ctx, key, u.opts.HostRateLimit, time.Minute)
	if err != nil {
		// fail open: the processor has its own limits
		u.log.Warn().Err(err).Str("key", key).Msg("rate limiter unavailable")
	} else if !ok {
		metrics.IncCharge(u.processor.Name(), model.ItemSkipped)
		return model.ItemResult{OrderID: o.ID, Status: model.ItemSkipped, FailureReason: "rate_limited"}
	}
	return u.ChargeOrder(ctx, o, now)
}

func (u *billingUC) retryPolicy(service string) RetryPolicy {
	if p, ok := u.opts.RetryByProcessor[strings.ToLower(service)]; ok {
		return p
	}
	return u.opts.Retry
}

func idempotencyKey(o *model.Order, sub *model.Subscription) string {
	if sub == nil || sub.NextChargeDate == nil {
		return fmt.Sprintf("order-%d-once", o.ID)
	}
	return fmt.Sprintf("order-%d-%s", o.ID, sub.NextChargeDate.UTC().Format("20060102"))
}

// chargeContext is everything resolved before money moves.
type chargeContext struct {
	order        *model.Order
	sub          *model.Subscription
	collective   *model.Account
	hostCurrency string
	fx           decimal.Decimal
	amount       int64
	tip          int64
}

func (u *billingUC) ChargeOrder(ctx context.Context, order *model.Order, now time.Time) model.ItemResult {
	ctx = logging.WithOrderID(ctx, order.ID)
	log := logging.With(ctx, u.log)
	res := model.ItemResult{OrderID: order.ID}

	var charged *adapter.ChargeResult
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		cc, err := u.prepare(ctx, tx, order.ID, now)
		if err != nil {
			return err
		}

		cr, err := u.processor.Charge(ctx, adapter.ChargeRequest{
			PaymentMethodToken: cc.order.PaymentMethod.Token,
			Amount:             cc.order.TotalAmount(),
			Currency:           cc.order.Currency,
			Description:        cc.order.Description,
			IdempotencyKey:     idempotencyKey(cc.order, cc.sub),
		})
		if errors.Is(err, domain.ErrProcessorDeclined) {
			cr, err = adapter.ChargeResult{FailureReason: err.Error()}, nil
		}
		if err != nil {
			return err
		}
		if !cr.Succeeded {
			log.Info().
				Str("payment_method", logging.Redact(cc.order.PaymentMethod.Token, u.opts.LogPaymentTokens)).
				Str("reason", cr.FailureReason).
				Msg("charge declined")
			return u.declined(ctx, tx, cc, cr, now, &res)
		}
		charged = &cr
		res.ChargeID = cr.ID

		existing, err := u.txs.FindByChargeID(ctx, tx, cr.ID, model.KindContribution)
		switch {
		case err == nil:
			res.Status = model.ItemDuplicate
			res.Transaction = existing
		case errors.Is(err, domain.ErrNotFound):
			pair, err := u.record(ctx, tx, cc, cr, now)
			if err != nil {
				return err
			}
			res.Status = model.ItemCharged
			res.Transaction = pair.Credit
		default:
			return err
		}

		if cc.sub != nil {
			cc.sub.Advance(now)
			if err := u.subs.Save(ctx, tx, cc.sub); err != nil {
				return err
			}
		}
		if next := cc.order.StatusAfterCharge(); cc.order.Status != next {
			if err := u.orders.UpdateStatus(ctx, tx, cc.order.ID, next); err != nil {
				return err
			}
		}
		return nil
	})

	switch {
	case err == nil:
		if res.Status == model.ItemCharged {
			metrics.AddChargedAmount(order.Currency, res.Transaction.Amount)
		}
	case charged != nil:
		metrics.IncUnrecordedMovement("charge")
		log.Error().Err(err).Str("charge_id", charged.ID).Msg("processor charged but ledger write failed")
		res.Status = model.ItemError
		res.Transaction = nil
		res.Err = &domain.MoneyMovedError{Operation: "charge", ProcessorID: charged.ID, Err: err}
	case errors.Is(err, domain.ErrAlreadyCharged), errors.Is(err, domain.ErrOrderNotActive):
		res.Status = model.ItemSkipped
		res.Err = err
	default:
		log.Warn().Err(err).Msg("charge attempt failed")
		res.Status = model.ItemError
		res.Err = err
	}
	if res.Status == model.ItemDeactivated {
		u.notify.emit(adapter.EventSubscriptionDeactivated, map[string]any{
			"order_id": order.ID,
			"reason":   res.FailureReason,
		})
	}
	metrics.IncCharge(u.processor.Name(), res.Status)
	return res
}

// prepare locks the order and its subscription, checks the order is still
// due and resolves the host currency and rate.
func (u *billingUC) prepare(ctx context.Context, tx repository.Tx, orderID int64, now time.Time) (*chargeContext, error) {
	o, err := u.orders.FindByID(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if u.opts.PlatformAccountID == 0 {
		// nowhere to book a tip
		o.PlatformTipAmount = 0
	}
	cc := &chargeContext{order: o, amount: o.Amount, tip: o.PlatformTipAmount}

	switch o.Status {
	case model.OrderStatusCancelled, model.OrderStatusPaused, model.OrderStatusError:
		return nil, domain.ErrOrderNotActive
	}
	if o.IsRecurring() {
		sub, err := u.subs.FindByOrderID(ctx, tx, o.ID)
		if err != nil {
			return nil, err
		}
		if !sub.IsDue(now) {
			return nil, domain.ErrAlreadyCharged
		}
		cc.sub = sub
	} else if o.Status != model.OrderStatusNew {
		return nil, domain.ErrAlreadyCharged
	}

	if cc.collective, err = u.directory.GetAccount(ctx, o.ToAccountID); err != nil {
		return nil, err
	}
	cc.hostCurrency = cc.collective.Currency
	if cc.collective.IsHosted() {
		host, err := u.directory.GetAccount(ctx, *cc.collective.HostID)
		if err != nil {
			return nil, err
		}
		cc.hostCurrency = host.Currency
	}
	cc.fx = money.One
	if o.Currency != cc.hostCurrency {
		if cc.fx, err = u.fx.Rate(ctx, o.Currency, cc.hostCurrency, now); err != nil {
			return nil, fmt.Errorf("%w: %s/%s: %v", domain.ErrFxRateUnavailable, o.Currency, cc.hostCurrency, err)
		}
	}
	return cc, nil
}

func (u *billingUC) declined(ctx context.Context, tx repository.Tx, cc *chargeContext, cr adapter.ChargeResult, now time.Time, res *model.ItemResult) error {
	res.FailureReason = cr.FailureReason
	if res.FailureReason == "" {
		res.FailureReason = "declined"
	}

	if cc.sub == nil {
		res.Status = model.ItemDeclined
		return u.orders.UpdateStatus(ctx, tx, cc.order.ID, model.OrderStatusError)
	}

	policy := u.retryPolicy(cc.order.PaymentMethod.Service)
	retryAt := now.Add(policy.Delay(cc.sub.ChargeRetryCount + 1))
	deactivated := cc.sub.RecordFailure(now, res.FailureReason, retryAt, policy.MaxRetries)
	if err := u.subs.Save(ctx, tx, cc.sub); err != nil {
		return err
	}
	if !deactivated {
		res.Status = model.ItemDeclined
		return nil
	}
	res.Status = model.ItemDeactivated
	return u.orders.UpdateStatus(ctx, tx, cc.order.ID, model.OrderStatusError)
}

// record writes the contribution and, in the same group, the platform tip
// and separate host fee pairs.
func (u *billingUC) record(ctx context.Context, tx repository.Tx, cc *chargeContext, cr adapter.ChargeResult, now time.Time) (*model.TransactionPair, error) {
	o, coll := cc.order, cc.collective

	procFee := cr.FeeAmount
	if fb, err := u.processor.GetFeeBreakdown(ctx, cr.ID); err == nil {
		procFee = fb.ProcessorFee
	} else {
		u.log.Warn().Err(err).Str("charge_id", cr.ID).Msg("fee breakdown unavailable, using charge fee")
	}

	amountInHost := money.ToHost(cc.amount, cc.fx)
	var hostFee int64
	if coll.IsHosted() {
		hostFee = money.PercentOf(amountInHost, coll.HostFeePercent)
	}
	entry := model.ContributionEntry{
		OrderID:      &o.ID,
		Amount:       cc.amount,
		PlatformFee:  money.PercentOf(amountInHost, coll.PlatformFeePercent),
		ProcessorFee: money.ToHost(money.Abs(procFee), cc.fx),
	}
	if !u.opts.SeparateHostFee {
		entry.HostFee = hostFee
	}

	// fee pairs share the group but not the charge id: only the
	// contribution stands for the processor charge
	base := RecordInput{
		Group:        uuid.New(),
		Currency:     o.Currency,
		HostCurrency: cc.hostCurrency,
		FxRate:       cc.fx,
		CreatedAt:    now,
	}

	in := base
	in.Entry = entry
	in.FromAccountID, in.ToAccountID = o.FromAccountID, o.ToAccountID
	in.Description = o.Description
	in.ProcessorChargeID = cr.ID
	pair, err := u.ledger.Record(ctx, tx, in)
	if err != nil {
		return nil, err
	}

	if u.opts.SeparateHostFee && hostFee > 0 {
		in := base
		in.Entry = model.FeeEntry{FeeKind: model.KindHostFee, OrderID: &o.ID, Amount: money.FromHost(hostFee, cc.fx), AmountInHost: hostFee}
		in.FromAccountID, in.ToAccountID = o.ToAccountID, *coll.HostID
		in.ToHostID = coll.HostID
		in.Description = "Host fee"
		if _, err := u.ledger.Record(ctx, tx, in); err != nil {
			return nil, err
		}
	}

	if cc.tip > 0 {
		in := base
		in.Entry = model.FeeEntry{FeeKind: model.KindPlatformTip, OrderID: &o.ID, Amount: cc.tip}
		in.FromAccountID, in.ToAccountID = o.FromAccountID, u.opts.PlatformAccountID
		// the platform account has its own host currency
		in.HostCurrency, in.FxRate = "", decimal.Zero
		in.Description = "Platform tip"
		if _, err := u.ledger.Record(ctx, tx, in); err != nil {
			return nil, err
		}
	}
	return pair, nil
}
