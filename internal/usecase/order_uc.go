// File: internal/usecase/order_uc.go
package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"collective-ledger/internal/domain"
	"collective-ledger/internal/domain/model"
	"collective-ledger/internal/domain/ports/adapter"
	"collective-ledger/internal/domain/ports/repository"
	"collective-ledger/internal/infra/logging"
)

// Compile-time check
var _ OrderUseCase = (*orderUC)(nil)

type OrderUseCase interface {
	// CreateOrder stores a new order, creates its subscription when it is
	// recurring and charges the first period right away.
	CreateOrder(ctx context.Context, actor model.Actor, in OrderInput) (*OrderOutcome, error)
	Get(ctx context.Context, id int64) (*model.Order, error)
	// DeactivateForAccount stops every recurring order paying to or from
	// accountID and moves the orders to status (CANCELLED or PAUSED). It
	// returns how many orders changed.
	DeactivateForAccount(ctx context.Context, actor model.Actor, accountID int64, reason string, status model.OrderStatus) (int, error)
}

type OrderInput struct {
	FromAccountID     int64  `json:"from_account_id"`
	ToAccountID       int64  `json:"to_account_id"`
	Amount            int64  `json:"amount"`
	PlatformTipAmount int64  `json:"platform_tip_amount"`
	Currency          string `json:"currency"`
	Interval          string `json:"interval"`
	PaymentService    string `json:"payment_service"`
	PaymentToken      string `json:"payment_token"`
	Description       string `json:"description"`
}

type OrderOutcome struct {
	Order  *model.Order     `json:"-"`
	Charge model.ItemResult `json:"charge"`
}

type orderUC struct {
	orders    repository.OrderRepository
	subs      repository.SubscriptionRepository
	tm        repository.TransactionManager
	directory adapter.AccountDirectory
	billing   BillingUseCase
	notify    *Notifier
	log       *zerolog.Logger
}

func NewOrderUseCase(
	orders repository.OrderRepository,
	subs repository.SubscriptionRepository,
	tm repository.TransactionManager,
	directory adapter.AccountDirectory,
	billing BillingUseCase,
	notify *Notifier,
	logger *zerolog.Logger,
) *orderUC {
	l := logger.With().Str("component", "OrderUC").Logger()
	return &orderUC{
		orders:    orders,
		subs:      subs,
		tm:        tm,
		directory: directory,
		billing:   billing,
		notify:    notify,
		log:       &l,
	}
}

func (u *orderUC) CreateOrder(ctx context.Context, actor model.Actor, in OrderInput) (*OrderOutcome, error) {
	defer logging.TraceDuration(u.log, "OrderUC.CreateOrder")()

	interval, err := model.ParseInterval(in.Interval)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	o := &model.Order{
		FromAccountID:      in.FromAccountID,
		ToAccountID:        in.ToAccountID,
		CreatedByAccountID: actor.AccountID,
		Amount:             in.Amount,
		PlatformTipAmount:  in.PlatformTipAmount,
		Currency:           strings.ToUpper(strings.TrimSpace(in.Currency)),
		Status:             model.OrderStatusNew,
		Interval:           interval,
		PaymentMethod:      model.PaymentMethod{Service: in.PaymentService, Token: in.PaymentToken},
		Description:        in.Description,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}

	payer, err := u.directory.GetAccount(ctx, o.FromAccountID)
	if err != nil {
		return nil, err
	}
	if !actor.System && !actor.CanAdminister(payer) {
		return nil, domain.ErrNotAuthorized
	}
	collective, err := u.directory.GetAccount(ctx, o.ToAccountID)
	if err != nil {
		return nil, err
	}
	if collective.Currency != o.Currency {
		return nil, fmt.Errorf("%w: order in %s, collective in %s", domain.ErrCurrencyMismatch, o.Currency, collective.Currency)
	}
	if o.Description == "" {
		o.Description = "Contribution to " + collective.Name
	}

	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.orders.Create(ctx, tx, o); err != nil {
			return err
		}
		if !o.IsRecurring() {
			return nil
		}
		sub := model.NewSubscription(o.ID, o.Interval, now)
		if err := u.subs.Create(ctx, tx, sub); err != nil {
			return err
		}
		o.Subscription = sub
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.With(ctx, u.log).Info().
		Int64("order_id", o.ID).
		Int64("from", o.FromAccountID).
		Int64("to", o.ToAccountID).
		Str("interval", string(o.Interval)).
		Msg("order created")

	charge := u.billing.ChargeOrder(ctx, o, now)
	if charge.Err != nil {
		charge.Error = charge.Err.Error()
	}
	// reload so the caller sees the status after the first charge
	if fresh, err := u.orders.FindByID(ctx, repository.NoTX, o.ID); err == nil {
		o = fresh
	}
	return &OrderOutcome{Order: o, Charge: charge}, nil
}

func (u *orderUC) Get(ctx context.Context, id int64) (*model.Order, error) {
	return u.orders.FindByID(ctx, repository.NoTX, id)
}

func (u *orderUC) DeactivateForAccount(ctx context.Context, actor model.Actor, accountID int64, reason string, status model.OrderStatus) (int, error) {
	defer logging.TraceDuration(u.log, "OrderUC.DeactivateForAccount")()

	if status != model.OrderStatusCancelled && status != model.OrderStatusPaused {
		return 0, fmt.Errorf("%w: status %q", domain.ErrInvalidArgument, status)
	}
	if strings.TrimSpace(reason) == "" {
		return 0, fmt.Errorf("%w: reason is required", domain.ErrInvalidArgument)
	}
	acc, err := u.directory.GetAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	if !u.canDeactivate(ctx, actor, acc) {
		return 0, domain.ErrNotAuthorized
	}

	now := time.Now().UTC()
	var changed []*model.Order
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		orders, err := u.orders.ListRecurringByAccount(ctx, tx, accountID)
		if err != nil {
			return err
		}
		for _, o := range orders {
			sub, err := u.subs.FindByOrderID(ctx, tx, o.ID)
			if err != nil {
				return err
			}
			sub.Deactivate(now, reason)
			if err := u.subs.Save(ctx, tx, sub); err != nil {
				return err
			}
			if !o.Status.CanTransition(status) {
				continue
			}
			if err := u.orders.UpdateStatus(ctx, tx, o.ID, status); err != nil {
				return err
			}
			o.Status = status
			changed = append(changed, o)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	logging.With(ctx, u.log).Info().
		Int64("account_id", accountID).
		Int("orders", len(changed)).
		Str("status", string(status)).
		Str("reason", reason).
		Msg("recurring contributions deactivated")
	for _, o := range changed {
		u.notify.emit(adapter.EventOrderCancelled, map[string]any{
			"order_id": o.ID,
			"from":     o.FromAccountID,
			"to":       o.ToAccountID,
			"status":   o.Status,
			"reason":   reason,
		})
	}
	return len(changed), nil
}

// canDeactivate allows operators, admins of the account and admins of its
// host.
func (u *orderUC) canDeactivate(ctx context.Context, actor model.Actor, acc *model.Account) bool {
	if actor.CanAdminister(acc) {
		return true
	}
	if !acc.IsHosted() {
		return false
	}
	host, err := u.directory.GetAccount(ctx, *acc.HostID)
	if err != nil {
		u.log.Warn().Err(err).Int64("host_id", *acc.HostID).Msg("host lookup failed")
		return false
	}
	return actor.CanAdminister(host)
}
