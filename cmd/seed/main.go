package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/shopspring/decimal"

	"collective-ledger/internal/config"
	"collective-ledger/internal/domain"
	"collective-ledger/internal/domain/model"
	"collective-ledger/internal/domain/ports/repository"
	pg "collective-ledger/internal/infra/db/postgres"
)

// Seeds a small set of accounts for manual testing: a platform account, a
// fiscal host with its admin, two hosted collectives and a backer.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pg.NewPool(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	accounts := pg.NewAccountRepo(pool)
	tm := pg.NewTxManager(pool)

	// If accounts already exist, do nothing
	if existing, err := accounts.FindByID(ctx, repository.NoTX, 1); err == nil {
		fmt.Printf("account %d (%s) already present. No changes.\n", existing.ID, existing.Name)
		return
	} else if !errors.Is(err, domain.ErrAccountNotFound) {
		log.Fatalf("find account: %v", err)
	}

	connected := time.Date(2016, 6, 1, 0, 0, 0, 0, time.UTC)
	var seeded []*model.Account
	err = tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		save := func(a *model.Account) error {
			if err := accounts.Save(ctx, tx, a); err != nil {
				return fmt.Errorf("save %q: %w", a.Name, err)
			}
			seeded = append(seeded, a)
			return nil
		}

		platform := &model.Account{Name: "Platform", Currency: "USD"}
		if err := save(platform); err != nil {
			return err
		}
		host := &model.Account{Name: "Demo Host", Currency: "USD", ProcessorConnectedAt: &connected}
		if err := save(host); err != nil {
			return err
		}
		hostAdmin := &model.Account{Name: "Host Admin", Currency: "USD"}
		if err := save(hostAdmin); err != nil {
			return err
		}
		if err := accounts.AddAdmin(ctx, tx, host.ID, hostAdmin.ID); err != nil {
			return err
		}
		for _, c := range []*model.Account{
			{Name: "Webpack", Currency: "USD", HostID: &host.ID, HostFeePercent: decimal.NewFromInt(10), PlatformFeePercent: decimal.NewFromInt(5)},
			{Name: "Berlin Meetup", Currency: "EUR", HostID: &host.ID, HostFeePercent: decimal.NewFromInt(10)},
		} {
			if err := save(c); err != nil {
				return err
			}
			if err := accounts.AddAdmin(ctx, tx, c.ID, hostAdmin.ID); err != nil {
				return err
			}
		}
		return save(&model.Account{Name: "Backer", Currency: "USD"})
	})
	if err != nil {
		log.Fatalf("seed: %v", err)
	}

	for _, a := range seeded {
		host := "-"
		if a.HostID != nil {
			host = fmt.Sprint(*a.HostID)
		}
		fmt.Printf("seeded: %-14s id=%d currency=%s host=%s\n", a.Name, a.ID, a.Currency, host)
	}
	fmt.Println("Seeding complete.")
}
