// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"collective-ledger/internal/application"
	"collective-ledger/internal/config"
	pg "collective-ledger/internal/infra/db/postgres"
	"collective-ledger/internal/infra/logging"
	"collective-ledger/internal/infra/metrics"
	"collective-ledger/internal/infra/sched"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, optional jwt secret)")
	noBilling := flag.Bool("no-billing", false, "serve the API without the billing worker")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] Enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- Dependencies ----
	c, err := application.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup failed")
	}
	c.Start(ctx)
	logger.Info().Str("processor", c.Processor.Name()).Str("version", version).Msg("dependencies ready")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		pg.ReportPoolStats(ctx, c.Pool, 15*time.Second)
	}()

	// ---- Billing worker ----
	if !*noBilling {
		bw := sched.NewBillingWorker(cfg.Billing.Interval, c.Billing, true, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = bw.Run(ctx)
		}()
	}

	// ---- HTTP API ----
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.API.Port),
		Handler:           c.APIServer().Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
			stop()
		}
	}()

	// ---- Graceful shutdown ----
	<-ctx.Done()
	logger.Info().Msg("shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	wg.Wait()
	if err := c.Close(); err != nil {
		logger.Error().Err(err).Msg("close dependencies")
	}
	logger.Info().Msg("bye")
}
