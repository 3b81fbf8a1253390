package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"financeflow/internal/amqp"
	"financeflow/internal/backend"
	"financeflow/internal/bank"
	"financeflow/internal/cache"
	"financeflow/internal/cli"
	"financeflow/internal/config"
	"financeflow/internal/core"
	"financeflow/internal/log"
	"financeflow/internal/services"

	"github.com/spf13/cobra"
)

// app is the wired application shared by every command.
type app struct {
	cfg    *config.Config
	logger *log.Logger
	svc    *services.FinanceService
	events *amqp.Client // nil when AMQP is disabled
	caches *cache.Manager
}

func bootstrap(ctx context.Context) (*app, error) {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))

	cfg, err := cli.LoadAndValidateConfig(logger)
	if err != nil {
		return nil, err
	}
	logger = cli.SetupLogger(cfg.LogLevel)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger.WithComponent(log.ComponentStorage).Logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		return nil, err
	}

	feed, err := bank.New(bank.Config{
		Provider:  bank.Provider(cfg.BankProvider),
		APIKey:    cfg.BankAPIKey,
		APISecret: cfg.BankAPISecret,
		Seed:      cfg.BankMockSeed,
		Logger:    logger.WithComponent(log.ComponentBank).Logger,
	})
	if err != nil {
		_ = res.Cleanup()
		return nil, fmt.Errorf("bank feed: %w", err)
	}

	snapshots := cache.NewLRUCache[core.MonthSnapshot](cfg.SnapshotCacheSize, cfg.SnapshotCacheTTL)
	caches := cache.NewManager(logger.Logger)
	caches.Register(snapshots)
	caches.StartCleanup(time.Minute)

	opts := []services.Option{
		services.WithSettings(services.Settings{
			Currency:             cfg.Currency,
			DefaultMonthlyBudget: cfg.DefaultMonthlyBudget,
			SyncDaysBack:         cfg.SyncDaysBack,
			HighSpendThreshold:   cfg.HighSpendThreshold,
			MaterialityThreshold: cfg.MaterialityThreshold,
		}),
		services.WithSecretKey(cfg.SecretKey),
		services.WithSnapshotCache(snapshots),
		services.WithLogger(logger),
	}

	a := &app{cfg: cfg, logger: logger, caches: caches}
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, events disabled", "error", err)
		} else {
			a.events = client
			opts = append(opts, services.WithEvents(client), services.WithCloser(client))
		}
	}

	a.svc = services.NewFinanceService(res.Store, feed, opts...)
	return a, nil
}

func (a *app) Close() error {
	a.caches.Stop()
	return a.svc.Close()
}

// run bootstraps the application around fn and releases it afterwards.
func run(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			a.logger.Error("Shutdown failed", "error", cerr)
		}
	}()
	return fn(ctx, a)
}

// login opens a session for the --user flag and returns the user.
func (a *app) login(ctx context.Context) (core.User, error) {
	if flagUser == "" {
		return core.User{}, errors.New("--user is required")
	}
	return a.svc.Authenticate(ctx, flagUser, password())
}

func password() string {
	if flagPassword != "" {
		return flagPassword
	}
	return os.Getenv("FINANCEFLOW_PASSWORD")
}
