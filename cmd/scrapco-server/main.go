package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/scrapco/scrapco-go/internal/adapters/httpapi"
	"github.com/scrapco/scrapco-go/internal/adapters/metrics"
	"github.com/scrapco/scrapco-go/internal/adapters/offer"
	"github.com/scrapco/scrapco-go/internal/adapters/persistence"
	appdispatch "github.com/scrapco/scrapco-go/internal/application/dispatch"
	"github.com/scrapco/scrapco-go/internal/application/mediator"
	"github.com/scrapco/scrapco-go/internal/application/pickup/commands"
	"github.com/scrapco/scrapco-go/internal/application/pickup/queries"
	"github.com/scrapco/scrapco-go/internal/domain/shared"
	"github.com/scrapco/scrapco-go/internal/infrastructure/config"
	"github.com/scrapco/scrapco-go/internal/infrastructure/database"
	"github.com/scrapco/scrapco-go/internal/infrastructure/logging"
	"github.com/scrapco/scrapco-go/internal/infrastructure/pidfile"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "scrapco-server",
		Short: "Scrap pickup dispatcher",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the dispatcher HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrate(configPath)
		},
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve(configPath string) error {
	cfg := config.MustLoadConfig(configPath)
	logger := logging.NewLogger(&cfg.Logging)

	if cfg.Server.PIDFile != "" {
		pf := pidfile.New(cfg.Server.PIDFile)
		if err := pf.Acquire(); err != nil {
			return fmt.Errorf("another dispatcher instance is running: %w", err)
		}
		defer func() { _ = pf.Release() }()
	}

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() { _ = database.Close(db) }()

	if err := database.AutoMigrate(db); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	clock := shared.NewRealClock()
	pickups := persistence.NewPickupRepository(db)
	rejections := persistence.NewRejectionRepository(db)
	vendors := persistence.NewVendorDirectory(db, clock)

	collectors, err := metrics.New()
	if err != nil {
		return fmt.Errorf("failed to build metrics registry: %w", err)
	}

	offerClient := offer.NewClient(offer.Config{
		Timeout:    cfg.Dispatch.OfferTimeout,
		Bearer:     cfg.Vendor.EffectiveOfferBearer(),
		Production: cfg.Server.IsProduction(),
		RatePerSec: cfg.Dispatch.OfferRatePerSec,
		Burst:      cfg.Dispatch.OfferBurst,
	}, logger)

	engine := appdispatch.NewEngine(pickups, rejections, vendors, offerClient, clock, logger, appdispatch.Options{
		OfferTTL:   cfg.Dispatch.OfferTTL,
		TimerSlack: cfg.Dispatch.TimerSlack,
		Metrics:    collectors.Dispatch,
	})

	m := mediator.NewMediator()
	if err := registerHandlers(m, pickups, vendors, engine, clock, logger); err != nil {
		return err
	}

	server := httpapi.NewServer(cfg.Server.Port, httpapi.ServerDeps{
		Pickups: httpapi.NewPickupHandlers(m),
		Vendors: httpapi.NewVendorHandlers(
			engine, pickups, vendors, offerClient, cfg.Vendor.WebhookSecret, clock, logger),
		Auth: httpapi.OpaqueTokenAuthenticator{},
		Health: func(ctx context.Context) error {
			return database.Ping(db)
		},
		Metrics: collectors,
	}, logger)

	sweeper := appdispatch.NewSweeper(pickups, engine, clock, logger,
		cfg.Dispatch.SweepInterval, cfg.Dispatch.SweepLimit)
	sweeper.Start()

	// Pickups orphaned mid-dispatch by the previous process
	if err := engine.RecoverStalled(context.Background(), cfg.Dispatch.SweepLimit); err != nil {
		logger.Error().Err(err).Msg("startup recovery failed")
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	}

	sweeper.Stop()
	engine.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}

	logger.Info().Msg("shutdown complete")
	return nil
}

func migrate(configPath string) error {
	cfg := config.MustLoadConfig(configPath)
	logger := logging.NewLogger(&cfg.Logging)

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() { _ = database.Close(db) }()

	if err := database.AutoMigrate(db); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Info().Msg("migration complete")
	return nil
}

func registerHandlers(
	m mediator.Mediator,
	pickups *persistence.PickupRepositoryGORM,
	vendors *persistence.VendorDirectoryGORM,
	engine *appdispatch.Engine,
	clock shared.Clock,
	logger zerolog.Logger,
) error {
	if err := mediator.RegisterHandler[*commands.CreatePickupCommand](
		m, commands.NewCreatePickupHandler(pickups, engine, clock, logger)); err != nil {
		return err
	}
	if err := mediator.RegisterHandler[*commands.CancelPickupCommand](
		m, commands.NewCancelPickupHandler(pickups, engine, clock)); err != nil {
		return err
	}
	if err := mediator.RegisterHandler[*commands.FindVendorAgainCommand](
		m, commands.NewFindVendorAgainHandler(pickups, engine, logger)); err != nil {
		return err
	}
	if err := mediator.RegisterHandler[*queries.GetPickupQuery](
		m, queries.NewGetPickupHandler(pickups, vendors)); err != nil {
		return err
	}
	return nil
}
