package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/paystream-hq/paystreamer/pkg/api"
	"github.com/paystream-hq/paystreamer/pkg/config"
	"github.com/paystream-hq/paystreamer/pkg/engine"
	"github.com/paystream-hq/paystreamer/pkg/events"
	"github.com/paystream-hq/paystreamer/pkg/indexer"
	"github.com/paystream-hq/paystreamer/pkg/keeper"
	"github.com/paystream-hq/paystreamer/pkg/ledger"
	"github.com/paystream-hq/paystreamer/pkg/logger"
	"github.com/paystream-hq/paystreamer/pkg/registry"
	"github.com/paystream-hq/paystreamer/pkg/store"
	"github.com/paystream-hq/paystreamer/pkg/wallet"
)

func main() {
	// Load configuration from environment variables
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	stdLogger := logger.NewStdLogger(cfg.LoggerConfig.Coloring, cfg.LoggerConfig.Level)

	// Set up context with cancellation on SIGINT/SIGTERM
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Wallet backend: simulated for local runs, contract-backed otherwise
	var wallets wallet.Provider
	switch cfg.WalletMode {
	case config.WalletModeContract:
		provider, err := wallet.NewContractProvider(ctx, cfg.WalletRPCURL, cfg.PrivateKey)
		if err != nil {
			log.Fatalf("Failed to connect wallet backend: %v", err)
		}
		wallets = provider
	default:
		sim := wallet.NewSimProvider()
		for _, g := range cfg.SimGenesis {
			sim.Fund(g.Wallet, g.Asset, g.Amount)
		}
		wallets = sim
	}

	bus := events.NewBus()
	eng := engine.New(
		store.New(),
		ledger.New(),
		registry.New(),
		wallets,
		bus,
		engine.SystemClock(),
		engine.Params{
			MaxRecipients: cfg.Schedule.MaxRecipients,
			MinInterval:   cfg.Schedule.MinInterval,
			MaxDuration:   cfg.Schedule.MaxDuration,
		},
		stdLogger,
	)

	ix, err := indexer.New(cfg.IndexerDBPath, bus, stdLogger)
	if err != nil {
		log.Fatalf("Failed to open indexer: %v", err)
	}
	go ix.Start(ctx)

	kp := keeper.NewService(eng, keeper.Config{
		PollingInterval:            cfg.PollingInterval,
		WorkerCount:                cfg.WorkerCount,
		MaxRetries:                 cfg.MaxRetries,
		CircuitBreakerEnabled:      cfg.CircuitBreaker.Enabled,
		CircuitBreakerThreshold:    cfg.CircuitBreaker.Threshold,
		CircuitBreakerWindow:       cfg.CircuitBreaker.WindowDuration,
		CircuitBreakerResetTimeout: cfg.CircuitBreaker.ResetTimeout,
	}, stdLogger)
	go kp.Start(ctx)

	server := api.NewServer(eng, kp, ix, api.Config{
		Port:          cfg.HTTPPort,
		MetricsAPIKey: cfg.MetricsAPIKey,
		OwnerAPIKey:   cfg.OwnerAPIKey,
	}, stdLogger)

	// Set up signal handling for graceful shutdown
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signalCh
		stdLogger.Notice("Received termination signal, shutting down gracefully...")
		cancel()
	}()

	if err := server.Start(ctx); err != nil {
		log.Fatalf("API server error: %v", err)
	}
}
