package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/feral-file/ff-collection-bridge/internal/adapter"
	"github.com/feral-file/ff-collection-bridge/internal/api/middleware"
	"github.com/feral-file/ff-collection-bridge/internal/api/server"
	"github.com/feral-file/ff-collection-bridge/internal/config"
	"github.com/feral-file/ff-collection-bridge/internal/devnet"
	"github.com/feral-file/ff-collection-bridge/internal/domain"
	"github.com/feral-file/ff-collection-bridge/internal/emitter"
	"github.com/feral-file/ff-collection-bridge/internal/logger"
	"github.com/feral-file/ff-collection-bridge/internal/providers/chainwatch"
	"github.com/feral-file/ff-collection-bridge/internal/providers/jetstream"
	"github.com/feral-file/ff-collection-bridge/internal/relay"
	"github.com/feral-file/ff-collection-bridge/internal/store"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
)

func main() {
	flag.Parse()

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadDevnetConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize logger with sentry integration
	err = logger.Initialize(logger.Config{
		Debug:           cfg.Debug,
		SentryDSN:       cfg.SentryDSN,
		BreadcrumbLevel: zapcore.InfoLevel,
		Tags: map[string]string{
			"service": "devnet",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting bridge devnet")

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to database", zap.Error(err), zap.String("host", cfg.Database.Host))
	}
	if err := store.ConfigureConnectionPool(db, store.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	}); err != nil {
		logger.FatalCtx(ctx, "Failed to configure connection pool", zap.Error(err))
	}
	if err := store.Migrate(db); err != nil {
		logger.FatalCtx(ctx, "Failed to migrate database", zap.Error(err))
	}
	logger.InfoCtx(ctx, "Connected to database")

	// Initialize store
	dataStore := store.NewPGStore(db)

	// Initialize adapters
	clockAdapter := adapter.NewClock()
	jsonAdapter := adapter.NewJSON()
	jcsAdapter := adapter.NewJCS()
	natsJS := adapter.NewNatsJetStream()

	// Deploy the contracts of both chains
	network, err := devnet.Bootstrap(devnet.Config{
		RootChain:      cfg.Network.RootChain,
		ChildChain:     cfg.Network.ChildChain,
		Owner:          common.HexToAddress(cfg.Network.Owner),
		Proposer:       common.HexToAddress(cfg.Network.Proposer),
		MaxTokensPerTx: cfg.Network.MaxTokensPerTx,
		RegistryName:   cfg.Network.RegistryName,
		RegistrySymbol: cfg.Network.RegistrySymbol,
	}, clockAdapter)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to bootstrap devnet", zap.Error(err))
	}
	logger.InfoCtx(ctx, "Devnet deployed",
		zap.String("rootChain", string(cfg.Network.RootChain)),
		zap.String("childChain", string(cfg.Network.ChildChain)),
		zap.String("rootTunnel", network.RootTunnel.Address().Hex()),
		zap.String("childTunnel", network.ChildTunnel.Address().Hex()),
		zap.String("minimalFactory", network.MinimalFactory.Address().Hex()),
		zap.String("beaconFactory", network.BeaconFactory.Address().Hex()),
		zap.String("registry", network.Registry.Address().Hex()),
	)

	// Initialize NATS publisher
	natsPublisher, err := jetstream.NewPublisher(
		ctx,
		jetstream.Config{
			URL:               cfg.NATS.URL,
			StreamName:        cfg.NATS.StreamName,
			MaxReconnects:     cfg.NATS.MaxReconnects,
			ReconnectWait:     cfg.NATS.ReconnectWait,
			ConnectionName:    cfg.NATS.ConnectionName + "-emitter",
			CreateStream:      cfg.NATS.CreateStream,
			DuplicateWindow:   cfg.NATS.DuplicateWindow,
			StreamMaxAge:      cfg.NATS.StreamMaxAge,
			StreamReplication: cfg.NATS.StreamReplication,
		}, natsJS, jsonAdapter, jcsAdapter)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to create NATS publisher", zap.Error(err), zap.String("url", cfg.NATS.URL))
	}
	defer natsPublisher.Close()
	logger.InfoCtx(ctx, "Connected to NATS JetStream")

	// Watch state syncs on the root chain and exits on the child chain
	rootSubscriber, err := chainwatch.NewSubscriber(chainwatch.Config{
		Direction:    domain.DirectionRootToChild,
		Contracts:    []common.Address{network.StateSender.Address()},
		PollInterval: cfg.Emitter.PollInterval,
		MaxBlocks:    cfg.Emitter.MaxBlocks,
	}, network.Root, clockAdapter)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to create root chain subscriber", zap.Error(err))
	}
	childSubscriber, err := chainwatch.NewSubscriber(chainwatch.Config{
		Direction:    domain.DirectionChildToRoot,
		Contracts:    []common.Address{network.ChildTunnel.Address()},
		Receiver:     network.RootTunnel.Address(),
		PollInterval: cfg.Emitter.PollInterval,
		MaxBlocks:    cfg.Emitter.MaxBlocks,
	}, network.Child, clockAdapter)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to create child chain subscriber", zap.Error(err))
	}

	emitters := []emitter.Emitter{
		emitter.NewEmitter(rootSubscriber, natsPublisher, dataStore, emitter.Config{
			ChainID:         cfg.Network.RootChain,
			Direction:       domain.DirectionRootToChild,
			StartFromLatest: cfg.Emitter.StartFromLatest,
			CursorSaveFreq:  cfg.Emitter.CursorSaveFreq,
			CursorSaveDelay: cfg.Emitter.CursorSaveDelay,
		}, clockAdapter),
		emitter.NewEmitter(childSubscriber, natsPublisher, dataStore, emitter.Config{
			ChainID:         cfg.Network.ChildChain,
			Direction:       domain.DirectionChildToRoot,
			StartFromLatest: cfg.Emitter.StartFromLatest,
			CursorSaveFreq:  cfg.Emitter.CursorSaveFreq,
			CursorSaveDelay: cfg.Emitter.CursorSaveDelay,
		}, clockAdapter),
	}
	for _, e := range emitters {
		defer e.Close()
	}

	// Initialize relay delivering messages to the devnet
	messageRelay, err := relay.NewRelay(relay.Config{
		URL:               cfg.NATS.URL,
		StreamName:        cfg.NATS.StreamName,
		ConsumerName:      cfg.NATS.ConsumerName,
		MaxReconnects:     cfg.NATS.MaxReconnects,
		ReconnectWait:     cfg.NATS.ReconnectWait,
		ConnectionName:    cfg.NATS.ConnectionName + "-relay",
		AckWaitTimeout:    cfg.NATS.AckWait,
		MaxDeliver:        cfg.NATS.MaxDeliver,
		WorkerConcurrency: cfg.Relay.WorkerConcurrency,
		RetryMaxElapsed:   cfg.Relay.RetryMaxElapsed,
	}, natsJS, network, dataStore, jsonAdapter)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to create relay", zap.Error(err), zap.String("url", cfg.NATS.URL))
	}
	defer messageRelay.Close()

	// Create API server
	srv := server.New(server.Config{
		Debug:        cfg.Debug,
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
		Auth: middleware.AuthConfig{
			JWTPublicKey: cfg.Auth.JWTPublicKey,
			APIKeys:      cfg.Auth.APIKeys,
		},
		RedeliverLimit: cfg.Relay.RedeliverLimit,
	}, network, dataStore, messageRelay)

	// Channel for component errors
	errCh := make(chan error, len(emitters)+2)

	for i, e := range emitters {
		go func(name string, e emitter.Emitter) {
			if err := e.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("%s emitter: %w", name, err)
			}
		}([]string{"root", "child"}[i], e)
	}

	go func() {
		if err := messageRelay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("relay: %w", err)
		}
	}()

	go func() {
		if err := srv.Start(); err != nil {
			errCh <- fmt.Errorf("server: %w", err)
		}
	}()

	// Wait for shutdown signal or error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.InfoCtx(ctx, "Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	case err := <-errCh:
		logger.ErrorCtx(ctx, err)
		cancel()
	}

	// Create shutdown context with timeout (don't use canceled ctx)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.ErrorCtx(shutdownCtx, err, zap.String("component", "server"))
	}

	// Use non-context logger for final shutdown message since context is already canceled
	logger.Info("Bridge devnet stopped")
}
