package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"
	"github.com/redis/go-redis/v9"

	"github.com/example/chainride/internal/config"
	"github.com/example/chainride/internal/dispatch"
	"github.com/example/chainride/internal/events"
	httpapi "github.com/example/chainride/internal/http"
	"github.com/example/chainride/internal/identity"
	"github.com/example/chainride/internal/ledger/eth"
	"github.com/example/chainride/internal/logging"
	"github.com/example/chainride/internal/payments"
	"github.com/example/chainride/internal/ratings"
	"github.com/example/chainride/internal/rides"
	"github.com/example/chainride/internal/ridestate"
	"github.com/example/chainride/internal/scheduler"
	"github.com/example/chainride/internal/storage"
	"github.com/example/chainride/migrations"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadServerConfig()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.LogLevel, "chainride-api")

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.ServerConfig, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
	}

	store, closeStore, err := openStore(ctx, cfg, rdb, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	client := eth.New(eth.Config{
		RPCURL:          cfg.LedgerRPCURL,
		ArtifactPath:    cfg.LedgerArtifactPath,
		ContractAddress: cfg.LedgerContractAddress,
		ConnectAttempts: cfg.LedgerConnectAttempts,
		ConnectBackoff:  cfg.LedgerConnectBackoff,
		TxGas:           cfg.LedgerTxGas,
		RideGas:         cfg.LedgerRideGas,
		PaymentGas:      cfg.LedgerPaymentGas,
		ReceiptTimeout:  cfg.LedgerReceiptTimeout,
	}, logger)
	defer client.Close()
	// Requests are served while the ledger is still connecting; they fail
	// with 503 until it is ready.
	go func() {
		if err := client.Connect(ctx); err != nil {
			logger.Error("ledger unavailable", "error", err)
		}
	}()

	policy, err := ridestate.PolicyByName(cfg.PassengerPolicy)
	if err != nil {
		return err
	}

	resolver := identity.NewResolver(client, logger)
	registrar := identity.NewRegistrar(client, resolver, logger)
	state := ridestate.NewAggregator(client, store, policy, logger)
	reconciler := payments.NewReconciler(client, resolver, state, store, payments.Options{LocalFallback: cfg.PaymentLocalFallback}, logger)

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
	}
	defer publisher.Close()

	var activity httpapi.ActivityReader
	if rdb != nil {
		activity = storage.NewActivityLog(rdb, cfg.ActivityMaxEntries)
	}

	archiver, err := newArchiver(cfg)
	if err != nil {
		return err
	}
	sched := scheduler.New(scheduler.NewFallbackAudit(store, archiver, logger), cfg.FallbackAuditSchedule, logger)
	if err := sched.Start(); err != nil {
		return err
	}
	defer func() { <-sched.Stop().Done() }()

	api := httpapi.NewServer(httpapi.Deps{
		Ledger:    client,
		Registrar: registrar,
		Profiles:  identity.NewProfiles(client, resolver, logger),
		Rides:     rides.NewService(client, resolver, registrar, state, logger),
		State:     state,
		Payments:  reconciler,
		Ratings:   ratings.NewAggregator(client, logger),
		Watchers:  dispatch.NewWSRegistry(cfg.WatchInterval, logger),
		Activity:  activity,
		Events:    publisher,
		Origins:   cfg.CORSOrigins,
		Logger:    logger,
	})

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("chainride listening", "addr", cfg.HTTPAddr, "payment_store", cfg.PaymentStore, "passenger_policy", cfg.PassengerPolicy)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg config.ServerConfig, rdb *redis.Client, logger *slog.Logger) (storage.PaymentStore, func(), error) {
	switch cfg.PaymentStore {
	case "redis":
		if rdb == nil {
			return nil, nil, errors.New("PAYMENT_STORE=redis requires REDIS_ADDR")
		}
		return storage.NewRedisStore(rdb), func() {}, nil
	case "postgres":
		pg, err := storage.NewPostgresStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, nil, err
		}
		if cfg.RunMigrations {
			if err := migrate(ctx, pg, logger); err != nil {
				_ = pg.Close()
				return nil, nil, err
			}
		}
		return pg, func() { _ = pg.Close() }, nil
	default:
		return storage.NewMemoryStore(), func() {}, nil
	}
}

func migrate(ctx context.Context, pg *storage.PostgresStore, logger *slog.Logger) error {
	provider, err := goose.NewProvider(goose.DialectPostgres, pg.DB(), migrations.FS)
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	for _, r := range results {
		logger.Info("migration applied", "source", r.Source.Path, "duration", r.Duration)
	}
	return nil
}

func newArchiver(cfg config.ServerConfig) (scheduler.Archiver, error) {
	if cfg.AuditS3Bucket == "" {
		return nil, nil
	}
	awsCfg := aws.NewConfig().WithRegion(cfg.AuditS3Region)
	if cfg.AuditS3Endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(cfg.AuditS3Endpoint).WithS3ForcePathStyle(true)
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("aws session: %w", err)
	}
	return scheduler.NewS3Archiver(s3.New(sess), cfg.AuditS3Bucket), nil
}
