package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront/api/controllers"
	"github.com/angelmondragon/storefront/api/routes"
	"github.com/angelmondragon/storefront/internal/account"
	"github.com/angelmondragon/storefront/internal/catalog"
	"github.com/angelmondragon/storefront/internal/gateway"
	"github.com/angelmondragon/storefront/internal/payments"
	"github.com/angelmondragon/storefront/internal/storefront"
	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/db"
	"github.com/angelmondragon/storefront/pkg/instance"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
	"github.com/angelmondragon/storefront/pkg/migrate"
	"github.com/angelmondragon/storefront/pkg/redis"
	"github.com/angelmondragon/storefront/pkg/storage"
	"github.com/angelmondragon/storefront/pkg/stripe"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "storefront"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "storefront",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "instance": instance.GetID()})

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "storefront stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "storefront shut down gracefully")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			err = multierr.Append(err, closers[i]())
		}
	}()

	readiness := map[string]controllers.Pinger{}

	var redisClient *redis.Client
	if cfg.Redis.URL != "" || cfg.Redis.Address != "" {
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return err
		}
		closers = append(closers, redisClient.Close)
		readiness["redis"] = redisClient
	} else {
		logg.Warn(ctx, "redis not configured, idempotency replays and auth rate limits are disabled")
	}

	var backend storage.Backend
	switch cfg.Storage.Driver {
	case config.StorageDriverRedis:
		backend = storage.NewRedis(redisClient, cfg.Redis.EntryTTL)
	case config.StorageDriverSQLite, config.StorageDriverPostgres:
		dbClient, dbErr := db.New(ctx, cfg.Storage, logg)
		if dbErr != nil {
			return dbErr
		}
		closers = append(closers, dbClient.Close)
		readiness["storage"] = dbClient
		if err := migrate.MaybeRun(ctx, cfg.Storage, logg, dbClient); err != nil {
			return err
		}
		sqlBackend, sqlErr := storage.NewSQL(ctx, dbClient)
		if sqlErr != nil {
			return sqlErr
		}
		backend = sqlBackend
	default:
		memory := storage.NewMemory()
		readiness["storage"] = memory
		backend = memory
	}

	gw, err := gateway.New(cfg.Gateway, logg, metrics.NewGatewayMetrics(prometheus.DefaultRegisterer))
	if err != nil {
		return err
	}

	var processor payments.Processor
	if cfg.Stripe.Enabled() {
		stripeClient, stripeErr := stripe.NewClient(ctx, cfg.Stripe, logg)
		if stripeErr != nil {
			return stripeErr
		}
		processor = payments.NewStripe(stripeClient, logg)
	} else {
		if cfg.App.IsProd() {
			return errors.New("stripe api key is required in production")
		}
		logg.Warn(ctx, "stripe not configured, using the in-process payment processor")
		processor = payments.NewFake()
	}

	catalogService, err := catalog.NewService(gw, logg)
	if err != nil {
		return err
	}
	accountService, err := account.NewService(gw, logg)
	if err != nil {
		return err
	}

	registry, err := storefront.NewRegistry(storefront.Options{
		Backend:    backend,
		Gateway:    gw,
		Processor:  processor,
		Checkout:   cfg.Checkout,
		MaxDevices: cfg.Device.MaxDevices,
		Metrics:    metrics.NewCheckoutMetrics(prometheus.DefaultRegisterer),
		Logger:     logg,
	})
	if err != nil {
		return err
	}

	var gatherer prometheus.Gatherer
	if cfg.Metrics.Enabled {
		gatherer = prometheus.DefaultGatherer
	}

	addr := ":" + cfg.App.Port
	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, registry, catalogService, accountService, redisClient, readiness, gatherer),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"addr":           addr,
			"storage_driver": cfg.Storage.Driver,
			"stripe_env":     cfg.Stripe.Environment(),
		}), "starting storefront server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logg.Info(ctx, "shutdown signal received, draining connections")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
