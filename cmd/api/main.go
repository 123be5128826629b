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
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/packfinderz-pos/api/controllers"
	"github.com/angelmondragon/packfinderz-pos/api/routes"
	"github.com/angelmondragon/packfinderz-pos/internal/catalog"
	"github.com/angelmondragon/packfinderz-pos/internal/checkout"
	"github.com/angelmondragon/packfinderz-pos/internal/loyalty"
	"github.com/angelmondragon/packfinderz-pos/internal/parked"
	"github.com/angelmondragon/packfinderz-pos/internal/receipts"
	"github.com/angelmondragon/packfinderz-pos/internal/terminal"
	"github.com/angelmondragon/packfinderz-pos/pkg/backoffice"
	"github.com/angelmondragon/packfinderz-pos/pkg/config"
	"github.com/angelmondragon/packfinderz-pos/pkg/db"
	"github.com/angelmondragon/packfinderz-pos/pkg/enums"
	"github.com/angelmondragon/packfinderz-pos/pkg/instance"
	"github.com/angelmondragon/packfinderz-pos/pkg/logger"
	"github.com/angelmondragon/packfinderz-pos/pkg/metrics"
	"github.com/angelmondragon/packfinderz-pos/pkg/migrate"
	"github.com/angelmondragon/packfinderz-pos/pkg/outbox"
	"github.com/angelmondragon/packfinderz-pos/pkg/pubsub"
	"github.com/angelmondragon/packfinderz-pos/pkg/redis"
)

const shutdownTimeout = 20 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	printMode, err := enums.ParsePrintMode(cfg.Checkout.PrintMode)
	requireResource(logg, "print mode", err)
	transport, err := enums.ParseReceiptTransport(cfg.Checkout.ReceiptTransport)
	requireResource(logg, "receipt transport", err)
	debitMode, err := enums.ParseDebitMode(cfg.Loyalty.DebitMode)
	requireResource(logg, "loyalty debit mode", err)
	tiers, err := cfg.Loyalty.Tiers()
	requireResource(logg, "loyalty reward tiers", err)

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	requireResource(logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	requireResource(logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	bo, err := backoffice.NewFromConfig(cfg.Backoffice)
	requireResource(logg, "backoffice client", err)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	posMetrics := metrics.NewPOSMetrics(registry)

	readiness := map[string]controllers.Pinger{
		"database": dbClient,
		"redis":    redisClient,
	}

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	var renderer receipts.Renderer
	switch transport {
	case enums.ReceiptTransportPubSub:
		pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
		requireResource(logg, "pubsub", err)
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub client", err)
			}
		}()
		readiness["pubsub"] = pubsubClient
		renderer, err = receipts.NewPubSubRenderer(pubsubClient.ReceiptPublisher())
		requireResource(logg, "pubsub receipt renderer", err)
	case enums.ReceiptTransportOutbox:
		renderer, err = receipts.NewOutboxRenderer(dbClient, outboxService)
		requireResource(logg, "outbox receipt renderer", err)
	default:
		renderer, err = receipts.NewHTTPRenderer(bo)
		requireResource(logg, "http receipt renderer", err)
	}

	dispatcher, err := receipts.NewDispatcher(receipts.DispatcherParams{
		Renderer:  renderer,
		Logger:    logg,
		Metrics:   posMetrics,
		QueueSize: cfg.Checkout.ReceiptQueueSize,
	})
	requireResource(logg, "receipt dispatcher", err)

	resolver, err := catalog.NewResolver(bo, posMetrics, logg)
	requireResource(logg, "catalog resolver", err)

	lifecycle, err := parked.NewLifecycle(bo, logg)
	requireResource(logg, "parked sale lifecycle", err)

	negotiator, err := loyalty.NewNegotiator(loyalty.NegotiatorParams{
		API:           bo,
		Tiers:         tiers,
		PointsPerUnit: cfg.Loyalty.PointsPerUnit,
		DebitMode:     debitMode,
		Logger:        logg,
	})
	requireResource(logg, "loyalty negotiator", err)

	journal, err := checkout.NewRepository(dbClient, outboxService)
	requireResource(logg, "checkout journal", err)

	finalizer, err := checkout.NewFinalizer(checkout.FinalizerParams{
		Sales:         bo,
		Debits:        bo,
		Journal:       journal,
		Receipts:      dispatcher,
		Metrics:       posMetrics,
		Logger:        logg,
		PrintMode:     printMode,
		SubmitTimeout: cfg.Checkout.SubmitTimeout,
	})
	requireResource(logg, "checkout finalizer", err)

	terminals, err := terminal.NewService(terminal.ServiceParams{
		Registry:  terminal.NewRegistry(redisClient, cfg.Terminal.SnapshotTTL, logg),
		Resolver:  resolver,
		Products:  bo,
		Parking:   lifecycle,
		Loyalty:   negotiator,
		Finalizer: finalizer,
		Metrics:   posMetrics,
		Logger:    logg,
	})
	requireResource(logg, "terminal service", err)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":       cfg.App.Env,
		"addr":      addr,
		"instance":  instance.ID("local"),
		"printMode": printMode,
		"transport": transport,
	})
	logg.Info(ctx, "starting api server")

	router := routes.NewRouter(cfg, logg, routes.Deps{
		Readiness:        readiness,
		IdempotencyStore: redisClient,
		Terminals:        terminals,
		Attempts:         journal,
		Metrics:          metrics.Handler(registry),
	})
	server := &http.Server{
		Addr:              addr,
		Handler:           otelhttp.NewHandler(router, "pos-api"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Receipts from requests still in flight must reach the queue before it
	// drains, so the dispatcher stops only after the server has.
	dispatchCtx, stopDispatch := context.WithCancel(context.WithoutCancel(ctx))
	defer stopDispatch()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return dispatcher.Run(dispatchCtx)
	})
	group.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		defer stopDispatch()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(groupCtx), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	<-dispatcher.Done()
	logg.Info(ctx, "api server shut down gracefully")
}

func requireResource(logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), "failed to bootstrap "+resource, err)
	os.Exit(1)
}
