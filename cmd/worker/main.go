package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/packfinderz-pos/internal/receipts"
	"github.com/angelmondragon/packfinderz-pos/pkg/backoffice"
	"github.com/angelmondragon/packfinderz-pos/pkg/config"
	"github.com/angelmondragon/packfinderz-pos/pkg/db"
	"github.com/angelmondragon/packfinderz-pos/pkg/enums"
	"github.com/angelmondragon/packfinderz-pos/pkg/instance"
	"github.com/angelmondragon/packfinderz-pos/pkg/logger"
	"github.com/angelmondragon/packfinderz-pos/pkg/metrics"
	"github.com/angelmondragon/packfinderz-pos/pkg/migrate"
	"github.com/angelmondragon/packfinderz-pos/pkg/outbox"
	"github.com/angelmondragon/packfinderz-pos/pkg/outbox/idempotency"
	"github.com/angelmondragon/packfinderz-pos/pkg/pubsub"
	"github.com/angelmondragon/packfinderz-pos/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
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
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()
	guard, err := idempotency.NewGuard(redisClient, 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create delivery guard", err)
		os.Exit(1)
	}

	bo, err := backoffice.NewFromConfig(cfg.Backoffice)
	if err != nil {
		logg.Error(context.Background(), "failed to create backoffice client", err)
		os.Exit(1)
	}

	// Receipts queued through the outbox go to the print topic when Pub/Sub is
	// configured and to the backoffice renderer otherwise.
	var renderer receipts.Renderer
	if cfg.GCP.ProjectID != "" {
		pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub client", err)
			}
		}()
		renderer, err = receipts.NewPubSubRenderer(pubsubClient.ReceiptPublisher())
		if err != nil {
			logg.Error(context.Background(), "failed to create pubsub renderer", err)
			os.Exit(1)
		}
	} else {
		renderer, err = receipts.NewHTTPRenderer(bo)
		if err != nil {
			logg.Error(context.Background(), "failed to create http renderer", err)
			os.Exit(1)
		}
	}

	registry := prometheus.NewRegistry()
	outboxRepo := outbox.NewRepository(dbClient.DB())
	service, err := NewService(ServiceParams{
		Config:     cfg,
		Logger:     logg,
		DB:         dbClient,
		Repository: outboxRepo,
		Registry:   outbox.NewDefaultRegistry(),
		Handlers: map[enums.OutboxEventType]Handler{
			enums.EventLoyaltyPointsDebit: loyaltyDebitHandler(bo),
			enums.EventReceiptRender:      receiptRenderHandler(renderer),
		},
		Metrics: metrics.NewRelayMetrics(registry),
		Guard:   guard,
		Backlog: outboxRepo,
		Timeout: cfg.Backoffice.Timeout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox relay", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"instance": instance.ID("worker-0"),
	})
	logg.Info(ctx, "starting outbox relay")

	mux := chi.NewRouter()
	mux.Method(http.MethodGet, "/metrics", metrics.Handler(registry))
	server := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := service.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(groupCtx), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logg.Error(ctx, "outbox relay stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "outbox relay shutting down gracefully")
}
