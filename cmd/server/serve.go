package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"estatehub/server/config"
	"estatehub/server/internal/analytics"
	"estatehub/server/internal/api"
	"estatehub/server/internal/auth"
	"estatehub/server/internal/cache"
	"estatehub/server/internal/database"
	"estatehub/server/internal/geocoding"
	"estatehub/server/internal/importer"
	"estatehub/server/internal/leads"
	"estatehub/server/internal/listings"
	"estatehub/server/internal/messaging"
	"estatehub/server/internal/pipeline"
	"estatehub/server/internal/processor"
	"estatehub/server/internal/queue"
	"estatehub/server/internal/recommendation"
	"estatehub/server/internal/scheduler"
	"estatehub/server/internal/telegram"
)

const limiterCleanupInterval = time.Minute

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, websocket hub and background jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, db, err := bootstrap()
			if err != nil {
				return err
			}
			defer db.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger.Info("Running database migrations...")
			if err := db.RunMigrations(ctx); err != nil {
				return err
			}
			return serve(ctx, cfg, logger, db)
		},
	}
}

func openCache(ctx context.Context, cfg config.RedisConfig, logger *logrus.Logger) cache.Cache {
	if cfg.URL == "" {
		logger.Info("Redis not configured, analytics are computed on every request")
		return cache.Noop{}
	}
	redis, err := cache.NewRedis(ctx, cfg.URL, logger)
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable, analytics cache disabled")
		return cache.Noop{}
	}
	return redis
}

func serve(ctx context.Context, cfg *config.Config, logger *logrus.Logger, db *database.Database) error {
	analyticsCache := openCache(ctx, cfg.Redis, logger)
	defer analyticsCache.Close()

	notifier, err := telegram.NewService(cfg.Telegram, logger)
	if err != nil {
		return err
	}
	var leadNotifier leads.Notifier
	var staleNotifier scheduler.Notifier
	if notifier.Enabled() {
		leadNotifier = notifier
		staleNotifier = notifier
	}

	var listingGeocoder listings.Geocoder
	var backfill scheduler.Geocoder
	if cfg.Geocoding.Enabled {
		geocoder := geocoding.NewGeocoder(cfg.Geocoding, logger)
		listingGeocoder = geocoder
		backfill = geocoder
	}

	var jobs *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		jobs, err = scheduler.NewScheduler(cfg.Scheduler, db, backfill, staleNotifier, logger)
		if err != nil {
			return err
		}
	}

	listingQueue := queue.NewListingQueue(cfg.Import.QueueSize, logger)
	batchProcessor := processor.NewBatchProcessor(db, listingQueue, cfg.Import, logger)
	batchProcessor.Start()
	listingQueue.Start()

	hub := messaging.NewHub(logger)
	listingService := listings.NewService(db, listingGeocoder, logger)
	handler := api.NewHandler(api.Services{
		DB:              db,
		Issuer:          auth.NewIssuer(cfg.Auth),
		Listings:        listingService,
		Leads:           leads.NewService(db, leadNotifier, logger),
		Pipeline:        pipeline.NewService(db, logger),
		Analytics:       analytics.NewService(db, analyticsCache, cfg.Redis.AnalyticsTTL, logger),
		Recommendations: recommendation.NewService(db, logger),
		Messaging:       messaging.NewService(db, hub, logger),
		Hub:             hub,
		Importer:        importer.New(listingQueue, batchProcessor, cfg.Import.MaxBatchSize, logger),
	}, logger)

	limiter := api.NewRateLimiter(cfg.HTTP.RateLimit, cfg.HTTP.RateBurst, logger)
	gin.SetMode(gin.ReleaseMode)
	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.NewRouter(cfg.HTTP, handler, limiter, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if jobs != nil {
		jobs.Start()
	}

	group, groupCtx := errgroup.WithContext(ctx)
	limiter.StartCleanup(groupCtx, limiterCleanupInterval)
	group.Go(func() error {
		hub.Run(groupCtx)
		return nil
	})
	group.Go(func() error {
		logger.WithField("addr", cfg.HTTP.Addr).Info("Starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = group.Wait()

	if jobs != nil {
		jobs.Stop()
	}
	_ = listingQueue.Close()
	<-listingQueue.Done()
	batchProcessor.Stop()
	listingService.Wait()
	logger.Info("Server stopped")
	return err
}
