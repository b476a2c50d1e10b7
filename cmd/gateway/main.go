package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/nextbill/gateway/internal/alerts"
	"github.com/nextbill/gateway/internal/api"
	"github.com/nextbill/gateway/internal/cache"
	"github.com/nextbill/gateway/internal/config"
	"github.com/nextbill/gateway/internal/metrics"
	"github.com/nextbill/gateway/internal/notify"
	"github.com/nextbill/gateway/internal/observ"
	"github.com/nextbill/gateway/internal/prefs"
	"github.com/nextbill/gateway/internal/refresh"
	"github.com/nextbill/gateway/internal/remote"
	"github.com/nextbill/gateway/internal/store"
	"github.com/nextbill/gateway/internal/subscriptions"
	notifysync "github.com/nextbill/gateway/internal/sync"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Setup logger
	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting nextbill gateway",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
		zap.String("mode", cfg.NotifyMode),
		zap.String("user_id", cfg.UserID),
	)

	ctx := context.Background()

	// Upstream core API client
	coreClient := remote.New(remote.Config{
		BaseURL: cfg.CoreAPIURL,
		Timeout: cfg.CoreAPITimeout,
	}, logger)

	// Redis for the session cache and rate limiting. The gateway runs
	// without it, just with nothing surviving a restart.
	var (
		sessionCache *cache.SessionCache
		rateLimiter  *cache.RateLimiter
	)
	redisClient, err := cache.New(ctx, cache.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		logger.Warn("redis unavailable, session cache and rate limiting disabled",
			zap.Error(err),
			zap.String("host", cfg.RedisHost),
		)
	} else {
		defer redisClient.Close()
		sessionCache = cache.NewSessionCache(redisClient, logger)
		rateLimiter = cache.NewRateLimiter(redisClient, logger, cache.RateLimitConfig{
			Limit:  cfg.RateLimit,
			Window: cfg.RateLimitWindow,
		})
	}

	// Session state, restored from the cache when possible.
	st := store.New(nil)
	if sessionCache != nil {
		cached, err := sessionCache.Load(ctx, cfg.UserID)
		switch {
		case err != nil:
			logger.Warn("session cache load failed", zap.Error(err))
			metrics.RecordCacheRestore("error")
		case cached == nil:
			metrics.RecordCacheRestore("miss")
		default:
			st.Replace(cached, -1)
			metrics.RecordCacheRestore("hit")
			logger.Info("session restored from cache", zap.Int("notifications", len(cached)))
		}
	}

	// Postgres, used by derived mode and the alert scheduler. Optional:
	// derived mode falls back to the core API's subscription endpoint.
	var repo *subscriptions.Repository
	database, err := subscriptions.New(ctx, subscriptions.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}, logger)
	if err != nil {
		logger.Warn("database unavailable, using the core API for subscription data",
			zap.Error(err),
		)
	} else {
		defer database.Close()
		repo = subscriptions.NewRepository(database, logger)
	}

	// Refresh strategy per mode
	var strategy notifysync.Strategy
	if cfg.NotifyMode == config.ModeDerived {
		var source refresh.Source = subscriptions.NewAPISource(coreClient)
		if repo != nil {
			source = repo
		}
		strategy = refresh.NewDerivedStrategy(source, notify.NewDeriver(nil), cfg.UserID)
	} else {
		strategy = refresh.NewRemoteStrategy(coreClient, cfg.UserID)
	}

	runner := notifysync.NewRunner(logger)

	var persist notifysync.PersistFunc
	if sessionCache != nil {
		persist = func(ctx context.Context, list []notify.Notification) {
			if err := sessionCache.Save(ctx, cfg.UserID, list); err != nil {
				logger.Warn("session cache save failed", zap.Error(err))
			}
		}
	}

	syncClient := notifysync.NewClient(notifysync.Config{
		Runner:   runner,
		Store:    st,
		Remote:   coreClient,
		Strategy: strategy,
		UserID:   cfg.UserID,
		Mode:     cfg.NotifyMode,
		Persist:  persist,
		Logger:   logger,
	})

	reconciler := prefs.NewReconciler(runner, coreClient, cfg.UserID, logger)
	if err := reconciler.Load(ctx); err != nil {
		logger.Warn("email settings load failed, starting with defaults", zap.Error(err))
	}

	// Background refresh loop
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	refresher := refresh.New(syncClient, cfg.RefreshInterval, logger)
	go refresher.Start(bgCtx)
	logger.Info("refresh loop started", zap.Duration("interval", cfg.RefreshInterval))

	// Alert pipeline: scheduler scans the DB daily, consumer drains the
	// queue into SES. Both need the queue; the scheduler also needs the DB.
	if cfg.AlertQueueURL != "" {
		producer, err := alerts.NewProducer(ctx, alerts.QueueConfig{
			Region:   cfg.AWSRegion,
			QueueURL: cfg.AlertQueueURL,
		}, logger)
		if err != nil {
			logger.Warn("alert producer unavailable, alert pipeline disabled", zap.Error(err))
		} else {
			if repo != nil {
				scheduler := alerts.NewScheduler(repo, producer, 24*time.Hour, nil, logger)
				go scheduler.Run(bgCtx)
				logger.Info("alert scheduler started")
			} else {
				logger.Warn("database unavailable, alert scheduler disabled")
			}

			var mailer alerts.Mailer
			sesMailer, err := alerts.NewSESMailer(ctx, alerts.SESConfig{
				Region:    cfg.AWSRegion,
				FromEmail: cfg.SESFromEmail,
			}, logger)
			if err != nil {
				logger.Warn("ses unavailable, alert emails will only be logged", zap.Error(err))
				mailer = alerts.NewLogMailer(logger)
			} else {
				mailer = sesMailer
			}

			awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
			if err != nil {
				logger.Warn("aws config load failed, alert consumer disabled", zap.Error(err))
			} else {
				consumer := alerts.NewConsumer(awssqs.NewFromConfig(awsCfg), cfg.AlertQueueURL, mailer, logger)
				go consumer.Run(bgCtx)
				logger.Info("alert consumer started")
			}
		}
	}

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// Custom logging middleware
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration_ms", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	})

	// API routes
	handler := api.NewHandler(logger, syncClient, reconciler)
	r.Route("/v1", func(r chi.Router) {
		r.Use(api.RequireUser(cfg.UserID))
		r.Use(api.RateLimitMiddleware(rateLimiter, logger, api.UserKeyFunc))
		r.Mount("/", handler.Routes())
	})

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint
	r.Handle("/metrics", metrics.Handler())

	// Setup HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	// Listen for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a signal or server error
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		// Give outstanding requests 10 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			srv.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		logger.Info("server stopped gracefully")
	}

	return nil
}
