package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/habitora/reminders/internal/api"
	"github.com/habitora/reminders/internal/circuitbreaker"
	"github.com/habitora/reminders/internal/config"
	"github.com/habitora/reminders/internal/db"
	"github.com/habitora/reminders/internal/metrics"
	"github.com/habitora/reminders/internal/observ"
	"github.com/habitora/reminders/internal/redis"
	"github.com/habitora/reminders/internal/reminder"
	"github.com/habitora/reminders/internal/scheduler"
	"github.com/habitora/reminders/internal/whatsapp"
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

	logger.Info("starting habitora reminders",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
	)

	// Initialize database connection
	ctx := context.Background()
	dbConfig := db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}

	database, err := db.New(ctx, dbConfig, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	logger.Info("database connection established",
		zap.String("host", cfg.DBHost),
		zap.Int("port", cfg.DBPort),
		zap.String("database", cfg.DBName),
	)

	// Initialize repository
	repo := db.NewRepository(database, logger)

	// Initialize Redis for the run lock and rate limiting. Both degrade
	// gracefully when Redis is absent.
	var (
		runLock     *redis.RunLock
		rateLimiter *redis.RateLimiter
	)
	if cfg.RedisEnabled {
		redisClient, err := redis.New(ctx, redis.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
		if err != nil {
			logger.Warn("redis unavailable, run lock and rate limiting disabled",
				zap.Error(err),
				zap.String("host", cfg.RedisHost),
			)
		} else {
			defer redisClient.Close()
			runLock = redis.NewRunLock(redisClient, logger, time.Duration(cfg.RunLockTTLMin)*time.Minute)
			rateLimiter = redis.NewRateLimiter(redisClient, logger, redis.RateLimitConfig{
				Limit:  cfg.RateLimitPerMinute,
				Window: time.Minute,
			})
		}
	}

	// Initialize the WhatsApp sender. Without credentials messages are only
	// logged, which keeps local development safe.
	var sender reminder.Sender
	if cfg.WhatsAppConfigured() {
		client := whatsapp.New(whatsapp.Config{
			BaseURL:       cfg.WhatsAppBaseURL,
			APIVersion:    cfg.WhatsAppAPIVersion,
			PhoneNumberID: cfg.WhatsAppPhoneNumberID,
			AccessToken:   cfg.WhatsAppAccessToken,
			Timeout:       time.Duration(cfg.WhatsAppTimeout) * time.Second,
		}, logger)
		sender = circuitbreaker.NewProtectedSender(client, circuitbreaker.DefaultConfig("whatsapp"), logger)
		logger.Info("whatsapp sender initialized",
			zap.String("api_version", cfg.WhatsAppAPIVersion),
		)
	} else {
		sender = whatsapp.NewLogSender(logger)
		logger.Warn("whatsapp credentials not set, messages will only be logged")
	}

	// Reminder service and daily scheduler, sharing one business timezone.
	location, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}

	service := reminder.NewService(repo, sender, location, logger)

	var locker scheduler.Locker
	if runLock != nil {
		locker = runLock
	}
	sched := scheduler.New(service, repo, locker, location, cfg.DailyRunHour, logger)

	schedCtx, schedCancel := context.WithCancel(context.Background())
	defer schedCancel()

	go sched.Start(schedCtx)

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
	handler := api.NewHandler(logger, service, sched, repo)
	r.Route("/v1", func(r chi.Router) {
		handler.Routes(r, api.RateLimitMiddleware(rateLimiter, logger, api.PropertyKeyFunc))
	})

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := database.Health(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("database unavailable"))
			return
		}
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

		// Stop the scheduler before draining requests.
		schedCancel()

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
