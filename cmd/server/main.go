// Package main is the entry point for the insdr-dispatcher HTTP server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/popeskul/insdr-dispatcher/internal/cache"
	"github.com/popeskul/insdr-dispatcher/internal/config"
	"github.com/popeskul/insdr-dispatcher/internal/events"
	"github.com/popeskul/insdr-dispatcher/internal/gateway"
	"github.com/popeskul/insdr-dispatcher/internal/handler"
	"github.com/popeskul/insdr-dispatcher/internal/infrastructure/migrate"
	"github.com/popeskul/insdr-dispatcher/internal/middleware"
	"github.com/popeskul/insdr-dispatcher/internal/repository"
	"github.com/popeskul/insdr-dispatcher/internal/service"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	if cfg.Database.AutoMigrate {
		runner := migrate.NewRunner(&migrate.Config{
			DatabaseURL:    cfg.Database.GetURL(),
			MigrationsPath: cfg.Database.MigrationsPath,
		}, logger)
		if err := runner.Run(); err != nil {
			logger.Fatal("Failed to apply migrations", zap.Error(err))
		}
	}

	db, err := sqlx.Connect("postgres", cfg.Database.GetDSN())
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database connection", zap.Error(err))
		}
	}()

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("Failed to close Redis connection", zap.Error(err))
		}
	}()

	publisher := newPublisher(cfg.Events, logger)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Error("Failed to close event publisher", zap.Error(err))
		}
	}()

	repo := repository.NewRepository(db)
	store := cache.NewStore(redisClient)
	gatewayClient := gateway.NewClient(cfg.Gateway, logger)

	svc, err := service.NewService(cfg, repo, store, gatewayClient, publisher, logger)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}

	h := handler.NewHandler(svc, logger)

	chain, stopMiddleware := middleware.Chain(middleware.NewConfig(cfg.Middleware, logger))
	defer stopMiddleware()

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      chain(setupRouter(h, cfg, logger)),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if cfg.Scheduler.Enabled {
		if err := svc.Scheduler.Start(); err != nil {
			logger.Error("Failed to start scheduler on startup", zap.Error(err))
		} else {
			logger.Info("Scheduler started on application startup",
				zap.Int("interval_minutes", cfg.Scheduler.IntervalMinutes))
		}
	}

	go func() {
		logger.Info("Starting server", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	if svc.Scheduler.IsRunning() {
		if err := svc.Scheduler.Stop(); err != nil {
			logger.Error("Failed to stop scheduler", zap.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

// newPublisher falls back to a no-op publisher when no broker is configured
// or the broker is unreachable at startup.
func newPublisher(cfg config.EventsConfig, logger *zap.Logger) events.Publisher {
	if cfg.AMQPURL == "" {
		return events.NopPublisher{}
	}

	publisher, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.Exchange)
	if err != nil {
		logger.Warn("Event broker unavailable, delivery events disabled", zap.Error(err))
		return events.NopPublisher{}
	}

	logger.Info("Publishing delivery events", zap.String("exchange", cfg.Exchange))
	return publisher
}
