package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/segyhp/loan-ledger/internal/cache"
	"github.com/segyhp/loan-ledger/internal/config"
	"github.com/segyhp/loan-ledger/internal/events"
	"github.com/segyhp/loan-ledger/internal/events/kafka"
	"github.com/segyhp/loan-ledger/internal/handler"
	"github.com/segyhp/loan-ledger/internal/logger"
	"github.com/segyhp/loan-ledger/internal/repository"
	"github.com/segyhp/loan-ledger/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging, os.Stdout)
	slog.SetDefault(log)

	// Initialize database
	db, err := initDB(cfg)
	if err != nil {
		log.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize Redis
	redisClient, err := initRedis(cfg)
	if err != nil {
		log.Error("failed to initialize redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	publisher := initPublisher(cfg, log)
	defer publisher.Close()

	// Initialize service
	var loanCache service.LoanCache
	if redisClient != nil {
		loanCache = cache.NewLoanCache(redisClient, cfg.Ledger.CacheTTL)
	}
	ledger := service.NewLedgerService(
		repository.NewUnitOfWork(db),
		repository.NewRepos(db),
		loanCache,
		publisher,
		service.SystemClock{},
		log,
		service.OptionsFromConfig(cfg),
	)
	// per-loan checks only; the periodic sweep runs in cmd/scheduler
	sweeper := service.NewOverdueSweeper(ledger, nil, cfg.Scheduler.Workers)

	ledgerHandler := handler.NewLedgerHandler(ledger, sweeper)
	healthHandler := handler.NewHealthHandler(db, redisClient, cfg.Health.Timeout)

	// Start server
	server := &http.Server{
		Addr:         cfg.Address(),
		Handler:      handler.NewRouter(ledgerHandler, healthHandler, log),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("server starting", "addr", server.Addr, "env", cfg.Server.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", "error", err)
		return
	}

	log.Info("server exited")
}

func initDB(cfg *config.Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	return db, nil
}

// initRedis returns nil when REDIS_URL is unset; the ledger then runs uncached
func initRedis(cfg *config.Config) (*redis.Client, error) {
	if cfg.Redis.URL == "" {
		return nil, nil
	}
	return cache.OpenRedis(context.Background(), cfg.Redis)
}

func initPublisher(cfg *config.Config, log *slog.Logger) events.Publisher {
	brokers := cfg.GetKafkaBrokers()
	if len(brokers) == 0 {
		log.Info("KAFKA_BROKERS not set, ledger events are not published")
		return events.NoopPublisher{}
	}
	return kafka.NewPublisher(brokers, cfg.Kafka.EventsTopic)
}
