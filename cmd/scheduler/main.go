package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/segyhp/loan-ledger/internal/cache"
	"github.com/segyhp/loan-ledger/internal/config"
	"github.com/segyhp/loan-ledger/internal/events"
	"github.com/segyhp/loan-ledger/internal/events/kafka"
	"github.com/segyhp/loan-ledger/internal/logger"
	"github.com/segyhp/loan-ledger/internal/repository"
	"github.com/segyhp/loan-ledger/internal/service"
)

const sweepLockKey = "ledger:lock:overdue-sweep"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging, os.Stdout).With("component", "scheduler")
	slog.SetDefault(log)
	log.Info("starting ledger scheduler")

	db, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		log.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisClient, err = cache.OpenRedis(context.Background(), cfg.Redis)
		if err != nil {
			log.Error("failed to initialize redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
	} else {
		log.Warn("REDIS_URL not set, sweep runs without a cross-replica lock")
	}

	var publisher events.Publisher = events.NoopPublisher{}
	if brokers := cfg.GetKafkaBrokers(); len(brokers) > 0 {
		publisher = kafka.NewPublisher(brokers, cfg.Kafka.EventsTopic)
	}
	defer publisher.Close()

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
	sweeper := service.NewOverdueSweeper(ledger,
		cache.NewLock(redisClient, sweepLockKey, cfg.Scheduler.LockTTL),
		cfg.Scheduler.Workers)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := cron.New(
		cron.WithParser(config.CronParser),
		cron.WithLocation(cfg.GetSchedulerLocation()),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	if err := setupCronJobs(ctx, c, cfg, sweeper, log); err != nil {
		log.Error("failed to schedule jobs", "error", err)
		os.Exit(1)
	}

	c.Start()
	log.Info("scheduler started", "spec", cfg.Scheduler.Spec, "timezone", cfg.Scheduler.Timezone)

	// Wait for interrupt signal to gracefully shutdown
	<-ctx.Done()
	log.Info("shutting down scheduler")
	<-c.Stop().Done()
	log.Info("scheduler stopped")
}

func setupCronJobs(ctx context.Context, c *cron.Cron, cfg *config.Config, sweeper *service.OverdueSweeper, log *slog.Logger) error {
	_, err := c.AddFunc(cfg.Scheduler.Spec, func() {
		log.Info("running overdue sweep")
		if _, err := sweeper.Sweep(ctx); err != nil {
			log.Error("overdue sweep failed", "error", err)
		}
	})
	return err
}
