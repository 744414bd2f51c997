package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"activeoi/config"
	"activeoi/internal/job"
	"activeoi/internal/lock"
	"activeoi/internal/metrics"
	"activeoi/internal/processor"
	"activeoi/internal/reader/coinalyze"
	"activeoi/internal/secret"
	"activeoi/internal/storage/parquet"
	"activeoi/internal/symbols"
	"activeoi/internal/writer"
	"activeoi/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", config.DefaultPath, "Path to configuration file")
	once := flag.Bool("once", false, "Run a single batch and exit even when a schedule is configured")
	flag.Parse()

	cfg, err := config.LoadConfig(config.ResolvePath(*configPath))
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		return 1
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		return 1
	}

	env := config.AppEnvironment()
	log.WithFields(logger.Fields{
		"service": cfg.App.Name,
		"version": cfg.App.Version,
		"env":     env,
	}).Info("starting activeoi")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner, cleanup, err := buildRunner(ctx, cfg, env)
	if err != nil {
		log.WithComponent("main").WithError(err).Error("failed to initialise job")
		return 1
	}
	defer cleanup()

	if *once || cfg.Schedule.Cron == "" {
		res, err := runner.Run(ctx)
		if err != nil {
			return 1
		}
		log.WithFields(logger.Fields{"run_id": res.RunID, "status": res.Status}).Info(res.Status)
		return 0
	}

	scheduler, err := job.NewScheduler(cfg.Schedule.Cron, runner)
	if err != nil {
		log.WithComponent("main").WithError(err).Error("failed to create scheduler")
		return 1
	}
	scheduler.Start(ctx)

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	scheduler.Stop(shutdownCtx)

	log.Info("activeoi stopped")
	return 0
}

func buildRunner(ctx context.Context, cfg *config.Config, env config.Environment) (*job.Runner, func(), error) {
	log := logger.GetLogger().WithComponent("main")
	cleanup := func() {}

	registry, err := symbols.NewRegistry(cfg.ExchangeTable())
	if err != nil {
		return nil, cleanup, err
	}

	secrets, err := secret.New(ctx, cfg.Secret)
	if err != nil {
		return nil, cleanup, err
	}

	var transfer writer.Transfer = writer.NopTransfer{}
	if cfg.Storage.S3.Enabled {
		s3Transfer, err := writer.NewS3Transfer(ctx, cfg)
		if err != nil {
			return nil, cleanup, err
		}
		transfer = s3Transfer
	} else {
		log.Info("S3 storage disabled; history stays local")
	}

	var locker lock.Locker = lock.Nop{}
	if cfg.Lock.Redis.Enabled {
		redisLock, err := lock.NewRedis(ctx, cfg.Lock.Redis)
		if err != nil {
			return nil, cleanup, err
		}
		locker = redisLock
		cleanup = func() {
			if err := redisLock.Close(); err != nil {
				log.WithError(err).Warn("failed to close redis client")
			}
		}
	} else if env.ProductionLike() {
		log.WithField("env", env).Warn("run lock disabled; concurrent runs are not serialised")
	}

	if cfg.Metrics.CloudWatch.Enabled {
		metrics.InitCloudWatch(ctx, cfg.Metrics.CloudWatch.Region, cfg.Metrics.CloudWatch.Namespace)
	}

	runner := job.NewRunner(job.Deps{
		Fetcher:    coinalyze.NewClient(cfg.Coinalyze),
		Normalizer: processor.NewNormalizer(registry, cfg.Pipeline.Location()),
		Store:      parquet.NewStore(cfg.Storage.LocalDir, cfg.Storage.Compression, cfg.Pipeline.Location()),
		Secrets:    secrets,
		Transfer:   transfer,
		Locker:     locker,
		Recorder:   metrics.NewRunMetrics(cfg.Metrics.Pushgateway),
	}, job.Options{
		Symbols:    registry.Symbols(),
		Exchanges:  registry.Names(),
		Window:     cfg.Pipeline.Window,
		Lookback:   cfg.Coinalyze.Lookback,
		RawKey:     cfg.Storage.RawKey,
		DerivedKey: cfg.Storage.DerivedKey,
	})
	return runner, cleanup, nil
}
