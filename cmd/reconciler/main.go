package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"adminpanel/internal/adapter/repo"
	"adminpanel/internal/infra"
	"adminpanel/internal/reconcile"
	"adminpanel/internal/storage"
)

func main() {
	once := flag.Bool("once", false, "run a single sweep and exit")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("reconciler: db connection failed")
	}
	defer pool.Close()
	runner := infra.NewSQLRunner(pool, logger)

	bucket, err := infra.OpenBucket(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("reconciler: failed to open blob bucket")
	}
	blobs, err := storage.NewBlobStore(bucket, cfg.StorageBucket, cfg.StoragePublicBaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("reconciler: failed to configure storage")
	}
	defer blobs.Close()

	sweeper := reconcile.NewSweeper(repo.NewUploadRepository(runner), blobs, reconcile.Options{
		Deadline:  cfg.ReconcileDeadline,
		BatchSize: cfg.ReconcileBatchSize,
		Interval:  cfg.ReconcileInterval,
		Logger:    &logger,
	})

	if *once {
		n, err := sweeper.SweepOnce(ctx)
		if err != nil {
			logger.Fatal().Err(err).Int("cleared", n).Msg("reconciler: sweep failed")
		}
		logger.Info().Int("cleared", n).Msg("reconciler: sweep done")
		return
	}

	if err := sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("reconciler: stopped with error")
	}
	logger.Info().Msg("reconciler: stopped")
}
