package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"adminpanel/internal/adapter/repo"
	"adminpanel/internal/events"
	"adminpanel/internal/generation"
	"adminpanel/internal/http/handlers"
	httpapi "adminpanel/internal/http/httpapi"
	"adminpanel/internal/infra"
	"adminpanel/internal/infra/credentials"
	"adminpanel/internal/infra/geoip"
	"adminpanel/internal/providers/replicate"
	"adminpanel/internal/storage"
)

func main() {
	// Muat .env (opsional)
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()
	runner := infra.NewSQLRunner(dbpool, logger)

	bucket, err := infra.OpenBucket(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open blob bucket")
	}
	blobs, err := storage.NewBlobStore(bucket, cfg.StorageBucket, cfg.StoragePublicBaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure storage")
	}
	defer blobs.Close()

	artifacts := repo.NewArtifactRepository(runner)
	references := repo.NewReferenceRepository(runner)
	uploads := repo.NewUploadRepository(runner)

	sequences, err := generation.NewSequenceAllocator(cfg.SequenceStrategy, artifacts)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid sequence strategy")
	}
	if cfg.SequenceStrategy == infra.SequenceStrategyScan {
		logger.Warn().Msg("scan sequence strategy allows duplicate numbers under concurrent generations")
	}

	token, err := credentials.NewStore(runner).Resolve(ctx, credentials.ProviderReplicate, cfg.ReplicateAPIToken)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to load stored replicate token")
	}
	client := replicate.NewClient(replicate.Options{
		APIToken:       token,
		BaseURL:        cfg.ReplicateBaseURL,
		Logger:         &logger,
		RequestTimeout: cfg.JobRequestTimeout,
	})
	if !client.HasCredentials() {
		logger.Warn().Msg("replicate token missing (set REPLICATE_API_TOKEN or run cmd/replicatekey), generation requests will fail")
	}
	poller := replicate.NewPoller(client, replicate.PollOptions{
		Interval:    cfg.PollInterval,
		Timeout:     cfg.PollTimeout,
		MaxAttempts: cfg.PollMaxAttempts,
	})

	publisher := events.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, &logger)
	defer publisher.Close()

	service := generation.NewService(client, poller, references, uploads, sequences, blobs, generation.Options{
		Model:  cfg.ReplicateModel,
		Logger: &logger,
		Events: publisher,
	})

	var geo geoip.CountryResolver
	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	} else if resolver != nil {
		geo = resolver
		defer resolver.Close()
	}

	app := &handlers.App{
		Config:     cfg,
		Logger:     logger,
		Generator:  service,
		Artifacts:  artifacts,
		References: references,
		Objects:    blobs,
		Events:     publisher,
		DB:         dbpool,
	}
	router := httpapi.NewRouter(app, cfg, logger, geo)

	server := infra.NewHTTPServer(cfg, router, logger)
	if err := server.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("http server failed")
	}
	logger.Info().Msg("server stopped")
}
