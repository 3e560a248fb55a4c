// fundworker consumes document jobs from the queue and runs the extraction
// pipeline: OCR, inference, schema validation, persistence.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/funddocs/funds-tracker/constants"
	"github.com/funddocs/funds-tracker/internal/cache"
	"github.com/funddocs/funds-tracker/internal/common"
	"github.com/funddocs/funds-tracker/internal/inference"
	"github.com/funddocs/funds-tracker/internal/inference/anthropic"
	"github.com/funddocs/funds-tracker/internal/inference/mock"
	"github.com/funddocs/funds-tracker/internal/lifecycle"
	"github.com/funddocs/funds-tracker/internal/objstore"
	"github.com/funddocs/funds-tracker/internal/ocr"
	"github.com/funddocs/funds-tracker/internal/pipeline"
	"github.com/funddocs/funds-tracker/internal/promptcfg"
	"github.com/funddocs/funds-tracker/internal/queue"
	"github.com/funddocs/funds-tracker/internal/store"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("opening database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	st := store.NewPostgresStore(pool)

	objects, err := objstore.NewS3StoreFromEnv(ctx, cfg.Storage.Region)
	if err != nil {
		logger.Error("initializing object store", "error", err)
		os.Exit(1)
	}

	detector, err := ocr.NewTextractDetectorFromEnv(ctx, cfg.Storage.Region)
	if err != nil {
		logger.Error("initializing text detector", "error", err)
		os.Exit(1)
	}

	var configCache cache.Cache = cache.NoopCache{}
	if cfg.Redis.URL != "" {
		rc, err := cache.NewRedisCache(cfg.Redis.URL)
		if err != nil {
			logger.Error("initializing redis cache", "error", err)
			os.Exit(1)
		}
		configCache = rc
	}

	loader := promptcfg.NewLoader(objects, configCache, logger,
		cfg.Storage.ConfigBucket, cfg.Storage.PromptKey, cfg.Storage.SchemaKey,
		cfg.Storage.ConfigCacheTTL)

	generator := newGenerator(cfg.Inference, logger)
	logger.Info("inference provider selected", "provider", generator.Name(), "model", cfg.Inference.Model)

	conn, err := queue.Dial(cfg.Queue.URL)
	if err != nil {
		logger.Error("connecting to message queue", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	publisher, err := queue.NewPublisher(conn, cfg.Queue.JobQueue, cfg.Queue.ResultQueue, logger)
	if err != nil {
		logger.Error("initializing publisher", "error", err)
		os.Exit(1)
	}
	defer publisher.Close()

	controller := lifecycle.NewController(st, logger)
	sampling := inference.SamplingConfig{
		MaxOutputTokens: cfg.Inference.MaxOutputTokens,
		Temperature:     cfg.Inference.Temperature,
		TopP:            cfg.Inference.TopP,
	}

	var processor pipeline.DocumentProcessor
	switch cfg.Extract.Strategy {
	case "batched":
		processor = &pipeline.BatchedPipeline{
			Logger:         logger,
			Objects:        objects,
			Detector:       detector,
			Generator:      generator,
			Lifecycle:      controller,
			Config:         loader,
			ResultBucket:   cfg.Storage.ResultBucket,
			NoiseMarkers:   cfg.Storage.NoiseMarkers,
			Sampling:       sampling,
			MaxDocsPerCall: cfg.Extract.MaxDocsPerCall,
			Notifier:       publisher,
		}
	default:
		processor = &pipeline.Pipeline{
			Logger:       logger,
			Objects:      objects,
			Detector:     detector,
			Generator:    generator,
			Lifecycle:    controller,
			Config:       loader,
			ResultBucket: cfg.Storage.ResultBucket,
			NoiseMarkers: cfg.Storage.NoiseMarkers,
			Sampling:     sampling,
			Notifier:     publisher,
		}
	}

	registry := pipeline.NewRegistry()
	registry.Register(constants.DocTypeICMemo, processor)
	registry.Register(constants.DocTypeCapitalCallNotice, pipeline.NewSkipProcessor(logger))
	registry.Register(constants.DocTypeQuarterlyReport, pipeline.NewSkipProcessor(logger))

	consumer := &queue.RabbitConsumer{
		Conn:        conn,
		Handler:     queue.NewConsumer(logger, registry, controller),
		Logger:      logger,
		Queue:       cfg.Queue.JobQueue,
		BatchSize:   cfg.Queue.BatchSize,
		BatchWindow: cfg.Queue.BatchWindow,
	}

	logger.Info("worker started", "queue", cfg.Queue.JobQueue, "strategy", cfg.Extract.Strategy)
	if err := consumer.Run(ctx); err != nil {
		logger.Error("consumer stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("stopped")
}

func newGenerator(cfg common.InferenceConfig, logger *slog.Logger) inference.Generator {
	if cfg.Provider == "mock" {
		return mock.NewProvider(`{}`)
	}
	return anthropic.NewProvider(cfg, logger)
}
