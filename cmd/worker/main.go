package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/aruniapsara/DrapeStudio/internal/adapter/repo"
	"github.com/aruniapsara/DrapeStudio/internal/infra"
	"github.com/aruniapsara/DrapeStudio/internal/providers/genai"
	"github.com/aruniapsara/DrapeStudio/internal/providers/image"
	"github.com/aruniapsara/DrapeStudio/internal/queue"
	"github.com/aruniapsara/DrapeStudio/internal/storage"
	"github.com/aruniapsara/DrapeStudio/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	redisClient, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: redis connection failed")
	}
	defer redisClient.Close()

	store, err := buildStorage(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}

	geminiClient, err := genai.NewClient(genai.Options{
		APIKey:  cfg.GeminiAPIKey,
		BaseURL: cfg.GeminiBaseURL,
		Model:   cfg.GeminiModel,
		Logger:  &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure gemini client")
	}

	w := worker.New(worker.Options{
		Repo:            repo.NewGenerationRepository(pool),
		Queue:           queue.NewRedisQueue(redisClient, cfg.QueueName),
		Store:           store,
		Generator:       image.NewGeminiGenerator(geminiClient),
		Logger:          &logger,
		ProviderTimeout: cfg.ProviderTimeout,
	})

	if err := w.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("worker stopped with error")
	}
	logger.Info().Msg("worker stopped")
}

func buildStorage(ctx context.Context, cfg *infra.Config) (storage.Gateway, error) {
	if cfg.StorageBackend == "s3" {
		return storage.NewS3Store(ctx, storage.S3Options{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
	}
	return storage.NewFileStore(cfg.StoragePath, cfg.SecretKey)
}
