package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/aruniapsara/DrapeStudio/internal/adapter/repo"
	"github.com/aruniapsara/DrapeStudio/internal/http/handlers"
	"github.com/aruniapsara/DrapeStudio/internal/http/httpapi"
	"github.com/aruniapsara/DrapeStudio/internal/infra"
	"github.com/aruniapsara/DrapeStudio/internal/infra/geoip"
	"github.com/aruniapsara/DrapeStudio/internal/queue"
	"github.com/aruniapsara/DrapeStudio/internal/storage"
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

	if err := infra.Migrate(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("migrations failed")
	}

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer pool.Close()

	redisClient, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}
	defer redisClient.Close()

	store, files, err := buildStorage(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure storage")
	}

	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}

	generations := repo.NewGenerationRepository(pool)
	jobs := queue.NewRedisQueue(redisClient, cfg.QueueName)
	app := handlers.NewApp(generations, jobs, store, files, cfg, &logger)
	router := httpapi.NewRouter(app, resolver)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

// buildStorage selects the gateway for the configured backend. The *FileStore
// is also returned directly because only the local backend serves direct
// uploads and file downloads through the API.
func buildStorage(ctx context.Context, cfg *infra.Config) (storage.Gateway, *storage.FileStore, error) {
	if cfg.StorageBackend == "s3" {
		s3Store, err := storage.NewS3Store(ctx, storage.S3Options{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		if err != nil {
			return nil, nil, err
		}
		return s3Store, nil, nil
	}
	files, err := storage.NewFileStore(cfg.StoragePath, cfg.SecretKey)
	if err != nil {
		return nil, nil, err
	}
	return files, files, nil
}
