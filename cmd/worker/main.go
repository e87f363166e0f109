package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"attendsync/internal/attendance"
	"attendsync/internal/cloudinary"
	"attendsync/internal/config"
	"attendsync/internal/logging"
	"attendsync/internal/queue"
	"attendsync/internal/roster"
	"attendsync/internal/store"
	"attendsync/internal/worker"
)

// Worker renders attendance sheets queued by the API and uploads them.
func main() {
	cfg := config.Load()
	logger := logging.New(cfg.Env)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	if cfg.DataBackend == "memory" {
		logger.Fatal().Msg("worker needs a shared store, DATA_BACKEND=memory is not supported")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info().Msg("shutdown signal received")
		cancel()
	}()

	var st attendance.Store
	if cfg.DataBackend == "firebase" {
		app, err := store.NewFirebaseApp(ctx, cfg.FirebaseDatabaseURL, cfg.FirebaseCredentialsFile)
		if err != nil {
			logger.Fatal().Err(err).Msg("firebase init failed")
		}
		fb, err := store.NewFirebase(ctx, app)
		if err != nil {
			logger.Fatal().Err(err).Msg("firebase init failed")
		}
		st = fb
	} else {
		db, err := store.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("db connect failed")
		}
		defer db.Close()
		st = store.NewPostgres(db.Client)
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		logger.Warn().Str("addr", cfg.RedisAddr).Msg("redis not reachable yet")
	}

	var uploader worker.Uploader
	if cfg.CloudinaryEnabled() {
		uploader = cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
	} else {
		logger.Warn().Msg("cloudinary not configured, sheets are rendered but not stored")
	}

	w := worker.New(worker.Config{
		Store:    st,
		Rosters:  roster.NewResolver(st),
		Uploader: uploader,
		Cache:    redisClient,
		CacheTTL: cfg.SheetCacheTTL,
		Logger:   logger,
	})
	q := queue.NewRedisQueue(redisClient.Client, "")
	if err := w.Run(ctx, q); err != nil {
		logger.Fatal().Err(err).Msg("worker failed")
	}
	logger.Info().Msg("worker stopped")
}
