package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"attendsync/internal/api"
	"attendsync/internal/attendance"
	"attendsync/internal/auth"
	"attendsync/internal/classes"
	"attendsync/internal/cloudinary"
	"attendsync/internal/config"
	"attendsync/internal/live"
	"attendsync/internal/logging"
	"attendsync/internal/queue"
	"attendsync/internal/roster"
	"attendsync/internal/selection"
	"attendsync/internal/store"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.Env)
	if logging.IsProduction(cfg.Env) {
		gin.SetMode(gin.ReleaseMode)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("http server failed")
	}
}

type backends struct {
	store  attendance.Store
	creds  auth.CredentialStore
	tokens auth.TokenStore
	health map[string]func(context.Context) bool
	close  func()
	// fbApp is set when the store runs on the Realtime Database.
	fbApp  *firebase.App
}

// openStore selects the document store named by DATA_BACKEND.
func openStore(ctx context.Context, cfg config.App, logger zerolog.Logger) (backends, error) {
	switch cfg.DataBackend {
	case "memory":
		m := store.NewMemory()
		logger.Warn().Msg("using in-memory store, data is lost on restart")
		return backends{store: m, creds: m, tokens: m, health: map[string]func(context.Context) bool{}, close: func() {}}, nil
	case "firebase":
		app, err := store.NewFirebaseApp(ctx, cfg.FirebaseDatabaseURL, cfg.FirebaseCredentialsFile)
		if err != nil {
			return backends{}, err
		}
		fb, err := store.NewFirebase(ctx, app)
		if err != nil {
			return backends{}, err
		}
		return backends{store: fb, creds: fb, tokens: fb, health: map[string]func(context.Context) bool{}, close: func() {}, fbApp: app}, nil
	default:
		db, err := store.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Warn().Err(err).Msg("db not reachable")
		}
		if db == nil {
			return backends{}, err
		}
		pg := store.NewPostgres(db.Client)
		return backends{
			store: pg, creds: pg, tokens: pg,
			health: map[string]func(context.Context) bool{"db": db.Healthy},
			close:  func() { _ = db.Close() },
		}, nil
	}
}

// firebaseApp returns the app the store already opened, opening one only
// when the store runs on another backend.
func firebaseApp(ctx context.Context, cfg config.App, shared *firebase.App) (*firebase.App, error) {
	if shared != nil {
		return shared, nil
	}
	return store.NewFirebaseApp(ctx, cfg.FirebaseDatabaseURL, cfg.FirebaseCredentialsFile)
}

func run(cfg config.App, logger zerolog.Logger) error {
	ctx := context.Background()

	b, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.close()

	allow, err := auth.ParseAllowList(cfg.FacultyAllowList)
	if err != nil {
		return err
	}
	if len(allow.Members()) == 0 {
		logger.Warn().Msg("FACULTY_ALLOWLIST is empty, no faculty can sign in")
	}

	var (
		redisClient *store.Redis
		hub         live.Hub
		jobs        queue.Queue
		selections  selection.Backend
		sheets      api.SheetCache
	)
	if cfg.LiveBackend == "redis" || cfg.QueueBackend == "redis" {
		redisClient = store.NewRedis(cfg.RedisAddr)
		defer redisClient.Close()
		b.health["redis"] = redisClient.Healthy
	}
	if cfg.LiveBackend == "redis" {
		hub = live.NewRedisHub(redisClient.Client, "", logger)
		selections = selection.NewRedis(redisClient.Client, "")
	} else {
		hub = live.NewMemory()
		selections = selection.NewMemory()
	}
	if cfg.QueueBackend == "redis" {
		jobs = queue.NewRedisQueue(redisClient.Client, "")
		sheets = redisClient
	} else {
		// The worker runs in another process; an in-memory queue would never be drained.
		logger.Info().Msg("QUEUE_BACKEND is not redis, sheet pre-rendering disabled")
	}

	notifier := live.NewNotifier(hub, jobs, logger)
	signer := auth.Signer{
		Issuer:     cfg.JWTIssuer,
		Key:        []byte(cfg.JWTSigningKey),
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
	}
	gate := auth.NewGate(b.creds, b.tokens, b.store, allow, signer, logger)

	var verifier auth.IDTokenVerifier
	if cfg.FirebaseEnabled() {
		app, err := firebaseApp(ctx, cfg, b.fbApp)
		if err == nil {
			verifier, err = auth.NewFirebaseVerifier(ctx, app)
		}
		if err != nil {
			verifier = nil
			logger.Warn().Err(err).Msg("firebase sign-in disabled")
		}
	}

	var uploader api.ImageUploader
	if cfg.CloudinaryEnabled() {
		uploader = cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		logger.Info().Str("cloud", cfg.CloudinaryCloudName).Msg("cloudinary configured")
	} else {
		logger.Info().Msg("cloudinary not configured, profile photos stored inline")
	}

	router := api.NewRouter(api.Deps{
		Store:            b.store,
		Gate:             gate,
		Verifier:         verifier,
		Registry:         classes.NewRegistry(b.store, b.store, notifier, logger),
		Rosters:          roster.NewResolver(b.store),
		Recorder:         attendance.NewRecorder(b.store, notifier, cfg.Location, logger),
		Selections:       selections,
		Hub:              hub,
		Uploader:         uploader,
		Sheets:           sheets,
		Location:         cfg.Location,
		MaxUploadBytes:   cfg.MaxUploadBytes,
		RateLimitPerMin:  cfg.RateLimitPerMin,
		LoginLimitPerMin: cfg.LoginLimitPerMin,
		Health:           b.health,
		Logger:           logger,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("port", cfg.HTTPPort).Str("backend", cfg.DataBackend).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}
	logger.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced shutdown")
	}
	logger.Info().Msg("server exited")
	return nil
}
