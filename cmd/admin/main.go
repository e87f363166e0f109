package main

import (
	"context"
	"os"

	"attendsync/internal/attendance"
	"attendsync/internal/auth"
	"attendsync/internal/config"
	"attendsync/internal/logging"
	"attendsync/internal/store"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.Env)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	ctx := context.Background()

	allow, err := auth.ParseAllowList(cfg.FacultyAllowList)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid FACULTY_ALLOWLIST")
	}

	var (
		students attendance.StudentStore
		creds    auth.CredentialStore
		tokens   auth.TokenStore
		migrate  func(context.Context) error
	)
	switch cfg.DataBackend {
	case "firebase":
		app, err := store.NewFirebaseApp(ctx, cfg.FirebaseDatabaseURL, cfg.FirebaseCredentialsFile)
		if err != nil {
			logger.Fatal().Err(err).Msg("firebase init failed")
		}
		fb, err := store.NewFirebase(ctx, app)
		if err != nil {
			logger.Fatal().Err(err).Msg("firebase init failed")
		}
		students, creds, tokens = fb, fb, fb
	case "postgres":
		db, err := store.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("db connect failed")
		}
		defer db.Close()
		pg := store.NewPostgres(db.Client)
		students, creds, tokens = pg, pg, pg
		migrate = db.Migrate
	default:
		logger.Fatal().Str("backend", cfg.DataBackend).Msg("admin needs a persistent data backend")
	}

	signer := auth.Signer{Issuer: cfg.JWTIssuer, Key: []byte(cfg.JWTSigningKey), AccessTTL: cfg.AccessTTL, RefreshTTL: cfg.RefreshTTL}
	cli := commandLine{
		migrate:  migrate,
		gate:     auth.NewGate(creds, tokens, students, allow, signer, logger),
		students: students,
	}
	if err := cli.root().ExecuteContext(ctx); err != nil {
		logger.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
