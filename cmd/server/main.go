package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"fish-tracker/internal/auth"
	"fish-tracker/internal/config"
	"fish-tracker/internal/hub"
	"fish-tracker/internal/logging"
	"fish-tracker/internal/server"
	"fish-tracker/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logging.Warn().Err(err).Msg("could not read .env")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logging.Fatal().Err(err).Msg("invalid configuration")
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, store.Options{
		Driver:      cfg.StoreDriver,
		StateFile:   cfg.StateFile,
		DataDir:     cfg.DataDir,
		DatabaseURL: cfg.DatabaseURL,
	})
	if err != nil {
		logging.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("open store failed")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("close store failed")
		}
	}()

	if _, err := server.BootstrapAdmin(ctx, st, cfg.BootstrapAdminUsername, cfg.BootstrapAdminPassword); err != nil {
		logging.Fatal().Err(err).Msg("bootstrap admin failed")
	}

	tokenCfg := auth.DefaultTokenConfig(cfg.JWTSecret)
	tokenCfg.Expiry = cfg.AdminTokenExpiry

	router := server.NewRouter(server.Deps{
		Store:           st,
		TokenConfig:     tokenCfg,
		TokenTTL:        cfg.TokenTTL,
		Hub:             hub.New(),
		AllowedOrigins:  cfg.AllowedOrigins,
		IngestRateLimit: cfg.IngestRateLimit,
		CreateUserKey:   cfg.CreateUserAPIKey,
		Started:         time.Now(),
	})
	defer router.Close()

	logging.Info().
		Str("driver", cfg.StoreDriver).
		Dur("token_ttl", cfg.TokenTTL).
		Msg("fish tracker starting")
	if err := server.Run(ctx, cfg, router); err != nil {
		logging.Error().Err(err).Msg("server stopped")
		os.Exit(1)
	}
	logging.Info().Msg("server stopped")
}
