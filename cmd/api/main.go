package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"mediclaim.org/internal/auth"
	"mediclaim.org/internal/config"
	"mediclaim.org/internal/httpapi"
	"mediclaim.org/internal/obs"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger := obs.Logger()
		logger.Fatal().Err(err).Msg("load config")
	}

	obs.Setup(cfg.AppEnv)
	obs.Init()
	obs.InitBuildInfo(version, commit)
	log := obs.Logger()

	db, err := sql.Open("pgx", cfg.PGDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("open db")
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	tokens, err := auth.NewTokenService([]byte(cfg.JWTSecret),
		auth.WithIssuer(cfg.JWTIssuer),
		auth.WithAccessTTL(cfg.AccessTTL),
		auth.WithRefreshTTL(cfg.RefreshTTL),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("token service")
	}

	store := auth.NewPGStore(db)
	svc, err := auth.NewService(store, tokens)
	if err != nil {
		log.Fatal().Err(err).Msg("auth service")
	}

	api := httpapi.New(svc, store, httpapi.ReadyProbe{DB: db}, version, httpapi.Options{
		RateLimitPerSecond: cfg.RateLimitPerSecond,
		RateLimitBurst:     cfg.RateLimitBurst,
		MaxBodyBytes:       cfg.MaxBodyBytes,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("user-service listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	_ = db.Close()
	log.Info().Msg("stopped")
}
