package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"musicgen/internal/app"
	"musicgen/internal/http/handlers"
	httpapi "musicgen/internal/http/httpapi"
	"musicgen/internal/infra"
	"musicgen/internal/infra/geoip"
	"musicgen/internal/middleware"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to initialize runtime")
	}
	defer rt.Close()

	if rt.SQL != nil && cfg.Development() {
		if err := app.Migrate(ctx, rt.SQL); err != nil {
			logger.Fatal().Err(err).Msg("api: schema migration failed")
		}
	}

	var countryLookup middleware.CountryLookup
	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("api: geoip disabled")
	} else if resolver != nil {
		countryLookup = resolver.CountryCode
		defer resolver.Close()
	}

	handlerApp := handlers.NewApp(rt.Engine, logger)
	handlerApp.Ready = rt.Ping

	router := httpapi.NewRouter(handlerApp, httpapi.Options{
		Logger:          logger,
		JWTSecret:       cfg.JWTSecret,
		CORSOrigins:     cfg.CORSOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		CountryLookup:   countryLookup,
		StaticDir:       rt.Store.BasePath(),
	})

	server := infra.NewHTTPServer(cfg, router, logger)
	logger.Info().Bool("database", rt.Pool != nil).Msg("api: starting")
	if err := server.Run(ctx, cfg.HTTPIdleTimeout); err != nil {
		logger.Error().Err(err).Msg("api: http server stopped with error")
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.MigrationTimeout)
	defer cancel()
	if err := rt.Engine.Wait(drainCtx); err != nil {
		logger.Warn().Err(err).Msg("api: background jobs still running at shutdown")
	}
	logger.Info().Msg("api: stopped")
}
