package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	server "review_pulse/internal/adapters/http_server"
	"review_pulse/internal/adapters/observability"
	redisad "review_pulse/internal/adapters/redis"
	"review_pulse/internal/alerts"
	"review_pulse/internal/app"
	"review_pulse/internal/shared"
	mysqlrepo "review_pulse/internal/storage/mysql"
)

func main() {
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel)

	reg := observability.InitRegistry()
	observability.Serve(cfg.MetricsAddr, reg)

	// db
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("database connection ok")

	// deps
	repo := mysqlrepo.New(db)
	rc := redisad.NewClient(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	cache := redisad.NewCache(rc)
	bus := redisad.NewBus(rc, cfg.RealtimeHandshake)

	q := app.NewQueryService(repo, cache, cfg.CacheTTL, cfg.ReviewsLimit)
	ing := app.NewIngestionService(nil, repo, cache, bus)
	ing.AlertThreshold = cfg.AlertThreshold
	feed := alerts.NewFeed(repo, cfg.AlertThreshold, cfg.AlertLimit)

	burst := int(cfg.WebhookRPS)
	if burst < 1 {
		burst = 1
	}

	// http
	srv := server.New()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{
		Q:       q,
		Ingest:  ing,
		Alerts:  feed,
		Events:  bus,
		Webhook: rate.NewLimiter(rate.Limit(cfg.WebhookRPS), burst),
	})

	log.Info().
		Str("addr", cfg.HTTPAddr).
		Float64("alert_threshold", cfg.AlertThreshold).
		Int("alert_limit", cfg.AlertLimit).
		Msg("API listening")
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux(), ReadHeaderTimeout: 5 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("http shutdown failed")
		}
	}()

	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("http server failed")
	}
	_ = rc.Close()
	_ = db.Close()
	log.Info().Msg("API stopped")
}
