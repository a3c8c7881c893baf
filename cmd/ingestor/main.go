package main

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"review_pulse/internal/adapters/feed"
	"review_pulse/internal/adapters/observability"
	redisad "review_pulse/internal/adapters/redis"
	"review_pulse/internal/app"
	"review_pulse/internal/shared"
	mysqlrepo "review_pulse/internal/storage/mysql"
)

// maxPages bounds a backfill against a feed that never reports an end.
const maxPages = 1000

func main() {
	ctx := context.Background()
	cfg := shared.Load()

	// 1) initialize global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel)

	log.Info().
		Str("base", cfg.FeedBase).
		Int("workers", cfg.Workers).
		Int("page_size", cfg.ReviewCount).
		Msg("ingestor starting")

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")

	repo := mysqlrepo.New(db)

	client, err := feed.New(cfg.FeedBase, cfg.FeedKey, 5)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize review feed client")
	}
	rc := redisad.NewClient(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	ing := app.NewIngestionService(client, repo, redisad.NewCache(rc), redisad.NewBus(rc, cfg.RealtimeHandshake))
	ing.AlertThreshold = cfg.AlertThreshold

	sem := semaphore.NewWeighted(int64(cfg.Workers))
	var (
		wg       sync.WaitGroup
		ok, fail atomic.Int64
	)

	for page := 1; page <= maxPages; page++ {
		batch, err := ing.FetchPage(ctx, page, cfg.ReviewCount)
		if err != nil {
			log.Error().Int("page", page).Err(err).Msg("fetch failed; stopping backfill")
			break
		}
		if len(batch) == 0 {
			break
		}

		for _, in := range batch {
			in := in // per-iteration copy (go 1.21 loop semantics)
			// acquire before launching the goroutine; release inside it
			if err := sem.Acquire(ctx, 1); err != nil {
				log.Fatal().Err(err).Msg("semaphore acquire failed")
			}

			wg.Add(1)
			go func() {
				defer wg.Done()
				defer sem.Release(1)

				if _, err := ing.IngestReview(ctx, in); err != nil {
					fail.Add(1)
					log.Warn().Str("id", in.Review.ID).Err(err).Msg("ingest failed")
					return
				}
				ok.Add(1)
			}()
		}
		log.Info().Int("page", page).Int("reviews", len(batch)).Msg("page queued")
	}

	wg.Wait()
	log.Info().Int64("ok", ok.Load()).Int64("failed", fail.Load()).Msg("backfill completed")

	// refresh derived read models over the new data
	if _, err := ing.ExtractTopics(ctx); err != nil {
		log.Error().Err(err).Msg("topic extraction failed")
	}
	if _, err := ing.GenerateWeeklySummary(ctx); err != nil {
		log.Error().Err(err).Msg("weekly summary failed")
	}

	_ = rc.Close()
	log.Info().Msg("ingestion completed")
}
