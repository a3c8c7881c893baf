package shared

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/subosito/gotenv"
)

type Config struct {
	AppEnv      string
	LogLevel    string
	HTTPAddr    string
	MetricsAddr string
	MySQLDSN    string
	RedisAddr   string
	RedisDB     int
	RedisPass   string
	CacheTTL    time.Duration

	AlertThreshold    float64
	AlertLimit        int
	ReviewsLimit      int
	RealtimeHandshake time.Duration
	WebhookRPS        float64

	FeedBase    string
	FeedKey     string
	Workers     int
	ReviewCount int
}

// Load reads configuration from the environment. A .env file in the working
// directory (or ENV_FILE) is applied first; variables already set win.
func Load() Config {
	loadDotenv(env("ENV_FILE", ".env"))

	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
			log.Warn().Str("key", k).Str("value", v).Msg("ignoring non-integer config value")
		}
		return def
	}
	atof := func(k string, def float64) float64 {
		if v := os.Getenv(k); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f
			}
			log.Warn().Str("key", k).Str("value", v).Msg("ignoring non-numeric config value")
		}
		return def
	}
	c := Config{
		AppEnv:      env("APP_ENV", "prod"),
		LogLevel:    env("LOG_LEVEL", "info"),
		HTTPAddr:    env("HTTP_ADDR", ":8080"),
		MetricsAddr: env("METRICS_ADDR", ""),
		MySQLDSN:    env("MYSQL_DSN", "root:root@tcp(localhost:3306)/review_pulse?parseTime=true&charset=utf8mb4,utf8&loc=UTC"),
		RedisAddr:   env("REDIS_ADDR", "localhost:6379"),
		RedisPass:   env("REDIS_PASSWORD", ""),
		RedisDB:     atoi("REDIS_DB", 0),
		CacheTTL:    time.Duration(atoi("CACHE_TTL_SECONDS", 900)) * time.Second,

		AlertThreshold:    atof("ALERT_THRESHOLD", 2),
		AlertLimit:        atoi("ALERT_LIMIT", 50),
		ReviewsLimit:      atoi("REVIEWS_LIMIT", 500),
		RealtimeHandshake: time.Duration(atoi("REALTIME_HANDSHAKE_TIMEOUT_MS", 10000)) * time.Millisecond,
		WebhookRPS:        atof("WEBHOOK_RPS", 20),

		FeedBase:    env("FEED_BASE_URL", "http://localhost:8090/v1"),
		FeedKey:     env("FEED_API_KEY", ""),
		Workers:     atoi("INGEST_WORKERS", 8),
		ReviewCount: atoi("INGEST_REVIEW_COUNT", 100),
	}
	if c.FeedKey == "" {
		log.Warn().Msg("FEED_API_KEY is empty")
	}
	return c
}

func loadDotenv(path string) {
	err := gotenv.Load(path)
	if err == nil {
		log.Debug().Str("file", path).Msg("loaded env file")
		return
	}
	if !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Str("file", path).Msg("env file not loaded")
	}
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
