// Package config reads process settings from the environment.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

type Config struct {
	DatabaseURL string
	RedisAddr   string
	Port        string
	BaseURL     string
	LogFile     string

	TelegramBotToken string

	SpotifyClientID          string
	SpotifyClientSecret      string
	SpotifyRequestsPerSecond float64

	YoutubeClientID     string
	YoutubeClientSecret string
	YoutubeRefreshToken string

	FFmpegPath string
	TempDir    string

	WorkerConcurrency     int
	SchedulerLockFile     string
	SchedulerSyncInterval time.Duration

	RateLimit float64
	RateBurst int
}

// Load reads a .env file when present and then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Error loading .env file: %v", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv, applying defaults.
func FromEnv(getenv func(string) string) (*Config, error) {
	get := func(key, def string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return def
	}

	cfg := &Config{
		DatabaseURL:         getenv("DATABASE_URL"),
		RedisAddr:           get("REDIS_ADDR", "127.0.0.1:6379"),
		Port:                get("PORT", "8080"),
		BaseURL:             getenv("BASE_URL"),
		LogFile:             getenv("LOG_FILE"),
		TelegramBotToken:    getenv("TELEGRAM_BOT_TOKEN"),
		SpotifyClientID:     getenv("SPOTIFY_CLIENT_ID"),
		SpotifyClientSecret: getenv("SPOTIFY_CLIENT_SECRET"),
		YoutubeClientID:     getenv("YOUTUBE_CLIENT_ID"),
		YoutubeClientSecret: getenv("YOUTUBE_CLIENT_SECRET"),
		YoutubeRefreshToken: getenv("YOUTUBE_REFRESH_TOKEN"),
		FFmpegPath:          get("FFMPEG_PATH", "ffmpeg"),
		TempDir:             get("TEMP_DIR", filepath.Join(os.TempDir(), "pod2tube")),
		SchedulerLockFile:   get("SCHEDULER_LOCK_FILE", filepath.Join(os.TempDir(), "pod2tube-scheduler.lock")),
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}

	var err error
	if cfg.SpotifyRequestsPerSecond, err = cast.ToFloat64E(get("SPOTIFY_REQUESTS_PER_SECOND", "5")); err != nil {
		return nil, fmt.Errorf("SPOTIFY_REQUESTS_PER_SECOND: %w", err)
	}
	if cfg.WorkerConcurrency, err = cast.ToIntE(get("WORKER_CONCURRENCY", "2")); err != nil {
		return nil, fmt.Errorf("WORKER_CONCURRENCY: %w", err)
	}
	if cfg.SchedulerSyncInterval, err = cast.ToDurationE(get("SCHEDULER_SYNC_INTERVAL", "5m")); err != nil {
		return nil, fmt.Errorf("SCHEDULER_SYNC_INTERVAL: %w", err)
	}
	if cfg.RateLimit, err = cast.ToFloat64E(get("RATE_LIMIT", "1")); err != nil {
		return nil, fmt.Errorf("RATE_LIMIT: %w", err)
	}
	if cfg.RateBurst, err = cast.ToIntE(get("RATE_BURST", "5")); err != nil {
		return nil, fmt.Errorf("RATE_BURST: %w", err)
	}

	if cfg.WorkerConcurrency <= 0 {
		return nil, fmt.Errorf("WORKER_CONCURRENCY must be positive, got %d", cfg.WorkerConcurrency)
	}
	if cfg.SchedulerSyncInterval <= 0 {
		return nil, fmt.Errorf("SCHEDULER_SYNC_INTERVAL must be positive, got %s", cfg.SchedulerSyncInterval)
	}
	return cfg, nil
}
