package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gorilla/mux"
	"github.com/hibiken/asynq"
	"golang.org/x/time/rate"
	"pod2tube/internal/config"
	"pod2tube/internal/db"
	"pod2tube/internal/handlers"
	"pod2tube/internal/logging"
	"pod2tube/internal/middleware"
	"pod2tube/internal/publish"
	"pod2tube/internal/scheduler"
	"pod2tube/internal/source"
	"pod2tube/pkg/tasks"
)

// CommitSHA is set at build time via ldflags
var CommitSHA = "unknown"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("could not load configuration: %v", err)
	}
	defer logging.Configure(cfg.LogFile).Close()

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("could not open database: %v", err)
	}
	store := db.New(conn)
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := store.Migrate(ctx); err != nil {
		log.Fatalf("could not migrate database: %v", err)
	}

	client := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer client.Close()

	spotify := source.NewClient(source.Config{
		ClientID:          cfg.SpotifyClientID,
		ClientSecret:      cfg.SpotifyClientSecret,
		RequestsPerSecond: cfg.SpotifyRequestsPerSecond,
	})
	scanner := scheduler.NewScanner(store, spotify, tasks.NewDispatcher(client))
	youtube := publish.NewClient(publish.Config{
		ClientID:     cfg.YoutubeClientID,
		ClientSecret: cfg.YoutubeClientSecret,
		RefreshToken: cfg.YoutubeRefreshToken,
	})
	h := handlers.New(store, scanner, spotify, youtube, cfg.BaseURL)

	if cfg.TelegramBotToken != "" {
		bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
		if err != nil {
			log.Printf("Telegram bot disabled: %v", err)
		} else {
			go h.StartTelegramBot(ctx, bot)
		}
	}

	auth := middleware.NewAuth(store, cfg.TelegramBotToken)
	limiter := middleware.NewUserRateLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newRouter(h, auth, limiter),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown: %v", err)
		}
	}()

	log.Printf("Starting server on :%s (commit: %s)", cfg.Port, CommitSHA)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}

func newRouter(h *handlers.Handlers, auth *middleware.Auth, limiter *middleware.UserRateLimiter) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	r.HandleFunc("/rss/{uuid}", h.GetRSSFeed).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(auth.Middleware, limiter.Middleware)
	api.HandleFunc("/scan", h.PostScan).Methods(http.MethodPost)
	api.HandleFunc("/config", h.GetConfig).Methods(http.MethodGet)
	api.HandleFunc("/config", h.PutConfig).Methods(http.MethodPut)
	api.HandleFunc("/config/test-source", h.PostTestSource).Methods(http.MethodPost)
	api.HandleFunc("/config/test-publish", h.PostTestPublish).Methods(http.MethodPost)
	api.HandleFunc("/jobs", h.GetJobs).Methods(http.MethodGet)
	return r
}
