package main

import (
	"context"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hibiken/asynq"
	"pod2tube/internal/config"
	"pod2tube/internal/converter"
	"pod2tube/internal/db"
	"pod2tube/internal/logging"
	"pod2tube/internal/notify"
	"pod2tube/internal/pipeline"
	"pod2tube/internal/publish"
	"pod2tube/internal/scheduler"
	"pod2tube/internal/source"
	"pod2tube/internal/worker"
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
	if err := store.Migrate(context.Background()); err != nil {
		log.Fatalf("could not migrate database: %v", err)
	}

	redis := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	client := asynq.NewClient(redis)
	defer client.Close()

	spotify := source.NewClient(source.Config{
		ClientID:          cfg.SpotifyClientID,
		ClientSecret:      cfg.SpotifyClientSecret,
		RequestsPerSecond: cfg.SpotifyRequestsPerSecond,
	})
	youtube := publish.NewClient(publish.Config{
		ClientID:     cfg.YoutubeClientID,
		ClientSecret: cfg.YoutubeClientSecret,
		RefreshToken: cfg.YoutubeRefreshToken,
	})
	conv, err := converter.New(cfg.FFmpegPath, cfg.TempDir, nil)
	if err != nil {
		log.Fatalf("could not create converter: %v", err)
	}

	var opts []pipeline.Option
	if cfg.TelegramBotToken != "" {
		bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
		if err != nil {
			log.Printf("Telegram notifications disabled: %v", err)
		} else {
			opts = append(opts, pipeline.WithNotifier(notify.NewTelegram(bot)))
		}
	}

	runner := pipeline.NewRunner(store, spotify, conv, youtube, opts...)
	scanner := scheduler.NewScanner(store, spotify, tasks.NewDispatcher(client))

	srv := asynq.NewServer(
		redis,
		asynq.Config{
			Concurrency: cfg.WorkerConcurrency,
			Queues: map[string]int{
				"default": 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	taskHandler := worker.NewTaskHandler(scanner, runner)

	mux.HandleFunc(tasks.TypeScanConfig, taskHandler.HandleScanConfigTask)
	mux.HandleFunc(tasks.TypeProcessJob, taskHandler.HandleProcessJobTask)

	log.Printf("Worker starting (commit: %s)", CommitSHA)
	if err := srv.Run(mux); err != nil {
		log.Fatalf("could not run server: %v", err)
	}
}
