package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"pod2tube/internal/config"
	"pod2tube/internal/db"
	"pod2tube/internal/logging"
	"pod2tube/internal/scheduler"
)

// CommitSHA is set at build time via ldflags
var CommitSHA = "unknown"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("could not load configuration: %v", err)
	}
	defer logging.Configure(cfg.LogFile).Close()

	lock, err := scheduler.AcquireInstanceLock(cfg.SchedulerLockFile)
	if err != nil {
		log.Fatalf("could not start scheduler: %v", err)
	}
	defer lock.Unlock()

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

	sched := asynq.NewScheduler(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		&asynq.SchedulerOpts{
			PostEnqueueFunc: func(info *asynq.TaskInfo, err error) {
				// A scan still queued or running holds the unique lock.
				if errors.Is(err, asynq.ErrDuplicateTask) {
					log.Printf("Skipping tick: previous scan still outstanding")
					return
				}
				if err != nil {
					log.Printf("could not enqueue scan: %v", err)
				}
			},
		},
	)
	manager := scheduler.NewManager(sched)

	log.Printf("Scheduler starting (commit: %s)", CommitSHA)
	if err := sched.Start(); err != nil {
		log.Fatalf("could not run scheduler: %v", err)
	}

	manager.Run(ctx, store, cfg.SchedulerSyncInterval)

	log.Println("Scheduler shutting down")
	sched.Shutdown()
}
