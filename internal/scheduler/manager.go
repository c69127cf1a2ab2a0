package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"pod2tube/internal/models"
	"pod2tube/pkg/tasks"
)

// Registrar registers cron entries. It's implemented by asynq.Scheduler.
type Registrar interface {
	Register(cronspec string, task *asynq.Task, opts ...asynq.Option) (string, error)
	Unregister(entryID string) error
}

// ConfigLister lists every configuration.
type ConfigLister interface {
	ListConfigs(ctx context.Context) ([]models.PodcastConfig, error)
}

type entry struct {
	id       string
	interval time.Duration
}

// Manager owns the recurring scan entry of each configuration.
type Manager struct {
	registrar Registrar
	logger    *log.Logger

	mu      sync.Mutex
	entries map[int64]entry
}

// NewManager logs to the standard logger's output, so logging must be
// configured before it is called.
func NewManager(registrar Registrar) *Manager {
	return &Manager{
		registrar: registrar,
		logger:    log.New(log.Writer(), "[scheduler] ", log.LstdFlags),
		entries:   make(map[int64]entry),
	}
}

// ScheduleRecurring registers a scan of cfg every cfg.CheckInterval minutes,
// replacing any entry already registered for the configuration.
func (m *Manager) ScheduleRecurring(cfg models.PodcastConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.schedule(cfg)
}

func (m *Manager) schedule(cfg models.PodcastConfig) error {
	interval := cfg.Interval()
	task, err := tasks.NewScanConfigTask(cfg.ID)
	if err != nil {
		return fmt.Errorf("could not create scan task: %w", err)
	}

	// The new entry is registered before the old one is removed, so a failed
	// registration leaves the previous trigger in place.
	cronspec := fmt.Sprintf("@every %dm", int(interval/time.Minute))
	id, err := m.registrar.Register(cronspec, task, asynq.Unique(uniqueTTL(interval)), asynq.MaxRetry(0))
	if err != nil {
		return fmt.Errorf("could not register scan of configuration %d: %w", cfg.ID, err)
	}
	if old, ok := m.entries[cfg.ID]; ok {
		if err := m.registrar.Unregister(old.id); err != nil {
			if rerr := m.registrar.Unregister(id); rerr != nil {
				m.logger.Printf("Could not roll back entry %s of configuration %d: %v", id, cfg.ID, rerr)
			}
			return fmt.Errorf("could not unregister scan of configuration %d: %w", cfg.ID, err)
		}
	}
	m.entries[cfg.ID] = entry{id: id, interval: interval}
	m.logger.Printf("Scheduled scan of configuration %d %s", cfg.ID, cronspec)
	return nil
}

// uniqueTTL keeps a scan task unique for slightly less than one interval.
// A failed scan is archived without releasing its uniqueness lock, and a lock
// living a full interval would swallow the next tick.
func uniqueTTL(interval time.Duration) time.Duration {
	ttl := interval - time.Minute
	if ttl < interval/2 {
		ttl = interval / 2
	}
	return ttl
}

// Cancel removes the recurring scan of a configuration, if any.
func (m *Manager) Cancel(configID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel(configID)
}

func (m *Manager) cancel(configID int64) error {
	e, ok := m.entries[configID]
	if !ok {
		return nil
	}
	if err := m.registrar.Unregister(e.id); err != nil {
		return fmt.Errorf("could not unregister scan of configuration %d: %w", configID, err)
	}
	delete(m.entries, configID)
	m.logger.Printf("Cancelled scan of configuration %d", configID)
	return nil
}

// Sync makes the registered entries match configs. Entries whose interval
// is unchanged are kept so their cadence is not reset.
func (m *Manager) Sync(configs []models.PodcastConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[int64]bool, len(configs))
	var firstErr error
	for _, cfg := range configs {
		if cfg.SpotifyPodcastID == "" {
			continue
		}
		seen[cfg.ID] = true
		if e, ok := m.entries[cfg.ID]; ok && e.interval == cfg.Interval() {
			continue
		}
		if err := m.schedule(cfg); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for id := range m.entries {
		if seen[id] {
			continue
		}
		if err := m.cancel(id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Scheduled returns the interval of every registered scan by configuration id.
func (m *Manager) Scheduled() map[int64]time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int64]time.Duration, len(m.entries))
	for id, e := range m.entries {
		out[id] = e.interval
	}
	return out
}

// Run syncs with the stored configurations now and then every interval
// until ctx is done.
func (m *Manager) Run(ctx context.Context, lister ConfigLister, every time.Duration) {
	m.resync(ctx, lister)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.resync(ctx, lister)
		}
	}
}

func (m *Manager) resync(ctx context.Context, lister ConfigLister) {
	configs, err := lister.ListConfigs(ctx)
	if err != nil {
		m.logger.Printf("Failed to list configurations: %v", err)
		return
	}
	if err := m.Sync(configs); err != nil {
		m.logger.Printf("Failed to sync scheduled scans: %v", err)
	}
}
