// Package scheduler discovers new podcast episodes and keeps one recurring
// scan registered per configuration.
package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"pod2tube/internal/models"
	"pod2tube/internal/source"
)

// DefaultPageSize is the number of most recent episodes fetched per scan.
const DefaultPageSize = 10

const (
	// DefaultLeaseTTL bounds how long a crashed scan blocks the next one.
	DefaultLeaseTTL = 15 * time.Minute
	// DefaultLeaseWait is how long a scan waits for a running scan of the
	// same configuration before giving up.
	DefaultLeaseWait = time.Minute

	leasePoll = 200 * time.Millisecond
)

// ConfigurationError means a configuration cannot be scanned.
type ConfigurationError struct {
	ConfigID int64
	Reason   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration %d: %s", e.ConfigID, e.Reason)
}

// ScanStore is the part of the ledger a scan needs.
type ScanStore interface {
	GetConfig(ctx context.Context, id int64) (*models.PodcastConfig, error)
	TouchLastCheck(ctx context.Context, id int64, at time.Time) error
	IsProcessed(ctx context.Context, configID int64, episodeID string) (bool, error)
	ClaimEpisode(ctx context.Context, ep models.ProcessedEpisode, job models.ConversionJob) (int64, bool, error)
	AcquireScanLease(ctx context.Context, id int64, now time.Time, ttl time.Duration) (bool, error)
	ReleaseScanLease(ctx context.Context, id int64, startedAt time.Time) error
}

// EpisodeLister lists the most recent episodes of a show.
type EpisodeLister interface {
	ListEpisodes(ctx context.Context, showID string, limit int) ([]source.Episode, error)
}

// JobDispatcher starts a job without waiting for it.
type JobDispatcher interface {
	DispatchJob(ctx context.Context, jobID int64) error
}

// Scanner runs discovery scans. Scans of one configuration never overlap:
// scanners in one process queue on a mutex, and scanners in different
// processes on a lease held in the ledger.
type Scanner struct {
	store      ScanStore
	source     EpisodeLister
	dispatcher JobDispatcher
	pageSize   int
	now        func() time.Time
	leaseTTL   time.Duration
	leaseWait  time.Duration

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func NewScanner(store ScanStore, src EpisodeLister, dispatcher JobDispatcher) *Scanner {
	return &Scanner{
		store:      store,
		source:     src,
		dispatcher: dispatcher,
		pageSize:   DefaultPageSize,
		now:        func() time.Time { return time.Now().UTC() },
		leaseTTL:   DefaultLeaseTTL,
		leaseWait:  DefaultLeaseWait,
		locks:      make(map[int64]*sync.Mutex),
	}
}

// SetClock overrides the clock used to stamp last_check.
func (s *Scanner) SetClock(now func() time.Time) {
	s.now = now
}

// SetLeaseTimeouts overrides how long a scan lease lives and how long a scan
// waits for one.
func (s *Scanner) SetLeaseTimeouts(ttl, wait time.Duration) {
	s.leaseTTL = ttl
	s.leaseWait = wait
}

// RunScan discovers new episodes of a configuration, creates a pending job
// for each and dispatches it. It returns the number of jobs dispatched.
// Configurations that cannot be scanned are logged and yield 0 without an
// error. last_check is stamped before the source is asked, so a failing
// source is not retried before the next interval.
func (s *Scanner) RunScan(ctx context.Context, configID int64) (int, error) {
	unlock := s.lock(configID)
	defer unlock()

	cfg, err := s.store.GetConfig(ctx, configID)
	if errors.Is(err, sql.ErrNoRows) {
		log.Printf("Skipping scan: %v", &ConfigurationError{ConfigID: configID, Reason: "not found"})
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load configuration %d: %w", configID, err)
	}
	if cfg.SpotifyPodcastID == "" {
		log.Printf("Skipping scan: %v", &ConfigurationError{ConfigID: configID, Reason: "no Spotify podcast id"})
		return 0, nil
	}

	started, ok, err := s.acquireLease(ctx, cfg.ID)
	if err != nil {
		return 0, fmt.Errorf("acquire scan lease of configuration %d: %w", cfg.ID, err)
	}
	if !ok {
		log.Printf("Skipping scan of configuration %d: another scan is still running", cfg.ID)
		return 0, nil
	}
	defer s.releaseLease(ctx, cfg.ID, started)

	if err := s.store.TouchLastCheck(ctx, cfg.ID, s.now()); err != nil {
		return 0, fmt.Errorf("stamp last check of configuration %d: %w", cfg.ID, err)
	}

	log.Printf("Checking podcast %s for configuration %d", cfg.SpotifyPodcastID, cfg.ID)
	episodes, err := s.source.ListEpisodes(ctx, cfg.SpotifyPodcastID, s.pageSize)
	if err != nil {
		return 0, fmt.Errorf("fetch episodes of %s: %w", cfg.SpotifyPodcastID, err)
	}

	dispatched := 0
	for _, ep := range episodes {
		processed, err := s.store.IsProcessed(ctx, cfg.ID, ep.ID)
		if err != nil {
			return dispatched, err
		}
		if processed {
			continue
		}

		jobID, claimed, err := s.store.ClaimEpisode(ctx,
			models.ProcessedEpisode{
				ConfigID:     cfg.ID,
				EpisodeID:    ep.ID,
				EpisodeTitle: ep.Name,
				EpisodeURL:   ep.ExternalURLs.Spotify,
			},
			models.ConversionJob{
				UserID:       cfg.UserID,
				ConfigID:     cfg.ID,
				EpisodeID:    ep.ID,
				EpisodeTitle: ep.Name,
				AudioURL:     ep.AudioPreviewURL,
			})
		if err != nil {
			return dispatched, err
		}
		if !claimed {
			continue
		}

		log.Printf("New episode %q (%s): created job %d", ep.Name, ep.ID, jobID)
		if err := s.dispatcher.DispatchJob(ctx, jobID); err != nil {
			log.Printf("Failed to dispatch job %d: %v", jobID, err)
			continue
		}
		dispatched++
	}

	log.Printf("Scan of configuration %d dispatched %d new episodes", cfg.ID, dispatched)
	return dispatched, nil
}

func (s *Scanner) lock(configID int64) func() {
	s.mu.Lock()
	l, ok := s.locks[configID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[configID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// acquireLease polls for the configuration's scan lease until it is granted
// or leaseWait has passed.
func (s *Scanner) acquireLease(ctx context.Context, configID int64) (time.Time, bool, error) {
	deadline := time.Now().Add(s.leaseWait)
	for {
		started := s.now()
		ok, err := s.store.AcquireScanLease(ctx, configID, started, s.leaseTTL)
		if err != nil || ok {
			return started, ok, err
		}
		if !time.Now().Before(deadline) {
			return time.Time{}, false, nil
		}
		select {
		case <-ctx.Done():
			return time.Time{}, false, ctx.Err()
		case <-time.After(leasePoll):
		}
	}
}

func (s *Scanner) releaseLease(ctx context.Context, configID int64, started time.Time) {
	if err := s.store.ReleaseScanLease(context.WithoutCancel(ctx), configID, started); err != nil {
		log.Printf("Failed to release scan lease of configuration %d: %v", configID, err)
	}
}
