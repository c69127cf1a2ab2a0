package db

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	"pod2tube/internal/models"
)

const configColumns = `id, user_id, spotify_podcast_id, youtube_channel_id, video_width, video_height,
	video_bitrate, logo_url, check_interval, last_check, created_at, updated_at`

// GetConfig returns the configuration with the given id with defaults applied.
func (s *Store) GetConfig(ctx context.Context, id int64) (*models.PodcastConfig, error) {
	cfg := &models.PodcastConfig{}
	err := s.db.GetContext(ctx, cfg, s.db.Rebind("SELECT "+configColumns+" FROM podcast_configs WHERE id = ?"), id)
	if err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// GetConfigByUserID returns the configuration owned by userID.
func (s *Store) GetConfigByUserID(ctx context.Context, userID int64) (*models.PodcastConfig, error) {
	cfg := &models.PodcastConfig{}
	err := s.db.GetContext(ctx, cfg, s.db.Rebind("SELECT "+configColumns+" FROM podcast_configs WHERE user_id = ?"), userID)
	if err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// ListConfigs returns every configuration ordered by id.
func (s *Store) ListConfigs(ctx context.Context) ([]models.PodcastConfig, error) {
	var configs []models.PodcastConfig
	err := s.db.SelectContext(ctx, &configs, "SELECT "+configColumns+" FROM podcast_configs ORDER BY id")
	if err != nil {
		log.Printf("Error listing podcast configs: %v", err)
		return nil, err
	}
	for i := range configs {
		configs[i].ApplyDefaults()
	}
	return configs, nil
}

// UpsertConfig creates or replaces the configuration of cfg.UserID. The
// stored last_check is left untouched.
func (s *Store) UpsertConfig(ctx context.Context, cfg *models.PodcastConfig) (*models.PodcastConfig, error) {
	cfg.ApplyDefaults()
	query := `
		INSERT INTO podcast_configs (user_id, spotify_podcast_id, youtube_channel_id, video_width, video_height,
			video_bitrate, logo_url, check_interval, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			spotify_podcast_id = excluded.spotify_podcast_id,
			youtube_channel_id = excluded.youtube_channel_id,
			video_width = excluded.video_width,
			video_height = excluded.video_height,
			video_bitrate = excluded.video_bitrate,
			logo_url = excluded.logo_url,
			check_interval = excluded.check_interval,
			updated_at = excluded.updated_at
		RETURNING ` + configColumns

	now := s.now()
	saved := &models.PodcastConfig{}
	err := s.RunInTx(ctx, func(tx *sqlx.Tx) error {
		return tx.GetContext(ctx, saved, tx.Rebind(query),
			cfg.UserID, cfg.SpotifyPodcastID, cfg.YoutubeChannelID, cfg.VideoWidth, cfg.VideoHeight,
			cfg.VideoBitrate, cfg.LogoURL, cfg.CheckInterval, now, now)
	})
	if err != nil {
		log.Printf("Error saving podcast config for user %d: %v", cfg.UserID, err)
		return nil, err
	}
	return saved, nil
}

// TouchLastCheck stamps the start of a scan.
func (s *Store) TouchLastCheck(ctx context.Context, id int64, at time.Time) error {
	return s.RunInTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, tx.Rebind("UPDATE podcast_configs SET last_check = ? WHERE id = ?"), at, id)
		if err != nil {
			return fmt.Errorf("update last_check for config %d: %w", id, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("update last_check for config %d: no such config", id)
		}
		return nil
	})
}

// AcquireScanLease marks a scan of configuration id as started at now. It
// reports false while another scan holds a lease taken less than ttl ago.
func (s *Store) AcquireScanLease(ctx context.Context, id int64, now time.Time, ttl time.Duration) (bool, error) {
	now = leaseTime(now)
	acquired := false
	err := s.RunInTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE podcast_configs SET scan_started_at = ?
			WHERE id = ? AND (scan_started_at IS NULL OR scan_started_at < ?)`),
			now, id, now.Add(-ttl))
		if err != nil {
			return fmt.Errorf("acquire scan lease for config %d: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("acquire scan lease for config %d: %w", id, err)
		}
		acquired = n == 1
		return nil
	})
	return acquired, err
}

// ReleaseScanLease ends the scan that acquired its lease at startedAt. A lease
// taken over by another scan in the meantime is left alone.
func (s *Store) ReleaseScanLease(ctx context.Context, id int64, startedAt time.Time) error {
	return s.RunInTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, tx.Rebind("UPDATE podcast_configs SET scan_started_at = NULL WHERE id = ? AND scan_started_at = ?"),
			id, leaseTime(startedAt))
		if err != nil {
			return fmt.Errorf("release scan lease for config %d: %w", id, err)
		}
		return nil
	})
}

// leaseTime matches the precision PostgreSQL stores, so a released lease
// compares equal to the acquired one.
func leaseTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
