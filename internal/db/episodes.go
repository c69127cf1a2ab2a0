package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"pod2tube/internal/models"
)

const insertProcessedEpisode = `
	INSERT INTO processed_episodes (config_id, episode_id, episode_title, episode_url, processed_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT (config_id, episode_id) DO NOTHING
	RETURNING id`

// IsProcessed reports whether episodeID has already been seen for configID.
func (s *Store) IsProcessed(ctx context.Context, configID int64, episodeID string) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		s.db.Rebind("SELECT COUNT(*) FROM processed_episodes WHERE config_id = ? AND episode_id = ?"),
		configID, episodeID)
	if err != nil {
		return false, fmt.Errorf("check processed episode %s: %w", episodeID, err)
	}
	return count > 0, nil
}

// RecordProcessed adds ep to the dedup set. It reports false when the
// (config, episode) pair was already present.
func (s *Store) RecordProcessed(ctx context.Context, ep models.ProcessedEpisode) (bool, error) {
	var inserted bool
	err := s.RunInTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		inserted, err = s.recordProcessed(ctx, tx, ep)
		return err
	})
	return inserted, err
}

func (s *Store) recordProcessed(ctx context.Context, tx *sqlx.Tx, ep models.ProcessedEpisode) (bool, error) {
	if ep.ProcessedAt.IsZero() {
		ep.ProcessedAt = s.now()
	}
	var id int64
	err := tx.GetContext(ctx, &id, tx.Rebind(insertProcessedEpisode),
		ep.ConfigID, ep.EpisodeID, ep.EpisodeTitle, ep.EpisodeURL, ep.ProcessedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("record processed episode %s: %w", ep.EpisodeID, err)
	}
	return true, nil
}

// ClaimEpisode records ep as processed and creates job in the same
// transaction. When another scan already claimed the episode nothing is
// written and claimed is false.
func (s *Store) ClaimEpisode(ctx context.Context, ep models.ProcessedEpisode, job models.ConversionJob) (jobID int64, claimed bool, err error) {
	err = s.RunInTx(ctx, func(tx *sqlx.Tx) error {
		inserted, err := s.recordProcessed(ctx, tx, ep)
		if err != nil || !inserted {
			return err
		}
		jobID, err = s.insertJob(ctx, tx, job)
		if err != nil {
			return err
		}
		claimed = true
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return jobID, claimed, nil
}
