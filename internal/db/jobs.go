package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"pod2tube/internal/models"
)

// ErrInvalidTransition is returned by UpdateJob when a mutation would move a
// job backwards in its state machine.
var ErrInvalidTransition = errors.New("invalid job status transition")

const jobColumns = `id, user_id, config_id, episode_id, status, episode_title, audio_url, video_path,
	youtube_video_id, youtube_video_url, created_at, started_at, completed_at, error_message`

// CreateJob inserts a pending job and returns its id.
func (s *Store) CreateJob(ctx context.Context, job models.ConversionJob) (int64, error) {
	var id int64
	err := s.RunInTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		id, err = s.insertJob(ctx, tx, job)
		return err
	})
	return id, err
}

func (s *Store) insertJob(ctx context.Context, tx *sqlx.Tx, job models.ConversionJob) (int64, error) {
	if job.CreatedAt.IsZero() {
		job.CreatedAt = s.now()
	}
	job.Status = models.JobStatusPending
	query := `
		INSERT INTO conversion_jobs (user_id, config_id, episode_id, status, episode_title, audio_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`
	var id int64
	err := tx.GetContext(ctx, &id, tx.Rebind(query),
		job.UserID, job.ConfigID, job.EpisodeID, job.Status, job.EpisodeTitle, job.AudioURL, job.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("create job for episode %s: %w", job.EpisodeID, err)
	}
	return id, nil
}

// LoadJob returns the job with the given id.
func (s *Store) LoadJob(ctx context.Context, id int64) (*models.ConversionJob, error) {
	job := &models.ConversionJob{}
	err := s.db.GetContext(ctx, job, s.db.Rebind("SELECT "+jobColumns+" FROM conversion_jobs WHERE id = ?"), id)
	if err != nil {
		return nil, err
	}
	return job, nil
}

// UpdateJob applies mutate to the job inside one transaction. The row is
// locked while the mutation runs, the resulting status must be reachable
// from the stored one and the job's invariants must hold, otherwise nothing
// is written. Identity fields cannot be changed by mutate.
func (s *Store) UpdateJob(ctx context.Context, id int64, mutate func(job *models.ConversionJob) error) (*models.ConversionJob, error) {
	var updated models.ConversionJob
	err := s.RunInTx(ctx, func(tx *sqlx.Tx) error {
		var current models.ConversionJob
		query := "SELECT " + jobColumns + " FROM conversion_jobs WHERE id = ?" + s.lockClause()
		if err := tx.GetContext(ctx, &current, tx.Rebind(query), id); err != nil {
			return fmt.Errorf("load job %d: %w", id, err)
		}

		next := current
		if err := mutate(&next); err != nil {
			return err
		}
		next.ID = current.ID
		next.UserID = current.UserID
		next.ConfigID = current.ConfigID
		next.EpisodeID = current.EpisodeID
		next.CreatedAt = current.CreatedAt

		if !current.Status.CanTransitionTo(next.Status) {
			return fmt.Errorf("job %d: %s -> %s: %w", id, current.Status, next.Status, ErrInvalidTransition)
		}
		if err := next.Validate(); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx, tx.Rebind(`
			UPDATE conversion_jobs
			SET status = ?, episode_title = ?, audio_url = ?, video_path = ?, youtube_video_id = ?,
				youtube_video_url = ?, started_at = ?, completed_at = ?, error_message = ?
			WHERE id = ?`),
			next.Status, next.EpisodeTitle, next.AudioURL, next.VideoPath, next.YoutubeVideoID,
			next.YoutubeVideoURL, next.StartedAt, next.CompletedAt, next.ErrorMessage, id)
		if err != nil {
			return fmt.Errorf("update job %d: %w", id, err)
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// ListJobsByUserID returns the most recent jobs of a user, optionally
// restricted to one status.
func (s *Store) ListJobsByUserID(ctx context.Context, userID int64, status models.JobStatus, limit int) ([]models.ConversionJob, error) {
	query := "SELECT " + jobColumns + " FROM conversion_jobs WHERE user_id = ?"
	args := []interface{}{userID}
	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	var jobs []models.ConversionJob
	if err := s.db.SelectContext(ctx, &jobs, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list jobs for user %d: %w", userID, err)
	}
	return jobs, nil
}
