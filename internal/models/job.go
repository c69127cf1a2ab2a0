package models

import (
	"fmt"
	"time"
)

// JobStatus is the state of a conversion job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed:
		return true
	case JobStatusPending, JobStatusProcessing:
		return false
	default:
		return false
	}
}

// CanTransitionTo reports whether a job in status s may move to next.
// A processing job may stay processing while the pipeline records
// intermediate results such as the resolved audio URL or the video path.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusPending:
		return next == JobStatusProcessing
	case JobStatusProcessing:
		return next == JobStatusProcessing || next == JobStatusCompleted || next == JobStatusFailed
	case JobStatusCompleted, JobStatusFailed:
		return false
	default:
		return false
	}
}

// Valid reports whether s is one of the known statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	default:
		return false
	}
}

// ConversionJob is one attempt to convert and publish a single episode.
type ConversionJob struct {
	ID              int64      `db:"id" json:"id"`
	UserID          int64      `db:"user_id" json:"user_id"`
	ConfigID        int64      `db:"config_id" json:"config_id"`
	EpisodeID       string     `db:"episode_id" json:"episode_id"`
	Status          JobStatus  `db:"status" json:"status"`
	EpisodeTitle    string     `db:"episode_title" json:"episode_title"`
	AudioURL        string     `db:"audio_url" json:"audio_url"`
	VideoPath       string     `db:"video_path" json:"-"`
	YoutubeVideoID  string     `db:"youtube_video_id" json:"youtube_video_id,omitempty"`
	YoutubeVideoURL string     `db:"youtube_video_url" json:"youtube_video_url,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	StartedAt       *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt     *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	ErrorMessage    string     `db:"error_message" json:"error_message,omitempty"`
}

// Validate checks the field invariants that must hold for the job's status.
func (j *ConversionJob) Validate() error {
	if !j.Status.Valid() {
		return fmt.Errorf("job %d: unknown status %q", j.ID, j.Status)
	}
	if (j.Status == JobStatusFailed) != (j.ErrorMessage != "") {
		return fmt.Errorf("job %d: error message must be set exactly when status is %s", j.ID, JobStatusFailed)
	}
	if j.Status.Terminal() != (j.CompletedAt != nil) {
		return fmt.Errorf("job %d: completed_at must be set exactly when status is terminal", j.ID)
	}
	if j.Status != JobStatusPending && j.StartedAt == nil {
		return fmt.Errorf("job %d: started_at must be set once the job leaves %s", j.ID, JobStatusPending)
	}
	return nil
}

// Duration returns how long the job ran, or zero if it has not finished.
func (j *ConversionJob) Duration() time.Duration {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return 0
	}
	return j.CompletedAt.Sub(*j.StartedAt)
}
