// Package pipeline runs one conversion job from download to upload.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"pod2tube/internal/converter"
	"pod2tube/internal/models"
	"pod2tube/internal/publish"
	"pod2tube/internal/source"
)

const (
	placeholderImageURL = "https://via.placeholder.com/%dx%d.png?text=Podcast+Episode"
	showURLPrefix       = "https://open.spotify.com/show/"
	privacyPublic       = "public"
)

var videoTags = []string{"podcast", "audio"}

var errNotPending = errors.New("job is not pending")

// JobStore is the part of the ledger the runner needs.
type JobStore interface {
	LoadJob(ctx context.Context, id int64) (*models.ConversionJob, error)
	UpdateJob(ctx context.Context, id int64, mutate func(job *models.ConversionJob) error) (*models.ConversionJob, error)
	GetConfig(ctx context.Context, id int64) (*models.PodcastConfig, error)
}

// EpisodeSource resolves episode details.
type EpisodeSource interface {
	GetEpisode(ctx context.Context, episodeID string) (*source.Episode, error)
}

// MediaConverter produces the video file.
type MediaConverter interface {
	ProcessEpisode(ctx context.Context, req converter.Request) (converter.Result, error)
	Cleanup(paths ...string)
}

// Publisher uploads the video.
type Publisher interface {
	Upload(ctx context.Context, v publish.Video) (*publish.Result, error)
}

// Notifier is told about every job that reaches a terminal status.
type Notifier interface {
	JobFinished(ctx context.Context, job *models.ConversionJob)
}

// Runner executes conversion jobs.
type Runner struct {
	store     JobStore
	source    EpisodeSource
	converter MediaConverter
	publisher Publisher
	notifier  Notifier
	now       func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithClock overrides the clock used for job timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// WithNotifier reports finished jobs to n.
func WithNotifier(n Notifier) Option {
	return func(r *Runner) { r.notifier = n }
}

func NewRunner(store JobStore, src EpisodeSource, conv MediaConverter, pub Publisher, opts ...Option) *Runner {
	r := &Runner{
		store:     store,
		source:    src,
		converter: conv,
		publisher: pub,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run processes the job with the given id. Pipeline failures are recorded on
// the job and are not returned; the error is reserved for ledger problems.
// Jobs that are no longer pending are left untouched.
func (r *Runner) Run(ctx context.Context, jobID int64) (*models.ConversionJob, error) {
	job, err := r.store.UpdateJob(ctx, jobID, func(j *models.ConversionJob) error {
		if j.Status != models.JobStatusPending {
			return errNotPending
		}
		now := r.now()
		j.Status = models.JobStatusProcessing
		j.StartedAt = &now
		return nil
	})
	if errors.Is(err, errNotPending) {
		log.Printf("Job %d is not pending, skipping", jobID)
		return r.store.LoadJob(ctx, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("start job %d: %w", jobID, err)
	}

	log.Printf("Processing job %d for episode %s", job.ID, job.EpisodeID)

	var produced converter.Result
	runErr := r.execute(ctx, job, &produced)
	r.converter.Cleanup(produced.Paths()...)

	if runErr != nil {
		log.Printf("Job %d failed: %v", jobID, runErr)
		job, err = r.fail(ctx, jobID, runErr)
		if err != nil {
			return nil, err
		}
	} else {
		job, err = r.store.LoadJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		log.Printf("Job %d completed: %s", jobID, job.YoutubeVideoURL)
	}

	if r.notifier != nil {
		r.notifier.JobFinished(ctx, job)
	}
	return job, nil
}

func (r *Runner) execute(ctx context.Context, job *models.ConversionJob, produced *converter.Result) error {
	cfg, err := r.store.GetConfig(ctx, job.ConfigID)
	if err != nil {
		return fmt.Errorf("no podcast configuration %d: %w", job.ConfigID, err)
	}

	if job.AudioURL == "" {
		episode, err := r.source.GetEpisode(ctx, job.EpisodeID)
		if err != nil {
			return fmt.Errorf("fetch episode %s: %w", job.EpisodeID, err)
		}
		if episode.AudioPreviewURL == "" {
			return ErrMissingAudio
		}
		job, err = r.store.UpdateJob(ctx, job.ID, func(j *models.ConversionJob) error {
			j.AudioURL = episode.AudioPreviewURL
			if j.EpisodeTitle == "" {
				j.EpisodeTitle = episode.Name
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	imageURL := cfg.LogoURL
	if imageURL == "" {
		imageURL = fmt.Sprintf(placeholderImageURL, cfg.VideoWidth, cfg.VideoHeight)
	}

	*produced, err = r.converter.ProcessEpisode(ctx, converter.Request{
		AudioURL: job.AudioURL,
		ImageURL: imageURL,
		Title:    job.EpisodeTitle,
		Width:    cfg.VideoWidth,
		Height:   cfg.VideoHeight,
		Bitrate:  cfg.VideoBitrate,
	})
	if err != nil {
		return &ConversionError{Err: err}
	}

	videoPath := produced.VideoPath
	job, err = r.store.UpdateJob(ctx, job.ID, func(j *models.ConversionJob) error {
		j.VideoPath = videoPath
		return nil
	})
	if err != nil {
		return err
	}

	uploaded, err := r.publisher.Upload(ctx, publish.Video{
		Path:          videoPath,
		Title:         job.EpisodeTitle,
		Description:   "Listen to the full podcast at " + showURLPrefix + cfg.SpotifyPodcastID,
		Tags:          videoTags,
		CategoryID:    publish.DefaultCategoryID,
		PrivacyStatus: privacyPublic,
	})
	if err != nil {
		return &PublishError{Err: err}
	}

	_, err = r.store.UpdateJob(ctx, job.ID, func(j *models.ConversionJob) error {
		now := r.now()
		j.Status = models.JobStatusCompleted
		j.YoutubeVideoID = uploaded.ID
		j.YoutubeVideoURL = uploaded.URL
		j.CompletedAt = &now
		return nil
	})
	return err
}

func (r *Runner) fail(ctx context.Context, jobID int64, cause error) (*models.ConversionJob, error) {
	msg := cause.Error()
	if msg == "" {
		msg = "unknown error"
	}
	job, err := r.store.UpdateJob(ctx, jobID, func(j *models.ConversionJob) error {
		now := r.now()
		j.Status = models.JobStatusFailed
		j.ErrorMessage = msg
		j.CompletedAt = &now
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("mark job %d failed: %w", jobID, err)
	}
	return job, nil
}
