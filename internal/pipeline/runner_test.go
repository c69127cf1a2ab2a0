package pipeline_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pod2tube/internal/db"
	"pod2tube/internal/models"
	"pod2tube/internal/pipeline"
	"pod2tube/internal/source"
	"pod2tube/internal/test"
)

type fixture struct {
	store     *db.Store
	cfg       *models.PodcastConfig
	source    *test.FakeSource
	converter *test.FakeConverter
	publisher *test.FakePublisher
	notifier  *test.RecordingNotifier
	runner    *pipeline.Runner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:     test.NewSQLiteStore(t, db.WithClock(test.FixedClock())),
		source:    &test.FakeSource{},
		converter: &test.FakeConverter{},
		publisher: &test.FakePublisher{},
		notifier:  &test.RecordingNotifier{},
	}
	f.cfg = test.SeedConfig(t, f.store, 1, "abc")
	f.runner = pipeline.NewRunner(f.store, f.source, f.converter, f.publisher,
		pipeline.WithClock(test.FixedClock()),
		pipeline.WithNotifier(f.notifier))
	return f
}

func (f *fixture) createJob(t *testing.T, episodeID, audioURL string) int64 {
	t.Helper()
	id, err := f.store.CreateJob(context.Background(), models.ConversionJob{
		UserID:       f.cfg.UserID,
		ConfigID:     f.cfg.ID,
		EpisodeID:    episodeID,
		EpisodeTitle: "Ep1",
		AudioURL:     audioURL,
	})
	require.NoError(t, err)
	return id
}

func TestRunCompletesJob(t *testing.T) {
	f := newFixture(t)
	jobID := f.createJob(t, "e1", "http://a/1.mp3")

	job, err := f.runner.Run(context.Background(), jobID)
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, "vid1", job.YoutubeVideoID)
	assert.Equal(t, "https://www.youtube.com/watch?v=vid1", job.YoutubeVideoURL)
	assert.Equal(t, "/tmp/video.mp4", job.VideoPath)
	require.NotNil(t, job.StartedAt)
	require.NotNil(t, job.CompletedAt)
	assert.Empty(t, job.ErrorMessage)
	assert.NoError(t, job.Validate())

	// Conversion request
	require.Len(t, f.converter.Requests, 1)
	req := f.converter.Requests[0]
	assert.Equal(t, "http://a/1.mp3", req.AudioURL)
	assert.Equal(t, "https://via.placeholder.com/1280x720.png?text=Podcast+Episode", req.ImageURL)
	assert.Equal(t, "Ep1", req.Title)
	assert.Equal(t, 1280, req.Width)
	assert.Equal(t, 720, req.Height)
	assert.Equal(t, "1M", req.Bitrate)

	// Upload metadata
	require.Len(t, f.publisher.Uploads, 1)
	up := f.publisher.Uploads[0]
	assert.Equal(t, "Ep1", up.Title)
	assert.Equal(t, "Listen to the full podcast at https://open.spotify.com/show/abc", up.Description)
	assert.Equal(t, []string{"podcast", "audio"}, up.Tags)
	assert.Equal(t, "22", up.CategoryID)
	assert.Equal(t, "public", up.PrivacyStatus)

	assert.ElementsMatch(t, []string{"/tmp/audio.mp3", "/tmp/image.jpg", "/tmp/video.mp4"}, f.converter.Cleaned)
	require.Len(t, f.notifier.Jobs, 1)
	assert.Equal(t, models.JobStatusCompleted, f.notifier.Jobs[0].Status)
}

func TestRunUsesLogoURL(t *testing.T) {
	f := newFixture(t)
	f.cfg.LogoURL = "http://img/logo.png"
	_, err := f.store.UpsertConfig(context.Background(), f.cfg)
	require.NoError(t, err)
	jobID := f.createJob(t, "e1", "http://a/1.mp3")

	_, err = f.runner.Run(context.Background(), jobID)
	require.NoError(t, err)
	require.Len(t, f.converter.Requests, 1)
	assert.Equal(t, "http://img/logo.png", f.converter.Requests[0].ImageURL)
}

func TestRunResolvesMissingAudioURL(t *testing.T) {
	f := newFixture(t)
	f.source.Details = map[string]source.Episode{
		"e1": {ID: "e1", Name: "Ep1", AudioPreviewURL: "http://a/resolved.mp3"},
	}
	jobID := f.createJob(t, "e1", "")

	job, err := f.runner.Run(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, "http://a/resolved.mp3", job.AudioURL)
	assert.Equal(t, "http://a/resolved.mp3", f.converter.Requests[0].AudioURL)
}

func TestRunMissingAudioFailsJob(t *testing.T) {
	f := newFixture(t)
	f.source.Details = map[string]source.Episode{"e1": {ID: "e1", Name: "Ep1"}}
	jobID := f.createJob(t, "e1", "")

	job, err := f.runner.Run(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Equal(t, pipeline.ErrMissingAudio.Error(), job.ErrorMessage)
	assert.NotNil(t, job.CompletedAt)
	assert.Empty(t, f.converter.Requests)
	assert.Empty(t, f.converter.Cleaned)
	require.Len(t, f.notifier.Jobs, 1)
	assert.Equal(t, models.JobStatusFailed, f.notifier.Jobs[0].Status)
}

func TestRunConversionFailureCleansOnlyProducedFiles(t *testing.T) {
	tests := []struct {
		failAt  string
		cleaned []string
	}{
		{"audio", nil},
		{"image", []string{"/tmp/audio.mp3"}},
		{"transcode", []string{"/tmp/audio.mp3", "/tmp/image.jpg"}},
	}
	for _, tt := range tests {
		t.Run(tt.failAt, func(t *testing.T) {
			f := newFixture(t)
			f.converter.FailAt = tt.failAt
			jobID := f.createJob(t, "e1", "http://a/1.mp3")

			job, err := f.runner.Run(context.Background(), jobID)
			require.NoError(t, err)
			assert.Equal(t, models.JobStatusFailed, job.Status)
			assert.Contains(t, job.ErrorMessage, "conversion failed")
			assert.NotNil(t, job.CompletedAt)
			assert.Empty(t, job.VideoPath)
			assert.Equal(t, tt.cleaned, f.converter.Cleaned)
			assert.Empty(t, f.publisher.Uploads)
		})
	}
}

func TestRunPublishFailureKeepsVideoPath(t *testing.T) {
	f := newFixture(t)
	f.publisher.Err = errors.New("quota exceeded")
	jobID := f.createJob(t, "e1", "http://a/1.mp3")

	job, err := f.runner.Run(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Equal(t, "upload failed: quota exceeded", job.ErrorMessage)
	assert.Equal(t, "/tmp/video.mp4", job.VideoPath)
	assert.Empty(t, job.YoutubeVideoID)
	assert.Len(t, f.converter.Cleaned, 3)
}

func TestRunSkipsJobsThatAreNotPending(t *testing.T) {
	f := newFixture(t)
	jobID := f.createJob(t, "e1", "http://a/1.mp3")

	_, err := f.runner.Run(context.Background(), jobID)
	require.NoError(t, err)

	// A second dispatch of the same job does nothing.
	job, err := f.runner.Run(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Len(t, f.publisher.Uploads, 1)
	assert.Len(t, f.notifier.Jobs, 1)
}

func TestRunUnknownJob(t *testing.T) {
	f := newFixture(t)
	_, err := f.runner.Run(context.Background(), 42)
	assert.Error(t, err)
}

func TestRunTimestamps(t *testing.T) {
	f := newFixture(t)
	jobID := f.createJob(t, "e1", "http://a/1.mp3")

	job, err := f.runner.Run(context.Background(), jobID)
	require.NoError(t, err)
	want := test.FixedClock()()
	assert.True(t, job.StartedAt.Equal(want))
	assert.True(t, job.CompletedAt.Equal(want))
	assert.Equal(t, time.Duration(0), job.Duration())
}
