package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJobStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to JobStatus
		want     bool
	}{
		{JobStatusPending, JobStatusProcessing, true},
		{JobStatusPending, JobStatusCompleted, false},
		{JobStatusPending, JobStatusFailed, false},
		{JobStatusPending, JobStatusPending, false},
		{JobStatusProcessing, JobStatusProcessing, true},
		{JobStatusProcessing, JobStatusCompleted, true},
		{JobStatusProcessing, JobStatusFailed, true},
		{JobStatusProcessing, JobStatusPending, false},
		{JobStatusCompleted, JobStatusFailed, false},
		{JobStatusCompleted, JobStatusProcessing, false},
		{JobStatusFailed, JobStatusPending, false},
		{JobStatusFailed, JobStatusCompleted, false},
		{JobStatus("bogus"), JobStatusProcessing, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestConversionJobValidate(t *testing.T) {
	now := time.Now()

	t.Run("pending job", func(t *testing.T) {
		j := ConversionJob{ID: 1, Status: JobStatusPending}
		assert.NoError(t, j.Validate())
	})

	t.Run("processing without started_at", func(t *testing.T) {
		j := ConversionJob{ID: 1, Status: JobStatusProcessing}
		assert.Error(t, j.Validate())
	})

	t.Run("failed without error message", func(t *testing.T) {
		j := ConversionJob{ID: 1, Status: JobStatusFailed, StartedAt: &now, CompletedAt: &now}
		assert.Error(t, j.Validate())
	})

	t.Run("failed job", func(t *testing.T) {
		j := ConversionJob{ID: 1, Status: JobStatusFailed, StartedAt: &now, CompletedAt: &now, ErrorMessage: "boom"}
		assert.NoError(t, j.Validate())
	})

	t.Run("completed without completed_at", func(t *testing.T) {
		j := ConversionJob{ID: 1, Status: JobStatusCompleted, StartedAt: &now}
		assert.Error(t, j.Validate())
	})

	t.Run("completed with error message", func(t *testing.T) {
		j := ConversionJob{ID: 1, Status: JobStatusCompleted, StartedAt: &now, CompletedAt: &now, ErrorMessage: "stale"}
		assert.Error(t, j.Validate())
	})
}

func TestPodcastConfigApplyDefaults(t *testing.T) {
	c := PodcastConfig{CheckInterval: -5, VideoBitrate: "2M"}
	c.ApplyDefaults()
	assert.Equal(t, DefaultVideoWidth, c.VideoWidth)
	assert.Equal(t, DefaultVideoHeight, c.VideoHeight)
	assert.Equal(t, "2M", c.VideoBitrate)
	assert.Equal(t, DefaultCheckInterval, c.CheckInterval)
	assert.Equal(t, time.Hour, c.Interval())
}

func TestUserFeedURL(t *testing.T) {
	u := &User{RSSUUID: "abc"}
	assert.Equal(t, "https://pod2tube.example/rss/abc", u.FeedURL("https://pod2tube.example/"))
	assert.Equal(t, "https://pod2tube.example/rss/abc", u.FeedURL("https://pod2tube.example"))
}
