package models

import "time"

const (
	DefaultVideoWidth    = 1280
	DefaultVideoHeight   = 720
	DefaultVideoBitrate  = "1M"
	DefaultCheckInterval = 60 // minutes
)

// PodcastConfig binds a Spotify show to a YouTube channel for one user.
type PodcastConfig struct {
	ID               int64      `db:"id" json:"id"`
	UserID           int64      `db:"user_id" json:"user_id"`
	SpotifyPodcastID string     `db:"spotify_podcast_id" json:"spotify_podcast_id"`
	YoutubeChannelID string     `db:"youtube_channel_id" json:"youtube_channel_id"`
	VideoWidth       int        `db:"video_width" json:"video_width"`
	VideoHeight      int        `db:"video_height" json:"video_height"`
	VideoBitrate     string     `db:"video_bitrate" json:"video_bitrate"`
	LogoURL          string     `db:"logo_url" json:"logo_url"`
	CheckInterval    int        `db:"check_interval" json:"check_interval"`
	LastCheck        *time.Time `db:"last_check" json:"last_check,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// ApplyDefaults fills unset encode parameters and a non-positive check interval.
func (c *PodcastConfig) ApplyDefaults() {
	if c.VideoWidth <= 0 {
		c.VideoWidth = DefaultVideoWidth
	}
	if c.VideoHeight <= 0 {
		c.VideoHeight = DefaultVideoHeight
	}
	if c.VideoBitrate == "" {
		c.VideoBitrate = DefaultVideoBitrate
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = DefaultCheckInterval
	}
}

// Interval returns the check interval as a duration, falling back to the default.
func (c *PodcastConfig) Interval() time.Duration {
	minutes := c.CheckInterval
	if minutes <= 0 {
		minutes = DefaultCheckInterval
	}
	return time.Duration(minutes) * time.Minute
}

// ProcessedEpisode marks a Spotify episode as already seen for a configuration.
type ProcessedEpisode struct {
	ID           int64     `db:"id"`
	ConfigID     int64     `db:"config_id"`
	EpisodeID    string    `db:"episode_id"`
	EpisodeTitle string    `db:"episode_title"`
	EpisodeURL   string    `db:"episode_url"`
	ProcessedAt  time.Time `db:"processed_at"`
}
