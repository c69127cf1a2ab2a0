package feed

import (
	"fmt"
	"net/http"
	"time"

	"github.com/eduncan911/podcast"
	"pod2tube/internal/models"
)

// BaseURL returns configured when set, otherwise the URL the request came in on.
func BaseURL(configured string, r *http.Request) string {
	if configured != "" {
		return configured
	}

	scheme := r.URL.Scheme
	if scheme == "" {
		scheme = "https"
		if r.Header.Get("X-Forwarded-Proto") != "" {
			scheme = r.Header.Get("X-Forwarded-Proto")
		}
	}

	return fmt.Sprintf("%s://%s", scheme, r.Host)
}

// GenerateRSS renders the published videos of a user as an RSS feed. Each
// item links to the YouTube watch page.
func GenerateRSS(user *models.User, jobs []models.ConversionJob, baseURL string) (string, error) {
	var lastBuild time.Time
	for _, job := range jobs {
		if job.CompletedAt != nil && job.CompletedAt.After(lastBuild) {
			lastBuild = *job.CompletedAt
		}
	}

	p := podcast.New(
		fmt.Sprintf("%s's published episodes", user.TelegramUsername),
		user.FeedURL(baseURL),
		"Podcast episodes published to YouTube.",
		&lastBuild, &lastBuild,
	)

	for _, job := range jobs {
		if job.Status != models.JobStatusCompleted || job.YoutubeVideoURL == "" {
			continue
		}
		item := podcast.Item{
			Title:       job.EpisodeTitle,
			Description: fmt.Sprintf("Watch on YouTube: %s", job.YoutubeVideoURL),
			Link:        job.YoutubeVideoURL,
			GUID:        job.YoutubeVideoID,
			PubDate:     job.CompletedAt,
		}
		if item.Title == "" {
			item.Title = job.EpisodeID
		}
		if _, err := p.AddItem(item); err != nil {
			return "", err
		}
	}

	return p.String(), nil
}
