package test

import (
	"context"
	"fmt"
	"sync"

	"pod2tube/internal/converter"
	"pod2tube/internal/models"
	"pod2tube/internal/publish"
	"pod2tube/internal/source"
)

// FakeSource serves a fixed episode list.
type FakeSource struct {
	mu        sync.Mutex
	Episodes  []source.Episode
	Details   map[string]source.Episode
	Show      *source.Show
	Err       error
	ListCalls int
}

func (f *FakeSource) ListEpisodes(ctx context.Context, showID string, limit int) ([]source.Episode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ListCalls++
	if f.Err != nil {
		return nil, f.Err
	}
	eps := f.Episodes
	if limit > 0 && len(eps) > limit {
		eps = eps[:limit]
	}
	return append([]source.Episode(nil), eps...), nil
}

func (f *FakeSource) GetEpisode(ctx context.Context, episodeID string) (*source.Episode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	if ep, ok := f.Details[episodeID]; ok {
		return &ep, nil
	}
	for _, ep := range f.Episodes {
		if ep.ID == episodeID {
			return &ep, nil
		}
	}
	return nil, &source.APIError{StatusCode: 404, Endpoint: "/episodes/" + episodeID}
}

func (f *FakeSource) GetShow(ctx context.Context, showID string) (*source.Show, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	if f.Show == nil {
		return nil, &source.APIError{StatusCode: 404, Endpoint: "/shows/" + showID}
	}
	return f.Show, nil
}

// FakeConverter pretends to produce files. FailAt selects the step that
// fails: "audio", "image" or "transcode".
type FakeConverter struct {
	mu       sync.Mutex
	FailAt   string
	Requests []converter.Request
	Cleaned  []string
}

func (f *FakeConverter) ProcessEpisode(ctx context.Context, req converter.Request) (converter.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Requests = append(f.Requests, req)

	var res converter.Result
	if f.FailAt == "audio" {
		return res, fmt.Errorf("download audio: connection refused")
	}
	res.AudioPath = "/tmp/audio.mp3"
	if f.FailAt == "image" {
		return res, fmt.Errorf("download image: status 404")
	}
	res.ImagePath = "/tmp/image.jpg"
	if f.FailAt == "transcode" {
		return res, &converter.TranscodeError{Err: fmt.Errorf("exit status 1"), Stderr: "Invalid data"}
	}
	res.VideoPath = "/tmp/video.mp4"
	return res, nil
}

func (f *FakeConverter) Cleanup(paths ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Cleaned = append(f.Cleaned, paths...)
}

// FakePublisher returns sequential video ids.
type FakePublisher struct {
	mu         sync.Mutex
	Err        error
	Uploads    []publish.Video
	Channel    *publish.Channel
	ChannelErr error
}

func (f *FakePublisher) GetChannel(ctx context.Context) (*publish.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ChannelErr != nil {
		return nil, f.ChannelErr
	}
	if f.Channel == nil {
		return &publish.Channel{ID: "UC-fake", Title: "Fake Channel"}, nil
	}
	return f.Channel, nil
}

func (f *FakePublisher) Upload(ctx context.Context, v publish.Video) (*publish.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	f.Uploads = append(f.Uploads, v)
	id := fmt.Sprintf("vid%d", len(f.Uploads))
	return &publish.Result{ID: id, URL: publish.WatchURL(id), Title: v.Title}, nil
}

// RecordingNotifier collects finished jobs.
type RecordingNotifier struct {
	mu   sync.Mutex
	Jobs []models.ConversionJob
}

func (n *RecordingNotifier) JobFinished(ctx context.Context, job *models.ConversionJob) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Jobs = append(n.Jobs, *job)
}
