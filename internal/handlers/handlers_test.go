package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pod2tube/internal/db"
	"pod2tube/internal/middleware"
	"pod2tube/internal/models"
	"pod2tube/internal/publish"
	"pod2tube/internal/source"
	"pod2tube/internal/test"
)

type mockScanner struct {
	configIDs []int64
	n         int
	err       error
}

func (m *mockScanner) RunScan(ctx context.Context, configID int64) (int, error) {
	m.configIDs = append(m.configIDs, configID)
	return m.n, m.err
}

func withUser(req *http.Request, user *models.User) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), middleware.UserContextKey, user))
}

func decodeMessage(t *testing.T, rr *httptest.ResponseRecorder) messageResponse {
	t.Helper()
	var resp messageResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp
}

func newTestHandlers(t *testing.T) (*Handlers, *db.Store, *mockScanner, *test.FakeSource) {
	h, store, scanner, src, _ := newTestHandlersWithPublisher(t)
	return h, store, scanner, src
}

func newTestHandlersWithPublisher(t *testing.T) (*Handlers, *db.Store, *mockScanner, *test.FakeSource, *test.FakePublisher) {
	store := test.NewSQLiteStore(t)
	scanner := &mockScanner{}
	src := &test.FakeSource{Show: &source.Show{ID: "abc", Name: "My Show"}}
	pub := &test.FakePublisher{Channel: &publish.Channel{ID: "UC123", Title: "My Channel"}}
	return New(store, scanner, src, pub, "https://pod2tube.example"), store, scanner, src, pub
}

func TestPostScan(t *testing.T) {
	h, store, scanner, _ := newTestHandlers(t)
	cfg := test.SeedConfig(t, store, 1, "abc")
	scanner.n = 2

	req := withUser(httptest.NewRequest(http.MethodPost, "/api/scan", nil), &models.User{ID: 1})
	rr := httptest.NewRecorder()
	h.PostScan(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	resp := decodeMessage(t, rr)
	assert.Equal(t, "Found and processed 2 new episode(s).", resp.Message)
	require.NotNil(t, resp.Count)
	assert.Equal(t, 2, *resp.Count)
	assert.Equal(t, []int64{cfg.ID}, scanner.configIDs)
}

func TestPostScanMessages(t *testing.T) {
	h, store, scanner, _ := newTestHandlers(t)

	// No configuration yet.
	req := withUser(httptest.NewRequest(http.MethodPost, "/api/scan", nil), &models.User{ID: 1})
	rr := httptest.NewRecorder()
	h.PostScan(rr, req)
	assert.Equal(t, "Please configure your settings first.", decodeMessage(t, rr).Message)
	assert.Empty(t, scanner.configIDs)

	test.SeedConfig(t, store, 1, "abc")

	rr = httptest.NewRecorder()
	h.PostScan(rr, req)
	assert.Equal(t, "No new episodes found.", decodeMessage(t, rr).Message)

	scanner.err = errors.New("token endpoint returned 400")
	rr = httptest.NewRecorder()
	h.PostScan(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Error checking for new episodes: token endpoint returned 400", decodeMessage(t, rr).Message)
}

func TestConfigRoundTrip(t *testing.T) {
	h, store, _, _ := newTestHandlers(t)
	_, err := store.UpsertUser(context.Background(), 1, "alice")
	require.NoError(t, err)
	user := &models.User{ID: 1}

	// 1. Missing configuration
	rr := httptest.NewRecorder()
	h.GetConfig(rr, withUser(httptest.NewRequest(http.MethodGet, "/api/config", nil), user))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	// 2. Save with defaults
	body := `{"spotify_podcast_id":"abc","youtube_channel_id":"UC1","check_interval":15}`
	rr = httptest.NewRecorder()
	h.PutConfig(rr, withUser(httptest.NewRequest(http.MethodPut, "/api/config", strings.NewReader(body)), user))
	require.Equal(t, http.StatusOK, rr.Code)

	// 3. Read back
	rr = httptest.NewRecorder()
	h.GetConfig(rr, withUser(httptest.NewRequest(http.MethodGet, "/api/config", nil), user))
	require.Equal(t, http.StatusOK, rr.Code)
	var cfg models.PodcastConfig
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &cfg))
	assert.Equal(t, "abc", cfg.SpotifyPodcastID)
	assert.Equal(t, 15, cfg.CheckInterval)
	assert.Equal(t, 1280, cfg.VideoWidth)
	assert.Equal(t, "1M", cfg.VideoBitrate)
	assert.Equal(t, int64(1), cfg.UserID)
}

func TestPutConfigRejectsNegativeInterval(t *testing.T) {
	h, _, _, _ := newTestHandlers(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/config", strings.NewReader(`{"check_interval":-5}`))
	h.PutConfig(rr, withUser(req, &models.User{ID: 1}))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPostTestSource(t *testing.T) {
	h, store, _, src := newTestHandlers(t)
	user := &models.User{ID: 1}

	rr := httptest.NewRecorder()
	h.PostTestSource(rr, withUser(httptest.NewRequest(http.MethodPost, "/api/config/test-source", nil), user))
	assert.Equal(t, "Please configure your Spotify podcast ID first.", decodeMessage(t, rr).Message)

	test.SeedConfig(t, store, 1, "abc")
	rr = httptest.NewRecorder()
	h.PostTestSource(rr, withUser(httptest.NewRequest(http.MethodPost, "/api/config/test-source", nil), user))
	assert.Equal(t, "Successfully connected to Spotify. Podcast name: My Show", decodeMessage(t, rr).Message)

	src.Err = errors.New("invalid_client")
	rr = httptest.NewRecorder()
	h.PostTestSource(rr, withUser(httptest.NewRequest(http.MethodPost, "/api/config/test-source", nil), user))
	assert.Equal(t, "Error connecting to Spotify: invalid_client", decodeMessage(t, rr).Message)
}

func TestPostTestPublish(t *testing.T) {
	h, store, _, _, pub := newTestHandlersWithPublisher(t)
	user := &models.User{ID: 1}
	post := func() string {
		rr := httptest.NewRecorder()
		h.PostTestPublish(rr, withUser(httptest.NewRequest(http.MethodPost, "/api/config/test-publish", nil), user))
		require.Equal(t, http.StatusOK, rr.Code)
		return decodeMessage(t, rr).Message
	}

	// 1. Without a configuration
	assert.Equal(t, "Please configure your settings first.", post())

	// 2. An empty channel id is filled from the connected channel
	_, err := store.UpsertUser(context.Background(), 1, "alice")
	require.NoError(t, err)
	_, err = store.UpsertConfig(context.Background(), &models.PodcastConfig{UserID: 1, SpotifyPodcastID: "abc", LogoURL: "http://img/logo.png"})
	require.NoError(t, err)
	assert.Equal(t, "Successfully connected to YouTube. Channel name: My Channel", post())

	cfg, err := store.GetConfigByUserID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "UC123", cfg.YoutubeChannelID)
	assert.Equal(t, "abc", cfg.SpotifyPodcastID)
	assert.Equal(t, "http://img/logo.png", cfg.LogoURL)

	// 3. A configured channel id is kept
	pub.Channel = &publish.Channel{ID: "UC999", Title: "Other"}
	assert.Equal(t, "Successfully connected to YouTube. Channel name: Other", post())
	cfg, err = store.GetConfigByUserID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "UC123", cfg.YoutubeChannelID)

	// 4. Connection failures are reported as a message
	pub.ChannelErr = errors.New("invalid_grant")
	assert.Equal(t, "Error connecting to YouTube: invalid_grant", post())
}

func seedJobs(t *testing.T, store *db.Store) *models.PodcastConfig {
	t.Helper()
	ctx := context.Background()
	cfg := test.SeedConfig(t, store, 1, "abc")
	for _, ep := range []string{"e1", "e2"} {
		id, err := store.CreateJob(ctx, models.ConversionJob{UserID: 1, ConfigID: cfg.ID, EpisodeID: ep, EpisodeTitle: "Title " + ep})
		require.NoError(t, err)
		if ep == "e1" {
			now := test.FixedClock()()
			_, err = store.UpdateJob(ctx, id, func(j *models.ConversionJob) error {
				j.Status = models.JobStatusProcessing
				j.StartedAt = &now
				return nil
			})
			require.NoError(t, err)
			_, err = store.UpdateJob(ctx, id, func(j *models.ConversionJob) error {
				j.Status = models.JobStatusCompleted
				j.YoutubeVideoID = "vid1"
				j.YoutubeVideoURL = "https://www.youtube.com/watch?v=vid1"
				j.CompletedAt = &now
				return nil
			})
			require.NoError(t, err)
		}
	}
	return cfg
}

func TestGetJobs(t *testing.T) {
	h, store, _, _ := newTestHandlers(t)
	seedJobs(t, store)
	user := &models.User{ID: 1}

	rr := httptest.NewRecorder()
	h.GetJobs(rr, withUser(httptest.NewRequest(http.MethodGet, "/api/jobs", nil), user))
	require.Equal(t, http.StatusOK, rr.Code)
	var jobs []models.ConversionJob
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &jobs))
	assert.Len(t, jobs, 2)

	rr = httptest.NewRecorder()
	h.GetJobs(rr, withUser(httptest.NewRequest(http.MethodGet, "/api/jobs?status=completed", nil), user))
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &jobs))
	require.Len(t, jobs, 1)
	assert.Equal(t, "vid1", jobs[0].YoutubeVideoID)

	rr = httptest.NewRecorder()
	h.GetJobs(rr, withUser(httptest.NewRequest(http.MethodGet, "/api/jobs?status=bogus", nil), user))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	h.GetJobs(rr, withUser(httptest.NewRequest(http.MethodGet, "/api/jobs?limit=0", nil), user))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetRSSFeed(t *testing.T) {
	h, store, _, _ := newTestHandlers(t)
	seedJobs(t, store)
	user, err := store.GetUserByID(context.Background(), 1)
	require.NoError(t, err)

	router := mux.NewRouter()
	router.HandleFunc("/rss/{uuid}", h.GetRSSFeed)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/rss/"+user.RSSUUID, nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/rss+xml", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Body.String(), "https://www.youtube.com/watch?v=vid1")
	assert.Contains(t, rr.Body.String(), "https://pod2tube.example/rss/"+user.RSSUUID)
	assert.NotContains(t, rr.Body.String(), "Title e2")

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/rss/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

type fakeBot struct {
	sent []tgbotapi.MessageConfig
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		b.sent = append(b.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func command(text string) *tgbotapi.Message {
	name := strings.Fields(text)[0]
	return &tgbotapi.Message{
		Text:     text,
		Chat:     &tgbotapi.Chat{ID: 1},
		From:     &tgbotapi.User{ID: 1, UserName: "alice"},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}},
	}
}

func TestTelegramScanCommand(t *testing.T) {
	h, store, scanner, _ := newTestHandlers(t)
	bot := &fakeBot{}

	h.HandleTelegramMessage(context.Background(), bot, command("/scan"))
	require.Len(t, bot.sent, 1)
	assert.Equal(t, "Please configure your settings first.", bot.sent[0].Text)

	test.SeedConfig(t, store, 1, "abc")
	scanner.n = 1
	h.HandleTelegramMessage(context.Background(), bot, command("/scan"))
	require.Len(t, bot.sent, 2)
	assert.Equal(t, "Found and processed 1 new episode(s).", bot.sent[1].Text)
	assert.Equal(t, int64(1), bot.sent[1].ChatID)
}

func TestTelegramJobsCommand(t *testing.T) {
	h, store, _, _ := newTestHandlers(t)
	bot := &fakeBot{}

	h.HandleTelegramMessage(context.Background(), bot, command("/jobs"))
	require.Len(t, bot.sent, 1)
	assert.Equal(t, "No conversions yet.", bot.sent[0].Text)

	seedJobs(t, store)
	h.HandleTelegramMessage(context.Background(), bot, command("/jobs"))
	require.Len(t, bot.sent, 2)
	assert.Contains(t, bot.sent[1].Text, "completed: Title e1 https://www.youtube.com/watch?v=vid1")
	assert.Contains(t, bot.sent[1].Text, "pending: Title e2")
}

func TestTelegramStartAndUnknown(t *testing.T) {
	h, _, _, _ := newTestHandlers(t)
	bot := &fakeBot{}

	h.HandleTelegramMessage(context.Background(), bot, command("/start"))
	h.HandleTelegramMessage(context.Background(), bot, command("/nope"))
	h.HandleTelegramMessage(context.Background(), bot, &tgbotapi.Message{
		Text: "hello", Chat: &tgbotapi.Chat{ID: 1}, From: &tgbotapi.User{ID: 1},
	})

	require.Len(t, bot.sent, 3)
	assert.Contains(t, bot.sent[0].Text, "https://pod2tube.example/rss/")
	assert.Equal(t, "I don't know that command", bot.sent[1].Text)
	assert.Contains(t, bot.sent[2].Text, "/scan")
}
