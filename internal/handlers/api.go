package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"pod2tube/internal/middleware"
	"pod2tube/internal/models"
)

const (
	defaultJobsLimit = 20
	maxJobsLimit     = 100
)

// PostScan runs a scan of the caller's configuration synchronously.
func (h *Handlers) PostScan(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())

	msg, n, err := h.manualScan(r.Context(), user.ID)
	if err != nil {
		log.Printf("Error running manual scan: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: msg, Count: &n})
}

// GetConfig returns the caller's configuration.
func (h *Handlers) GetConfig(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())

	cfg, err := h.store.GetConfigByUserID(r.Context(), user.ID)
	if errors.Is(err, sql.ErrNoRows) {
		http.Error(w, "Configuration not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("Error getting configuration: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// PutConfig creates or replaces the caller's configuration.
func (h *Handlers) PutConfig(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())

	var in models.PodcastConfig
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	if in.CheckInterval < 0 || in.VideoWidth < 0 || in.VideoHeight < 0 {
		http.Error(w, "Check interval and video size must be positive", http.StatusBadRequest)
		return
	}

	cfg := &models.PodcastConfig{
		UserID:           user.ID,
		SpotifyPodcastID: in.SpotifyPodcastID,
		YoutubeChannelID: in.YoutubeChannelID,
		VideoWidth:       in.VideoWidth,
		VideoHeight:      in.VideoHeight,
		VideoBitrate:     in.VideoBitrate,
		LogoURL:          in.LogoURL,
		CheckInterval:    in.CheckInterval,
	}
	saved, err := h.store.UpsertConfig(r.Context(), cfg)
	if err != nil {
		log.Printf("Error saving configuration: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// PostTestSource checks that the configured show can be fetched.
func (h *Handlers) PostTestSource(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())

	cfg, err := h.store.GetConfigByUserID(r.Context(), user.ID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		log.Printf("Error getting configuration: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if cfg == nil || cfg.SpotifyPodcastID == "" {
		writeJSON(w, http.StatusOK, messageResponse{Message: "Please configure your Spotify podcast ID first."})
		return
	}

	show, err := h.shows.GetShow(r.Context(), cfg.SpotifyPodcastID)
	if err != nil {
		writeJSON(w, http.StatusOK, messageResponse{Message: fmt.Sprintf("Error connecting to Spotify: %v", err)})
		return
	}
	name := show.Name
	if name == "" {
		name = "Unknown"
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: fmt.Sprintf("Successfully connected to Spotify. Podcast name: %s", name)})
}

// PostTestPublish checks that the YouTube credentials reach a channel and
// stores the channel id when none is configured yet.
func (h *Handlers) PostTestPublish(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())

	cfg, err := h.store.GetConfigByUserID(r.Context(), user.ID)
	if errors.Is(err, sql.ErrNoRows) {
		writeJSON(w, http.StatusOK, messageResponse{Message: "Please configure your settings first."})
		return
	}
	if err != nil {
		log.Printf("Error getting configuration: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	channel, err := h.channels.GetChannel(r.Context())
	if err != nil {
		writeJSON(w, http.StatusOK, messageResponse{Message: fmt.Sprintf("Error connecting to YouTube: %v", err)})
		return
	}

	if cfg.YoutubeChannelID == "" && channel.ID != "" {
		cfg.YoutubeChannelID = channel.ID
		if _, err := h.store.UpsertConfig(r.Context(), cfg); err != nil {
			log.Printf("Error saving channel id for user %d: %v", user.ID, err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
	}

	name := channel.Title
	if name == "" {
		name = "Unknown"
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: fmt.Sprintf("Successfully connected to YouTube. Channel name: %s", name)})
}

// GetJobs returns the caller's most recent jobs, optionally filtered by status.
func (h *Handlers) GetJobs(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())

	status := models.JobStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		http.Error(w, "Unknown status", http.StatusBadRequest)
		return
	}

	limit := defaultJobsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxJobsLimit)
	}

	jobs, err := h.store.ListJobsByUserID(r.Context(), user.ID, status, limit)
	if err != nil {
		log.Printf("Error listing jobs: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if jobs == nil {
		jobs = []models.ConversionJob{}
	}
	writeJSON(w, http.StatusOK, jobs)
}
