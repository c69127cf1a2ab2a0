package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"pod2tube/internal/models"
	"pod2tube/internal/publish"
	"pod2tube/internal/source"
)

// Store is the part of the ledger the HTTP and bot surfaces use.
type Store interface {
	UpsertUser(ctx context.Context, id int64, username string) (*models.User, error)
	GetUserByRSSUUID(ctx context.Context, rssUUID string) (*models.User, error)
	GetConfigByUserID(ctx context.Context, userID int64) (*models.PodcastConfig, error)
	UpsertConfig(ctx context.Context, cfg *models.PodcastConfig) (*models.PodcastConfig, error)
	ListJobsByUserID(ctx context.Context, userID int64, status models.JobStatus, limit int) ([]models.ConversionJob, error)
}

// Scanner runs a discovery scan on demand.
type Scanner interface {
	RunScan(ctx context.Context, configID int64) (int, error)
}

// ShowFetcher looks up a show to test the source connection.
type ShowFetcher interface {
	GetShow(ctx context.Context, showID string) (*source.Show, error)
}

// ChannelFetcher looks up the publishing channel to test the YouTube connection.
type ChannelFetcher interface {
	GetChannel(ctx context.Context) (*publish.Channel, error)
}

type Handlers struct {
	store    Store
	scanner  Scanner
	shows    ShowFetcher
	channels ChannelFetcher
	baseURL  string
}

func New(store Store, scanner Scanner, shows ShowFetcher, channels ChannelFetcher, baseURL string) *Handlers {
	return &Handlers{
		store:    store,
		scanner:  scanner,
		shows:    shows,
		channels: channels,
		baseURL:  baseURL,
	}
}

type messageResponse struct {
	Message string `json:"message"`
	Count   *int   `json:"count,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

// manualScan runs a scan of the user's configuration and describes the
// outcome for a human.
func (h *Handlers) manualScan(ctx context.Context, userID int64) (string, int, error) {
	cfg, err := h.store.GetConfigByUserID(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "Please configure your settings first.", 0, nil
	}
	if err != nil {
		return "", 0, err
	}

	n, err := h.scanner.RunScan(ctx, cfg.ID)
	if err != nil {
		log.Printf("Manual scan of configuration %d failed: %v", cfg.ID, err)
		return fmt.Sprintf("Error checking for new episodes: %v", err), 0, nil
	}
	if n == 0 {
		return "No new episodes found.", 0, nil
	}
	return fmt.Sprintf("Found and processed %d new episode(s).", n), n, nil
}
