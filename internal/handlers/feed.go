package handlers

import (
	"database/sql"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"pod2tube/internal/feed"
	"pod2tube/internal/models"
)

const feedItemsLimit = 50

// GetRSSFeed serves the published videos of the user owning the feed UUID.
func (h *Handlers) GetRSSFeed(w http.ResponseWriter, r *http.Request) {
	feedID := mux.Vars(r)["uuid"]

	user, err := h.store.GetUserByRSSUUID(r.Context(), feedID)
	if errors.Is(err, sql.ErrNoRows) {
		http.Error(w, "Feed not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("Error looking up feed %s: %v", feedID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	published, err := h.store.ListJobsByUserID(r.Context(), user.ID, models.JobStatusCompleted, feedItemsLimit)
	if err != nil {
		log.Printf("Error listing published videos for user %d: %v", user.ID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	body, err := feed.GenerateRSS(user, published, feed.BaseURL(h.baseURL, r))
	if err != nil {
		log.Printf("Error generating feed for user %d: %v", user.ID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/rss+xml")
	w.Write([]byte(body))
}
