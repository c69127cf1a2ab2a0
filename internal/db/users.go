package db

import (
	"context"
	"log"

	"github.com/google/uuid"
	"pod2tube/internal/models"
)

const userColumns = "id, telegram_username, rss_uuid, created_at, updated_at"

// UpsertUser inserts a new user or updates an existing one based on the Telegram ID.
func (s *Store) UpsertUser(ctx context.Context, id int64, username string) (*models.User, error) {
	query := `
		INSERT INTO users (id, telegram_username, rss_uuid, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			telegram_username = excluded.telegram_username,
			updated_at = excluded.updated_at
		RETURNING ` + userColumns
	now := s.now()
	user := &models.User{}
	err := s.db.GetContext(ctx, user, s.db.Rebind(query), id, username, uuid.NewString(), now, now)
	if err != nil {
		log.Printf("Error upserting user: %v", err)
		return nil, err
	}
	return user, nil
}

// GetUserByID returns the user with the given Telegram ID.
func (s *Store) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	user := &models.User{}
	err := s.db.GetContext(ctx, user, s.db.Rebind("SELECT "+userColumns+" FROM users WHERE id = ?"), id)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByRSSUUID returns the user owning the feed identified by rssUUID.
func (s *Store) GetUserByRSSUUID(ctx context.Context, rssUUID string) (*models.User, error) {
	user := &models.User{}
	err := s.db.GetContext(ctx, user, s.db.Rebind("SELECT "+userColumns+" FROM users WHERE rss_uuid = ?"), rssUUID)
	if err != nil {
		return nil, err
	}
	return user, nil
}
