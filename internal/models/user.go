package models

import (
	"strings"
	"time"
)

// User owns one podcast configuration. ID is the Telegram user id and
// RSSUUID is the unguessable part of the user's public feed URL.
type User struct {
	ID               int64     `db:"id" json:"id"`
	TelegramUsername string    `db:"telegram_username" json:"telegram_username"`
	RSSUUID          string    `db:"rss_uuid" json:"rss_uuid"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// FeedURL is the public address of the user's feed under baseURL.
func (u *User) FeedURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + "/rss/" + u.RSSUUID
}
