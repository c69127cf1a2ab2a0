package middleware

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	initdata "github.com/telegram-mini-apps/init-data-golang"
	"pod2tube/internal/models"
)

type contextKey string

// UserContextKey is the key for the user in the context.
const UserContextKey = contextKey("user")

// UserStore creates or refreshes the authenticated user.
type UserStore interface {
	UpsertUser(ctx context.Context, id int64, username string) (*models.User, error)
}

// Auth validates Telegram Mini App init data.
type Auth struct {
	store    UserStore
	botToken string
	// MaxAge rejects init data older than this; zero disables the check.
	MaxAge time.Duration
}

func NewAuth(store UserStore, botToken string) *Auth {
	return &Auth{store: store, botToken: botToken}
}

// UserFromContext returns the user stored by the auth middleware.
func UserFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(UserContextKey).(*models.User)
	return user, ok
}

// Middleware validates the Telegram Mini App initData and upserts the user.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "tma" {
			http.Error(w, "Authorization header format must be 'tma <initData>'", http.StatusUnauthorized)
			return
		}

		if a.botToken == "" {
			log.Println("TELEGRAM_BOT_TOKEN is not set")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		initData := parts[1]
		if err := initdata.Validate(initData, a.botToken, a.MaxAge); err != nil {
			log.Printf("Invalid init data: %v", err)
			http.Error(w, "Invalid init data", http.StatusUnauthorized)
			return
		}

		data, err := initdata.Parse(initData)
		if err != nil {
			log.Printf("Error parsing init data: %v", err)
			http.Error(w, "Error parsing init data", http.StatusBadRequest)
			return
		}
		if data.User.ID == 0 {
			http.Error(w, "Init data carries no user", http.StatusUnauthorized)
			return
		}

		user, err := a.store.UpsertUser(r.Context(), data.User.ID, data.User.Username)
		if err != nil {
			log.Printf("Error upserting user %d: %v", data.User.ID, err)
			http.Error(w, "Failed to authenticate user", http.StatusInternalServerError)
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
