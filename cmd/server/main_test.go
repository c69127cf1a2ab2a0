package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
	"pod2tube/internal/handlers"
	"pod2tube/internal/middleware"
	"pod2tube/internal/test"
)

type noopScanner struct{}

func (noopScanner) RunScan(ctx context.Context, configID int64) (int, error) { return 0, nil }

func newTestRouter(t *testing.T) (http.Handler, string) {
	store := test.NewSQLiteStore(t)
	user, err := store.UpsertUser(context.Background(), 1, "alice")
	require.NoError(t, err)

	h := handlers.New(store, noopScanner{}, &test.FakeSource{}, &test.FakePublisher{}, "https://pod2tube.example")
	auth := middleware.NewAuth(store, "123456:dummy-token")
	limiter := middleware.NewUserRateLimiter(rate.Limit(1), 5)
	return newRouter(h, auth, limiter), user.RSSUUID
}

func TestAPIRequiresAuthentication(t *testing.T) {
	// 1. Setup router
	router, _ := newTestRouter(t)

	// 2. Every API route rejects anonymous requests
	for _, rt := range []struct{ method, path string }{
		{http.MethodPost, "/api/scan"},
		{http.MethodGet, "/api/config"},
		{http.MethodPut, "/api/config"},
		{http.MethodPost, "/api/config/test-source"},
		{http.MethodPost, "/api/config/test-publish"},
		{http.MethodGet, "/api/jobs"},
	} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(rt.method, rt.path, nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code, "%s %s", rt.method, rt.path)
	}
}

func TestPublicRoutes(t *testing.T) {
	router, rssUUID := newTestRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/rss/"+rssUUID, nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "<rss")

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/rss/"+rssUUID, nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
