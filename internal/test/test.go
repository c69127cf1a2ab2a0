package test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/hibiken/asynq"
	"github.com/jmoiron/sqlx"
	"pod2tube/internal/db"
	"pod2tube/internal/models"
)

// MockTaskEnqueuer is a fake tasks.TaskEnqueuer that records tasks for testing.
type MockTaskEnqueuer struct {
	mu            sync.Mutex
	EnqueuedTasks []*asynq.Task
	Err           error
}

func (m *MockTaskEnqueuer) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	m.EnqueuedTasks = append(m.EnqueuedTasks, task)
	return &asynq.TaskInfo{ID: "test-task-id", Queue: "default"}, nil
}

// Tasks returns a snapshot of the enqueued tasks.
func (m *MockTaskEnqueuer) Tasks() []*asynq.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*asynq.Task(nil), m.EnqueuedTasks...)
}

// NewMockDB returns a sqlmock-backed connection that rebinds like PostgreSQL.
func NewMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	mockDb, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	sqlxDB := sqlx.NewDb(mockDb, db.DriverPostgres)
	t.Cleanup(func() {
		mockDb.Close()
	})
	return sqlxDB, mock
}

// FixedClock returns a clock frozen at a fixed UTC instant.
func FixedClock() func() time.Time {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}

// NewSQLiteStore returns a migrated store backed by a private in-memory
// SQLite database.
func NewSQLiteStore(t *testing.T, opts ...db.Option) *db.Store {
	t.Helper()
	conn, err := db.Open("sqlite::memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	store := db.New(conn, opts...)
	t.Cleanup(func() { store.Close() })
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return store
}

// SeedConfig creates a user and a podcast configuration owned by it.
func SeedConfig(t *testing.T, store *db.Store, userID int64, podcastID string) *models.PodcastConfig {
	t.Helper()
	ctx := context.Background()
	if _, err := store.UpsertUser(ctx, userID, "user"); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	cfg, err := store.UpsertConfig(ctx, &models.PodcastConfig{
		UserID:           userID,
		SpotifyPodcastID: podcastID,
		YoutubeChannelID: "UC-channel",
		CheckInterval:    30,
	})
	if err != nil {
		t.Fatalf("seed config: %v", err)
	}
	return cfg
}
