package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/MrWong99/transcribot/internal/history"
	"github.com/MrWong99/transcribot/internal/history/postgres"
	"github.com/MrWong99/transcribot/pkg/provider/transcribe"
)

const testEmbeddingDim = 3

// testDSN returns the test database DSN from the environment, or skips the
// test if TRANSCRIBOT_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("TRANSCRIBOT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TRANSCRIBOT_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore drops the jobs table and returns a freshly migrated store.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, err := conn.Exec(ctx, "DROP TABLE IF EXISTS transcription_jobs CASCADE"); err != nil {
		t.Fatalf("drop: %v", err)
	}
	_ = conn.Close(ctx)

	store, err := postgres.NewStore(ctx, dsn, testEmbeddingDim)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

// The integration tests share one table and must not run in parallel.

func TestStore_CreateFinishGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := history.Record{
		JobID:    "job-1",
		Provider: "replicate",
		Platform: "telegram",
		ChatID:   "42",
		Sender:   "Ada",
		FileName: "standup.ogg",
		FileURL:  "https://files.example/standup.ogg",
	}
	if err := s.Create(ctx, rec); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := s.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != transcribe.StatusStarting || !got.FinishedAt.IsZero() {
		t.Errorf("fresh record = %+v", got)
	}

	err = s.Finish(ctx, "job-1", history.Outcome{
		Status:     transcribe.StatusSucceeded,
		Transcript: "A: the budget is approved",
		Embedding:  []float32{1, 0, 0},
	})
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	got, _ = s.Get(ctx, "job-1")
	if got.Status != transcribe.StatusSucceeded || got.Transcript == "" || got.FinishedAt.IsZero() {
		t.Errorf("finished record = %+v", got)
	}

	if err := s.Finish(ctx, "missing", history.Outcome{}); !errors.Is(err, history.ErrNotFound) {
		t.Errorf("Finish missing: err = %v, want ErrNotFound", err)
	}
	if _, err := s.Get(ctx, "missing"); !errors.Is(err, history.ErrNotFound) {
		t.Errorf("Get missing: err = %v, want ErrNotFound", err)
	}
}

func TestStore_RecentAndSearch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	fixtures := []struct {
		id, text string
		vec      []float32
	}{
		{"a", "we discussed the quarterly budget", []float32{1, 0, 0}},
		{"b", "holiday planning and travel", []float32{0, 1, 0}},
		{"c", "budget cuts for marketing", []float32{0.9, 0.1, 0}},
	}
	for i, f := range fixtures {
		if err := s.Create(ctx, history.Record{JobID: f.id, FileName: f.id + ".ogg", CreatedAt: base.Add(time.Duration(i) * time.Minute)}); err != nil {
			t.Fatal(err)
		}
		if err := s.Finish(ctx, f.id, history.Outcome{Status: transcribe.StatusSucceeded, Transcript: f.text, Embedding: f.vec}); err != nil {
			t.Fatal(err)
		}
	}

	recent, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 || recent[0].JobID != "c" || recent[1].JobID != "b" {
		t.Errorf("Recent = %+v", recent)
	}

	text, err := s.Search(ctx, history.SearchQuery{Text: "budget"})
	if err != nil {
		t.Fatal(err)
	}
	if len(text) != 2 || text[0].JobID != "c" || text[1].JobID != "a" {
		t.Errorf("text search = %+v", text)
	}

	semantic, err := s.Search(ctx, history.SearchQuery{Embedding: []float32{1, 0, 0}, Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(semantic) != 1 || semantic[0].JobID != "a" {
		t.Errorf("semantic search = %+v", semantic)
	}
}
