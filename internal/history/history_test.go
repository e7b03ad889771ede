package history

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/transcribot/pkg/provider/transcribe"
)

func seed(t *testing.T, s *MemoryStore) {
	t.Helper()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	recs := []Record{
		{JobID: "a", FileName: "standup.ogg", Transcript: "A: budget review next week", CreatedAt: base, Embedding: []float32{1, 0}},
		{JobID: "b", FileName: "call.mp3", Transcript: "B: the roadmap is fine", CreatedAt: base.Add(time.Hour), Embedding: []float32{0, 1}},
		{JobID: "c", FileName: "budget.m4a", Transcript: "C: nothing", CreatedAt: base.Add(2 * time.Hour)},
	}
	for _, r := range recs {
		if err := s.Create(context.Background(), r); err != nil {
			t.Fatalf("Create(%s): %v", r.JobID, err)
		}
	}
}

func TestMemoryStore_Recent(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	seed(t, s)

	got, err := s.Recent(context.Background(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].JobID != "c" || got[1].JobID != "b" {
		t.Fatalf("Recent = %v, want [c b]", ids(got))
	}
}

func TestMemoryStore_FinishAndGet(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	seed(t, s)

	err := s.Finish(context.Background(), "a", Outcome{Status: transcribe.StatusSucceeded, Transcript: "done"})
	if err != nil {
		t.Fatal(err)
	}
	rec, err := s.Get(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != transcribe.StatusSucceeded || rec.Transcript != "done" || rec.FinishedAt.IsZero() {
		t.Errorf("record = %+v", rec)
	}

	if err := s.Finish(context.Background(), "zzz", Outcome{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Finish unknown: err = %v, want ErrNotFound", err)
	}
	if _, err := s.Get(context.Background(), "zzz"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get unknown: err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_Search(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	seed(t, s)

	tests := []struct {
		name string
		q    SearchQuery
		want []string
	}{
		{"text matches transcript and file name, newest first", SearchQuery{Text: "Budget"}, []string{"c", "a"}},
		{"text limit", SearchQuery{Text: "budget", Limit: 1}, []string{"c"}},
		{"vector ranks by similarity", SearchQuery{Embedding: []float32{0.1, 0.9}}, []string{"b", "a"}},
		{"no criteria", SearchQuery{}, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := s.Search(context.Background(), tc.q)
			if err != nil {
				t.Fatal(err)
			}
			if g := ids(got); !slices.Equal(g, tc.want) {
				t.Errorf("Search = %v, want %v", g, tc.want)
			}
		})
	}
}

func ids(recs []Record) []string {
	var out []string
	for _, r := range recs {
		out = append(out, r.JobID)
	}
	return out
}
