// Package history records every transcription job the bot runs so the owner
// can list recent jobs and search old transcripts.
//
// [MemoryStore] keeps records in process memory; history/postgres persists
// them with full-text and pgvector similarity search.
package history

import (
	"context"
	"errors"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/transcribot/pkg/provider/transcribe"
)

// ErrNotFound is returned when no record exists for a job id.
var ErrNotFound = errors.New("history: record not found")

// Record is one transcription job.
type Record struct {
	JobID    string
	Provider string
	Platform string
	ChatID   string
	Sender   string
	FileName string
	FileURL  string

	Status     transcribe.Status
	Transcript string
	Error      string

	CreatedAt  time.Time
	FinishedAt time.Time

	// Embedding is the transcript's vector representation, nil when no
	// embeddings provider is configured.
	Embedding []float32
}

// Outcome is the terminal part of a [Record], written by [Store.Finish].
type Outcome struct {
	Status     transcribe.Status
	Transcript string
	Error      string
	FinishedAt time.Time
	Embedding  []float32
}

// SearchQuery selects records for [Store.Search]. Embedding, when set, ranks
// by vector similarity; otherwise Text is matched against transcripts and
// file names.
type SearchQuery struct {
	Text      string
	Embedding []float32
	Limit     int
}

// Store persists job records. Implementations must be safe for concurrent
// use.
type Store interface {
	// Create inserts a new record, replacing any record with the same JobID.
	Create(ctx context.Context, rec Record) error

	// Finish stores the terminal outcome of jobID.
	Finish(ctx context.Context, jobID string, out Outcome) error

	// Get returns the record for jobID or [ErrNotFound].
	Get(ctx context.Context, jobID string) (Record, error)

	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]Record, error)

	// Search returns up to q.Limit matching records, best match first.
	Search(ctx context.Context, q SearchQuery) ([]Record, error)
}

// MemoryStore is an in-process [Store]. The zero value is ready to use.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// Compile-time assertion.
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (m *MemoryStore) Create(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.records == nil {
		m.records = make(map[string]Record)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	m.records[rec.JobID] = rec
	return nil
}

func (m *MemoryStore) Finish(_ context.Context, jobID string, out Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[jobID]
	if !ok {
		return ErrNotFound
	}
	rec.Status = out.Status
	rec.Transcript = out.Transcript
	rec.Error = out.Error
	rec.FinishedAt = out.FinishedAt
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = time.Now()
	}
	rec.Embedding = out.Embedding
	m.records[jobID] = rec
	return nil
}

func (m *MemoryStore) Get(_ context.Context, jobID string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[jobID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (m *MemoryStore) Recent(_ context.Context, limit int) ([]Record, error) {
	m.mu.RLock()
	all := make([]Record, 0, len(m.records))
	for _, r := range m.records {
		all = append(all, r)
	}
	m.mu.RUnlock()

	slices.SortFunc(all, func(a, b Record) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return truncate(all, limit), nil
}

func (m *MemoryStore) Search(_ context.Context, q SearchQuery) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type scored struct {
		rec   Record
		score float64
	}
	var hits []scored
	needle := strings.ToLower(strings.TrimSpace(q.Text))
	for _, r := range m.records {
		switch {
		case len(q.Embedding) > 0:
			if len(r.Embedding) != len(q.Embedding) {
				continue
			}
			hits = append(hits, scored{r, cosine(q.Embedding, r.Embedding)})
		case needle != "":
			if strings.Contains(strings.ToLower(r.Transcript), needle) ||
				strings.Contains(strings.ToLower(r.FileName), needle) {
				hits = append(hits, scored{r, float64(r.CreatedAt.UnixNano())})
			}
		}
	}
	slices.SortFunc(hits, func(a, b scored) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		}
		return 0
	})

	out := make([]Record, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.rec)
	}
	return truncate(out, q.Limit), nil
}

func truncate(recs []Record, limit int) []Record {
	if limit > 0 && len(recs) > limit {
		return recs[:limit]
	}
	return recs
}

// cosine returns the cosine similarity of a and b, which must have equal
// length. Zero vectors score 0.
func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
