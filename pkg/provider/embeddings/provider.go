// Package embeddings defines the Provider interface for text embedding
// backends and the helpers the history index uses to embed transcripts.
//
// Implementations must be safe for concurrent use.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Provider maps text to dense float32 vectors.
//
// All vectors returned by one Provider share the length reported by
// Dimensions. Vectors from different providers must not be compared.
type Provider interface {
	// Embed computes the embedding vector for a single text string.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds texts in one call. result[i] corresponds to texts[i].
	// On error no partial results are returned.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed vector length of this provider.
	Dimensions() int

	// ModelID returns the backend model identifier, e.g.
	// "text-embedding-3-small".
	ModelID() string
}

// DefaultChunkRunes is the chunk size used by Document when chunkRunes <= 0.
// It keeps a chunk comfortably under the 8k token input limit of common
// embedding models.
const DefaultChunkRunes = 6000

// Document embeds a possibly long transcript. The text is split on line
// boundaries into chunks of at most chunkRunes runes, the chunks are embedded
// in one batch and the mean vector is returned.
func Document(ctx context.Context, p Provider, text string, chunkRunes int) ([]float32, error) {
	chunks := Chunk(text, chunkRunes)
	if len(chunks) == 0 {
		return nil, errors.New("embeddings: empty document")
	}
	if len(chunks) == 1 {
		return p.Embed(ctx, chunks[0])
	}

	vecs, err := p.EmbedBatch(ctx, chunks)
	if err != nil {
		return nil, err
	}
	return Mean(vecs)
}

// Chunk splits text into pieces of at most size runes, preferring to break
// between lines. A single line longer than size is hard-split.
func Chunk(text string, size int) []string {
	if size <= 0 {
		size = DefaultChunkRunes
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var (
		chunks []string
		cur    []rune
	)
	flush := func() {
		if s := strings.TrimSpace(string(cur)); s != "" {
			chunks = append(chunks, s)
		}
		cur = cur[:0]
	}
	for _, line := range strings.SplitAfter(text, "\n") {
		r := []rune(line)
		if len(cur)+len(r) > size {
			flush()
		}
		for len(r) > size {
			chunks = append(chunks, string(r[:size]))
			r = r[size:]
		}
		cur = append(cur, r...)
	}
	flush()
	return chunks
}

// Mean returns the element-wise average of vecs. All vectors must have the
// same length.
func Mean(vecs [][]float32) ([]float32, error) {
	if len(vecs) == 0 {
		return nil, errors.New("embeddings: no vectors")
	}
	out := make([]float32, len(vecs[0]))
	for i, v := range vecs {
		if len(v) != len(out) {
			return nil, fmt.Errorf("embeddings: vector %d has %d dimensions, want %d", i, len(v), len(out))
		}
		for j, x := range v {
			out[j] += x
		}
	}
	n := float32(len(vecs))
	for j := range out {
		out[j] /= n
	}
	return out, nil
}
