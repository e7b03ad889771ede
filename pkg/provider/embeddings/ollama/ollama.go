// Package ollama embeds transcripts with a self-hosted Ollama server, using
// its native /api/embed endpoint. No API key is involved, which makes it the
// usual choice when history must not leave the machine.
//
//	p, err := ollama.New("", "nomic-embed-text") // http://localhost:11434
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/transcribot/pkg/provider/embeddings"
)

// DefaultBaseURL is where a local Ollama listens unless configured otherwise.
const DefaultBaseURL = "http://localhost:11434"

// probeTimeout bounds the request Dimensions sends for models whose vector
// length is not known up front.
const probeTimeout = 30 * time.Second

// modelDimensions lists vector lengths of popular Ollama embedding models by
// name prefix.
var modelDimensions = []struct {
	prefix string
	dims   int
}{
	{"nomic-embed-text", 768},
	{"mxbai-embed-large", 1024},
	{"all-minilm", 384},
	{"snowflake-arctic-embed", 1024},
	{"bge-m3", 1024},
}

var _ embeddings.Provider = (*Provider)(nil)

// Provider talks to one Ollama model.
type Provider struct {
	endpoint  string
	model     string
	keepAlive string
	client    *http.Client

	mu   sync.Mutex
	dims int
}

// Option customises a [Provider].
type Option func(*Provider)

// WithTimeout limits each HTTP request. Zero means no limit.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.client.Timeout = d }
}

// WithDimensions fixes the vector length and skips the probe request.
func WithDimensions(dims int) Option {
	return func(p *Provider) { p.dims = dims }
}

// WithKeepAlive tells Ollama how long to keep the model loaded after a
// request, e.g. "10m" or "-1" for forever.
func WithKeepAlive(d string) Option {
	return func(p *Provider) { p.keepAlive = d }
}

// New returns a Provider for model. baseURL defaults to [DefaultBaseURL].
func New(baseURL, model string, opts ...Option) (*Provider, error) {
	if model == "" {
		return nil, errors.New("ollama embeddings: model must not be empty")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	p := &Provider{
		endpoint: strings.TrimRight(baseURL, "/") + "/api/embed",
		model:    model,
		client:   &http.Client{},
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.dims == 0 {
		p.dims = lookupDimensions(model)
	}
	return p, nil
}

// Embed returns the vector for text.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("ollama embeddings: embed: %w", err)
	}
	return vecs[0], nil
}

// EmbedBatch returns one vector per text in a single request.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := p.embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("ollama embeddings: embed batch: %w", err)
	}
	return vecs, nil
}

// Dimensions reports the vector length. Unknown models are probed once; if
// the server cannot be reached the result is 0 and the next call tries again.
func (p *Provider) Dimensions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dims > 0 {
		return p.dims
	}

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()
	if vecs, err := p.embed(ctx, []string{"dimension probe"}); err == nil {
		p.dims = len(vecs[0])
	}
	return p.dims
}

// ModelID returns the Ollama model name.
func (p *Provider) ModelID() string { return p.model }

// embed posts texts and guarantees exactly len(texts) vectors on success.
func (p *Provider) embed(ctx context.Context, texts []string) ([][]float32, error) {
	payload, err := json.Marshal(struct {
		Model     string   `json:"model"`
		Input     []string `json:"input"`
		KeepAlive string   `json:"keep_alive,omitempty"`
	}{p.model, texts, p.keepAlive})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Embeddings) != len(texts) {
		return nil, fmt.Errorf("got %d embeddings for %d inputs", len(out.Embeddings), len(texts))
	}
	return out.Embeddings, nil
}

func lookupDimensions(model string) int {
	name := strings.ToLower(model)
	for _, m := range modelDimensions {
		if strings.HasPrefix(name, m.prefix) {
			return m.dims
		}
	}
	return 0
}
