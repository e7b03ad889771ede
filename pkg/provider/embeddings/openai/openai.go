// Package openai embeds transcripts through the OpenAI embeddings endpoint or
// any server that mirrors it.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/MrWong99/transcribot/pkg/provider/embeddings"
)

// DefaultModel is used when New gets an empty model name.
const DefaultModel = oai.EmbeddingModelTextEmbedding3Small

var _ embeddings.Provider = (*Provider)(nil)

// Provider holds an OpenAI client bound to one embedding model.
type Provider struct {
	client oai.Client
	model  string
	dims   int // requested vector length, 0 for the model default
}

// Option customises a [Provider].
type Option func(*builder)

type builder struct {
	req  []option.RequestOption
	dims int
}

// WithBaseURL points the client at an OpenAI-compatible server.
func WithBaseURL(url string) Option {
	return func(b *builder) { b.req = append(b.req, option.WithBaseURL(url)) }
}

// WithOrganization sends the OpenAI-Organization header.
func WithOrganization(org string) Option {
	return func(b *builder) { b.req = append(b.req, option.WithOrganization(org)) }
}

// WithTimeout limits each HTTP request. Zero keeps the SDK default.
func WithTimeout(d time.Duration) Option {
	return func(b *builder) {
		if d > 0 {
			b.req = append(b.req, option.WithHTTPClient(&http.Client{Timeout: d}))
		}
	}
}

// WithMaxRetries sets how often the SDK retries rate limited or failed
// requests.
func WithMaxRetries(n int) Option {
	return func(b *builder) { b.req = append(b.req, option.WithMaxRetries(n)) }
}

// WithDimensions shortens vectors to dims. Only the text-embedding-3 models
// honour it, and it has to agree with the history vector column.
func WithDimensions(dims int) Option {
	return func(b *builder) { b.dims = dims }
}

// New returns a Provider. An empty model selects [DefaultModel].
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai embeddings: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	b := builder{req: []option.RequestOption{option.WithAPIKey(apiKey)}}
	for _, opt := range opts {
		opt(&b)
	}
	if b.dims < 0 {
		return nil, fmt.Errorf("openai embeddings: dimensions must not be negative, got %d", b.dims)
	}

	return &Provider{
		client: oai.NewClient(b.req...),
		model:  model,
		dims:   b.dims,
	}, nil
}

// Embed returns the vector for text.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.create(ctx, oai.EmbeddingNewParamsInputUnion{OfString: param.NewOpt(text)}, 1)
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: embed: %w", err)
	}
	return vecs[0], nil
}

// EmbedBatch returns one vector per text in a single request.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := p.create(ctx, oai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts}, len(texts))
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: embed batch: %w", err)
	}
	return vecs, nil
}

// create sends one request and orders the returned vectors by their index.
func (p *Provider) create(ctx context.Context, input oai.EmbeddingNewParamsInputUnion, n int) ([][]float32, error) {
	req := oai.EmbeddingNewParams{Model: p.model, Input: input}
	if p.dims > 0 {
		req.Dimensions = param.NewOpt(int64(p.dims))
	}

	resp, err := p.client.Embeddings.New(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != n {
		return nil, fmt.Errorf("got %d embeddings for %d inputs", len(resp.Data), n)
	}

	out := make([][]float32, n)
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= n || out[d.Index] != nil {
			return nil, fmt.Errorf("bad embedding index %d", d.Index)
		}
		vec := make([]float32, len(d.Embedding))
		for i, x := range d.Embedding {
			vec[i] = float32(x)
		}
		out[d.Index] = vec
	}
	return out, nil
}

// Dimensions reports the requested length, or the model default.
func (p *Provider) Dimensions() int {
	if p.dims > 0 {
		return p.dims
	}
	if strings.Contains(strings.ToLower(p.model), "text-embedding-3-large") {
		return 3072
	}
	// text-embedding-3-small, ada-002 and anything unknown.
	return 1536
}

// ModelID returns the model name sent with each request.
func (p *Provider) ModelID() string { return p.model }
