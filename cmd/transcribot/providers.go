package main

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/transcribot/internal/config"
	"github.com/MrWong99/transcribot/internal/resilience"
	"github.com/MrWong99/transcribot/internal/summary"
	"github.com/MrWong99/transcribot/pkg/provider/embeddings"
	ollamaembed "github.com/MrWong99/transcribot/pkg/provider/embeddings/ollama"
	oaembed "github.com/MrWong99/transcribot/pkg/provider/embeddings/openai"
	"github.com/MrWong99/transcribot/pkg/provider/llm"
	"github.com/MrWong99/transcribot/pkg/provider/llm/anyllm"
	oallm "github.com/MrWong99/transcribot/pkg/provider/llm/openai"
	"github.com/MrWong99/transcribot/pkg/provider/transcribe"
	"github.com/MrWong99/transcribot/pkg/provider/transcribe/replicate"
	"github.com/MrWong99/transcribot/pkg/provider/transcribe/whisper"
)

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── Transcribe ────────────────────────────────────────────────────────────

	reg.RegisterTranscribe("replicate", func(entry config.ProviderEntry) (transcribe.Provider, error) {
		// "version" selects the model version; everything else overrides
		// model input fields.
		input := maps.Clone(entry.Options)
		delete(input, "version")
		model, err := replicate.ModelByName(entry.Model, input)
		if err != nil {
			return nil, err
		}
		return replicate.New(replicate.Config{
			Token:   entry.APIKey,
			Version: optString(entry.Options, "version"),
			Model:   model,
			BaseURL: entry.BaseURL,
		})
	})

	reg.RegisterTranscribe("whisper-server", func(entry config.ProviderEntry) (transcribe.Provider, error) {
		return whisper.NewServer(whisper.ServerConfig{
			URL:           entry.BaseURL,
			Model:         entry.Model,
			Language:      optString(entry.Options, "language"),
			Concurrency:   optInt(entry.Options, "concurrency"),
			MaxMediaBytes: int64(optInt(entry.Options, "max_media_bytes")),
		})
	})

	reg.RegisterTranscribe("whisper-native", func(entry config.ProviderEntry) (transcribe.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		return whisper.NewNative(whisper.NativeConfig{
			ModelPath:     modelPath,
			Language:      optString(entry.Options, "language"),
			Threads:       uint(max(optInt(entry.Options, "threads"), 0)),
			MaxMediaBytes: int64(optInt(entry.Options, "max_media_bytes")),
		})
	})

	// ── LLM ───────────────────────────────────────────────────────────────────

	// openai gets the dedicated client so base_url can point at any
	// OpenAI-compatible server.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oallm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(entry.BaseURL))
		}
		if _, ok := entry.Options["max_retries"]; ok {
			opts = append(opts, oallm.WithMaxRetries(optInt(entry.Options, "max_retries")))
		}
		return oallm.New(entry.APIKey, entry.Model, opts...)
	})

	for _, providerName := range anyllm.Supported {
		if providerName == "openai" {
			continue
		}
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ── Embeddings ────────────────────────────────────────────────────────────

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		if dims := optInt(entry.Options, "dimensions"); dims > 0 {
			opts = append(opts, oaembed.WithDimensions(dims))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterEmbeddings("ollama", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []ollamaembed.Option
		if dims := optInt(entry.Options, "dimensions"); dims > 0 {
			opts = append(opts, ollamaembed.WithDimensions(dims))
		}
		if ka := optString(entry.Options, "keep_alive"); ka != "" {
			opts = append(opts, ollamaembed.WithKeepAlive(ka))
		}
		return ollamaembed.New(entry.BaseURL, entry.Model, opts...)
	})

	for _, kind := range []string{"transcribe", "llm", "embeddings"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// providers holds everything built from cfg.Providers.
type providers struct {
	transcribe *resilience.GuardedProvider
	summariser summary.Summariser
	embedder   embeddings.Provider
}

// buildProviders instantiates the configured providers. The transcription
// provider is required; summaries and embeddings are optional and a broken
// optional provider is logged and skipped.
func buildProviders(cfg *config.Config, reg *config.Registry) (*providers, error) {
	ps := &providers{}

	entry := cfg.Providers.Transcribe
	tp, err := reg.CreateTranscribe(entry)
	if err != nil {
		return nil, fmt.Errorf("create transcribe provider %q: %w", entry.Name, err)
	}
	ps.transcribe = resilience.NewGuardedProvider(tp, resilience.CircuitBreakerConfig{
		Name: "transcribe/" + entry.Name,
	})
	slog.Info("provider created", "kind", "transcribe", "name", entry.Name, "model", entry.Model)

	var fallback *resilience.LLMFallback
	for i, e := range cfg.Providers.Summary {
		p, err := reg.CreateLLM(e)
		if err != nil {
			slog.Warn("summary provider unavailable, skipping", "index", i, "name", e.Name, "err", err)
			continue
		}
		name := fmt.Sprintf("%s/%s", e.Name, e.Model)
		if fallback == nil {
			fallback = resilience.NewLLMFallback(p, name, resilience.FallbackConfig{})
		} else {
			fallback.AddFallback(name, p)
		}
		slog.Info("provider created", "kind", "llm", "name", e.Name, "model", e.Model)
	}
	if fallback != nil {
		ps.summariser = summary.NewLLMSummariser(fallback)
	}

	if e := cfg.Providers.Embeddings; e.Name != "" {
		p, err := reg.CreateEmbeddings(e)
		switch {
		case errors.Is(err, config.ErrProviderNotRegistered):
			slog.Warn("embeddings provider not registered, semantic search disabled", "name", e.Name)
		case err != nil:
			slog.Warn("embeddings provider unavailable, semantic search disabled", "name", e.Name, "err", err)
		default:
			ps.embedder = p
			slog.Info("provider created", "kind", "embeddings", "name", e.Name, "model", p.ModelID(), "dimensions", p.Dimensions())
		}
	}
	return ps, nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optInt extracts an integer from a provider Options map. YAML decodes
// numbers as int or float64 depending on their notation.
func optInt(opts map[string]any, key string) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
