package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/transcribot/pkg/provider/embeddings"
	"github.com/MrWong99/transcribot/pkg/provider/llm"
	"github.com/MrWong99/transcribot/pkg/provider/transcribe"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	transcribe map[string]func(ProviderEntry) (transcribe.Provider, error)
	llm        map[string]func(ProviderEntry) (llm.Provider, error)
	embeddings map[string]func(ProviderEntry) (embeddings.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		transcribe: make(map[string]func(ProviderEntry) (transcribe.Provider, error)),
		llm:        make(map[string]func(ProviderEntry) (llm.Provider, error)),
		embeddings: make(map[string]func(ProviderEntry) (embeddings.Provider, error)),
	}
}

// RegisterTranscribe registers a transcription provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterTranscribe(name string, factory func(ProviderEntry) (transcribe.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transcribe[name] = factory
}

// RegisterLLM registers an LLM provider factory under name.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// RegisterEmbeddings registers an embeddings provider factory under name.
func (r *Registry) RegisterEmbeddings(name string, factory func(ProviderEntry) (embeddings.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embeddings[name] = factory
}

// CreateTranscribe instantiates a transcription provider using the factory
// registered under entry.Name. Returns [ErrProviderNotRegistered] if no
// factory has been registered for that name.
func (r *Registry) CreateTranscribe(entry ProviderEntry) (transcribe.Provider, error) {
	r.mu.RLock()
	factory, ok := r.transcribe[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: transcribe/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateLLM instantiates an LLM provider using the factory registered under entry.Name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.llm[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateEmbeddings instantiates an embeddings provider using the factory registered under entry.Name.
func (r *Registry) CreateEmbeddings(entry ProviderEntry) (embeddings.Provider, error) {
	r.mu.RLock()
	factory, ok := r.embeddings[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: embeddings/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// Names returns the sorted provider names registered for kind, which is one
// of "transcribe", "llm" or "embeddings".
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	switch kind {
	case "transcribe":
		for n := range r.transcribe {
			names = append(names, n)
		}
	case "llm":
		for n := range r.llm {
			names = append(names, n)
		}
	case "embeddings":
		for n := range r.embeddings {
			names = append(names, n)
		}
	}
	slices.Sort(names)
	return names
}
