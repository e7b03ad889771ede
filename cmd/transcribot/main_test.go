package main

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/MrWong99/transcribot/internal/config"
)

func TestExampleConfigLoads(t *testing.T) {
	t.Parallel()
	cfg, err := config.Load("../../configs/example.yaml")
	if err != nil {
		t.Fatalf("example config: %v", err)
	}
	if cfg.Platform() != config.PlatformTelegram {
		t.Errorf("Platform() = %q, want telegram", cfg.Platform())
	}
}

func TestRegisterBuiltinProviders(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	tests := []struct {
		kind string
		want []string
	}{
		{"transcribe", []string{"replicate", "whisper-native", "whisper-server"}},
		{"embeddings", []string{"ollama", "openai"}},
	}
	for _, tt := range tests {
		got := reg.Names(tt.kind)
		if len(got) != len(tt.want) {
			t.Fatalf("Names(%q) = %v, want %v", tt.kind, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("Names(%q)[%d] = %q, want %q", tt.kind, i, got[i], tt.want[i])
			}
		}
	}
	for _, name := range config.ValidProviderNames["llm"] {
		found := false
		for _, n := range reg.Names("llm") {
			found = found || n == name
		}
		if !found {
			t.Errorf("llm provider %q not registered", name)
		}
	}
}

func TestBuildProviders(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	cfg := &config.Config{Providers: config.ProvidersConfig{
		Transcribe: config.ProviderEntry{Name: "whisper-server", BaseURL: "http://whisper:8080"},
		Summary: []config.ProviderEntry{
			{Name: "openai", APIKey: "sk-test", Model: "gpt-4o-mini"},
			{Name: "nonexistent"},
		},
		Embeddings: config.ProviderEntry{
			Name:    "ollama",
			BaseURL: "http://ollama:11434",
			Model:   "nomic-embed-text",
			Options: map[string]any{"dimensions": 768},
		},
	}}

	ps, err := buildProviders(cfg, reg)
	if err != nil {
		t.Fatalf("buildProviders: %v", err)
	}
	if ps.transcribe == nil {
		t.Error("transcribe provider is nil")
	}
	if ps.summariser == nil {
		t.Error("summariser is nil although one summary provider is valid")
	}
	if ps.embedder == nil {
		t.Fatal("embedder is nil")
	}
	if got := ps.embedder.Dimensions(); got != 768 {
		t.Errorf("embedder dimensions = %d, want 768", got)
	}
}

func TestBuildProviders_TranscribeRequired(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	cfg := &config.Config{Providers: config.ProvidersConfig{
		Transcribe: config.ProviderEntry{Name: "carrier-pigeon"},
	}}
	_, err := buildProviders(cfg, reg)
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Fatalf("expected ErrProviderNotRegistered, got %v", err)
	}
}

func TestOptInt(t *testing.T) {
	t.Parallel()
	opts := map[string]any{"a": 3, "b": int64(4), "c": 5.0, "d": "6"}
	for key, want := range map[string]int{"a": 3, "b": 4, "c": 5, "d": 0, "missing": 0} {
		if got := optInt(opts, key); got != want {
			t.Errorf("optInt(%q) = %d, want %d", key, got, want)
		}
	}
	if got := optInt(nil, "a"); got != 0 {
		t.Errorf("optInt(nil) = %d, want 0", got)
	}
	if got := optString(map[string]any{"s": "x", "n": 1}, "n"); got != "" {
		t.Errorf("optString of a number = %q, want empty", got)
	}
}

func TestApplyReload(t *testing.T) {
	t.Parallel()
	var level slog.LevelVar
	level.Set(slog.LevelInfo)

	applyReload(&level, config.ConfigDiff{RestartRequired: []string{"storage"}})
	if level.Level() != slog.LevelInfo {
		t.Errorf("level changed without a log level diff: %v", level.Level())
	}

	applyReload(&level, config.ConfigDiff{LogLevelChanged: true, NewLogLevel: config.LogDebug})
	if level.Level() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", level.Level())
	}
}
