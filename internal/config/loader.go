package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"transcribe": {"replicate", "whisper-server", "whisper-native"},
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"embeddings": {"openai", "ollama"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Platform
	switch p := cfg.Platform(); {
	case p == "":
		errs = append(errs, errors.New("no chat platform configured; set telegram.token or discord.token"))
	case !p.IsValid():
		errs = append(errs, fmt.Errorf("bot.platform %q is invalid; valid values: telegram, discord", p))
	case p == PlatformTelegram && cfg.Telegram.Token == "":
		errs = append(errs, errors.New("telegram.token is required when bot.platform is telegram"))
	case p == PlatformDiscord && cfg.Discord.Token == "":
		errs = append(errs, errors.New("discord.token is required when bot.platform is discord"))
	}
	if (cfg.Telegram.APIEndpoint == "") != (cfg.Telegram.FileEndpoint == "") {
		errs = append(errs, errors.New("telegram.api_endpoint and telegram.file_endpoint must be set together"))
	}

	// Bot
	if cfg.Bot.OwnerUsername == "" {
		slog.Warn("bot.owner_username is empty; only job requesters will be able to cancel")
	}
	if _, err := cfg.Bot.Location(); err != nil {
		errs = append(errs, fmt.Errorf("bot.timezone %q is invalid: %w", cfg.Bot.Timezone, err))
	}
	for name, d := range map[string]int64{
		"bot.update_interval":   int64(cfg.Bot.UpdateInterval),
		"bot.progress_throttle": int64(cfg.Bot.ProgressThrottle),
		"bot.download_throttle": int64(cfg.Bot.DownloadThrottle),
		"bot.submit_attempts":   int64(cfg.Bot.SubmitAttempts),
		"bot.await_retries":     int64(cfg.Bot.AwaitRetries),
		"storage.presign_ttl":   int64(cfg.Storage.PresignTTL),
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
		}
	}

	// Storage
	if cfg.Storage.Bucket == "" {
		errs = append(errs, errors.New("storage.bucket is required"))
	}
	if cfg.Storage.PublicBaseURL != "" && !strings.HasPrefix(cfg.Storage.PublicBaseURL, "http") {
		errs = append(errs, fmt.Errorf("storage.public_base_url %q must be an http(s) URL", cfg.Storage.PublicBaseURL))
	}

	// Providers
	if cfg.Providers.Transcribe.Name == "" {
		errs = append(errs, errors.New("providers.transcribe.name is required"))
	}
	validateProviderName("transcribe", cfg.Providers.Transcribe.Name)
	for i, entry := range cfg.Providers.Summary {
		if entry.Name == "" {
			errs = append(errs, fmt.Errorf("providers.summary[%d].name is required", i))
			continue
		}
		validateProviderName("llm", entry.Name)
	}
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)

	// History
	if cfg.History.EmbeddingDimensions < 0 {
		errs = append(errs, errors.New("history.embedding_dimensions must not be negative"))
	}
	if cfg.Providers.Embeddings.Name != "" && cfg.History.PostgresDSN != "" && cfg.History.EmbeddingDimensions == 0 {
		slog.Warn("providers.embeddings is configured but history.embedding_dimensions is not set; defaulting to 1536")
	}
	if cfg.History.PostgresDSN == "" {
		slog.Info("history.postgres_dsn is empty; job history is kept in memory only")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
