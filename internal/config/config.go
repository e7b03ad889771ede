// Package config provides the configuration schema, loader, hot-reload
// watcher and provider registry for transcribot.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Platform selects the chat front end.
type Platform string

const (
	PlatformTelegram Platform = "telegram"
	PlatformDiscord  Platform = "discord"
)

// IsValid reports whether p is a recognised platform.
func (p Platform) IsValid() bool {
	return p == PlatformTelegram || p == PlatformDiscord
}

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Bot       BotConfig       `yaml:"bot"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Discord   DiscordConfig   `yaml:"discord"`
	Storage   StorageConfig   `yaml:"storage"`
	Providers ProvidersConfig `yaml:"providers"`
	History   HistoryConfig   `yaml:"history"`
}

// Platform returns the configured front end. When bot.platform is empty the
// first platform with a token wins, Telegram before Discord.
func (c *Config) Platform() Platform {
	switch {
	case c.Bot.Platform != "":
		return c.Bot.Platform
	case c.Telegram.Token != "":
		return PlatformTelegram
	case c.Discord.Token != "":
		return PlatformDiscord
	}
	return ""
}

// ServerConfig holds the operations endpoint and logging settings.
type ServerConfig struct {
	// ListenAddr is the address of the /metrics, /healthz and /readyz
	// endpoints (e.g., ":9090"). Empty disables the endpoint.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. It is applied on hot reload.
	LogLevel LogLevel `yaml:"log_level"`
}

// BotConfig tunes request handling. Zero values select the handler defaults.
type BotConfig struct {
	// Platform selects the front end. See [Config.Platform].
	Platform Platform `yaml:"platform"`

	// OwnerUsername identifies the owner, with or without "@".
	OwnerUsername string `yaml:"owner_username"`

	// OwnerChatID is where activity is mirrored. Empty disables mirroring.
	OwnerChatID string `yaml:"owner_chat_id"`

	// UpdateInterval is the provider polling period while a job runs.
	UpdateInterval time.Duration `yaml:"update_interval"`

	// Timezone names the IANA zone used for upload timestamps (e.g.,
	// "Europe/Berlin"). Empty means the local zone.
	Timezone string `yaml:"timezone"`

	// SubmitAttempts is the total number of submission attempts.
	SubmitAttempts int `yaml:"submit_attempts"`

	// AwaitRetries is how many transient await failures are tolerated.
	AwaitRetries int `yaml:"await_retries"`

	// ProgressThrottle is the minimum gap between job progress edits.
	ProgressThrottle time.Duration `yaml:"progress_throttle"`

	// DownloadThrottle is the minimum gap between download progress edits.
	DownloadThrottle time.Duration `yaml:"download_throttle"`

	// TempDir holds downloads while a request runs. Empty uses the OS default.
	TempDir string `yaml:"temp_dir"`

	// Vocabulary lists names and jargon that transcripts are corrected
	// towards (e.g., "Kubernetes", "Tower of Whispers").
	Vocabulary []string `yaml:"vocabulary"`
}

// Location resolves Timezone.
func (b BotConfig) Location() (*time.Location, error) {
	if b.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(b.Timezone)
}

// TelegramConfig holds Telegram Bot API settings.
type TelegramConfig struct {
	Token string `yaml:"token"`

	// APIEndpoint points at a self-hosted Bot API server, as a format string
	// taking the token and method, e.g. "http://bot-api:8081/bot%s/%s".
	APIEndpoint string `yaml:"api_endpoint"`

	// FileEndpoint is the matching file download format string.
	FileEndpoint string `yaml:"file_endpoint"`
}

// DiscordConfig holds Discord gateway settings.
type DiscordConfig struct {
	Token     string `yaml:"token"`
	GuildID   string `yaml:"guild_id"`
	ChannelID string `yaml:"channel_id"`
	RoleID    string `yaml:"role_id"`
}

// StorageConfig describes the S3-compatible bucket media is uploaded to.
type StorageConfig struct {
	Endpoint      string        `yaml:"endpoint"`
	Region        string        `yaml:"region"`
	AccessKey     string        `yaml:"access_key"`
	SecretKey     string        `yaml:"secret_key"`
	Bucket        string        `yaml:"bucket"`
	PublicBaseURL string        `yaml:"public_base_url"`
	UsePathStyle  bool          `yaml:"use_path_style"`
	PresignTTL    time.Duration `yaml:"presign_ttl"`
	PublicRead    bool          `yaml:"public_read"`
}

// ProvidersConfig selects the registered provider implementations.
type ProvidersConfig struct {
	// Transcribe is the job provider. Required.
	Transcribe ProviderEntry `yaml:"transcribe"`

	// Summary lists LLM backends for meeting minutes, primary first. Empty
	// disables summaries.
	Summary []ProviderEntry `yaml:"summary"`

	// Embeddings enables semantic history search when set.
	Embeddings ProviderEntry `yaml:"embeddings"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "replicate", "openai").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// HistoryConfig configures the job history store.
type HistoryConfig struct {
	// PostgresDSN selects the pgvector-backed store. Empty keeps history in
	// memory for the lifetime of the process.
	PostgresDSN string `yaml:"postgres_dsn"`

	// EmbeddingDimensions is the vector size of the embeddings column. Must
	// match the model configured in providers.embeddings.
	EmbeddingDimensions int `yaml:"embedding_dimensions"`
}
