package config_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/transcribot/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	old := mustLoad(t, sampleYAML)
	new := mustLoad(t, sampleYAML)

	d := config.Diff(old, new)
	if d.Changed() {
		t.Errorf("expected no changes, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := mustLoad(t, sampleYAML)
	new := mustLoad(t, sampleYAML)
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Fatal("expected LogLevelChanged")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("NewLogLevel: got %q, want %q", d.NewLogLevel, config.LogDebug)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("log level alone should not require restart, got %v", d.RestartRequired)
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   []string
	}{
		{
			name:   "listen addr",
			mutate: func(c *config.Config) { c.Server.ListenAddr = ":9191" },
			want:   []string{"server"},
		},
		{
			name:   "owner",
			mutate: func(c *config.Config) { c.Bot.OwnerUsername = "@other" },
			want:   []string{"bot"},
		},
		{
			name: "provider option",
			mutate: func(c *config.Config) {
				c.Providers.Transcribe.Options["num_speakers"] = 3
			},
			want: []string{"providers"},
		},
		{
			name: "several sections in schema order",
			mutate: func(c *config.Config) {
				c.History.EmbeddingDimensions = 1024
				c.Storage.Bucket = "other"
				c.Telegram.Token = "456:def"
			},
			want: []string{"telegram", "storage", "history"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			old := mustLoad(t, sampleYAML)
			new := mustLoad(t, sampleYAML)
			tt.mutate(new)

			d := config.Diff(old, new)
			if !slices.Equal(d.RestartRequired, tt.want) {
				t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, tt.want)
			}
			if d.LogLevelChanged {
				t.Error("LogLevelChanged should be false")
			}
			if !d.Changed() {
				t.Error("Changed() should be true")
			}
		})
	}
}
