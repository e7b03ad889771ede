// Command transcribot runs the transcription bot on Telegram or Discord.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/MrWong99/transcribot/internal/bot"
	"github.com/MrWong99/transcribot/internal/chat"
	"github.com/MrWong99/transcribot/internal/config"
	"github.com/MrWong99/transcribot/internal/discord"
	"github.com/MrWong99/transcribot/internal/gate"
	"github.com/MrWong99/transcribot/internal/health"
	"github.com/MrWong99/transcribot/internal/history"
	"github.com/MrWong99/transcribot/internal/history/postgres"
	"github.com/MrWong99/transcribot/internal/observe"
	"github.com/MrWong99/transcribot/internal/telegram"
	"github.com/MrWong99/transcribot/internal/vocab"
	"github.com/MrWong99/transcribot/pkg/storage/s3"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// defaultEmbeddingDimensions matches text-embedding-3-small.
const defaultEmbeddingDimensions = 1536

// frontend is a chat platform that receives updates.
type frontend interface {
	chat.Platform
	Run(ctx context.Context, d *bot.Dispatcher) error
	Close() error
}

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	watch := flag.Bool("watch", true, "reload the log level when the config file changes")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "transcribot: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "transcribot: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level})))

	slog.Info("transcribot starting",
		"version", version,
		"config", *configPath,
		"platform", cfg.Platform(),
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	ps, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Storage ───────────────────────────────────────────────────────────────
	store, err := s3.New(ctx, s3.Config{
		Endpoint:      cfg.Storage.Endpoint,
		Region:        cfg.Storage.Region,
		AccessKey:     cfg.Storage.AccessKey,
		SecretKey:     cfg.Storage.SecretKey,
		Bucket:        cfg.Storage.Bucket,
		PublicBaseURL: cfg.Storage.PublicBaseURL,
		UsePathStyle:  cfg.Storage.UsePathStyle,
		PresignTTL:    cfg.Storage.PresignTTL,
		PublicRead:    cfg.Storage.PublicRead,
	})
	if err != nil {
		slog.Error("failed to create storage", "err", err)
		return 1
	}
	if err := store.EnsureBucket(ctx); err != nil {
		slog.Error("failed to prepare bucket", "bucket", cfg.Storage.Bucket, "err", err)
		return 1
	}
	checkers := []health.Checker{health.Ping("storage", store)}

	// ── History ───────────────────────────────────────────────────────────────
	var hist history.Store = history.NewMemoryStore()
	if dsn := cfg.History.PostgresDSN; dsn != "" {
		dims := 0
		if ps.embedder != nil {
			dims = cfg.History.EmbeddingDimensions
			if dims == 0 {
				dims = defaultEmbeddingDimensions
			}
		}
		pg, err := postgres.NewStore(ctx, dsn, dims)
		if err != nil {
			slog.Error("failed to open history store", "err", err)
			return 1
		}
		defer pg.Close()
		hist = pg
		checkers = append(checkers, health.Ping("history", pg))
		slog.Info("history store connected", "backend", "postgres", "vectors", dims > 0)
	}

	// ── Chat platform ─────────────────────────────────────────────────────────
	fe, err := newFrontend(cfg)
	if err != nil {
		slog.Error("failed to create chat platform", "err", err)
		return 1
	}

	loc, err := cfg.Bot.Location()
	if err != nil {
		slog.Error("invalid timezone", "err", err)
		return 1
	}

	handler, err := bot.New(bot.Config{
		Platform:     fe,
		Storage:      store,
		Provider:     ps.transcribe,
		ProviderName: cfg.Providers.Transcribe.Name,
		Gate: gate.New(gate.WithAcquireHook(func(waited time.Duration) {
			slog.Debug("admission gate acquired", "waited", waited)
		})),
		Summariser: ps.summariser,
		History:    hist,
		Embedder:   ps.embedder,
		Vocabulary: vocab.New(cfg.Bot.Vocabulary),
		Metrics:    metrics,
		Owner: bot.Owner{
			Username: cfg.Bot.OwnerUsername,
			ChatID:   cfg.Bot.OwnerChatID,
		},
		Location:         loc,
		UpdateInterval:   cfg.Bot.UpdateInterval,
		SubmitAttempts:   cfg.Bot.SubmitAttempts,
		AwaitRetries:     cfg.Bot.AwaitRetries,
		ProgressThrottle: cfg.Bot.ProgressThrottle,
		DownloadThrottle: cfg.Bot.DownloadThrottle,
		TempDir:          cfg.Bot.TempDir,
	})
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		return 1
	}
	dispatcher := bot.NewDispatcher()
	handler.Register(dispatcher)

	// ── Ops server ────────────────────────────────────────────────────────────
	var srv *http.Server
	if cfg.Server.ListenAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", tel.MetricsHandler)
		health.New(checkers...).Register(mux)
		srv = &http.Server{
			Addr:              cfg.Server.ListenAddr,
			Handler:           observe.Middleware(metrics)(mux),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("ops server error", "err", err)
				stop()
			}
		}()
		slog.Info("ops server listening", "addr", cfg.Server.ListenAddr)
	}

	// ── Config watcher ────────────────────────────────────────────────────────
	if *watch {
		w, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
			applyReload(&level, config.Diff(old, new))
		})
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			defer w.Stop()
		}
	}

	// ── Run ───────────────────────────────────────────────────────────────────
	slog.Info("bot ready, press Ctrl+C to shut down", "platform", fe.Name())
	runErr := fe.Run(ctx, dispatcher)

	slog.Info("shutdown signal received, stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := fe.Close(); err != nil {
		slog.Warn("chat platform close error", "err", err)
	}
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("ops server shutdown error", "err", err)
		}
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// newFrontend creates the platform selected by cfg.
func newFrontend(cfg *config.Config) (frontend, error) {
	switch p := cfg.Platform(); p {
	case config.PlatformTelegram:
		b, err := telegram.New(telegram.Config{
			Token:        cfg.Telegram.Token,
			APIEndpoint:  cfg.Telegram.APIEndpoint,
			FileEndpoint: cfg.Telegram.FileEndpoint,
		})
		if err != nil {
			return nil, err
		}
		slog.Info("telegram bot authorised", "username", b.Username())
		return b, nil
	case config.PlatformDiscord:
		return discord.New(discord.Config{
			Token:     cfg.Discord.Token,
			GuildID:   cfg.Discord.GuildID,
			ChannelID: cfg.Discord.ChannelID,
			RoleID:    cfg.Discord.RoleID,
		})
	default:
		return nil, fmt.Errorf("unsupported platform %q", p)
	}
}

// applyReload applies the live-reloadable part of d and reports the rest.
func applyReload(level *slog.LevelVar, d config.ConfigDiff) {
	if d.LogLevelChanged {
		level.Set(slogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("configuration changed, restart to apply", "sections", d.RestartRequired)
	}
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
