// Package telegram connects the bot to the Telegram Bot API. It owns the
// long-polling update loop, translates updates into chat values for the
// [bot.Dispatcher] and implements [chat.Platform] on top of
// go-telegram-bot-api.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/MrWong99/transcribot/internal/bot"
	"github.com/MrWong99/transcribot/internal/chat"
)

// DefaultPollTimeout is the long-polling timeout for getUpdates.
const DefaultPollTimeout = 60 * time.Second

// Config holds Telegram bot configuration.
type Config struct {
	// Token is the bot token issued by @BotFather.
	Token string `yaml:"token"`

	// APIEndpoint overrides the Bot API endpoint, e.g. for a self-hosted
	// telegram-bot-api server that lifts the 20 MB download limit. It is a
	// format string taking the token and the method name.
	APIEndpoint string `yaml:"api_endpoint"`

	// FileEndpoint overrides the file download endpoint. It is a format
	// string taking the token and the file path.
	FileEndpoint string `yaml:"file_endpoint"`

	// PollTimeout is the getUpdates long-polling timeout.
	PollTimeout time.Duration `yaml:"poll_timeout"`

	// HTTPClient is used for API calls and downloads. Defaults to a client
	// without timeout, since downloads of large media can take minutes.
	HTTPClient *http.Client `yaml:"-"`
}

// Bot owns the Telegram connection and implements [chat.Platform].
type Bot struct {
	api          *tgbotapi.BotAPI
	client       *http.Client
	fileEndpoint string
	pollTimeout  time.Duration

	wg       sync.WaitGroup
	stopOnce sync.Once
}

var _ chat.Platform = (*Bot)(nil)

// New creates a Bot and verifies the token with a getMe call.
func New(cfg Config) (*Bot, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram: token is required")
	}
	if cfg.APIEndpoint == "" {
		cfg.APIEndpoint = tgbotapi.APIEndpoint
	}
	if cfg.FileEndpoint == "" {
		cfg.FileEndpoint = tgbotapi.FileEndpoint
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultPollTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}

	api, err := tgbotapi.NewBotAPIWithClient(cfg.Token, cfg.APIEndpoint, cfg.HTTPClient)
	if err != nil {
		return nil, fmt.Errorf("telegram: connect: %w", translate(err))
	}
	slog.Info("telegram: authorized", "username", api.Self.UserName)

	return &Bot{
		api:          api,
		client:       cfg.HTTPClient,
		fileEndpoint: cfg.FileEndpoint,
		pollTimeout:  cfg.PollTimeout,
	}, nil
}

// Name returns "telegram".
func (b *Bot) Name() string { return "telegram" }

// Username returns the bot's own username without "@".
func (b *Bot) Username() string { return b.api.Self.UserName }

// Run polls for updates and hands each one to d in its own goroutine, so a
// long transcription never blocks cancel callbacks. It blocks until ctx is
// cancelled and then waits for in-flight handlers to return.
func (b *Bot) Run(ctx context.Context, d *bot.Dispatcher) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = int(b.pollTimeout / time.Second)
	u.AllowedUpdates = []string{"message", "callback_query"}
	updates := b.api.GetUpdatesChan(u)

	defer b.wg.Wait()
	defer b.stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case upd, ok := <-updates:
			if !ok {
				return errors.New("telegram: update channel closed")
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.handle(ctx, d, upd)
			}()
		}
	}
}

// Close stops the update loop. It is safe to call more than once.
func (b *Bot) Close() error {
	b.stop()
	return nil
}

func (b *Bot) stop() {
	b.stopOnce.Do(func() {
		b.api.StopReceivingUpdates()
		slog.Info("telegram: stopped receiving updates")
	})
}

func (b *Bot) handle(ctx context.Context, d *bot.Dispatcher, upd tgbotapi.Update) {
	switch {
	case upd.CallbackQuery != nil:
		cb := callbackFromQuery(upd.CallbackQuery)
		res := d.DispatchCallback(ctx, cb)
		if !res.Done() {
			// Unclaimed callbacks still need an answer or the client spins.
			if err := b.AnswerCallback(ctx, cb, ""); err != nil {
				slog.Warn("telegram: answer callback failed", "err", err)
			}
		}
		slog.Debug("telegram: callback handled", "update_id", upd.UpdateID, "result", res)
	case upd.Message != nil:
		res := d.DispatchMessage(ctx, messageFromTelegram(upd.Message))
		slog.Debug("telegram: message handled", "update_id", upd.UpdateID, "result", res)
	}
}

func messageFromTelegram(m *tgbotapi.Message) chat.Message {
	msg := chat.Message{
		Ref:    chat.MessageRef{ChatID: formatID(m.Chat.ID), MessageID: strconv.Itoa(m.MessageID)},
		Sender: userFromTelegram(m.From),
		Text:   m.Text,
	}
	if msg.Text == "" {
		msg.Text = m.Caption
	}

	switch {
	case m.Voice != nil:
		msg.Media = &chat.Media{
			Kind:     chat.MediaVoice,
			FileID:   m.Voice.FileID,
			MimeType: m.Voice.MimeType,
			Size:     int64(m.Voice.FileSize),
			Duration: seconds(m.Voice.Duration),
		}
	case m.Audio != nil:
		msg.Media = &chat.Media{
			Kind:     chat.MediaAudio,
			FileID:   m.Audio.FileID,
			FileName: m.Audio.FileName,
			MimeType: m.Audio.MimeType,
			Size:     int64(m.Audio.FileSize),
			Duration: seconds(m.Audio.Duration),
		}
	case m.Video != nil:
		msg.Media = &chat.Media{
			Kind:     chat.MediaVideo,
			FileID:   m.Video.FileID,
			FileName: m.Video.FileName,
			MimeType: m.Video.MimeType,
			Size:     int64(m.Video.FileSize),
			Duration: seconds(m.Video.Duration),
		}
	case m.VideoNote != nil:
		msg.Media = &chat.Media{
			Kind:     chat.MediaVideoNote,
			FileID:   m.VideoNote.FileID,
			Size:     int64(m.VideoNote.FileSize),
			Duration: seconds(m.VideoNote.Duration),
		}
	case m.Document != nil:
		msg.Media = &chat.Media{
			Kind:     chat.MediaDocument,
			FileID:   m.Document.FileID,
			FileName: m.Document.FileName,
			MimeType: m.Document.MimeType,
			Size:     int64(m.Document.FileSize),
		}
	}
	return msg
}

func callbackFromQuery(q *tgbotapi.CallbackQuery) chat.Callback {
	cb := chat.Callback{ID: q.ID, Data: q.Data, From: userFromTelegram(q.From)}
	if q.Message != nil && q.Message.Chat != nil {
		cb.Message = chat.MessageRef{ChatID: formatID(q.Message.Chat.ID), MessageID: strconv.Itoa(q.Message.MessageID)}
	}
	return cb
}

func userFromTelegram(u *tgbotapi.User) chat.User {
	if u == nil {
		return chat.User{}
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.UserName
	}
	return chat.User{ID: formatID(u.ID), DisplayName: name, Username: u.UserName}
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func formatID(id int64) string { return strconv.FormatInt(id, 10) }
