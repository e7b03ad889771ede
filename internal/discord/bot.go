// Package discord connects the bot to Discord. It owns the
// discordgo.Session lifecycle, turns messages with attachments into chat
// messages, routes button interactions through a [ComponentRouter] and
// implements [chat.Platform].
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/transcribot/internal/bot"
	"github.com/MrWong99/transcribot/internal/chat"
)

// buttonPrefix namespaces the custom_id of buttons created through
// [chat.Button]; the remainder is the button's Data.
const buttonPrefix = "btn:"

// Config holds Discord bot configuration.
type Config struct {
	// Token is the Discord bot token without the "Bot " prefix.
	Token string `yaml:"token"`

	// GuildID restricts the bot to one guild. Empty accepts every guild.
	GuildID string `yaml:"guild_id"`

	// ChannelID restricts guild messages to one channel. Direct messages are
	// accepted unless RoleID is set.
	ChannelID string `yaml:"channel_id"`

	// RoleID, if set, is required on the member sending a message.
	RoleID string `yaml:"role_id"`

	// HTTPClient downloads attachments. Defaults to a client without timeout.
	HTTPClient *http.Client `yaml:"-"`
}

// Bot owns the Discord gateway connection and implements [chat.Platform].
type Bot struct {
	session   *discordgo.Session
	responder Responder
	router    *ComponentRouter
	perms     *PermissionChecker
	client    *http.Client
	guildID   string
	channelID string

	mu      sync.Mutex
	pending map[string]*discordgo.Interaction

	wg        sync.WaitGroup
	closeOnce sync.Once
}

var _ chat.Platform = (*Bot)(nil)

// New creates a Bot. The gateway connection is opened by [Bot.Run].
func New(cfg Config) (*Bot, error) {
	if cfg.Token == "" {
		return nil, errors.New("discord: token is required")
	}
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentGuildMessages |
		discordgo.IntentDirectMessages |
		discordgo.IntentMessageContent
	// Edits must fail fast on rate limits so progress updates are dropped
	// instead of piling up behind the limiter.
	session.ShouldRetryOnRateLimit = false

	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}

	return &Bot{
		session:   session,
		responder: session,
		router:    NewComponentRouter(),
		perms:     NewPermissionChecker(cfg.RoleID),
		client:    cfg.HTTPClient,
		guildID:   cfg.GuildID,
		channelID: cfg.ChannelID,
		pending:   make(map[string]*discordgo.Interaction),
	}, nil
}

// Name returns "discord".
func (b *Bot) Name() string { return "discord" }

// Router returns the component router for registering button handlers.
func (b *Bot) Router() *ComponentRouter { return b.router }

// Run opens the gateway, feeds messages and button presses to d and blocks
// until ctx is cancelled. Discord delivers every event on its own goroutine.
func (b *Bot) Run(ctx context.Context, d *bot.Dispatcher) error {
	b.router.RegisterComponentPrefix(buttonPrefix, b.buttonHandler(ctx, d))

	removeMsg := b.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if !b.accept(s, m) {
			return
		}
		b.wg.Add(1)
		defer b.wg.Done()
		res := d.DispatchMessage(ctx, messageFromDiscord(m.Message))
		slog.Debug("discord: message handled", "message_id", m.ID, "result", res)
	})
	removeInter := b.session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		b.wg.Add(1)
		defer b.wg.Done()
		b.router.Handle(s, i)
	})

	if err := b.session.Open(); err != nil {
		removeMsg()
		removeInter()
		return fmt.Errorf("discord: open session: %w", err)
	}
	slog.Info("discord: connected", "user", b.session.State.User.Username)

	<-ctx.Done()
	removeMsg()
	removeInter()
	b.wg.Wait()
	return ctx.Err()
}

// Close disconnects from Discord.
func (b *Bot) Close() error {
	var closeErr error
	b.closeOnce.Do(func() {
		if err := b.session.Close(); err != nil {
			closeErr = fmt.Errorf("discord: close session: %w", err)
		}
		slog.Info("discord: bot closed")
	})
	return closeErr
}

// accept filters out bot authors and messages outside the configured guild
// and channel.
func (b *Bot) accept(s *discordgo.Session, m *discordgo.MessageCreate) bool {
	if m.Author == nil || m.Author.Bot {
		return false
	}
	if s != nil && s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID {
		return false
	}
	if m.GuildID == "" {
		return b.perms.roleID == ""
	}
	if b.guildID != "" && m.GuildID != b.guildID {
		return false
	}
	if b.channelID != "" && m.ChannelID != b.channelID {
		return false
	}
	return b.perms.Allowed(m.Member)
}

func (b *Bot) buttonHandler(ctx context.Context, d *bot.Dispatcher) HandlerFunc {
	return func(_ Responder, i *discordgo.InteractionCreate) {
		cb := callbackFromInteraction(i)
		b.remember(i.Interaction)
		if res := d.DispatchCallback(ctx, cb); !res.Done() {
			if err := b.AnswerCallback(ctx, cb, ""); err != nil {
				slog.Warn("discord: answer callback failed", "err", err)
			}
		}
	}
}

// remember keeps i until it is answered through [Bot.AnswerCallback].
func (b *Bot) remember(i *discordgo.Interaction) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending[i.ID] = i
}

func (b *Bot) take(id string) *discordgo.Interaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.pending[id]
	delete(b.pending, id)
	return i
}

func messageFromDiscord(m *discordgo.Message) chat.Message {
	msg := chat.Message{
		Ref:  chat.MessageRef{ChatID: m.ChannelID, MessageID: m.ID},
		Text: m.Content,
	}
	if m.Author != nil {
		msg.Sender = userFromDiscord(m.Author)
	}
	if len(m.Attachments) > 0 {
		msg.Media = mediaFromAttachment(m.Attachments[0])
	}
	return msg
}

func callbackFromInteraction(i *discordgo.InteractionCreate) chat.Callback {
	cb := chat.Callback{ID: i.ID}
	if i.Type == discordgo.InteractionMessageComponent {
		cb.Data = strings.TrimPrefix(i.MessageComponentData().CustomID, buttonPrefix)
	}
	if i.Message != nil {
		cb.Message = chat.MessageRef{ChatID: i.ChannelID, MessageID: i.Message.ID}
	}
	switch {
	case i.Member != nil && i.Member.User != nil:
		cb.From = userFromDiscord(i.Member.User)
	case i.User != nil:
		cb.From = userFromDiscord(i.User)
	}
	return cb
}

func userFromDiscord(u *discordgo.User) chat.User {
	name := u.GlobalName
	if name == "" {
		name = u.Username
	}
	return chat.User{ID: u.ID, DisplayName: name, Username: u.Username}
}
