package discord

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/transcribot/internal/bot"
	"github.com/MrWong99/transcribot/internal/chat"
	"github.com/MrWong99/transcribot/internal/discord/mock"
)

func newTestBot(t *testing.T, cfg Config) (*Bot, *mock.InteractionResponder) {
	t.Helper()
	if cfg.Token == "" {
		cfg.Token = "test-token"
	}
	b, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	resp := &mock.InteractionResponder{}
	b.responder = resp
	return b, resp
}

func buttonPress(id, customID string) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			ID:        id,
			Type:      discordgo.InteractionMessageComponent,
			ChannelID: "chan-1",
			Message:   &discordgo.Message{ID: "msg-1"},
			Member:    &discordgo.Member{User: &discordgo.User{ID: "u1", Username: "alice", GlobalName: "Alice"}},
			Data:      discordgo.MessageComponentInteractionData{CustomID: customID},
		},
	}
}

func TestNew_RequiresToken(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{}); err == nil {
		t.Error("expected error for empty token")
	}
}

func TestPermissionChecker_Allowed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		roleID string
		member *discordgo.Member
		want   bool
	}{
		{"member with role", "role-123", &discordgo.Member{Roles: []string{"role-456", "role-123"}}, true},
		{"member without role", "role-123", &discordgo.Member{Roles: []string{"role-456"}}, false},
		{"no role required", "", &discordgo.Member{}, true},
		{"direct message, no role required", "", nil, true},
		{"direct message, role required", "role-123", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := NewPermissionChecker(tt.roleID).Allowed(tt.member); got != tt.want {
				t.Errorf("Allowed() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDetectKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		filename    string
		contentType string
		want        chat.MediaKind
	}{
		{"voice-message.ogg", "audio/ogg", chat.MediaVoice},
		{"talk.bin", "audio/mpeg", chat.MediaAudio},
		{"clip", "video/mp4", chat.MediaVideo},
		{"MEETING.M4A", "", chat.MediaAudio},
		{"screen.webm", "", chat.MediaVideo},
		{"notes.pdf", "application/pdf", chat.MediaDocument},
		{"", "", chat.MediaDocument},
	}
	for _, tt := range tests {
		if got := DetectKind(tt.filename, tt.contentType); got != tt.want {
			t.Errorf("DetectKind(%q, %q) = %v, want %v", tt.filename, tt.contentType, got, tt.want)
		}
	}
}

func TestMessageFromDiscord(t *testing.T) {
	t.Parallel()

	m := &discordgo.Message{
		ID:        "m1",
		ChannelID: "c1",
		Content:   "please transcribe",
		Author:    &discordgo.User{ID: "u1", Username: "alice"},
		Attachments: []*discordgo.MessageAttachment{
			{ID: "a1", Filename: "voice-message.ogg", ContentType: "audio/ogg", Size: 2048, URL: "https://cdn.example/a1/voice-message.ogg"},
			{ID: "a2", Filename: "ignored.mp3"},
		},
	}
	got := messageFromDiscord(m)
	if got.Ref != (chat.MessageRef{ChatID: "c1", MessageID: "m1"}) || got.Text != "please transcribe" {
		t.Errorf("message = %+v", got)
	}
	if got.Sender != (chat.User{ID: "u1", DisplayName: "alice", Username: "alice"}) {
		t.Errorf("sender = %+v", got.Sender)
	}
	want := chat.Media{Kind: chat.MediaVoice, FileID: "a1", MimeType: "audio/ogg", Size: 2048, URL: "https://cdn.example/a1/voice-message.ogg"}
	if got.Media == nil || *got.Media != want {
		t.Errorf("media = %+v, want %+v", got.Media, want)
	}

	if plain := messageFromDiscord(&discordgo.Message{ID: "m2", ChannelID: "c1", Content: "/help"}); plain.Media != nil {
		t.Errorf("plain message has media %+v", plain.Media)
	}
}

func TestCallbackFromInteraction(t *testing.T) {
	t.Parallel()

	got := callbackFromInteraction(buttonPress("i1", "btn:job-7"))
	want := chat.Callback{
		ID:      "i1",
		Data:    "job-7",
		Message: chat.MessageRef{ChatID: "chan-1", MessageID: "msg-1"},
		From:    chat.User{ID: "u1", DisplayName: "Alice", Username: "alice"},
	}
	if got != want {
		t.Errorf("callback = %+v, want %+v", got, want)
	}
}

func TestComponentRouter(t *testing.T) {
	t.Parallel()

	var hits []string
	r := NewComponentRouter()
	r.RegisterComponent("btn:exact", func(_ Responder, _ *discordgo.InteractionCreate) { hits = append(hits, "exact") })
	r.RegisterComponentPrefix("btn:", func(_ Responder, _ *discordgo.InteractionCreate) { hits = append(hits, "prefix") })

	resp := &mock.InteractionResponder{}
	r.Handle(resp, buttonPress("1", "btn:exact"))
	r.Handle(resp, buttonPress("2", "btn:job-1"))
	r.Handle(resp, buttonPress("3", "other"))
	r.Handle(resp, &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{Type: discordgo.InteractionPing}})

	if strings.Join(hits, ",") != "exact,prefix" {
		t.Errorf("hits = %v", hits)
	}
	last := resp.LastResponse()
	if len(resp.Responses()) != 1 || last.Data == nil || last.Data.Content != "Unknown component." || last.Data.Flags != discordgo.MessageFlagsEphemeral {
		t.Errorf("responses = %+v", resp.Responses())
	}
}

func TestButtonHandler_AnswersUnclaimedPress(t *testing.T) {
	t.Parallel()

	b, resp := newTestBot(t, Config{})
	h := b.buttonHandler(context.Background(), bot.NewDispatcher())
	h(resp, buttonPress("i1", "btn:job-1"))

	last := resp.LastResponse()
	if last == nil || last.Type != discordgo.InteractionResponseDeferredMessageUpdate {
		t.Fatalf("response = %+v, want deferred update", last)
	}
	if resp.LastInteraction().ID != "i1" {
		t.Errorf("answered interaction %q", resp.LastInteraction().ID)
	}
}

func TestButtonHandler_HandlerAnswers(t *testing.T) {
	t.Parallel()

	b, resp := newTestBot(t, Config{})
	d := bot.NewDispatcher()
	var got chat.Callback
	d.OnCallback(func(ctx context.Context, cb chat.Callback) bot.Result {
		got = cb
		if err := b.AnswerCallback(ctx, cb, "This transcription no longer runs."); err != nil {
			t.Errorf("AnswerCallback: %v", err)
		}
		return bot.Handled
	})
	b.buttonHandler(context.Background(), d)(resp, buttonPress("i2", "btn:job-2"))

	if got.Data != "job-2" {
		t.Errorf("callback data = %q", got.Data)
	}
	if n := len(resp.Responses()); n != 1 {
		t.Fatalf("responses = %d, want 1", n)
	}
	if c := resp.LastResponse().Data.Content; c != "This transcription no longer runs." {
		t.Errorf("content = %q", c)
	}

	// The interaction is forgotten once answered.
	if err := b.AnswerCallback(context.Background(), got, ""); err == nil {
		t.Error("second answer should fail")
	}
}

func TestAccept(t *testing.T) {
	t.Parallel()

	msg := func(guild, channel string, author *discordgo.User, member *discordgo.Member) *discordgo.MessageCreate {
		return &discordgo.MessageCreate{Message: &discordgo.Message{GuildID: guild, ChannelID: channel, Author: author, Member: member}}
	}
	alice := &discordgo.User{ID: "u1", Username: "alice"}
	robot := &discordgo.User{ID: "u2", Username: "robot", Bot: true}
	withRole := &discordgo.Member{Roles: []string{"r1"}}

	tests := []struct {
		name string
		cfg  Config
		m    *discordgo.MessageCreate
		want bool
	}{
		{"guild message", Config{}, msg("g1", "c1", alice, &discordgo.Member{}), true},
		{"bot author", Config{}, msg("g1", "c1", robot, nil), false},
		{"other guild", Config{GuildID: "g2"}, msg("g1", "c1", alice, withRole), false},
		{"other channel", Config{ChannelID: "c2"}, msg("g1", "c1", alice, withRole), false},
		{"direct message", Config{ChannelID: "c2"}, msg("", "dm", alice, nil), true},
		{"direct message with role required", Config{RoleID: "r1"}, msg("", "dm", alice, nil), false},
		{"member with role", Config{RoleID: "r1"}, msg("g1", "c1", alice, withRole), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b, _ := newTestBot(t, tt.cfg)
			if got := b.accept(nil, tt.m); got != tt.want {
				t.Errorf("accept() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDownload(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("hello world"))
	}))
	t.Cleanup(srv.Close)

	b, _ := newTestBot(t, Config{HTTPClient: srv.Client()})
	dir := t.TempDir()

	var last [2]int64
	p, err := b.Download(context.Background(), chat.Media{Kind: chat.MediaVoice, URL: srv.URL + "/att/voice-message.ogg"}, dir,
		func(recv, total int64) { last = [2]int64{recv, total} })
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if p != filepath.Join(dir, "voice-message.ogg") {
		t.Errorf("path = %q", p)
	}
	if data, _ := os.ReadFile(p); string(data) != "hello world" {
		t.Errorf("content = %q", data)
	}
	if last != [2]int64{11, 11} {
		t.Errorf("last progress = %v", last)
	}

	if _, err := b.Download(context.Background(), chat.Media{URL: srv.URL + "/missing", FileName: "x.mp3"}, dir, nil); err == nil {
		t.Error("expected error for 404")
	}
	if _, err := b.Download(context.Background(), chat.Media{}, dir, nil); !errors.Is(err, chat.ErrNoMedia) {
		t.Errorf("err = %v, want ErrNoMedia", err)
	}
}

func TestRenderContent(t *testing.T) {
	t.Parallel()

	if got := renderContent("Encountered error:", "boom ```x```"); got != "Encountered error:\n```\nboom '''x'''\n```" {
		t.Errorf("got %q", got)
	}
	if got := renderContent("plain", ""); got != "plain" {
		t.Errorf("got %q", got)
	}

	long := renderContent("Received error from alice:", strings.Repeat("x", 3000))
	if n := utf8.RuneCountInString(long); n != maxContentRunes {
		t.Errorf("runes = %d, want %d", n, maxContentRunes)
	}
	if !strings.HasSuffix(long, "...\n```") {
		t.Errorf("code fence not closed: %q", long[len(long)-10:])
	}
}

func TestComponents(t *testing.T) {
	t.Parallel()

	if components(nil) != nil {
		t.Error("expected nil components for no buttons")
	}
	comps := components([]chat.Button{{Text: "Cancel", Data: "job-1"}})
	row, ok := comps[0].(discordgo.ActionsRow)
	if !ok || len(row.Components) != 1 {
		t.Fatalf("components = %+v", comps)
	}
	if btn := row.Components[0].(discordgo.Button); btn.CustomID != "btn:job-1" || btn.Label != "Cancel" {
		t.Errorf("button = %+v", btn)
	}
}

func TestTranslate(t *testing.T) {
	t.Parallel()

	rl := &discordgo.RateLimitError{RateLimit: &discordgo.RateLimit{TooManyRequests: &discordgo.TooManyRequests{RetryAfter: 2 * time.Second}}}
	var got *chat.RateLimitError
	if !errors.As(translate(rl), &got) || got.RetryAfter != 2*time.Second {
		t.Errorf("translate(rate limit) = %v", translate(rl))
	}

	plain := errors.New("boom")
	if translate(plain) != plain {
		t.Error("plain errors must pass through")
	}
}
