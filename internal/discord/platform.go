package discord

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/transcribot/internal/chat"
)

// maxContentRunes is Discord's message length limit.
const maxContentRunes = 2000

// Send posts msg to the channel chatID. A non-empty Code is rendered as a
// fenced code block.
func (b *Bot) Send(ctx context.Context, chatID string, msg chat.OutgoingMessage) (chat.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return chat.MessageRef{}, err
	}
	data := &discordgo.MessageSend{
		Content:    renderContent(msg.Text, msg.Code),
		Components: components(msg.Buttons),
		Reference:  reference(msg.ReplyTo),
	}
	if msg.Silent {
		data.Flags = discordgo.MessageFlagsSuppressNotifications
	}
	sent, err := b.session.ChannelMessageSendComplex(chatID, data)
	if err != nil {
		return chat.MessageRef{}, fmt.Errorf("discord: send message: %w", translate(err))
	}
	return chat.MessageRef{ChatID: chatID, MessageID: sent.ID}, nil
}

// Edit replaces the content and buttons of ref. A nil buttons slice clears
// the message's components.
func (b *Bot) Edit(ctx context.Context, ref chat.MessageRef, text string, buttons []chat.Button) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	edit := discordgo.NewMessageEdit(ref.ChatID, ref.MessageID).SetContent(renderContent(text, ""))
	comps := components(buttons)
	if comps == nil {
		comps = []discordgo.MessageComponent{}
	}
	edit.Components = &comps
	if _, err := b.session.ChannelMessageEditComplex(edit); err != nil {
		return fmt.Errorf("discord: edit message: %w", translate(err))
	}
	return nil
}

// SendDocument uploads doc as a file attachment.
func (b *Bot) SendDocument(ctx context.Context, chatID string, doc chat.Document) (chat.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return chat.MessageRef{}, err
	}
	data := &discordgo.MessageSend{
		Content:   renderContent(doc.Caption, ""),
		Reference: reference(doc.ReplyTo),
		Files: []*discordgo.File{{
			Name:        doc.Name,
			ContentType: "text/plain; charset=utf-8",
			Reader:      bytes.NewReader(doc.Data),
		}},
	}
	if doc.Silent {
		data.Flags = discordgo.MessageFlagsSuppressNotifications
	}
	sent, err := b.session.ChannelMessageSendComplex(chatID, data)
	if err != nil {
		return chat.MessageRef{}, fmt.Errorf("discord: send document: %w", translate(err))
	}
	return chat.MessageRef{ChatID: chatID, MessageID: sent.ID}, nil
}

// AnswerCallback responds to the button interaction cb. Without text the
// response only acknowledges the press; with text an ephemeral reply is sent.
func (b *Bot) AnswerCallback(ctx context.Context, cb chat.Callback, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	i := b.take(cb.ID)
	if i == nil {
		return fmt.Errorf("discord: answer callback: unknown interaction %s", cb.ID)
	}
	resp := acknowledge()
	if text != "" {
		resp = ephemeral(text)
	}
	if err := b.responder.InteractionRespond(i, resp); err != nil {
		return fmt.Errorf("discord: answer callback: %w", translate(err))
	}
	return nil
}

// Download fetches the attachment at media.URL into destDir.
func (b *Bot) Download(ctx context.Context, media chat.Media, destDir string, progress chat.ProgressFunc) (string, error) {
	if media.URL == "" {
		return "", chat.ErrNoMedia
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, media.URL, nil)
	if err != nil {
		return "", fmt.Errorf("discord: download: %w", err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("discord: download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("discord: download: unexpected status %s", resp.Status)
	}

	name := media.FileName
	if name == "" {
		name = attachmentName(media.URL)
	}
	dest := filepath.Join(destDir, filepath.Base(name))
	f, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("discord: download: %w", err)
	}
	total := media.Size
	if total <= 0 {
		total = resp.ContentLength
	}
	if _, err := chat.CopyWithProgress(f, resp.Body, total, progress); err != nil {
		f.Close()
		return "", fmt.Errorf("discord: download: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("discord: download: %w", err)
	}
	return dest, nil
}

func attachmentName(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || path.Base(u.Path) == "/" || path.Base(u.Path) == "." {
		return voiceMessageName
	}
	return path.Base(u.Path)
}

func components(buttons []chat.Button) []discordgo.MessageComponent {
	if len(buttons) == 0 {
		return nil
	}
	row := discordgo.ActionsRow{}
	for _, btn := range buttons {
		row.Components = append(row.Components, discordgo.Button{
			Label:    btn.Text,
			Style:    discordgo.DangerButton,
			CustomID: buttonPrefix + btn.Data,
		})
	}
	return []discordgo.MessageComponent{row}
}

func reference(ref chat.MessageRef) *discordgo.MessageReference {
	if ref.MessageID == "" {
		return nil
	}
	return &discordgo.MessageReference{MessageID: ref.MessageID, ChannelID: ref.ChatID}
}

// renderContent appends code as a fenced block and cuts the result to the
// message length limit.
func renderContent(text, code string) string {
	if code != "" {
		code = strings.ReplaceAll(code, "```", "'''")
		text = strings.TrimRight(text, "\n") + "\n```\n" + code + "\n```"
	}
	if utf8.RuneCountInString(text) <= maxContentRunes {
		return text
	}
	r := []rune(text)
	cut := string(r[:maxContentRunes-3]) + "..."
	if code != "" {
		cut = string(r[:maxContentRunes-7]) + "...\n```"
	}
	return cut
}

// translate maps discordgo rate-limit errors to *chat.RateLimitError.
func translate(err error) error {
	var rl *discordgo.RateLimitError
	if errors.As(err, &rl) && rl.RateLimit != nil && rl.TooManyRequests != nil {
		return &chat.RateLimitError{RetryAfter: rl.RetryAfter, Err: err}
	}
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil && rest.Response.StatusCode == http.StatusTooManyRequests {
		return &chat.RateLimitError{Err: err}
	}
	return err
}
