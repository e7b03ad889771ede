package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/MrWong99/transcribot/internal/chat"
)

// Send posts msg to chatID. A non-empty Code is rendered as an HTML <pre>
// block below the escaped text.
func (b *Bot) Send(ctx context.Context, chatID string, msg chat.OutgoingMessage) (chat.MessageRef, error) {
	id, err := parseID(chatID)
	if err != nil {
		return chat.MessageRef{}, err
	}
	if err := ctx.Err(); err != nil {
		return chat.MessageRef{}, err
	}

	cfg := tgbotapi.NewMessage(id, msg.Text)
	if msg.Code != "" {
		cfg.Text = renderCode(msg.Text, msg.Code)
		cfg.ParseMode = tgbotapi.ModeHTML
	}
	cfg.DisableNotification = msg.Silent
	cfg.ReplyToMessageID = replyID(msg.ReplyTo)
	if len(msg.Buttons) > 0 {
		cfg.ReplyMarkup = keyboard(msg.Buttons)
	}

	sent, err := b.api.Send(cfg)
	if err != nil {
		return chat.MessageRef{}, fmt.Errorf("telegram: send message: %w", translate(err))
	}
	return chat.MessageRef{ChatID: chatID, MessageID: strconv.Itoa(sent.MessageID)}, nil
}

// Edit replaces the text of ref. Omitting the markup removes any inline
// keyboard, which is what a nil buttons slice asks for.
func (b *Bot) Edit(ctx context.Context, ref chat.MessageRef, text string, buttons []chat.Button) error {
	id, err := parseID(ref.ChatID)
	if err != nil {
		return err
	}
	mid, err := strconv.Atoi(ref.MessageID)
	if err != nil {
		return fmt.Errorf("telegram: invalid message id %q: %w", ref.MessageID, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	cfg := tgbotapi.NewEditMessageText(id, mid, text)
	if len(buttons) > 0 {
		kb := keyboard(buttons)
		cfg.ReplyMarkup = &kb
	}
	if _, err := b.api.Request(cfg); err != nil {
		if notModified(err) {
			return nil
		}
		return fmt.Errorf("telegram: edit message: %w", translate(err))
	}
	return nil
}

// SendDocument uploads doc as a file attachment.
func (b *Bot) SendDocument(ctx context.Context, chatID string, doc chat.Document) (chat.MessageRef, error) {
	id, err := parseID(chatID)
	if err != nil {
		return chat.MessageRef{}, err
	}
	if err := ctx.Err(); err != nil {
		return chat.MessageRef{}, err
	}

	cfg := tgbotapi.NewDocument(id, tgbotapi.FileBytes{Name: doc.Name, Bytes: doc.Data})
	cfg.Caption = doc.Caption
	cfg.DisableNotification = doc.Silent
	cfg.ReplyToMessageID = replyID(doc.ReplyTo)

	sent, err := b.api.Send(cfg)
	if err != nil {
		return chat.MessageRef{}, fmt.Errorf("telegram: send document: %w", translate(err))
	}
	return chat.MessageRef{ChatID: chatID, MessageID: strconv.Itoa(sent.MessageID)}, nil
}

// AnswerCallback acknowledges a button press. A non-empty text is shown to
// the presser as a toast.
func (b *Bot) AnswerCallback(ctx context.Context, cb chat.Callback, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, text)); err != nil {
		return fmt.Errorf("telegram: answer callback: %w", translate(err))
	}
	return nil
}

// Download resolves media to a file path with getFile and streams it into
// destDir, reporting progress as bytes arrive.
func (b *Bot) Download(ctx context.Context, media chat.Media, destDir string, progress chat.ProgressFunc) (string, error) {
	if media.FileID == "" {
		return "", chat.ErrNoMedia
	}
	file, err := b.api.GetFile(tgbotapi.FileConfig{FileID: media.FileID})
	if err != nil {
		return "", fmt.Errorf("telegram: get file: %w", translate(err))
	}

	url := fmt.Sprintf(b.fileEndpoint, b.api.Token, file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("telegram: download: %w", err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("telegram: download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("telegram: download: unexpected status %s", resp.Status)
	}

	name := media.FileName
	if name == "" {
		name = path.Base(file.FilePath)
	}
	dest := filepath.Join(destDir, filepath.Base(name))
	f, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("telegram: download: %w", err)
	}

	total := media.Size
	if total <= 0 {
		total = max(resp.ContentLength, int64(file.FileSize))
	}
	if _, err := chat.CopyWithProgress(f, resp.Body, total, progress); err != nil {
		f.Close()
		return "", fmt.Errorf("telegram: download: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("telegram: download: %w", err)
	}
	return dest, nil
}

func keyboard(buttons []chat.Button) tgbotapi.InlineKeyboardMarkup {
	row := make([]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, btn := range buttons {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(btn.Text, btn.Data))
	}
	return tgbotapi.NewInlineKeyboardMarkup(row)
}

func renderCode(text, code string) string {
	var sb strings.Builder
	sb.WriteString(html.EscapeString(text))
	if text != "" {
		sb.WriteByte('\n')
	}
	sb.WriteString("<pre>")
	sb.WriteString(html.EscapeString(code))
	sb.WriteString("</pre>")
	return sb.String()
}

func parseID(chatID string) (int64, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram: invalid chat id %q: %w", chatID, err)
	}
	return id, nil
}

func replyID(ref chat.MessageRef) int {
	if ref.MessageID == "" {
		return 0
	}
	id, _ := strconv.Atoi(ref.MessageID)
	return id
}

// translate maps flood-control responses to *chat.RateLimitError.
func translate(err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return &chat.RateLimitError{RetryAfter: time.Duration(apiErr.RetryAfter) * time.Second, Err: err}
	}
	return err
}

func notModified(err error) bool {
	var apiErr *tgbotapi.Error
	return errors.As(err, &apiErr) && strings.Contains(apiErr.Message, "message is not modified")
}
