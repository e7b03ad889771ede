// Package chat defines the chat-platform abstraction the bot talks to.
//
// The bot core never imports a platform SDK. Adapters (internal/telegram,
// internal/discord) translate platform updates into [Message] and [Callback]
// values and implement [Platform] for replies, edits, documents and media
// downloads.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNoMedia is returned when a message carries no downloadable media.
var ErrNoMedia = errors.New("chat: message has no media")

// MediaKind classifies an attachment.
type MediaKind int

const (
	MediaAudio MediaKind = iota
	MediaVoice
	MediaVideo
	MediaVideoNote
	MediaDocument
)

// String returns the lowercase name of the kind.
func (k MediaKind) String() string {
	switch k {
	case MediaAudio:
		return "audio"
	case MediaVoice:
		return "voice"
	case MediaVideo:
		return "video"
	case MediaVideoNote:
		return "video_note"
	case MediaDocument:
		return "document"
	default:
		return "unknown"
	}
}

// Media describes an attachment that can be fetched with [Platform.Download].
type Media struct {
	Kind MediaKind

	// FileID is the platform's handle for the file.
	FileID string

	// FileName is the original name, or "" for voice notes and other unnamed
	// uploads.
	FileName string

	MimeType string

	// Size is the file size in bytes, 0 if unknown.
	Size int64

	// Duration is the playback length reported by the platform, 0 if unknown.
	Duration time.Duration

	// URL is set by platforms that expose attachments over plain HTTPS.
	URL string
}

// User identifies the sender of a message or callback.
type User struct {
	ID string

	// DisplayName is the human-readable name used in notifications.
	DisplayName string

	// Username is the unique handle used to recognise the owner.
	Username string
}

// MessageRef addresses a message that can later be edited.
type MessageRef struct {
	ChatID    string
	MessageID string
}

// IsZero reports whether r refers to no message.
func (r MessageRef) IsZero() bool { return r.ChatID == "" && r.MessageID == "" }

// Message is an inbound message.
type Message struct {
	Ref    MessageRef
	Sender User
	Text   string

	// Media is nil for plain text messages.
	Media *Media
}

// Command returns the bot command and its argument if the text starts with
// a slash, e.g. "/search foo bar" yields ("search", "foo bar"). A "@botname"
// suffix on the command is stripped.
func (m Message) Command() (name, args string) {
	if len(m.Text) < 2 || m.Text[0] != '/' {
		return "", ""
	}
	name, args, _ = strings.Cut(m.Text[1:], " ")
	name, _, _ = strings.Cut(strings.TrimSpace(name), "@")
	return name, strings.TrimSpace(args)
}

// Callback is an inline-button press.
type Callback struct {
	// ID is the platform's callback identifier, needed to answer it.
	ID string

	// Data is the button payload.
	Data string

	// Message is the message that carried the button.
	Message MessageRef

	From User
}

// Button is an inline button attached to a message.
type Button struct {
	Text string
	Data string
}

// OutgoingMessage is a text message to send.
type OutgoingMessage struct {
	Text string

	// ReplyTo, if set, threads the message under an existing one.
	ReplyTo MessageRef

	Buttons []Button

	// Code, if set, is shown below Text as a preformatted block.
	Code string

	// Silent suppresses the recipient's notification sound.
	Silent bool
}

// Document is a file to send.
type Document struct {
	Name    string
	Data    []byte
	Caption string
	ReplyTo MessageRef
	Silent  bool
}

// ProgressFunc receives download progress in bytes. total is 0 if unknown.
type ProgressFunc func(received, total int64)

// Platform is implemented by every chat adapter. Implementations must be safe
// for concurrent use.
type Platform interface {
	// Name returns a short identifier such as "telegram".
	Name() string

	// Send posts a text message to chatID.
	Send(ctx context.Context, chatID string, msg OutgoingMessage) (MessageRef, error)

	// Edit replaces the text and buttons of a previously sent message. A nil
	// buttons slice removes any buttons. When the platform rejects the edit
	// because of flood control it returns a *[RateLimitError].
	Edit(ctx context.Context, ref MessageRef, text string, buttons []Button) error

	// SendDocument uploads a file to chatID.
	SendDocument(ctx context.Context, chatID string, doc Document) (MessageRef, error)

	// Download fetches media into destDir and returns the local path. progress
	// may be nil.
	Download(ctx context.Context, media Media, destDir string, progress ProgressFunc) (string, error)

	// AnswerCallback acknowledges an inline-button press, optionally with a
	// short toast text.
	AnswerCallback(ctx context.Context, cb Callback, text string) error
}

// RateLimitError is returned when the platform throttles the bot.
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("chat: rate limited, retry after %s: %v", e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("chat: rate limited, retry after %s", e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// IsRateLimited reports whether err is or wraps a *RateLimitError.
func IsRateLimited(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}
