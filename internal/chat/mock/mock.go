// Package mock provides an in-memory chat.Platform for tests.
//
// Every call is recorded under a mutex. Edits are also applied to an internal
// message table so tests can assert on the final text of a status message.
package mock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/MrWong99/transcribot/internal/chat"
)

// SentMessage records a Send call.
type SentMessage struct {
	ChatID string
	Msg    chat.OutgoingMessage
	Ref    chat.MessageRef
}

// EditCall records an Edit call.
type EditCall struct {
	Ref     chat.MessageRef
	Text    string
	Buttons []chat.Button
}

// SentDocument records a SendDocument call.
type SentDocument struct {
	ChatID string
	Doc    chat.Document
}

// AnsweredCallback records an AnswerCallback call.
type AnsweredCallback struct {
	Callback chat.Callback
	Text     string
}

// Platform is a mock implementation of chat.Platform.
type Platform struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// SendErr, if non-nil, is returned by Send.
	SendErr error

	// EditErr, if non-nil, is returned by every Edit call. EditErrFunc takes
	// precedence when set.
	EditErr error

	// EditErrFunc, if set, decides the error for each Edit call.
	EditErrFunc func(ref chat.MessageRef, text string) error

	// DocumentErr, if non-nil, is returned by SendDocument.
	DocumentErr error

	// DownloadErr, if non-nil, is returned by Download.
	DownloadErr error

	// DownloadContent is written to the downloaded file. Defaults to "data".
	DownloadContent []byte

	// DownloadProgress is replayed to the progress callback, as pairs of
	// (received, total).
	DownloadProgress [][2]int64

	// AnswerErr, if non-nil, is returned by AnswerCallback.
	AnswerErr error

	// --- Call records ---

	Sent      []SentMessage
	Edits     []EditCall
	Documents []SentDocument
	Downloads []chat.Media
	Answers   []AnsweredCallback

	nextID int
	texts  map[chat.MessageRef]string
}

// Compile-time assertion.
var _ chat.Platform = (*Platform)(nil)

// Name returns "mock".
func (p *Platform) Name() string { return "mock" }

// Send records the message and assigns it a sequential message id. Like the
// real platforms it fails with ctx.Err() once ctx is done.
func (p *Platform) Send(ctx context.Context, chatID string, msg chat.OutgoingMessage) (chat.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return chat.MessageRef{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.SendErr != nil {
		return chat.MessageRef{}, p.SendErr
	}
	ref := p.newRef(chatID)
	p.setText(ref, msg.Text)
	p.Sent = append(p.Sent, SentMessage{ChatID: chatID, Msg: msg, Ref: ref})
	return ref, nil
}

// Edit records the call and, on success, updates the stored text. Edits on a
// done ctx fail without being recorded.
func (p *Platform) Edit(ctx context.Context, ref chat.MessageRef, text string, buttons []chat.Button) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Edits = append(p.Edits, EditCall{Ref: ref, Text: text, Buttons: buttons})
	if p.EditErrFunc != nil {
		if err := p.EditErrFunc(ref, text); err != nil {
			return err
		}
	} else if p.EditErr != nil {
		return p.EditErr
	}
	p.setText(ref, text)
	return nil
}

// SendDocument records the document.
func (p *Platform) SendDocument(_ context.Context, chatID string, doc chat.Document) (chat.MessageRef, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.DocumentErr != nil {
		return chat.MessageRef{}, p.DocumentErr
	}
	p.Documents = append(p.Documents, SentDocument{ChatID: chatID, Doc: doc})
	return p.newRef(chatID), nil
}

// Download writes DownloadContent into destDir and replays DownloadProgress.
func (p *Platform) Download(_ context.Context, media chat.Media, destDir string, progress chat.ProgressFunc) (string, error) {
	p.mu.Lock()
	p.Downloads = append(p.Downloads, media)
	err := p.DownloadErr
	content := p.DownloadContent
	steps := append([][2]int64(nil), p.DownloadProgress...)
	p.mu.Unlock()

	if err != nil {
		return "", err
	}
	if content == nil {
		content = []byte("data")
	}
	if progress != nil {
		for _, s := range steps {
			progress(s[0], s[1])
		}
	}
	name := media.FileName
	if name == "" {
		name = "voice.ogg"
	}
	path := filepath.Join(destDir, name)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		return "", fmt.Errorf("mock download: %w", err)
	}
	return path, nil
}

// AnswerCallback records the answer.
func (p *Platform) AnswerCallback(_ context.Context, cb chat.Callback, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Answers = append(p.Answers, AnsweredCallback{Callback: cb, Text: text})
	return p.AnswerErr
}

// Text returns the current text of ref after all successful edits.
func (p *Platform) Text(ref chat.MessageRef) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.texts[ref]
}

// EditsFor returns a copy of all Edit calls targeting ref.
func (p *Platform) EditsFor(ref chat.MessageRef) []EditCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []EditCall
	for _, e := range p.Edits {
		if e.Ref == ref {
			out = append(out, e)
		}
	}
	return out
}

// SentTo returns a copy of all messages sent to chatID.
func (p *Platform) SentTo(chatID string) []SentMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []SentMessage
	for _, m := range p.Sent {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

// DocumentsTo returns a copy of all documents sent to chatID.
func (p *Platform) DocumentsTo(chatID string) []SentDocument {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []SentDocument
	for _, d := range p.Documents {
		if d.ChatID == chatID {
			out = append(out, d)
		}
	}
	return out
}

// AnswerCount returns the number of answered callbacks. Thread-safe.
func (p *Platform) AnswerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Answers)
}

func (p *Platform) newRef(chatID string) chat.MessageRef {
	p.nextID++
	return chat.MessageRef{ChatID: chatID, MessageID: strconv.Itoa(p.nextID)}
}

func (p *Platform) setText(ref chat.MessageRef, text string) {
	if p.texts == nil {
		p.texts = make(map[chat.MessageRef]string)
	}
	p.texts[ref] = text
}
