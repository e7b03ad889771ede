package bot

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/MrWong99/transcribot/internal/chat"
	"github.com/MrWong99/transcribot/internal/observe"
)

// statusMessage is the reply the bot keeps editing while a request runs.
// Edits carry the full text, so concurrent updates are last-write-wins. An
// edit whose text and buttons equal what the platform already shows is
// skipped. Rate-limited edits are logged and dropped.
//
// Finish makes the terminal edit. After it every other edit is ignored.
type statusMessage struct {
	platform chat.Platform
	ref      chat.MessageRef
	metrics  *observe.Metrics
	log      *slog.Logger

	mu      sync.Mutex
	text    string
	buttons []chat.Button
	final   bool
}

func newStatusMessage(p chat.Platform, ref chat.MessageRef, text string, m *observe.Metrics, log *slog.Logger) *statusMessage {
	return &statusMessage{platform: p, ref: ref, text: text, metrics: m, log: log}
}

// Text returns the last text accepted by the platform.
func (s *statusMessage) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text
}

// Set edits the message. Errors other than rate limiting are returned.
func (s *statusMessage) Set(ctx context.Context, text string, buttons []chat.Button) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set(ctx, text, buttons)
}

// UpdateIf is Update guarded by cond, which is evaluated while holding the
// message lock.
func (s *statusMessage) UpdateIf(ctx context.Context, cond func() bool, text string, buttons []chat.Button) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !cond() {
		return
	}
	if err := s.set(ctx, text, buttons); err != nil {
		s.log.Warn("bot: status edit failed", "err", err)
	}
}

// Finish makes the terminal edit once. It reports false if the message was
// already finished.
func (s *statusMessage) Finish(ctx context.Context, text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.final {
		return false
	}
	err := s.set(ctx, text, nil)
	s.final = true
	if err != nil {
		s.log.Warn("bot: final status edit failed", "err", err)
	}
	return true
}

// Finished reports whether Finish was called.
func (s *statusMessage) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.final
}

func (s *statusMessage) set(ctx context.Context, text string, buttons []chat.Button) error {
	if s.final {
		return nil
	}
	if text == s.text && slices.Equal(buttons, s.buttons) {
		s.metrics.RecordProgressEdit(ctx, observe.EditSkipped)
		return nil
	}
	err := s.platform.Edit(ctx, s.ref, text, buttons)
	switch {
	case err == nil:
		s.text = text
		s.buttons = buttons
		s.metrics.RecordProgressEdit(ctx, observe.EditSent)
		return nil
	case chat.IsRateLimited(err):
		s.metrics.RecordProgressEdit(ctx, observe.EditRateLimited)
		s.log.Warn("bot: status edit rate limited", "err", err)
		return nil
	default:
		s.metrics.RecordProgressEdit(ctx, observe.EditFailed)
		return err
	}
}

// Update is Set for best-effort progress updates: failures are only logged.
func (s *statusMessage) Update(ctx context.Context, text string, buttons []chat.Button) {
	if err := s.Set(ctx, text, buttons); err != nil {
		s.log.Warn("bot: status edit failed", "err", err)
	}
}
