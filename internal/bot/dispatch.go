// Package bot implements the request handler and the cancellation relay of
// the transcription bot, independent of any chat platform.
//
// Platform adapters turn updates into [chat.Message] and [chat.Callback]
// values and feed them to a [Dispatcher]. Handlers report how far processing
// got through a [Result] instead of using errors for flow control.
package bot

import (
	"context"
	"log/slog"
	"sync"

	"github.com/MrWong99/transcribot/internal/chat"
)

// Result tells the [Dispatcher] whether to offer an update to further
// handlers.
type Result int

const (
	// NotHandled lets the next handler look at the update.
	NotHandled Result = iota

	// Handled means the update was consumed.
	Handled

	// Terminated means the update was consumed and processing ended early,
	// for example because of an error that was already reported.
	Terminated
)

// String implements fmt.Stringer.
func (r Result) String() string {
	switch r {
	case NotHandled:
		return "not_handled"
	case Handled:
		return "handled"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Done reports whether dispatch stops at this result.
func (r Result) Done() bool { return r == Handled || r == Terminated }

// MessageHandler handles an inbound message.
type MessageHandler func(ctx context.Context, msg chat.Message) Result

// CallbackHandler handles an inline-button press.
type CallbackHandler func(ctx context.Context, cb chat.Callback) Result

// Dispatcher offers updates to registered handlers in registration order and
// stops at the first one that returns [Handled] or [Terminated]. Safe for
// concurrent use.
type Dispatcher struct {
	mu        sync.RWMutex
	messages  []MessageHandler
	callbacks []CallbackHandler
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// OnMessage registers a message handler.
func (d *Dispatcher) OnMessage(h MessageHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.messages = append(d.messages, h)
}

// OnCallback registers a callback handler.
func (d *Dispatcher) OnCallback(h CallbackHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.callbacks = append(d.callbacks, h)
}

// DispatchMessage runs the message handlers and returns the final result.
func (d *Dispatcher) DispatchMessage(ctx context.Context, msg chat.Message) Result {
	d.mu.RLock()
	handlers := d.messages
	d.mu.RUnlock()

	for _, h := range handlers {
		if r := h(ctx, msg); r.Done() {
			return r
		}
	}
	slog.Debug("bot: message not handled", "chat_id", msg.Ref.ChatID, "sender", msg.Sender.Username)
	return NotHandled
}

// DispatchCallback runs the callback handlers and returns the final result.
func (d *Dispatcher) DispatchCallback(ctx context.Context, cb chat.Callback) Result {
	d.mu.RLock()
	handlers := d.callbacks
	d.mu.RUnlock()

	for _, h := range handlers {
		if r := h(ctx, cb); r.Done() {
			return r
		}
	}
	slog.Debug("bot: callback not handled", "data", cb.Data)
	return NotHandled
}
