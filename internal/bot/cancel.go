package bot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MrWong99/transcribot/internal/chat"
)

// HandleCancel relays a cancel button press to the active session. The
// button payload is the job id. Only the requester or the owner may cancel.
//
// The press is answered before the provider is contacted. The status message
// then shows an acknowledgement unless the request has already made its
// terminal edit or the job is no longer active; the terminal status itself is
// reported by the request handler. Failures are soft: the requester is told,
// the bot carries on.
func (h *Handler) HandleCancel(ctx context.Context, cb chat.Callback) Result {
	log := slog.With("job_id", cb.Data, "from", senderName(cb.From))

	act := h.current()
	if act == nil || cb.Data == "" || act.session.JobID() != cb.Data {
		log.Info("bot: cancel for a job that is not running")
		h.answer(ctx, cb, textNoLongerRuns)
		return Handled
	}
	if cb.From.ID != act.requester.Sender.ID && !h.isOwner(cb.From) {
		log.Warn("bot: cancel from someone other than the requester")
		h.answer(ctx, cb, "Only the requester can cancel this transcription.")
		return Handled
	}

	log.Info("bot: cancel requested")
	h.answer(ctx, cb, "")
	if err := act.session.Cancel(ctx); err != nil {
		h.metrics.RecordProviderError(ctx, h.providerName, "cancel")
		log.Warn("bot: cancel failed", "err", err)
		if h.current() == act && !act.status.Finished() {
			h.reportError(ctx, act.requester,
				fmt.Errorf("failed to cancel transcription for %s: %w", senderName(act.requester.Sender), err), "")
		}
	}
	act.status.UpdateIf(ctx, func() bool { return h.current() == act }, textCancelled, nil)
	return Handled
}

func (h *Handler) answer(ctx context.Context, cb chat.Callback, text string) {
	if err := h.platform.AnswerCallback(ctx, cb, text); err != nil {
		slog.Debug("bot: answer callback failed", "callback_id", cb.ID, "err", err)
	}
}
