package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/MrWong99/transcribot/internal/chat"
	"github.com/MrWong99/transcribot/internal/history"
)

const (
	historyLimit = 10
	searchLimit  = 5
	snippetRunes = 160
)

// HandleCommand answers slash commands in text messages. /history and
// /search are reserved for the owner; everyone else gets the help text.
func (h *Handler) HandleCommand(ctx context.Context, msg chat.Message) Result {
	if msg.Media != nil {
		return NotHandled
	}
	name, args := msg.Command()
	if name == "" {
		return NotHandled
	}

	owner := h.isOwner(msg.Sender)
	switch {
	case name == "history" && owner:
		h.reply(ctx, msg, h.historyText(ctx))
	case name == "search" && owner:
		h.reply(ctx, msg, h.searchText(ctx, args))
	case owner:
		h.reply(ctx, msg, ownerHelpText)
	default:
		h.reply(ctx, msg, HelpText)
	}
	return Handled
}

func (h *Handler) historyText(ctx context.Context) string {
	if h.history == nil {
		return "History is disabled."
	}
	recs, err := h.history.Recent(ctx, historyLimit)
	if err != nil {
		return "Could not load history: " + sanitize(err.Error())
	}
	if len(recs) == 0 {
		return "No transcriptions yet."
	}
	var b strings.Builder
	b.WriteString("Recent transcriptions:\n")
	for _, r := range recs {
		fmt.Fprintf(&b, "\n%s  %s  '%s' from %s", r.CreatedAt.In(h.loc).Format("2006-01-02 15:04"), r.Status, r.FileName, r.Sender)
	}
	return b.String()
}

func (h *Handler) searchText(ctx context.Context, query string) string {
	if query == "" {
		return "Usage: /search <query>"
	}
	if h.history == nil {
		return "History is disabled."
	}

	q := history.SearchQuery{Text: query, Limit: searchLimit}
	if h.embedder != nil {
		vec, err := h.embedder.Embed(ctx, query)
		if err != nil {
			h.metrics.RecordProviderError(ctx, h.embedder.ModelID(), "embed")
		} else {
			q.Embedding = vec
		}
	}
	recs, err := h.history.Search(ctx, q)
	if err == nil && len(recs) == 0 && q.Embedding != nil {
		q.Embedding = nil
		recs, err = h.history.Search(ctx, q)
	}
	if err != nil {
		return "Search failed: " + sanitize(err.Error())
	}
	if len(recs) == 0 {
		return fmt.Sprintf("Nothing found for %q.", query)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Results for %q:\n", query)
	for _, r := range recs {
		fmt.Fprintf(&b, "\n%s '%s' from %s\n%s\n",
			r.CreatedAt.In(h.loc).Format("2006-01-02"), r.FileName, r.Sender,
			truncateRunes(strings.Join(strings.Fields(r.Transcript), " "), snippetRunes))
	}
	return strings.TrimRight(b.String(), "\n")
}
