package discord

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// HandlerFunc is the signature for component handlers.
type HandlerFunc func(r Responder, i *discordgo.InteractionCreate)

// ComponentRouter dispatches message component interactions (buttons) to
// registered handlers.
type ComponentRouter struct {
	mu         sync.RWMutex
	components map[string]HandlerFunc // custom_id → handler
	prefixes   map[string]HandlerFunc // custom_id prefix → handler
}

// NewComponentRouter creates an empty router.
func NewComponentRouter() *ComponentRouter {
	return &ComponentRouter{
		components: make(map[string]HandlerFunc),
		prefixes:   make(map[string]HandlerFunc),
	}
}

// RegisterComponent registers a handler for an exact custom_id.
func (r *ComponentRouter) RegisterComponent(customID string, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.components[customID] = handler
}

// RegisterComponentPrefix registers a handler that matches any component
// whose custom_id starts with prefix, e.g. "btn:" matches "btn:<job id>".
// Exact registrations take precedence.
func (r *ComponentRouter) RegisterComponentPrefix(prefix string, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prefixes[prefix] = handler
}

// Handle dispatches an interaction. Only message components are routed;
// other interaction types are logged and ignored.
func (r *ComponentRouter) Handle(resp Responder, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionMessageComponent {
		slog.Debug("discord: unhandled interaction type", "type", i.Type)
		return
	}
	customID := i.MessageComponentData().CustomID

	r.mu.RLock()
	handler, ok := r.components[customID]
	if !ok {
		for prefix, h := range r.prefixes {
			if strings.HasPrefix(customID, prefix) {
				handler, ok = h, true
				break
			}
		}
	}
	r.mu.RUnlock()

	if !ok {
		slog.Warn("discord: unknown component", "custom_id", customID)
		RespondEphemeral(resp, i.Interaction, "Unknown component.")
		return
	}
	handler(resp, i)
}
