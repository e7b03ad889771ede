package discord

import (
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

// Responder answers interactions. *discordgo.Session implements it.
type Responder interface {
	InteractionRespond(i *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
}

var _ Responder = (*discordgo.Session)(nil)

// RespondEphemeral sends a text response only the presser can see.
func RespondEphemeral(r Responder, i *discordgo.Interaction, content string) {
	if err := r.InteractionRespond(i, ephemeral(content)); err != nil {
		slog.Warn("discord: failed to send ephemeral response", "err", err)
	}
}

func ephemeral(content string) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	}
}

// acknowledge defers the update of the message carrying the component, which
// stops the client's loading state without changing the message.
func acknowledge() *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredMessageUpdate}
}
