// Package mock provides test doubles for Discord interaction testing.
package mock

import (
	"sync"

	"github.com/bwmarrin/discordgo"
)

// InteractionResponder records interaction responses for test assertions.
type InteractionResponder struct {
	mu sync.Mutex

	// Err is returned by InteractionRespond when non-nil.
	Err error

	interactions []*discordgo.Interaction
	responses    []*discordgo.InteractionResponse
}

// InteractionRespond records the response and returns the configured error.
func (m *InteractionResponder) InteractionRespond(i *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interactions = append(m.interactions, i)
	m.responses = append(m.responses, resp)
	return m.Err
}

// Responses returns a copy of all recorded responses.
func (m *InteractionResponder) Responses() []*discordgo.InteractionResponse {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*discordgo.InteractionResponse(nil), m.responses...)
}

// LastResponse returns the most recently recorded response, or nil.
func (m *InteractionResponder) LastResponse() *discordgo.InteractionResponse {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.responses) == 0 {
		return nil
	}
	return m.responses[len(m.responses)-1]
}

// LastInteraction returns the interaction of the most recent response, or nil.
func (m *InteractionResponder) LastInteraction() *discordgo.Interaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.interactions) == 0 {
		return nil
	}
	return m.interactions[len(m.interactions)-1]
}
