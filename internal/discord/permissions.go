package discord

import (
	"slices"

	"github.com/bwmarrin/discordgo"
)

// PermissionChecker restricts the bot to members holding a role.
type PermissionChecker struct {
	roleID string
}

// NewPermissionChecker creates a PermissionChecker for roleID. An empty
// roleID allows everyone.
func NewPermissionChecker(roleID string) *PermissionChecker {
	return &PermissionChecker{roleID: roleID}
}

// Allowed reports whether member may use the bot. A nil member (direct
// messages) is only allowed when no role is required.
func (p *PermissionChecker) Allowed(member *discordgo.Member) bool {
	if p.roleID == "" {
		return true
	}
	if member == nil {
		return false
	}
	return slices.Contains(member.Roles, p.roleID)
}
