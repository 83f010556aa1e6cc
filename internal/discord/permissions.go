package discord

import (
	"slices"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// PermissionChecker validates that a guild member holds the debug role
// before running restricted commands. The role can be changed at runtime.
type PermissionChecker struct {
	mu     sync.RWMutex
	roleID string
}

// NewPermissionChecker creates a PermissionChecker with the given role ID.
func NewPermissionChecker(roleID string) *PermissionChecker {
	return &PermissionChecker{roleID: roleID}
}

// SetRoleID replaces the required role. An empty ID allows everyone.
func (p *PermissionChecker) SetRoleID(roleID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.roleID = roleID
}

// RoleID returns the required role ID.
func (p *PermissionChecker) RoleID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.roleID
}

// Allowed checks whether member has the configured role.
// If the role ID is empty, all members are allowed.
// Returns false for a nil member (e.g., messages outside a guild).
func (p *PermissionChecker) Allowed(member *discordgo.Member) bool {
	roleID := p.RoleID()
	if roleID == "" {
		return true
	}
	if member == nil {
		return false
	}
	return slices.Contains(member.Roles, roleID)
}
