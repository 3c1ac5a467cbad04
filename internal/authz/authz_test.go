package authz_test

import (
	"chatcore/internal/apperr"
	"chatcore/internal/authz"
	"chatcore/internal/models"
	"errors"
	"testing"
)

var (
	ownerRole     = models.Role{Name: models.RoleOwner, Position: 0}
	adminRole     = models.Role{Name: models.RoleAdmin, Position: 1}
	moderatorRole = models.Role{Name: models.RoleModerator, Position: 2, Permissions: []string{"MANAGE_CHANNELS", "KICK_MEMBER"}}
	memberRole    = models.Role{Name: models.RoleMember, Position: 3, Permissions: []string{"SEND_MESSAGE"}}
	pinnerRole    = models.Role{Name: "Pinner", Position: 4, Permissions: []string{"PIN_MESSAGE"}}
)

func TestServer(t *testing.T) {
	tests := []struct {
		name       string
		membership *authz.ServerMembership
		capability authz.Capability
		allowed    bool
	}{
		{
			name:       "Non-member is denied even for view",
			membership: nil,
			capability: authz.View,
			allowed:    false,
		},
		{
			name:       "Member can view",
			membership: &authz.ServerMembership{UserID: 1, Roles: []models.Role{memberRole}},
			capability: authz.View,
			allowed:    true,
		},
		{
			name:       "Owner implicitly holds every capability",
			membership: &authz.ServerMembership{UserID: 1, Roles: []models.Role{ownerRole}},
			capability: authz.ManageServer,
			allowed:    true,
		},
		{
			name:       "Admin implicitly holds every capability",
			membership: &authz.ServerMembership{UserID: 1, Roles: []models.Role{adminRole}},
			capability: authz.BanMember,
			allowed:    true,
		},
		{
			name:       "Moderator has listed capability",
			membership: &authz.ServerMembership{UserID: 1, Roles: []models.Role{moderatorRole}},
			capability: authz.KickMember,
			allowed:    true,
		},
		{
			name:       "Moderator lacks unlisted capability",
			membership: &authz.ServerMembership{UserID: 1, Roles: []models.Role{moderatorRole}},
			capability: authz.ManageRoles,
			allowed:    false,
		},
		{
			name:       "Union of roles grants capability from either role",
			membership: &authz.ServerMembership{UserID: 1, Roles: []models.Role{memberRole, pinnerRole}},
			capability: authz.PinMessage,
			allowed:    true,
		},
		{
			name:       "Membership of another user does not count",
			membership: &authz.ServerMembership{UserID: 2, Roles: []models.Role{ownerRole}},
			capability: authz.View,
			allowed:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := authz.Server(1, tt.membership, tt.capability)
			if tt.allowed && err != nil {
				t.Errorf("expected allow, got %v", err)
			}
			if !tt.allowed && !errors.Is(err, apperr.ErrAuthorization) {
				t.Errorf("expected authorization error, got %v", err)
			}
		})
	}
}

func TestChat(t *testing.T) {
	admin := &authz.ChatMembership{UserID: 1, Role: models.ChatRoleAdmin}
	member := &authz.ChatMembership{UserID: 1, Role: models.ChatRoleMember}

	tests := []struct {
		name       string
		membership *authz.ChatMembership
		capability authz.Capability
		allowed    bool
	}{
		{name: "Non-member cannot view", membership: nil, capability: authz.View, allowed: false},
		{name: "Non-member cannot send", membership: nil, capability: authz.SendMessage, allowed: false},
		{name: "Member can send", membership: member, capability: authz.SendMessage, allowed: true},
		{name: "Member cannot pin", membership: member, capability: authz.PinMessage, allowed: false},
		{name: "Admin can pin", membership: admin, capability: authz.PinMessage, allowed: true},
		{name: "Server capability does not apply", membership: admin, capability: authz.ManageRoles, allowed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := authz.Chat(1, tt.membership, tt.capability)
			if tt.allowed && err != nil {
				t.Errorf("expected allow, got %v", err)
			}
			if !tt.allowed && !errors.Is(err, apperr.ErrAuthorization) {
				t.Errorf("expected authorization error, got %v", err)
			}
		})
	}
}

func TestOwnMessage(t *testing.T) {
	admin := &authz.ChatMembership{UserID: 1, Role: models.ChatRoleAdmin}

	if err := authz.OwnMessage(1, admin, authz.EditOwnMessage, 1); err != nil {
		t.Errorf("sender should be able to edit: %v", err)
	}
	if err := authz.OwnMessage(1, admin, authz.DeleteOwnMessage, 2); !errors.Is(err, apperr.ErrAuthorization) {
		t.Errorf("chat admin must not delete someone else's message, got %v", err)
	}
	if err := authz.OwnMessage(1, nil, authz.EditOwnMessage, 1); !errors.Is(err, apperr.ErrAuthorization) {
		t.Errorf("former member must not edit, got %v", err)
	}
}

func TestOutranks(t *testing.T) {
	owner := &authz.ServerMembership{UserID: 1, Roles: []models.Role{ownerRole}}
	admin := &authz.ServerMembership{UserID: 2, Roles: []models.Role{adminRole}}
	moderator := &authz.ServerMembership{UserID: 3, Roles: []models.Role{moderatorRole, memberRole}}
	otherModerator := &authz.ServerMembership{UserID: 4, Roles: []models.Role{moderatorRole}}

	tests := []struct {
		name     string
		actor    *authz.ServerMembership
		target   *authz.ServerMembership
		expected bool
	}{
		{name: "Nobody outranks the owner", actor: admin, target: owner, expected: false},
		{name: "Owner outranks admin", actor: owner, target: admin, expected: true},
		{name: "Admin outranks moderator", actor: admin, target: moderator, expected: true},
		{name: "Equal rank does not outrank", actor: moderator, target: otherModerator, expected: false},
		{name: "Lower rank does not outrank", actor: moderator, target: admin, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := authz.Outranks(tt.actor, tt.target); got != tt.expected {
				t.Errorf("expected %t, got %t", tt.expected, got)
			}
		})
	}
}

func TestParse(t *testing.T) {
	capabilities, err := authz.Parse([]string{"PIN_MESSAGE", "KICK_MEMBER", "PIN_MESSAGE"})
	if err != nil {
		t.Fatal(err)
	}
	if len(capabilities) != 2 {
		t.Errorf("expected duplicates to collapse to 2 capabilities, got %d", len(capabilities))
	}

	if _, err := authz.Parse([]string{"FLY"}); err == nil {
		t.Error("expected unknown capability to fail")
	}
}
