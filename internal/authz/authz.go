// Package authz decides whether an actor may exercise a capability on a chat
// or a server. Every function is pure: callers load the membership inside the
// transaction that performs the mutation and pass it in.
package authz

import (
	"chatcore/internal/apperr"
	"chatcore/internal/models"
	"fmt"
)

type Capability string

const (
	SendMessage      Capability = "SEND_MESSAGE"
	EditOwnMessage   Capability = "EDIT_OWN_MESSAGE"
	DeleteOwnMessage Capability = "DELETE_OWN_MESSAGE"
	PinMessage       Capability = "PIN_MESSAGE"
	ManageChannels   Capability = "MANAGE_CHANNELS"
	ManageRoles      Capability = "MANAGE_ROLES"
	KickMember       Capability = "KICK_MEMBER"
	BanMember        Capability = "BAN_MEMBER"
	ManageServer     Capability = "MANAGE_SERVER"

	// View only requires membership.
	View Capability = ""
)

var All = []Capability{
	SendMessage,
	EditOwnMessage,
	DeleteOwnMessage,
	PinMessage,
	ManageChannels,
	ManageRoles,
	KickMember,
	BanMember,
	ManageServer,
}

func Parse(tokens []string) ([]Capability, error) {
	capabilities := make([]Capability, 0, len(tokens))
	seen := make(map[Capability]bool, len(tokens))
	for _, token := range tokens {
		capability := Capability(token)
		if !capability.valid() {
			return nil, fmt.Errorf("unknown capability %q", token)
		}
		if seen[capability] {
			continue
		}
		seen[capability] = true
		capabilities = append(capabilities, capability)
	}
	return capabilities, nil
}

func (c Capability) valid() bool {
	for _, known := range All {
		if c == known {
			return true
		}
	}
	return false
}

// ChatMembership is nil when the actor is not a member of the chat.
type ChatMembership struct {
	UserID int64
	Role   string
}

type ServerMembership struct {
	UserID int64
	Roles  []models.Role
}

// Chat checks a chat scoped capability. Pinning needs the chat admin role,
// everything else needs membership only.
func Chat(actor int64, m *ChatMembership, capability Capability) error {
	if m == nil || m.UserID != actor {
		return apperr.Authorization("you are not a member of this chat")
	}

	switch capability {
	case View, SendMessage, EditOwnMessage, DeleteOwnMessage:
		return nil
	case PinMessage:
		if m.Role == models.ChatRoleAdmin {
			return nil
		}
		return apperr.Authorization("only chat admins can pin messages")
	}
	return apperr.Authorization("capability %s does not apply to chats", capability)
}

// ChatAdmin is required to add members to a group chat.
func ChatAdmin(actor int64, m *ChatMembership) error {
	if err := Chat(actor, m, View); err != nil {
		return err
	}
	if m.Role != models.ChatRoleAdmin {
		return apperr.Authorization("only chat admins can manage members")
	}
	return nil
}

// OwnMessage checks edit and delete rights. Only the original sender may do
// either, no chat role overrides this.
func OwnMessage(actor int64, m *ChatMembership, capability Capability, senderID int64) error {
	if capability != EditOwnMessage && capability != DeleteOwnMessage {
		return apperr.Authorization("capability %s does not apply to own messages", capability)
	}
	if err := Chat(actor, m, capability); err != nil {
		return err
	}
	if actor != senderID {
		return apperr.Authorization("only the sender can change this message")
	}
	return nil
}

// Server checks a server scoped capability against the union of the
// permissions of every role the member holds. OWNER and ADMIN hold everything.
func Server(actor int64, m *ServerMembership, capability Capability) error {
	if m == nil || m.UserID != actor {
		return apperr.Authorization("you are not a member of this server")
	}
	if capability == View {
		return nil
	}
	if _, ok := Effective(m)[capability]; ok {
		return nil
	}
	return apperr.Authorization("missing permission %s", capability)
}

func Effective(m *ServerMembership) map[Capability]struct{} {
	effective := make(map[Capability]struct{})
	if m == nil {
		return effective
	}

	for _, role := range m.Roles {
		if role.Name == models.RoleOwner || role.Name == models.RoleAdmin {
			for _, capability := range All {
				effective[capability] = struct{}{}
			}
			return effective
		}
		for _, permission := range role.Permissions {
			effective[Capability(permission)] = struct{}{}
		}
	}
	return effective
}

// IsOwner reports whether the membership holds the OWNER role.
func IsOwner(m *ServerMembership) bool {
	if m == nil {
		return false
	}
	for _, role := range m.Roles {
		if role.Name == models.RoleOwner {
			return true
		}
	}
	return false
}

// Rank is the best (lowest) role position held, used when comparing two members.
func Rank(m *ServerMembership) int {
	rank := int(^uint(0) >> 1)
	if m == nil {
		return rank
	}
	for _, role := range m.Roles {
		if role.Position < rank {
			rank = role.Position
		}
	}
	return rank
}

// Outranks is true when the actor may act on the target by role precedence.
// The owner outranks everybody and nobody outranks the owner.
func Outranks(actor *ServerMembership, target *ServerMembership) bool {
	if IsOwner(target) {
		return false
	}
	if IsOwner(actor) {
		return true
	}
	return Rank(actor) < Rank(target)
}

func Strings(capabilities []Capability) []string {
	tokens := make([]string, len(capabilities))
	for i, capability := range capabilities {
		tokens[i] = string(capability)
	}
	return tokens
}
