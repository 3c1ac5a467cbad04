package chat

import (
	"chatcore/internal/apperr"
	"chatcore/internal/authz"
	"chatcore/internal/database"
	"chatcore/internal/hub"
	"chatcore/internal/models"
	"chatcore/internal/validator"
	"context"
	"errors"
	"strings"
)

var defaultRoles = []struct {
	name        string
	color       string
	permissions []authz.Capability
}{
	{models.RoleOwner, "#FF0000", authz.All},
	{models.RoleAdmin, "#FFD700", []authz.Capability{
		authz.ManageServer, authz.ManageChannels, authz.ManageRoles, authz.KickMember, authz.BanMember,
	}},
	{models.RoleModerator, "#00FF00", []authz.Capability{
		authz.ManageChannels, authz.KickMember, authz.BanMember, authz.PinMessage,
		authz.SendMessage, authz.EditOwnMessage, authz.DeleteOwnMessage,
	}},
	{models.RoleMember, "#808080", []authz.Capability{
		authz.SendMessage, authz.EditOwnMessage, authz.DeleteOwnMessage,
	}},
}

var defaultChannels = []struct {
	name        string
	channelType string
}{
	{"general", models.ChannelTypeText},
	{"voice-chat", models.ChannelTypeVoice},
}

const defaultRoleColor = "#808080"

type ServerInput struct {
	Name        string
	Description string
	Icon        string
}

// ServerUpdate changes only the fields that are set.
type ServerUpdate struct {
	Name        *string
	Description *string
	Icon        *string
}

type ChannelInput struct {
	Name string
	Type string
	// nil places the channel after the last one
	Position *int
}

type RoleInput struct {
	Name        string
	Color       string
	Permissions []string
}

type RoleUpdate struct {
	Name        *string
	Color       *string
	Permissions *[]string
}

type MemberRemovedPayload struct {
	ServerID int64 `json:"serverId,string"`
	UserID   int64 `json:"userId,string"`
}

type RoleDeletedPayload struct {
	ServerID int64 `json:"serverId,string"`
	RoleID   int64 `json:"roleId,string"`
}

func memberEvent(eventType string, serverID int64, userID int64, payload any) hub.Event {
	return hub.Event{Type: eventType, ServerID: serverID, UserID: userID, Payload: payload}
}

// CreateServer creates a server owned by actor, with the default roles and channels.
func (e *Engine) CreateServer(ctx context.Context, actor int64, input ServerInput) (server models.Server, err error) {
	defer e.finish("createServer", &err)

	input.Name = strings.TrimSpace(input.Name)
	if err := invalid(validator.Name(input.Name)); err != nil {
		return models.Server{}, err
	}

	serverID, err := e.newID()
	if err != nil {
		return models.Server{}, err
	}

	err = e.mutate(ctx, serverLock(serverID), func(tx *database.Tx) ([]delivery, error) {
		now := e.timestamp()
		server = models.Server{
			ID:          serverID,
			Name:        input.Name,
			Description: input.Description,
			Icon:        input.Icon,
			CreatorID:   actor,
			CreatedAt:   now,
		}
		if err := tx.InsertServer(ctx, &server); err != nil {
			return nil, err
		}

		var ownerRoleID int64
		for position, d := range defaultRoles {
			id, err := e.newID()
			if err != nil {
				return nil, err
			}
			role := models.Role{
				ID:          id,
				ServerID:    serverID,
				Name:        d.name,
				Color:       d.color,
				Permissions: authz.Strings(d.permissions),
				Position:    position,
			}
			if err := tx.InsertRole(ctx, &role); err != nil {
				return nil, err
			}
			if d.name == models.RoleOwner {
				ownerRoleID = id
			}
		}

		for position, d := range defaultChannels {
			id, err := e.newID()
			if err != nil {
				return nil, err
			}
			channel := models.Channel{ID: id, ServerID: serverID, Name: d.name, Type: d.channelType, Position: position, CreatedAt: now}
			if err := tx.InsertChannel(ctx, &channel); err != nil {
				return nil, err
			}
		}

		if err := tx.InsertServerMember(ctx, models.ServerMember{ServerID: serverID, UserID: actor, JoinedAt: now}); err != nil {
			return nil, err
		}
		if err := tx.AssignRole(ctx, serverID, actor, ownerRoleID); err != nil {
			return nil, err
		}

		if err := serverDetails(ctx, &tx.Queries, &server); err != nil {
			return nil, err
		}

		return []delivery{{hub.UserRoom(actor), memberEvent(hub.MemberAdded, serverID, actor, server)}}, nil
	})
	if err != nil {
		return models.Server{}, err
	}
	return server, nil
}

func serverDetails(ctx context.Context, q *database.Queries, server *models.Server) error {
	var err error
	if server.Channels, err = q.ChannelsForServer(ctx, server.ID); err != nil {
		return err
	}
	if server.Roles, err = q.RolesForServer(ctx, server.ID); err != nil {
		return err
	}
	server.Members, err = q.ServerMembers(ctx, server.ID)
	return err
}

func (e *Engine) ListServers(ctx context.Context, actor int64) (servers []models.Server, err error) {
	defer e.finish("listServers", &err)

	return e.store.ServersForUser(ctx, actor)
}

// GetServer returns the server with its channels, roles and members.
func (e *Engine) GetServer(ctx context.Context, actor int64, serverID int64) (server models.Server, err error) {
	defer e.finish("getServer", &err)

	server, _, err = authorizeServer(ctx, &e.store.Queries, actor, serverID, authz.View)
	if err != nil {
		return models.Server{}, err
	}
	if err := serverDetails(ctx, &e.store.Queries, &server); err != nil {
		return models.Server{}, err
	}
	return server, nil
}

func (e *Engine) UpdateServer(ctx context.Context, actor int64, serverID int64, update ServerUpdate) (server models.Server, err error) {
	defer e.finish("updateServer", &err)

	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if err := invalid(validator.Name(name)); err != nil {
			return models.Server{}, err
		}
		update.Name = &name
	}

	err = e.mutate(ctx, serverLock(serverID), func(tx *database.Tx) ([]delivery, error) {
		var err error
		server, _, err = authorizeServer(ctx, &tx.Queries, actor, serverID, authz.ManageServer)
		if err != nil {
			return nil, err
		}

		if update.Name != nil {
			server.Name = *update.Name
		}
		if update.Description != nil {
			server.Description = *update.Description
		}
		if update.Icon != nil {
			server.Icon = *update.Icon
		}
		if err := tx.UpdateServer(ctx, &server); err != nil {
			return nil, err
		}

		return []delivery{{hub.ServerRoom(serverID), hub.ServerEvent(hub.ServerUpdated, serverID, server)}}, nil
	})
	if err != nil {
		return models.Server{}, err
	}
	return server, nil
}

func (e *Engine) CreateChannel(ctx context.Context, actor int64, serverID int64, input ChannelInput) (channel models.Channel, err error) {
	defer e.finish("createChannel", &err)

	input.Name = strings.TrimSpace(input.Name)
	if err := invalid(validator.Name(input.Name)); err != nil {
		return models.Channel{}, err
	}
	switch input.Type {
	case "":
		input.Type = models.ChannelTypeText
	case models.ChannelTypeText, models.ChannelTypeVoice:
	default:
		return models.Channel{}, apperr.Validation("channel type must be %s or %s", models.ChannelTypeText, models.ChannelTypeVoice)
	}
	if input.Position != nil && *input.Position < 0 {
		return models.Channel{}, apperr.Validation("channel position can't be negative")
	}

	err = e.mutate(ctx, serverLock(serverID), func(tx *database.Tx) ([]delivery, error) {
		if _, _, err := authorizeServer(ctx, &tx.Queries, actor, serverID, authz.ManageChannels); err != nil {
			return nil, err
		}

		var position int
		if input.Position == nil {
			next, err := tx.NextChannelPosition(ctx, serverID)
			if err != nil {
				return nil, err
			}
			position = next
		} else {
			position = *input.Position
			taken, err := tx.ChannelPositionTaken(ctx, serverID, position)
			if err != nil {
				return nil, err
			}
			if taken {
				return nil, apperr.Conflict("channel position %d is taken", position)
			}
		}

		id, err := e.newID()
		if err != nil {
			return nil, err
		}
		channel = models.Channel{ID: id, ServerID: serverID, Name: input.Name, Type: input.Type, Position: position, CreatedAt: e.timestamp()}
		if err := tx.InsertChannel(ctx, &channel); err != nil {
			if database.IsUniqueViolation(err) {
				return nil, apperr.Conflict("channel position %d is taken", position)
			}
			return nil, err
		}

		return []delivery{{hub.ServerRoom(serverID), hub.ServerEvent(hub.ChannelCreated, serverID, channel)}}, nil
	})
	if err != nil {
		return models.Channel{}, err
	}
	return channel, nil
}

func (e *Engine) ListChannels(ctx context.Context, actor int64, serverID int64) (channels []models.Channel, err error) {
	defer e.finish("listChannels", &err)

	if _, _, err := authorizeServer(ctx, &e.store.Queries, actor, serverID, authz.View); err != nil {
		return nil, err
	}
	return e.store.ChannelsForServer(ctx, serverID)
}

func (e *Engine) ListMembers(ctx context.Context, actor int64, serverID int64) (members []models.ServerMember, err error) {
	defer e.finish("listMembers", &err)

	if _, _, err := authorizeServer(ctx, &e.store.Queries, actor, serverID, authz.View); err != nil {
		return nil, err
	}
	return e.store.ServerMembers(ctx, serverID)
}

func (e *Engine) ListRoles(ctx context.Context, actor int64, serverID int64) (roles []models.Role, err error) {
	defer e.finish("listRoles", &err)

	if _, _, err := authorizeServer(ctx, &e.store.Queries, actor, serverID, authz.View); err != nil {
		return nil, err
	}
	return e.store.RolesForServer(ctx, serverID)
}

// loadMember returns the membership with roles and the user summary.
func loadMember(ctx context.Context, q *database.Queries, serverID int64, userID int64) (models.ServerMember, error) {
	member, err := q.ServerMember(ctx, serverID, userID)
	if err != nil {
		return models.ServerMember{}, err
	}
	if member == nil {
		return models.ServerMember{}, apperr.NotFound("member not found")
	}

	summaries, err := q.UserSummaries(ctx, []int64{userID})
	if err != nil {
		return models.ServerMember{}, err
	}
	if s, ok := summaries[userID]; ok {
		member.User = &s
	}
	return *member, nil
}

// AddMember adds userID to the server with the MEMBER role.
func (e *Engine) AddMember(ctx context.Context, actor int64, serverID int64, userID int64) (member models.ServerMember, err error) {
	defer e.finish("addMember", &err)

	err = e.mutate(ctx, serverLock(serverID), func(tx *database.Tx) ([]delivery, error) {
		if _, _, err := authorizeServer(ctx, &tx.Queries, actor, serverID, authz.ManageServer); err != nil {
			return nil, err
		}
		if err := loadUser(ctx, &tx.Queries, userID); err != nil {
			return nil, err
		}

		banned, err := tx.IsBanned(ctx, serverID, userID)
		if err != nil {
			return nil, err
		}
		if banned {
			return nil, apperr.Conflict("user is banned from this server")
		}
		existing, err := tx.ServerMember(ctx, serverID, userID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, apperr.Conflict("user is already a member of this server")
		}

		role, err := tx.RoleByName(ctx, serverID, models.RoleMember)
		if err != nil {
			return nil, err
		}
		if err := tx.InsertServerMember(ctx, models.ServerMember{ServerID: serverID, UserID: userID, JoinedAt: e.timestamp()}); err != nil {
			return nil, err
		}
		if err := tx.AssignRole(ctx, serverID, userID, role.ID); err != nil {
			return nil, err
		}

		if member, err = loadMember(ctx, &tx.Queries, serverID, userID); err != nil {
			return nil, err
		}

		ev := memberEvent(hub.MemberAdded, serverID, userID, member)
		return []delivery{{hub.ServerRoom(serverID), ev}, {hub.UserRoom(userID), ev}}, nil
	})
	if err != nil {
		return models.ServerMember{}, err
	}
	return member, nil
}

// RemoveMember kicks userID from the server. A member may always leave on
// their own, kicking somebody else needs KICK_MEMBER and a higher role. The
// owner can never be removed.
func (e *Engine) RemoveMember(ctx context.Context, actor int64, serverID int64, userID int64) (err error) {
	defer e.finish("removeMember", &err)

	return e.mutate(ctx, serverLock(serverID), func(tx *database.Tx) ([]delivery, error) {
		_, actorMembership, err := authorizeServer(ctx, &tx.Queries, actor, serverID, authz.View)
		if err != nil {
			return nil, err
		}
		target, err := serverMembership(ctx, &tx.Queries, serverID, userID)
		if err != nil {
			return nil, err
		}
		if target == nil {
			return nil, apperr.NotFound("member not found")
		}
		if authz.IsOwner(target) {
			return nil, apperr.Authorization("the server owner can't be removed")
		}
		if userID != actor {
			if err := authz.Server(actor, actorMembership, authz.KickMember); err != nil {
				return nil, err
			}
			if !authz.Outranks(actorMembership, target) {
				return nil, apperr.Authorization("you can't remove a member with an equal or higher role")
			}
		}

		if _, err := tx.DeleteServerMember(ctx, serverID, userID); err != nil {
			return nil, err
		}

		ev := memberEvent(hub.MemberRemoved, serverID, userID, MemberRemovedPayload{ServerID: serverID, UserID: userID})
		return []delivery{{hub.ServerRoom(serverID), ev}, {hub.UserRoom(userID), ev}}, nil
	})
}

// BanMember removes userID from the server, if a member, and keeps them from
// being added again until unbanned.
func (e *Engine) BanMember(ctx context.Context, actor int64, serverID int64, userID int64, reason string) (ban models.ServerBan, err error) {
	defer e.finish("banMember", &err)

	err = e.mutate(ctx, serverLock(serverID), func(tx *database.Tx) ([]delivery, error) {
		_, actorMembership, err := authorizeServer(ctx, &tx.Queries, actor, serverID, authz.BanMember)
		if err != nil {
			return nil, err
		}
		if userID == actor {
			return nil, apperr.Validation("you can't ban yourself")
		}
		if err := loadUser(ctx, &tx.Queries, userID); err != nil {
			return nil, err
		}

		target, err := serverMembership(ctx, &tx.Queries, serverID, userID)
		if err != nil {
			return nil, err
		}
		if authz.IsOwner(target) {
			return nil, apperr.Authorization("the server owner can't be banned")
		}
		if target != nil && !authz.Outranks(actorMembership, target) {
			return nil, apperr.Authorization("you can't ban a member with an equal or higher role")
		}

		banned, err := tx.IsBanned(ctx, serverID, userID)
		if err != nil {
			return nil, err
		}
		if banned {
			return nil, apperr.Conflict("user is already banned")
		}

		if target != nil {
			if _, err := tx.DeleteServerMember(ctx, serverID, userID); err != nil {
				return nil, err
			}
		}
		ban = models.ServerBan{ServerID: serverID, UserID: userID, BannedBy: actor, Reason: reason, CreatedAt: e.timestamp()}
		if err := tx.InsertBan(ctx, ban); err != nil {
			return nil, err
		}

		ev := memberEvent(hub.MemberBanned, serverID, userID, ban)
		return []delivery{{hub.ServerRoom(serverID), ev}, {hub.UserRoom(userID), ev}}, nil
	})
	if err != nil {
		return models.ServerBan{}, err
	}
	return ban, nil
}

func (e *Engine) UnbanMember(ctx context.Context, actor int64, serverID int64, userID int64) (err error) {
	defer e.finish("unbanMember", &err)

	return e.mutate(ctx, serverLock(serverID), func(tx *database.Tx) ([]delivery, error) {
		if _, _, err := authorizeServer(ctx, &tx.Queries, actor, serverID, authz.BanMember); err != nil {
			return nil, err
		}
		removed, err := tx.DeleteBan(ctx, serverID, userID)
		if err != nil {
			return nil, err
		}
		if !removed {
			return nil, apperr.NotFound("ban not found")
		}
		return nil, nil
	})
}

func loadRole(ctx context.Context, q *database.Queries, serverID int64, roleID int64) (models.Role, error) {
	role, err := q.RoleByID(ctx, roleID)
	if errors.Is(err, database.ErrNotFound) || (err == nil && role.ServerID != serverID) {
		return models.Role{}, apperr.NotFound("role not found")
	}
	return role, err
}

// canManageRole limits everybody but the owner to roles ranked below their own.
func canManageRole(actor *authz.ServerMembership, role models.Role) error {
	if authz.IsOwner(actor) || role.Position > authz.Rank(actor) {
		return nil
	}
	return apperr.Authorization("you can only manage roles below your own")
}

// canChangeRolesOf needs the actor to outrank the member, the owner may change anybody.
func canChangeRolesOf(actor *authz.ServerMembership, member models.ServerMember) error {
	if authz.IsOwner(actor) {
		return nil
	}
	target := &authz.ServerMembership{UserID: member.UserID, Roles: member.Roles}
	if !authz.Outranks(actor, target) {
		return apperr.Authorization("you can't change the roles of a member with an equal or higher role")
	}
	return nil
}

func parsePermissions(tokens []string) ([]string, error) {
	capabilities, err := authz.Parse(tokens)
	if err != nil {
		return nil, apperr.Validation("%v", err)
	}
	return authz.Strings(capabilities), nil
}

func (e *Engine) CreateRole(ctx context.Context, actor int64, serverID int64, input RoleInput) (role models.Role, err error) {
	defer e.finish("createRole", &err)

	input.Name = strings.TrimSpace(input.Name)
	if err := invalid(validator.Name(input.Name)); err != nil {
		return models.Role{}, err
	}
	if input.Color == "" {
		input.Color = defaultRoleColor
	} else if err := invalid(validator.Color(input.Color)); err != nil {
		return models.Role{}, err
	}
	permissions, err := parsePermissions(input.Permissions)
	if err != nil {
		return models.Role{}, err
	}

	err = e.mutate(ctx, serverLock(serverID), func(tx *database.Tx) ([]delivery, error) {
		if _, _, err := authorizeServer(ctx, &tx.Queries, actor, serverID, authz.ManageRoles); err != nil {
			return nil, err
		}

		roles, err := tx.RolesForServer(ctx, serverID)
		if err != nil {
			return nil, err
		}
		position := 0
		for _, r := range roles {
			if r.Name == input.Name {
				return nil, apperr.Conflict("role %s already exists", input.Name)
			}
			if r.Position >= position {
				position = r.Position + 1
			}
		}

		id, err := e.newID()
		if err != nil {
			return nil, err
		}
		role = models.Role{ID: id, ServerID: serverID, Name: input.Name, Color: input.Color, Permissions: permissions, Position: position}
		if err := tx.InsertRole(ctx, &role); err != nil {
			if database.IsUniqueViolation(err) {
				return nil, apperr.Conflict("role %s already exists", input.Name)
			}
			return nil, err
		}

		return []delivery{{hub.ServerRoom(serverID), hub.ServerEvent(hub.RoleCreated, serverID, role)}}, nil
	})
	if err != nil {
		return models.Role{}, err
	}
	return role, nil
}

// UpdateRole changes a role. Default roles keep their names and the OWNER
// role can't be changed at all.
func (e *Engine) UpdateRole(ctx context.Context, actor int64, serverID int64, roleID int64, update RoleUpdate) (role models.Role, err error) {
	defer e.finish("updateRole", &err)

	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if err := invalid(validator.Name(name)); err != nil {
			return models.Role{}, err
		}
		update.Name = &name
	}
	if update.Color != nil {
		if err := invalid(validator.Color(*update.Color)); err != nil {
			return models.Role{}, err
		}
	}
	var permissions []string
	if update.Permissions != nil {
		if permissions, err = parsePermissions(*update.Permissions); err != nil {
			return models.Role{}, err
		}
	}

	err = e.mutate(ctx, serverLock(serverID), func(tx *database.Tx) ([]delivery, error) {
		_, actorMembership, err := authorizeServer(ctx, &tx.Queries, actor, serverID, authz.ManageRoles)
		if err != nil {
			return nil, err
		}

		if role, err = loadRole(ctx, &tx.Queries, serverID, roleID); err != nil {
			return nil, err
		}
		if role.Name == models.RoleOwner {
			return nil, apperr.Authorization("the owner role can't be changed")
		}
		if err := canManageRole(actorMembership, role); err != nil {
			return nil, err
		}

		if update.Name != nil && *update.Name != role.Name {
			if models.IsDefaultRole(role.Name) {
				return nil, apperr.Conflict("default roles can't be renamed")
			}
			_, err := tx.RoleByName(ctx, serverID, *update.Name)
			if err == nil {
				return nil, apperr.Conflict("role %s already exists", *update.Name)
			} else if !errors.Is(err, database.ErrNotFound) {
				return nil, err
			}
			role.Name = *update.Name
		}
		if update.Color != nil {
			role.Color = *update.Color
		}
		if update.Permissions != nil {
			role.Permissions = permissions
		}

		if err := tx.UpdateRole(ctx, &role); err != nil {
			return nil, err
		}

		return []delivery{{hub.ServerRoom(serverID), hub.ServerEvent(hub.RoleUpdated, serverID, role)}}, nil
	})
	if err != nil {
		return models.Role{}, err
	}
	return role, nil
}

func (e *Engine) DeleteRole(ctx context.Context, actor int64, serverID int64, roleID int64) (err error) {
	defer e.finish("deleteRole", &err)

	return e.mutate(ctx, serverLock(serverID), func(tx *database.Tx) ([]delivery, error) {
		_, actorMembership, err := authorizeServer(ctx, &tx.Queries, actor, serverID, authz.ManageRoles)
		if err != nil {
			return nil, err
		}
		role, err := loadRole(ctx, &tx.Queries, serverID, roleID)
		if err != nil {
			return nil, err
		}
		if models.IsDefaultRole(role.Name) {
			return nil, apperr.Conflict("default role %s can't be deleted", role.Name)
		}
		if err := canManageRole(actorMembership, role); err != nil {
			return nil, err
		}

		if err := tx.DeleteRole(ctx, roleID); err != nil {
			return nil, err
		}

		payload := RoleDeletedPayload{ServerID: serverID, RoleID: roleID}
		return []delivery{{hub.ServerRoom(serverID), hub.ServerEvent(hub.RoleDeleted, serverID, payload)}}, nil
	})
}

// AssignRole grants roleID to userID. Apart from the owner, the actor must
// outrank the member and the role. The OWNER role is only ever held by the creator.
func (e *Engine) AssignRole(ctx context.Context, actor int64, serverID int64, userID int64, roleID int64) (member models.ServerMember, err error) {
	defer e.finish("assignRole", &err)

	err = e.mutate(ctx, serverLock(serverID), func(tx *database.Tx) ([]delivery, error) {
		_, actorMembership, err := authorizeServer(ctx, &tx.Queries, actor, serverID, authz.ManageRoles)
		if err != nil {
			return nil, err
		}
		role, err := loadRole(ctx, &tx.Queries, serverID, roleID)
		if err != nil {
			return nil, err
		}
		if role.Name == models.RoleOwner {
			return nil, apperr.Authorization("the owner role can't be assigned")
		}
		if err := canManageRole(actorMembership, role); err != nil {
			return nil, err
		}

		if member, err = loadMember(ctx, &tx.Queries, serverID, userID); err != nil {
			return nil, err
		}
		if err := canChangeRolesOf(actorMembership, member); err != nil {
			return nil, err
		}
		for _, held := range member.Roles {
			if held.ID == roleID {
				return nil, apperr.Conflict("member already has role %s", role.Name)
			}
		}

		if err := tx.AssignRole(ctx, serverID, userID, roleID); err != nil {
			return nil, err
		}
		if member, err = loadMember(ctx, &tx.Queries, serverID, userID); err != nil {
			return nil, err
		}

		return []delivery{{hub.ServerRoom(serverID), memberEvent(hub.MemberUpdated, serverID, userID, member)}}, nil
	})
	if err != nil {
		return models.ServerMember{}, err
	}
	return member, nil
}

func (e *Engine) UnassignRole(ctx context.Context, actor int64, serverID int64, userID int64, roleID int64) (member models.ServerMember, err error) {
	defer e.finish("unassignRole", &err)

	err = e.mutate(ctx, serverLock(serverID), func(tx *database.Tx) ([]delivery, error) {
		_, actorMembership, err := authorizeServer(ctx, &tx.Queries, actor, serverID, authz.ManageRoles)
		if err != nil {
			return nil, err
		}
		role, err := loadRole(ctx, &tx.Queries, serverID, roleID)
		if err != nil {
			return nil, err
		}
		if role.Name == models.RoleOwner {
			return nil, apperr.Authorization("the owner role can't be revoked")
		}
		if err := canManageRole(actorMembership, role); err != nil {
			return nil, err
		}
		current, err := loadMember(ctx, &tx.Queries, serverID, userID)
		if err != nil {
			return nil, err
		}
		if err := canChangeRolesOf(actorMembership, current); err != nil {
			return nil, err
		}

		removed, err := tx.UnassignRole(ctx, serverID, userID, roleID)
		if err != nil {
			return nil, err
		}
		if !removed {
			return nil, apperr.NotFound("member doesn't have role %s", role.Name)
		}
		if member, err = loadMember(ctx, &tx.Queries, serverID, userID); err != nil {
			return nil, err
		}

		return []delivery{{hub.ServerRoom(serverID), memberEvent(hub.MemberUpdated, serverID, userID, member)}}, nil
	})
	if err != nil {
		return models.ServerMember{}, err
	}
	return member, nil
}
