package database

import (
	"chatcore/internal/models"
	"context"
	"database/sql"
	"strings"
)

func (q *Queries) InsertServer(ctx context.Context, s *models.Server) error {
	_, err := q.q.ExecContext(ctx,
		"INSERT INTO servers (id, name, description, icon, creator_id, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		s.ID, s.Name, s.Description, s.Icon, s.CreatorID, toMillis(s.CreatedAt))
	return err
}

func scanServer(row interface{ Scan(...any) error }) (models.Server, error) {
	var s models.Server
	var createdAt int64
	if err := row.Scan(&s.ID, &s.Name, &s.Description, &s.Icon, &s.CreatorID, &createdAt); err != nil {
		return models.Server{}, notFound(err)
	}
	s.CreatedAt = fromMillis(createdAt)
	return s, nil
}

func (q *Queries) ServerByID(ctx context.Context, id int64) (models.Server, error) {
	return scanServer(q.q.QueryRowContext(ctx,
		"SELECT id, name, description, icon, creator_id, created_at FROM servers WHERE id = ?", id))
}

func (q *Queries) ServersForUser(ctx context.Context, userID int64) ([]models.Server, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT s.id, s.name, s.description, s.icon, s.creator_id, s.created_at
		FROM servers s
		JOIN server_members sm ON sm.server_id = s.id
		WHERE sm.user_id = ?
		ORDER BY sm.joined_at, s.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	servers := []models.Server{}
	for rows.Next() {
		s, err := scanServer(rows)
		if err != nil {
			return nil, err
		}
		servers = append(servers, s)
	}
	return servers, rows.Err()
}

func (q *Queries) UpdateServer(ctx context.Context, s *models.Server) error {
	_, err := q.q.ExecContext(ctx, "UPDATE servers SET name = ?, description = ?, icon = ? WHERE id = ?",
		s.Name, s.Description, s.Icon, s.ID)
	return err
}

// channels

func (q *Queries) InsertChannel(ctx context.Context, c *models.Channel) error {
	_, err := q.q.ExecContext(ctx,
		"INSERT INTO channels (id, server_id, name, type, position, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		c.ID, c.ServerID, c.Name, c.Type, c.Position, toMillis(c.CreatedAt))
	return err
}

func (q *Queries) ChannelsForServer(ctx context.Context, serverID int64) ([]models.Channel, error) {
	rows, err := q.q.QueryContext(ctx,
		"SELECT id, server_id, name, type, position, created_at FROM channels WHERE server_id = ? ORDER BY position", serverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	channels := []models.Channel{}
	for rows.Next() {
		var c models.Channel
		var createdAt int64
		if err := rows.Scan(&c.ID, &c.ServerID, &c.Name, &c.Type, &c.Position, &createdAt); err != nil {
			return nil, err
		}
		c.CreatedAt = fromMillis(createdAt)
		channels = append(channels, c)
	}
	return channels, rows.Err()
}

func (q *Queries) ChannelPositionTaken(ctx context.Context, serverID int64, position int) (bool, error) {
	var taken bool
	err := q.q.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM channels WHERE server_id = ? AND position = ?)", serverID, position).Scan(&taken)
	return taken, err
}

func (q *Queries) NextChannelPosition(ctx context.Context, serverID int64) (int, error) {
	var position sql.NullInt64
	err := q.q.QueryRowContext(ctx, "SELECT MAX(position) FROM channels WHERE server_id = ?", serverID).Scan(&position)
	if err != nil {
		return 0, err
	}
	if !position.Valid {
		return 0, nil
	}
	return int(position.Int64) + 1, nil
}

// roles

func joinPermissions(permissions []string) string {
	return strings.Join(permissions, ",")
}

func splitPermissions(permissions string) []string {
	if permissions == "" {
		return []string{}
	}
	return strings.Split(permissions, ",")
}

const roleColumns = "id, server_id, name, color, permissions, position"

func scanRole(row interface{ Scan(...any) error }) (models.Role, error) {
	var r models.Role
	var permissions string
	if err := row.Scan(&r.ID, &r.ServerID, &r.Name, &r.Color, &permissions, &r.Position); err != nil {
		return models.Role{}, notFound(err)
	}
	r.Permissions = splitPermissions(permissions)
	return r, nil
}

func (q *Queries) InsertRole(ctx context.Context, r *models.Role) error {
	_, err := q.q.ExecContext(ctx,
		"INSERT INTO roles (id, server_id, name, color, permissions, position) VALUES (?, ?, ?, ?, ?, ?)",
		r.ID, r.ServerID, r.Name, r.Color, joinPermissions(r.Permissions), r.Position)
	return err
}

func (q *Queries) UpdateRole(ctx context.Context, r *models.Role) error {
	_, err := q.q.ExecContext(ctx, "UPDATE roles SET name = ?, color = ?, permissions = ?, position = ? WHERE id = ?",
		r.Name, r.Color, joinPermissions(r.Permissions), r.Position, r.ID)
	return err
}

func (q *Queries) DeleteRole(ctx context.Context, roleID int64) error {
	_, err := q.q.ExecContext(ctx, "DELETE FROM roles WHERE id = ?", roleID)
	return err
}

func (q *Queries) RoleByID(ctx context.Context, roleID int64) (models.Role, error) {
	return scanRole(q.q.QueryRowContext(ctx, "SELECT "+roleColumns+" FROM roles WHERE id = ?", roleID))
}

func (q *Queries) RoleByName(ctx context.Context, serverID int64, name string) (models.Role, error) {
	return scanRole(q.q.QueryRowContext(ctx, "SELECT "+roleColumns+" FROM roles WHERE server_id = ? AND name = ?", serverID, name))
}

func (q *Queries) RolesForServer(ctx context.Context, serverID int64) ([]models.Role, error) {
	return q.queryRoles(ctx, "SELECT "+roleColumns+" FROM roles WHERE server_id = ? ORDER BY position, id", serverID)
}

func (q *Queries) queryRoles(ctx context.Context, query string, args ...any) ([]models.Role, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	roles := []models.Role{}
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	return roles, rows.Err()
}

// members

func (q *Queries) InsertServerMember(ctx context.Context, m models.ServerMember) error {
	_, err := q.q.ExecContext(ctx, "INSERT INTO server_members (server_id, user_id, joined_at) VALUES (?, ?, ?)",
		m.ServerID, m.UserID, toMillis(m.JoinedAt))
	return err
}

// DeleteServerMember removes the membership and its role assignments.
func (q *Queries) DeleteServerMember(ctx context.Context, serverID int64, userID int64) (bool, error) {
	if _, err := q.q.ExecContext(ctx, "DELETE FROM server_member_roles WHERE server_id = ? AND user_id = ?", serverID, userID); err != nil {
		return false, err
	}
	result, err := q.q.ExecContext(ctx, "DELETE FROM server_members WHERE server_id = ? AND user_id = ?", serverID, userID)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	return affected > 0, err
}

// ServerMember returns nil when the user is not a member. Roles are loaded
// with the membership so authorization sees the state of this transaction.
func (q *Queries) ServerMember(ctx context.Context, serverID int64, userID int64) (*models.ServerMember, error) {
	var m models.ServerMember
	var joinedAt int64
	err := q.q.QueryRowContext(ctx,
		"SELECT server_id, user_id, joined_at FROM server_members WHERE server_id = ? AND user_id = ?", serverID, userID).
		Scan(&m.ServerID, &m.UserID, &joinedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	m.JoinedAt = fromMillis(joinedAt)

	m.Roles, err = q.queryRoles(ctx, `
		SELECT r.id, r.server_id, r.name, r.color, r.permissions, r.position
		FROM roles r
		JOIN server_member_roles smr ON smr.role_id = r.id
		WHERE smr.server_id = ? AND smr.user_id = ?
		ORDER BY r.position, r.id`, serverID, userID)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (q *Queries) ServerMembers(ctx context.Context, serverID int64) ([]models.ServerMember, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT sm.server_id, sm.user_id, sm.joined_at, u.username, u.avatar
		FROM server_members sm
		JOIN users u ON u.id = sm.user_id
		WHERE sm.server_id = ?
		ORDER BY sm.joined_at, sm.user_id`, serverID)
	if err != nil {
		return nil, err
	}

	members := []models.ServerMember{}
	index := make(map[int64]int)
	for rows.Next() {
		var m models.ServerMember
		var joinedAt int64
		user := &models.UserSummary{}
		if err := rows.Scan(&m.ServerID, &m.UserID, &joinedAt, &user.Username, &user.Avatar); err != nil {
			rows.Close()
			return nil, err
		}
		user.ID = m.UserID
		m.User = user
		m.JoinedAt = fromMillis(joinedAt)
		m.Roles = []models.Role{}
		index[m.UserID] = len(members)
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	rows, err = q.q.QueryContext(ctx, `
		SELECT smr.user_id, r.id, r.server_id, r.name, r.color, r.permissions, r.position
		FROM server_member_roles smr
		JOIN roles r ON r.id = smr.role_id
		WHERE smr.server_id = ?
		ORDER BY r.position, r.id`, serverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var userID int64
		var r models.Role
		var permissions string
		if err := rows.Scan(&userID, &r.ID, &r.ServerID, &r.Name, &r.Color, &permissions, &r.Position); err != nil {
			return nil, err
		}
		r.Permissions = splitPermissions(permissions)
		if i, ok := index[userID]; ok {
			members[i].Roles = append(members[i].Roles, r)
		}
	}
	return members, rows.Err()
}

func (q *Queries) AssignRole(ctx context.Context, serverID int64, userID int64, roleID int64) error {
	_, err := q.q.ExecContext(ctx, "INSERT INTO server_member_roles (server_id, user_id, role_id) VALUES (?, ?, ?)",
		serverID, userID, roleID)
	return err
}

func (q *Queries) UnassignRole(ctx context.Context, serverID int64, userID int64, roleID int64) (bool, error) {
	result, err := q.q.ExecContext(ctx, "DELETE FROM server_member_roles WHERE server_id = ? AND user_id = ? AND role_id = ?",
		serverID, userID, roleID)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	return affected > 0, err
}

// bans

func (q *Queries) InsertBan(ctx context.Context, b models.ServerBan) error {
	_, err := q.q.ExecContext(ctx,
		"INSERT INTO server_bans (server_id, user_id, banned_by, reason, created_at) VALUES (?, ?, ?, ?, ?)",
		b.ServerID, b.UserID, b.BannedBy, b.Reason, toMillis(b.CreatedAt))
	return err
}

func (q *Queries) DeleteBan(ctx context.Context, serverID int64, userID int64) (bool, error) {
	result, err := q.q.ExecContext(ctx, "DELETE FROM server_bans WHERE server_id = ? AND user_id = ?", serverID, userID)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	return affected > 0, err
}

func (q *Queries) IsBanned(ctx context.Context, serverID int64, userID int64) (bool, error) {
	var banned bool
	err := q.q.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM server_bans WHERE server_id = ? AND user_id = ?)", serverID, userID).
		Scan(&banned)
	return banned, err
}
