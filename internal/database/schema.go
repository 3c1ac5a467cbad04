package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

type dialect int

const (
	dialectSqlite dialect = iota
	dialectMysql
)

// timestamps are stored as unix milliseconds, so both drivers scan them the same way
var tables = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT PRIMARY KEY,
		username VARCHAR(32) NOT NULL UNIQUE,
		email VARCHAR(64) NOT NULL UNIQUE,
		password BINARY(60) NOT NULL,
		avatar TEXT NOT NULL,
		bio TEXT NOT NULL,
		created_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS chats (
		id BIGINT PRIMARY KEY,
		is_group BOOLEAN NOT NULL,
		name VARCHAR(64) NOT NULL,
		creator_id BIGINT NOT NULL,
		private_key VARCHAR(48) UNIQUE,
		pinned_message_id BIGINT,
		last_message_id BIGINT,
		last_message_at BIGINT,
		created_at BIGINT NOT NULL,
		FOREIGN KEY (creator_id) REFERENCES users(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS chat_members (
		chat_id BIGINT NOT NULL,
		user_id BIGINT NOT NULL,
		role VARCHAR(16) NOT NULL,
		joined_at BIGINT NOT NULL,
		PRIMARY KEY (chat_id, user_id),
		FOREIGN KEY (chat_id) REFERENCES chats(id) ON DELETE CASCADE,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id BIGINT PRIMARY KEY,
		chat_id BIGINT NOT NULL,
		sender_id BIGINT NOT NULL,
		content TEXT NOT NULL,
		reply_to_id BIGINT,
		file_ref TEXT,
		edited BOOLEAN NOT NULL,
		deleted BOOLEAN NOT NULL,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL,
		FOREIGN KEY (chat_id) REFERENCES chats(id) ON DELETE CASCADE,
		FOREIGN KEY (sender_id) REFERENCES users(id) ON DELETE CASCADE,
		FOREIGN KEY (reply_to_id) REFERENCES messages(id)
	)`,
	`CREATE TABLE IF NOT EXISTS reactions (
		id BIGINT PRIMARY KEY,
		message_id BIGINT NOT NULL,
		user_id BIGINT NOT NULL,
		emoji VARCHAR(32) NOT NULL,
		created_at BIGINT NOT NULL,
		UNIQUE (message_id, user_id, emoji),
		FOREIGN KEY (message_id) REFERENCES messages(id) ON DELETE CASCADE,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS servers (
		id BIGINT PRIMARY KEY,
		name VARCHAR(64) NOT NULL,
		description TEXT NOT NULL,
		icon TEXT NOT NULL,
		creator_id BIGINT NOT NULL,
		created_at BIGINT NOT NULL,
		FOREIGN KEY (creator_id) REFERENCES users(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS channels (
		id BIGINT PRIMARY KEY,
		server_id BIGINT NOT NULL,
		name VARCHAR(64) NOT NULL,
		type VARCHAR(8) NOT NULL,
		position INT NOT NULL,
		created_at BIGINT NOT NULL,
		UNIQUE (server_id, position),
		FOREIGN KEY (server_id) REFERENCES servers(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS roles (
		id BIGINT PRIMARY KEY,
		server_id BIGINT NOT NULL,
		name VARCHAR(64) NOT NULL,
		color VARCHAR(7) NOT NULL,
		permissions TEXT NOT NULL,
		position INT NOT NULL,
		UNIQUE (server_id, name),
		FOREIGN KEY (server_id) REFERENCES servers(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS server_members (
		server_id BIGINT NOT NULL,
		user_id BIGINT NOT NULL,
		joined_at BIGINT NOT NULL,
		PRIMARY KEY (server_id, user_id),
		FOREIGN KEY (server_id) REFERENCES servers(id) ON DELETE CASCADE,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS server_member_roles (
		server_id BIGINT NOT NULL,
		user_id BIGINT NOT NULL,
		role_id BIGINT NOT NULL,
		PRIMARY KEY (server_id, user_id, role_id),
		FOREIGN KEY (server_id, user_id) REFERENCES server_members(server_id, user_id) ON DELETE CASCADE,
		FOREIGN KEY (role_id) REFERENCES roles(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS server_bans (
		server_id BIGINT NOT NULL,
		user_id BIGINT NOT NULL,
		banned_by BIGINT NOT NULL,
		reason TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		PRIMARY KEY (server_id, user_id),
		FOREIGN KEY (server_id) REFERENCES servers(id) ON DELETE CASCADE,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	)`,
}

type index struct {
	name    string
	table   string
	columns string
}

var indexes = []index{
	{"idx_messages_chat_created", "messages", "chat_id, created_at, id"},
	{"idx_chat_members_user", "chat_members", "user_id"},
	{"idx_reactions_message", "reactions", "message_id"},
	{"idx_server_members_user", "server_members", "user_id"},
}

func setupTables(db *sql.DB, d dialect) error {
	for _, table := range tables {
		if _, err := db.Exec(table); err != nil {
			return err
		}
	}

	for _, idx := range indexes {
		if err := createIndex(db, d, idx); err != nil {
			return err
		}
	}

	return nil
}

func createIndex(db *sql.DB, d dialect, idx index) error {
	if d == dialectSqlite {
		_, err := db.Exec(fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", idx.name, idx.table, idx.columns))
		return err
	}

	// mysql has no IF NOT EXISTS for indexes, a duplicate key name means it's already there
	_, err := db.Exec(fmt.Sprintf("CREATE INDEX %s ON %s (%s)", idx.name, idx.table, idx.columns))
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == 1061 {
		return nil
	}
	return err
}
