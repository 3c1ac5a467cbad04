package models

import "time"

const (
	ChatRoleAdmin  = "ADMIN"
	ChatRoleMember = "MEMBER"

	ChannelTypeText  = "TEXT"
	ChannelTypeVoice = "VOICE"

	RoleOwner     = "OWNER"
	RoleAdmin     = "ADMIN"
	RoleModerator = "MODERATOR"
	RoleMember    = "MEMBER"

	// content every deleted message is rendered with
	Tombstone = "[message deleted]"
)

type User struct {
	ID        int64     `json:"id,string"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	Password  []byte    `json:"-"`
	Avatar    string    `json:"avatar"`
	Bio       string    `json:"bio"`
	CreatedAt time.Time `json:"createdAt"`
}

// UserSummary is what other users get to see.
type UserSummary struct {
	ID       int64  `json:"id,string"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

type Chat struct {
	ID              int64        `json:"id,string"`
	IsGroup         bool         `json:"isGroup"`
	Name            string       `json:"name,omitempty"`
	CreatorID       int64        `json:"creatorId,string"`
	PinnedMessageID int64        `json:"pinnedMessageId,string,omitempty"`
	LastMessageID   int64        `json:"lastMessageId,string,omitempty"`
	LastMessageAt   *time.Time   `json:"lastMessageAt,omitempty"`
	CreatedAt       time.Time    `json:"createdAt"`
	Members         []ChatMember `json:"members,omitempty"`
	PinnedMessage   *Message     `json:"pinnedMessage,omitempty"`
	LastMessage     *Message     `json:"lastMessage,omitempty"`
}

type ChatMember struct {
	ChatID   int64        `json:"chatId,string"`
	UserID   int64        `json:"userId,string"`
	Role     string       `json:"role"`
	JoinedAt time.Time    `json:"joinedAt"`
	User     *UserSummary `json:"user,omitempty"`
	Online   bool         `json:"online"`
}

type Message struct {
	ID        int64        `json:"id,string"`
	ChatID    int64        `json:"chatId,string"`
	SenderID  int64        `json:"senderId,string"`
	Content   string       `json:"content"`
	ReplyToID int64        `json:"replyToId,string,omitempty"`
	FileRef   string       `json:"fileRef,omitempty"`
	Edited    bool         `json:"edited"`
	Deleted   bool         `json:"deleted"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
	Sender    *UserSummary `json:"sender,omitempty"`
	ReplyTo   *Message     `json:"replyTo,omitempty"`
	Reactions []Reaction   `json:"reactions"`
}

type Reaction struct {
	ID        int64     `json:"id,string"`
	MessageID int64     `json:"messageId,string"`
	UserID    int64     `json:"userId,string"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"createdAt"`
}

type Server struct {
	ID          int64          `json:"id,string"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Icon        string         `json:"icon"`
	CreatorID   int64          `json:"creatorId,string"`
	CreatedAt   time.Time      `json:"createdAt"`
	Channels    []Channel      `json:"channels,omitempty"`
	Roles       []Role         `json:"roles,omitempty"`
	Members     []ServerMember `json:"members,omitempty"`
}

type Channel struct {
	ID        int64     `json:"id,string"`
	ServerID  int64     `json:"serverId,string"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"createdAt"`
}

type Role struct {
	ID          int64    `json:"id,string"`
	ServerID    int64    `json:"serverId,string"`
	Name        string   `json:"name"`
	Color       string   `json:"color"`
	Permissions []string `json:"permissions"`
	Position    int      `json:"position"`
}

type ServerMember struct {
	ServerID int64        `json:"serverId,string"`
	UserID   int64        `json:"userId,string"`
	JoinedAt time.Time    `json:"joinedAt"`
	Roles    []Role       `json:"roles"`
	User     *UserSummary `json:"user,omitempty"`
}

type ServerBan struct {
	ServerID  int64     `json:"serverId,string"`
	UserID    int64     `json:"userId,string"`
	BannedBy  int64     `json:"bannedBy,string"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"createdAt"`
}

func IsDefaultRole(name string) bool {
	switch name {
	case RoleOwner, RoleAdmin, RoleModerator, RoleMember:
		return true
	}
	return false
}
