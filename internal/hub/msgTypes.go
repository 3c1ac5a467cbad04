package hub

const (
	MessageCreated  = "message.created"
	MessageEdited   = "message.edited"
	MessageDeleted  = "message.deleted"
	MessagePinned   = "message.pinned"
	MessageUnpinned = "message.unpinned"
	ReactionAdded   = "reaction.added"
	ReactionRemoved = "reaction.removed"
	ChatCreated     = "chat.created"
	ServerUpdated   = "server.updated"
	ChannelCreated  = "channel.created"
	MemberAdded     = "member.added"
	MemberRemoved   = "member.removed"
	MemberUpdated   = "member.updated"
	MemberBanned    = "member.banned"
	RoleCreated     = "role.created"
	RoleUpdated     = "role.updated"
	RoleDeleted     = "role.deleted"
	UserTyping      = "user.typing"
	RoomJoined      = "room.joined"
	RoomLeft        = "room.left"
	ErrorMessage    = "error"
)

// frames sent by clients
const (
	clientJoin   = "join"
	clientLeave  = "leave"
	clientTyping = "typing"
)
