package hub

import (
	"fmt"
	"strconv"
	"strings"
)

type RoomKind string

const (
	RoomUser   RoomKind = "user"
	RoomChat   RoomKind = "chat"
	RoomServer RoomKind = "server"
)

// Room is a broadcast group key such as "chat:42".
type Room string

func UserRoom(userID int64) Room {
	return Room(fmt.Sprintf("%s:%d", RoomUser, userID))
}

func ChatRoom(chatID int64) Room {
	return Room(fmt.Sprintf("%s:%d", RoomChat, chatID))
}

func ServerRoom(serverID int64) Room {
	return Room(fmt.Sprintf("%s:%d", RoomServer, serverID))
}

func ParseRoom(s string) (RoomKind, int64, error) {
	kind, idStr, found := strings.Cut(s, ":")
	if !found {
		return "", 0, fmt.Errorf("room %q has no id", s)
	}

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		return "", 0, fmt.Errorf("room %q has an invalid id", s)
	}

	switch RoomKind(kind) {
	case RoomUser, RoomChat, RoomServer:
		return RoomKind(kind), id, nil
	}
	return "", 0, fmt.Errorf("unknown room kind %q", kind)
}
