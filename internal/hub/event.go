package hub

import "github.com/goccy/go-json"

// Event is the wire frame of a domain event or an ephemeral signal. Seq is
// assigned by the hub per room and lets clients notice gaps.
type Event struct {
	Type     string `json:"type"`
	ChatID   int64  `json:"chatId,string,omitempty"`
	ServerID int64  `json:"serverId,string,omitempty"`
	UserID   int64  `json:"userId,string,omitempty"`
	Room     Room   `json:"room,omitempty"`
	Seq      uint64 `json:"seq,omitempty"`
	Payload  any    `json:"payload,omitempty"`
}

func ChatEvent(eventType string, chatID int64, payload any) Event {
	return Event{Type: eventType, ChatID: chatID, Payload: payload}
}

func ServerEvent(eventType string, serverID int64, payload any) Event {
	return Event{Type: eventType, ServerID: serverID, Payload: payload}
}

func UserEvent(eventType string, userID int64, payload any) Event {
	return Event{Type: eventType, UserID: userID, Payload: payload}
}

type TypingPayload struct {
	UserID   int64 `json:"userId,string"`
	IsTyping bool  `json:"isTyping"`
}

type roomPayload struct {
	Room   Room   `json:"room"`
	Reason string `json:"reason,omitempty"`
}

type errorPayload struct {
	Message string `json:"message"`
}

func encode(ev Event) ([]byte, error) {
	return json.Marshal(ev)
}
