package hub

import (
	"chatcore/internal/apperr"
	"chatcore/internal/metrics"
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Authorizer decides whether a user may join a chat or server room.
type Authorizer interface {
	CanJoin(ctx context.Context, userID int64, room Room) error
}

type clientFrame struct {
	Type     string `json:"type"`
	Room     Room   `json:"room,omitempty"`
	ChatID   int64  `json:"chatId,string,omitempty"`
	IsTyping bool   `json:"isTyping,omitempty"`
}

// ServeConn pumps frames between an upgraded websocket and the hub until
// either side goes away.
func (h *Hub) ServeConn(ctx context.Context, ws *websocket.Conn, userID int64, auth Authorizer) {
	defer ws.Close()

	c := h.NewConn(userID)
	if err := h.Register(ctx, c); err != nil {
		h.sugar.Warnf("Couldn't register websocket of user ID %d: %v", userID, err)
		return
	}
	defer h.Unregister(c)

	go h.writePump(ws, c)
	h.readPump(ctx, ws, c, auth)
}

func (h *Hub) readPump(ctx context.Context, ws *websocket.Conn, c *Conn, auth Authorizer) {
	ws.SetReadLimit(maxMessageSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	limit := rate.Inf
	if h.opts.MessagesPerSecond > 0 {
		limit = rate.Limit(h.opts.MessagesPerSecond)
	}
	burst := h.opts.Burst
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(limit, burst)

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.sugar.Debugf("Websocket of user ID %d closed: %v", c.UserID, err)
			}
			return
		}

		if !limiter.Allow() {
			metrics.HubDropped.WithLabelValues("rate_limited").Inc()
			h.sendError(ctx, c, "too many messages")
			continue
		}

		h.handleFrame(ctx, c, data, auth)
	}
}

func (h *Hub) handleFrame(ctx context.Context, c *Conn, data []byte, auth Authorizer) {
	var frame clientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		h.sendError(ctx, c, "malformed frame")
		return
	}

	switch frame.Type {
	case clientJoin:
		kind, id, err := ParseRoom(string(frame.Room))
		if err != nil {
			h.sendError(ctx, c, err.Error())
			return
		}
		if kind == RoomUser {
			if id != c.UserID {
				h.sendError(ctx, c, "can't join the room of another user")
			}
			return
		}
		if err := auth.CanJoin(ctx, c.UserID, frame.Room); err != nil {
			h.sendError(ctx, c, apperr.PublicMessage(err))
			return
		}
		h.Join(ctx, c, frame.Room)
	case clientLeave:
		if frame.Room == UserRoom(c.UserID) {
			h.sendError(ctx, c, "can't leave own user room")
			return
		}
		h.Leave(ctx, c, frame.Room)
	case clientTyping:
		if frame.ChatID <= 0 {
			h.sendError(ctx, c, "typing frame needs a chat id")
			return
		}
		h.Typing(ctx, c, frame.ChatID, frame.IsTyping)
	default:
		h.sendError(ctx, c, "unknown frame type")
	}
}

func (h *Hub) sendError(ctx context.Context, c *Conn, message string) {
	h.sendFrame(ctx, c, Event{Type: ErrorMessage, Payload: errorPayload{Message: message}})
}

func (h *Hub) writePump(ws *websocket.Conn, c *Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// hub dropped the connection
				ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				h.sugar.Debugf("Couldn't write to websocket of user ID %d: %v", c.UserID, err)
				return
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
