package hub

import (
	"chatcore/internal/metrics"
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrNotRunning = errors.New("hub is not running")

// Presence receives online/offline transitions of users. Calls happen on a
// separate worker so a slow presence store never stalls delivery.
type Presence interface {
	SetOnline(ctx context.Context, userID int64) error
	SetOffline(ctx context.Context, userID int64) error
}

type Options struct {
	SendBuffer int
	InboxSize  int
	// PresenceRefresh is how often online users get their presence key extended
	PresenceRefresh time.Duration
	// inbound frame rate limit per connection
	MessagesPerSecond float64
	Burst             int
}

// Hub owns the connection registry and the room table. Every change goes
// through its inbox and is applied by the single Serve loop, so events
// published to one room are delivered in the order they were published.
type Hub struct {
	sugar    *zap.SugaredLogger
	presence Presence
	opts     Options
	relay    *Relay

	inbox           chan any
	presenceUpdates chan presenceUpdate
	stopped         chan struct{}
	stopOnce        sync.Once

	conns map[string]*Conn
	rooms map[Room]map[string]*Conn
	users map[int64]map[string]*Conn
	seqs  map[Room]uint64
}

type registerOp struct{ conn *Conn }
type unregisterOp struct{ conn *Conn }

type joinOp struct {
	conn *Conn
	room Room
}

type leaveOp struct {
	conn *Conn
	room Room
}

type publishOp struct {
	room   Room
	event  Event
	except string
}

type typingOp struct {
	conn     *Conn
	chatID   int64
	isTyping bool
}

type frameOp struct {
	conn  *Conn
	event Event
}

type usersOp struct {
	room  Room
	reply chan []int64
}

type presenceUpdate struct {
	userID int64
	online bool
}

func New(sugar *zap.SugaredLogger, presence Presence, opts Options) *Hub {
	if opts.InboxSize <= 0 {
		opts.InboxSize = 4096
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}

	return &Hub{
		sugar:           sugar,
		presence:        presence,
		opts:            opts,
		inbox:           make(chan any, opts.InboxSize),
		presenceUpdates: make(chan presenceUpdate, 1024),
		stopped:         make(chan struct{}),
		conns:           make(map[string]*Conn),
		rooms:           make(map[Room]map[string]*Conn),
		users:           make(map[int64]map[string]*Conn),
		seqs:            make(map[Room]uint64),
	}
}

func (h *Hub) String() string {
	return "hub"
}

func (h *Hub) NewConn(userID int64) *Conn {
	return NewConn(userID, h.opts.SendBuffer)
}

func (h *Hub) enqueue(ctx context.Context, o any) bool {
	select {
	case <-h.stopped:
		return false
	default:
	}

	select {
	case h.inbox <- o:
		return true
	case <-ctx.Done():
		return false
	case <-h.stopped:
		return false
	}
}

// Register adds the connection and joins it to its own user room.
func (h *Hub) Register(ctx context.Context, c *Conn) error {
	if !h.enqueue(ctx, registerOp{c}) {
		return ErrNotRunning
	}
	return nil
}

// Unregister removes the connection from every room and closes its send channel.
func (h *Hub) Unregister(c *Conn) {
	h.enqueue(context.Background(), unregisterOp{c})
}

// Join must only be called after the caller checked the user may see the room.
func (h *Hub) Join(ctx context.Context, c *Conn, room Room) {
	h.enqueue(ctx, joinOp{c, room})
}

func (h *Hub) Leave(ctx context.Context, c *Conn, room Room) {
	h.enqueue(ctx, leaveOp{c, room})
}

// Publish delivers ev to every connection joined to room.
func (h *Hub) Publish(ctx context.Context, room Room, ev Event) {
	metrics.HubEventsPublished.WithLabelValues(ev.Type).Inc()
	if !h.enqueue(ctx, publishOp{room: room, event: ev}) {
		h.sugar.Warnf("Dropping %s event for room %s, hub is not accepting events", ev.Type, room)
	}
}

func (h *Hub) publishExcept(ctx context.Context, room Room, ev Event, except string) {
	h.enqueue(ctx, publishOp{room: room, event: ev, except: except})
}

// Typing relays a typing signal to the other connections of a chat room the
// connection has joined.
func (h *Hub) Typing(ctx context.Context, c *Conn, chatID int64, isTyping bool) {
	h.enqueue(ctx, typingOp{c, chatID, isTyping})
}

func (h *Hub) sendFrame(ctx context.Context, c *Conn, ev Event) {
	h.enqueue(ctx, frameOp{c, ev})
}

// Users lists the distinct users with a connection in the room.
func (h *Hub) Users(ctx context.Context, room Room) ([]int64, error) {
	reply := make(chan []int64, 1)
	if !h.enqueue(ctx, usersOp{room, reply}) {
		return nil, ErrNotRunning
	}
	select {
	case users := <-reply:
		return users, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.stopped:
		return nil, ErrNotRunning
	}
}

// Serve runs the hub loop until ctx is done, then drops every connection.
func (h *Hub) Serve(ctx context.Context) error {
	presenceStop := make(chan struct{})
	presenceDone := make(chan struct{})
	go h.servePresence(presenceStop, presenceDone)
	defer func() {
		close(presenceStop)
		<-presenceDone
	}()

	var refresh <-chan time.Time
	if h.presence != nil && h.opts.PresenceRefresh > 0 {
		ticker := time.NewTicker(h.opts.PresenceRefresh)
		defer ticker.Stop()
		refresh = ticker.C
	}

	h.sugar.Info("Hub started")

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()
		case o := <-h.inbox:
			h.apply(o)
		case <-refresh:
			for userID := range h.users {
				h.queuePresence(userID, true)
			}
		}
	}
}

func (h *Hub) shutdown() {
	h.stopOnce.Do(func() { close(h.stopped) })

	for _, c := range h.conns {
		h.removeConn(c, "shutdown")
	}
	h.sugar.Info("Hub stopped")
}

func (h *Hub) apply(o any) {
	switch o := o.(type) {
	case registerOp:
		h.addConn(o.conn)
	case unregisterOp:
		h.removeConn(o.conn, "")
	case joinOp:
		h.join(o.conn, o.room, true)
	case leaveOp:
		h.leave(o.conn, o.room, "")
	case publishOp:
		h.dispatch(o.room, o.event, o.except)
	case typingOp:
		h.typing(o)
	case frameOp:
		if _, ok := h.conns[o.conn.ID]; ok {
			h.sendEvent(o.conn, o.event)
		}
	case usersOp:
		o.reply <- h.roomUsers(o.room)
	default:
		h.sugar.Errorf("Hub received unknown operation %T", o)
	}
}

func (h *Hub) addConn(c *Conn) {
	if _, exists := h.conns[c.ID]; exists {
		return
	}

	h.conns[c.ID] = c
	userConns, ok := h.users[c.UserID]
	if !ok {
		userConns = make(map[string]*Conn)
		h.users[c.UserID] = userConns
	}
	first := len(userConns) == 0
	userConns[c.ID] = c
	metrics.HubConnections.Inc()

	h.sugar.Debugf("Connection %s of user ID %d registered", c.ID, c.UserID)

	h.join(c, UserRoom(c.UserID), false)
	if first {
		h.queuePresence(c.UserID, true)
	}
}

// removeConn cleans up every room membership of the connection. reason is
// empty for a normal disconnect.
func (h *Hub) removeConn(c *Conn, reason string) {
	if _, ok := h.conns[c.ID]; !ok {
		return
	}

	for room := range c.rooms {
		h.removeFromRoom(c, room)
	}
	delete(h.conns, c.ID)

	if userConns, ok := h.users[c.UserID]; ok {
		delete(userConns, c.ID)
		if len(userConns) == 0 {
			delete(h.users, c.UserID)
			h.queuePresence(c.UserID, false)
		}
	}

	close(c.send)
	metrics.HubConnections.Dec()

	if reason != "" {
		metrics.HubDropped.WithLabelValues(reason).Inc()
		h.sugar.Debugf("Dropped connection %s of user ID %d: %s", c.ID, c.UserID, reason)
	} else {
		h.sugar.Debugf("Connection %s of user ID %d unregistered", c.ID, c.UserID)
	}
}

func (h *Hub) join(c *Conn, room Room, ack bool) {
	if _, ok := h.conns[c.ID]; !ok {
		return
	}

	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]*Conn)
		h.rooms[room] = members
		metrics.HubRooms.Inc()
	}
	members[c.ID] = c
	c.rooms[room] = struct{}{}

	if ack {
		h.sendEvent(c, Event{Type: RoomJoined, Room: room, Payload: roomPayload{Room: room}})
	}
}

func (h *Hub) leave(c *Conn, room Room, reason string) {
	if _, ok := c.rooms[room]; !ok {
		return
	}
	h.removeFromRoom(c, room)
	h.sendEvent(c, Event{Type: RoomLeft, Room: room, Payload: roomPayload{Room: room, Reason: reason}})
}

func (h *Hub) removeFromRoom(c *Conn, room Room) {
	delete(c.rooms, room)

	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, c.ID)
	if len(members) == 0 {
		delete(h.rooms, room)
		delete(h.seqs, room)
		metrics.HubRooms.Dec()
	}
}

func (h *Hub) dispatch(room Room, ev Event, except string) {
	members := h.rooms[room]
	if len(members) == 0 {
		return
	}

	ev.Room = room
	if ev.Type != UserTyping {
		h.seqs[room]++
		ev.Seq = h.seqs[room]
	}

	frame, err := encode(ev)
	if err != nil {
		h.sugar.Errorf("Couldn't encode %s event for room %s: %v", ev.Type, room, err)
		return
	}

	for id, c := range members {
		if id == except {
			continue
		}
		// a failing receiver is dropped, the rest of the room still gets the frame
		h.deliver(c, frame)
	}

	// a user who lost membership stops receiving the room on every node
	if (ev.Type == MemberRemoved || ev.Type == MemberBanned) && ev.UserID != 0 && room != UserRoom(ev.UserID) {
		for _, c := range h.users[ev.UserID] {
			h.leave(c, room, "removed")
		}
	}
}

func (h *Hub) typing(o typingOp) {
	if _, ok := h.conns[o.conn.ID]; !ok {
		return
	}

	room := ChatRoom(o.chatID)
	if _, joined := o.conn.rooms[room]; !joined {
		h.sendEvent(o.conn, Event{Type: ErrorMessage, Payload: errorPayload{Message: "join the chat before sending typing signals"}})
		return
	}

	ev := ChatEvent(UserTyping, o.chatID, TypingPayload{UserID: o.conn.UserID, IsTyping: o.isTyping})
	h.dispatch(room, ev, o.conn.ID)
	if h.relay != nil {
		h.relay.forward(envelope{Room: room, Except: o.conn.ID, Event: ev})
	}
}

func (h *Hub) sendEvent(c *Conn, ev Event) {
	frame, err := encode(ev)
	if err != nil {
		h.sugar.Errorf("Couldn't encode %s frame: %v", ev.Type, err)
		return
	}
	h.deliver(c, frame)
}

func (h *Hub) deliver(c *Conn, frame []byte) bool {
	select {
	case c.send <- frame:
		metrics.HubDeliveries.Inc()
		return true
	default:
		h.removeConn(c, "slow_consumer")
		return false
	}
}

func (h *Hub) roomUsers(room Room) []int64 {
	seen := make(map[int64]struct{})
	users := []int64{}
	for _, c := range h.rooms[room] {
		if _, ok := seen[c.UserID]; ok {
			continue
		}
		seen[c.UserID] = struct{}{}
		users = append(users, c.UserID)
	}
	slices.Sort(users)
	return users
}

func (h *Hub) queuePresence(userID int64, online bool) {
	if h.presence == nil {
		return
	}
	select {
	case h.presenceUpdates <- presenceUpdate{userID, online}:
	default:
		metrics.HubDropped.WithLabelValues("presence_queue_full").Inc()
	}
}

func (h *Hub) servePresence(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case u := <-h.presenceUpdates:
			h.applyPresence(u)
		case <-stop:
			for {
				select {
				case u := <-h.presenceUpdates:
					h.applyPresence(u)
				default:
					return
				}
			}
		}
	}
}

func (h *Hub) applyPresence(u presenceUpdate) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var err error
	if u.online {
		err = h.presence.SetOnline(ctx, u.userID)
	} else {
		err = h.presence.SetOffline(ctx, u.userID)
	}
	if err != nil {
		h.sugar.Errorf("Couldn't update presence of user ID %d: %v", u.userID, err)
	}
}
