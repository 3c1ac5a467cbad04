package hub

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

type testFrame struct {
	Type    string          `json:"type"`
	Room    Room            `json:"room"`
	Seq     uint64          `json:"seq"`
	ChatID  int64           `json:"chatId,string"`
	Payload json.RawMessage `json:"payload"`
}

type fakePresence struct {
	mutex  sync.Mutex
	events []string
}

func (p *fakePresence) SetOnline(ctx context.Context, userID int64) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.events = append(p.events, "online")
	return nil
}

func (p *fakePresence) SetOffline(ctx context.Context, userID int64) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.events = append(p.events, "offline")
	return nil
}

func (p *fakePresence) snapshot() []string {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return slices.Clone(p.events)
}

func startHub(t *testing.T, presence Presence, opts Options) *Hub {
	t.Helper()

	h := New(zap.NewNop().Sugar(), presence, opts)
	runHub(t, h)
	return h
}

func runHub(t *testing.T, h *Hub) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Serve(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func register(t *testing.T, h *Hub, userID int64, buffer int) *Conn {
	t.Helper()

	c := NewConn(userID, buffer)
	if err := h.Register(context.Background(), c); err != nil {
		t.Fatalf("register: %v", err)
	}
	return c
}

func readFrame(t *testing.T, c *Conn) testFrame {
	t.Helper()

	select {
	case data, ok := <-c.Send():
		if !ok {
			t.Fatal("connection was closed")
		}
		var frame testFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
	}
	return testFrame{}
}

// barrier returns once every operation queued before it was applied.
func barrier(t *testing.T, h *Hub) {
	t.Helper()
	if _, err := h.Users(context.Background(), UserRoom(0)); err != nil {
		t.Fatalf("users: %v", err)
	}
}

func expectNothing(t *testing.T, c *Conn) {
	t.Helper()
	select {
	case data := <-c.Send():
		t.Fatalf("unexpected frame %s", data)
	default:
	}
}

func TestPublishOrderAndSeq(t *testing.T) {
	h := startHub(t, nil, Options{})
	c := register(t, h, 1, 16)
	ctx := context.Background()

	room := ChatRoom(42)
	h.Join(ctx, c, room)
	if frame := readFrame(t, c); frame.Type != RoomJoined {
		t.Fatalf("expected join ack, got %s", frame.Type)
	}

	for i := 0; i < 5; i++ {
		h.Publish(ctx, room, ChatEvent(MessageCreated, 42, map[string]int{"n": i}))
	}

	for i := 1; i <= 5; i++ {
		frame := readFrame(t, c)
		if frame.Type != MessageCreated {
			t.Fatalf("expected %s, got %s", MessageCreated, frame.Type)
		}
		if frame.Seq != uint64(i) {
			t.Errorf("expected seq %d, got %d", i, frame.Seq)
		}
		if frame.Room != room || frame.ChatID != 42 {
			t.Errorf("unexpected routing %s/%d", frame.Room, frame.ChatID)
		}
	}
}

func TestUserRoomJoinedOnRegister(t *testing.T) {
	h := startHub(t, nil, Options{})
	c := register(t, h, 7, 16)

	users, err := h.Users(context.Background(), UserRoom(7))
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(users, []int64{7}) {
		t.Fatalf("expected user 7 in own room, got %v", users)
	}

	h.Publish(context.Background(), UserRoom(7), UserEvent(ChatCreated, 7, nil))
	if frame := readFrame(t, c); frame.Type != ChatCreated {
		t.Fatalf("expected %s, got %s", ChatCreated, frame.Type)
	}
}

func TestPublishOnlyReachesRoomMembers(t *testing.T) {
	h := startHub(t, nil, Options{})
	ctx := context.Background()
	inside := register(t, h, 1, 16)
	outside := register(t, h, 2, 16)

	h.Join(ctx, inside, ChatRoom(1))
	readFrame(t, inside)

	h.Publish(ctx, ChatRoom(1), ChatEvent(MessageCreated, 1, nil))
	readFrame(t, inside)

	barrier(t, h)
	expectNothing(t, outside)
}

func TestTyping(t *testing.T) {
	h := startHub(t, nil, Options{})
	ctx := context.Background()
	sender := register(t, h, 1, 16)
	receiver := register(t, h, 2, 16)
	stranger := register(t, h, 3, 16)

	for _, c := range []*Conn{sender, receiver} {
		h.Join(ctx, c, ChatRoom(9))
		readFrame(t, c)
	}

	h.Typing(ctx, sender, 9, true)
	frame := readFrame(t, receiver)
	if frame.Type != UserTyping {
		t.Fatalf("expected %s, got %s", UserTyping, frame.Type)
	}
	if frame.Seq != 0 {
		t.Errorf("typing frames carry no seq, got %d", frame.Seq)
	}
	var payload TypingPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.UserID != 1 || !payload.IsTyping {
		t.Errorf("unexpected payload %+v", payload)
	}

	barrier(t, h)
	expectNothing(t, sender)

	h.Typing(ctx, stranger, 9, true)
	if frame := readFrame(t, stranger); frame.Type != ErrorMessage {
		t.Fatalf("expected error frame, got %s", frame.Type)
	}
	barrier(t, h)
	expectNothing(t, receiver)
}

func TestSlowConsumerIsDropped(t *testing.T) {
	h := startHub(t, nil, Options{})
	ctx := context.Background()
	slow := register(t, h, 1, 1)
	fast := register(t, h, 2, 16)

	room := ChatRoom(3)
	h.Join(ctx, slow, room)
	h.Join(ctx, fast, room)
	readFrame(t, fast)

	// the join ack fills the single slot of the slow connection
	h.Publish(ctx, room, ChatEvent(MessageCreated, 3, nil))
	if frame := readFrame(t, fast); frame.Type != MessageCreated {
		t.Fatalf("expected %s, got %s", MessageCreated, frame.Type)
	}

	if frame := readFrame(t, slow); frame.Type != RoomJoined {
		t.Fatalf("expected buffered join ack, got %s", frame.Type)
	}
	select {
	case _, ok := <-slow.Send():
		if ok {
			t.Fatal("expected closed connection")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("slow connection was not closed")
	}

	users, err := h.Users(ctx, room)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(users, []int64{2}) {
		t.Errorf("expected only user 2 left in room, got %v", users)
	}
}

func TestRemovedMemberIsEvicted(t *testing.T) {
	h := startHub(t, nil, Options{})
	ctx := context.Background()
	first := register(t, h, 5, 16)
	second := register(t, h, 5, 16)

	room := ServerRoom(11)
	for _, c := range []*Conn{first, second} {
		h.Join(ctx, c, room)
		readFrame(t, c)
	}

	h.Publish(ctx, room, Event{Type: MemberRemoved, ServerID: 11, UserID: 5})
	for _, c := range []*Conn{first, second} {
		if frame := readFrame(t, c); frame.Type != MemberRemoved {
			t.Fatalf("expected %s, got %s", MemberRemoved, frame.Type)
		}
		frame := readFrame(t, c)
		if frame.Type != RoomLeft {
			t.Fatalf("expected %s, got %s", RoomLeft, frame.Type)
		}
		var payload roomPayload
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			t.Fatal(err)
		}
		if payload.Reason != "removed" {
			t.Errorf("expected reason removed, got %q", payload.Reason)
		}
	}

	users, err := h.Users(ctx, room)
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 0 {
		t.Errorf("expected empty room, got %v", users)
	}
}

func TestPresenceFollowsConnections(t *testing.T) {
	presence := &fakePresence{}
	h := startHub(t, presence, Options{})

	first := register(t, h, 1, 16)
	second := register(t, h, 1, 16)
	h.Unregister(first)
	barrier(t, h)
	h.Unregister(second)
	barrier(t, h)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(presence.snapshot()) == 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if events := presence.snapshot(); !slices.Equal(events, []string{"online", "offline"}) {
		t.Fatalf("expected one online and one offline update, got %v", events)
	}
}

func TestShutdownClosesConnections(t *testing.T) {
	h := New(zap.NewNop().Sugar(), nil, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Serve(ctx)
		close(done)
	}()

	c := register(t, h, 1, 16)
	barrier(t, h)
	cancel()
	<-done

	if _, ok := <-c.Send(); ok {
		t.Fatal("expected send channel to be closed")
	}
	if err := h.Register(context.Background(), NewConn(2, 1)); err == nil {
		t.Fatal("expected register to fail after shutdown")
	}
}

func TestParseRoom(t *testing.T) {
	tests := []struct {
		name    string
		room    string
		kind    RoomKind
		id      int64
		wantErr bool
	}{
		{name: "chat", room: "chat:42", kind: RoomChat, id: 42},
		{name: "server", room: "server:7", kind: RoomServer, id: 7},
		{name: "user", room: string(UserRoom(3)), kind: RoomUser, id: 3},
		{name: "no id", room: "chat", wantErr: true},
		{name: "bad id", room: "chat:abc", wantErr: true},
		{name: "zero id", room: "chat:0", wantErr: true},
		{name: "unknown kind", room: "channel:1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, id, err := ParseRoom(tt.room)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.room)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if kind != tt.kind || id != tt.id {
				t.Errorf("got %s/%d, want %s/%d", kind, id, tt.kind, tt.id)
			}
		})
	}
}
