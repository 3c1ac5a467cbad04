package hub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

type publishRecorder struct {
	mutex    sync.Mutex
	payloads [][]byte
	calls    int
	err      error
}

func (p *publishRecorder) publish(ctx context.Context, payload []byte) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.calls++
	if p.err != nil {
		return p.err
	}
	p.payloads = append(p.payloads, payload)
	return nil
}

func (p *publishRecorder) envelopes(t *testing.T) []inboundEnvelope {
	t.Helper()
	p.mutex.Lock()
	defer p.mutex.Unlock()

	envs := make([]inboundEnvelope, len(p.payloads))
	for i, payload := range p.payloads {
		if err := json.Unmarshal(payload, &envs[i]); err != nil {
			t.Fatalf("decode envelope: %v", err)
		}
	}
	return envs
}

// startRelayHub attaches a relay with a recorded redis publish to a running hub.
func startRelayHub(t *testing.T, opts Options) (*Hub, *Relay, *publishRecorder) {
	t.Helper()

	sugar := zap.NewNop().Sugar()
	h := New(sugar, nil, opts)
	r := NewRelay(sugar, h, nil)
	recorder := &publishRecorder{}
	r.publish = recorder.publish
	runHub(t, h)
	return h, r, recorder
}

type counterPayload struct {
	N int `json:"n"`
}

func joinRoom(t *testing.T, h *Hub, c *Conn, room Room) {
	t.Helper()
	h.Join(context.Background(), c, room)
	if frame := readFrame(t, c); frame.Type != RoomJoined {
		t.Fatalf("expected join ack, got %s", frame.Type)
	}
}

func TestRelayDeliversLocallyInOrderWithoutRedis(t *testing.T) {
	total := relayOutboxSize + 10
	h, r, _ := startRelayHub(t, Options{SendBuffer: total + 16})
	c := register(t, h, 1, total+16)
	room := ChatRoom(7)
	joinRoom(t, h, c, room)

	// nothing drains the outbox, local delivery must not depend on it
	for i := 1; i <= total; i++ {
		r.Publish(context.Background(), room, ChatEvent(MessageCreated, 7, counterPayload{N: i}))
	}

	for i := 1; i <= total; i++ {
		frame := readFrame(t, c)
		var payload counterPayload
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			t.Fatal(err)
		}
		if frame.Seq != uint64(i) || payload.N != i {
			t.Fatalf("expected seq %d with n %d, got seq %d with n %d", i, i, frame.Seq, payload.N)
		}
	}
	if got := len(r.outbox); got != relayOutboxSize {
		t.Errorf("expected a full outbox of %d, got %d", relayOutboxSize, got)
	}
}

func TestRelayForwardsInOrder(t *testing.T) {
	h, r, recorder := startRelayHub(t, Options{})
	c := register(t, h, 1, 64)
	room := ServerRoom(3)
	joinRoom(t, h, c, room)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.publishLoop(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	for i := 1; i <= 20; i++ {
		r.Publish(context.Background(), room, ServerEvent(ChannelCreated, 3, counterPayload{N: i}))
	}
	for i := 1; i <= 20; i++ {
		readFrame(t, c)
	}

	deadline := time.Now().Add(2 * time.Second)
	var envs []inboundEnvelope
	for time.Now().Before(deadline) {
		if envs = recorder.envelopes(t); len(envs) == 20 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if len(envs) != 20 {
		t.Fatalf("expected 20 forwarded envelopes, got %d", len(envs))
	}

	for i, env := range envs {
		var payload counterPayload
		if err := json.Unmarshal(env.Event.Payload, &payload); err != nil {
			t.Fatal(err)
		}
		if env.Node != r.node || env.Room != room || env.Event.ServerID != 3 {
			t.Errorf("unexpected envelope %+v", env)
		}
		if payload.N != i+1 {
			t.Errorf("envelope %d carries n %d", i, payload.N)
		}
	}
}

func TestRelayReceive(t *testing.T) {
	h, r, _ := startRelayHub(t, Options{})
	sender := register(t, h, 1, 16)
	receiver := register(t, h, 2, 16)
	room := ChatRoom(5)
	for _, c := range []*Conn{sender, receiver} {
		joinRoom(t, h, c, room)
	}

	encodeEnvelope := func(env envelope) string {
		data, err := json.Marshal(env)
		if err != nil {
			t.Fatal(err)
		}
		return string(data)
	}
	ctx := context.Background()

	tests := []struct {
		name         string
		env          envelope
		wantSender   bool
		wantReceiver bool
	}{
		{
			name:         "event from another node",
			env:          envelope{Node: "other", Room: room, Event: ChatEvent(MessageCreated, 5, counterPayload{N: 1})},
			wantSender:   true,
			wantReceiver: true,
		},
		{
			name:         "typing skips the excluded connection",
			env:          envelope{Node: "other", Room: room, Except: sender.ID, Event: ChatEvent(UserTyping, 5, TypingPayload{UserID: 1, IsTyping: true})},
			wantReceiver: true,
		},
		{
			name: "own envelope was already delivered",
			env:  envelope{Node: r.node, Room: room, Event: ChatEvent(MessageCreated, 5, counterPayload{N: 2})},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r.receive(ctx, encodeEnvelope(tt.env))
			barrier(t, h)

			for _, check := range []struct {
				conn *Conn
				want bool
			}{{sender, tt.wantSender}, {receiver, tt.wantReceiver}} {
				if !check.want {
					expectNothing(t, check.conn)
					continue
				}
				if frame := readFrame(t, check.conn); frame.Type != tt.env.Event.Type || frame.ChatID != 5 {
					t.Errorf("unexpected frame %+v", frame)
				}
			}
		})
	}

	r.receive(ctx, "not json")
	barrier(t, h)
	expectNothing(t, receiver)
}

func TestRelayForwardsTyping(t *testing.T) {
	h, r, _ := startRelayHub(t, Options{})
	sender := register(t, h, 1, 16)
	receiver := register(t, h, 2, 16)
	for _, c := range []*Conn{sender, receiver} {
		joinRoom(t, h, c, ChatRoom(8))
	}

	h.Typing(context.Background(), sender, 8, true)
	if frame := readFrame(t, receiver); frame.Type != UserTyping {
		t.Fatalf("expected %s, got %s", UserTyping, frame.Type)
	}
	barrier(t, h)
	expectNothing(t, sender)

	select {
	case env := <-r.outbox:
		if env.Except != sender.ID || env.Room != ChatRoom(8) || env.Node != r.node {
			t.Errorf("unexpected envelope %+v", env)
		}
	default:
		t.Fatal("expected the typing signal to be queued for other nodes")
	}
}

func TestRelayBreakerStopsPublishing(t *testing.T) {
	h, r, recorder := startRelayHub(t, Options{})
	c := register(t, h, 1, 32)
	room := ChatRoom(4)
	joinRoom(t, h, c, room)
	recorder.err = errors.New("connection refused")

	ctx := context.Background()
	for i := 1; i <= 10; i++ {
		r.Publish(ctx, room, ChatEvent(MessageCreated, 4, counterPayload{N: i}))
		r.send(ctx, <-r.outbox)
	}

	for i := 1; i <= 10; i++ {
		if frame := readFrame(t, c); frame.Seq != uint64(i) {
			t.Fatalf("expected seq %d, got %d", i, frame.Seq)
		}
	}

	recorder.mutex.Lock()
	calls := recorder.calls
	recorder.mutex.Unlock()
	if calls != 5 {
		t.Errorf("expected the breaker to open after 5 failed publishes, redis was called %d times", calls)
	}
}
