package hub

import (
	"chatcore/internal/metrics"
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

const (
	relayChannel    = "hub:events"
	relayOutboxSize = 4096
)

// envelope is what travels over redis between nodes.
type envelope struct {
	Node   string `json:"node"`
	Room   Room   `json:"room"`
	Except string `json:"except,omitempty"`
	Event  Event  `json:"event"`
}

type inboundEvent struct {
	Type     string          `json:"type"`
	ChatID   int64           `json:"chatId,string,omitempty"`
	ServerID int64           `json:"serverId,string,omitempty"`
	UserID   int64           `json:"userId,string,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

type inboundEnvelope struct {
	Node   string       `json:"node"`
	Room   Room         `json:"room"`
	Except string       `json:"except,omitempty"`
	Event  inboundEvent `json:"event"`
}

// Relay fans events out to the other nodes through redis pub/sub. Local
// connections always get the event straight from the local hub, in publish
// order, whether redis is reachable or not. Other nodes get the envelopes in
// the order they were queued, envelopes that can't be sent are dropped.
type Relay struct {
	sugar   *zap.SugaredLogger
	hub     *Hub
	client  *redis.Client
	node    string
	breaker *gobreaker.CircuitBreaker[any]
	outbox  chan envelope

	publish func(ctx context.Context, payload []byte) error
}

func NewRelay(sugar *zap.SugaredLogger, hub *Hub, client *redis.Client) *Relay {
	r := &Relay{
		sugar:  sugar,
		hub:    hub,
		client: client,
		node:   uuid.NewString(),
		outbox: make(chan envelope, relayOutboxSize),
	}
	if client != nil {
		r.publish = func(ctx context.Context, payload []byte) error {
			return client.Publish(ctx, relayChannel, payload).Err()
		}
	}

	r.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "hub-relay",
		MaxRequests: 1,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			sugar.Warnf("Circuit breaker %s changed from %s to %s", name, from, to)
		},
	})

	hub.relay = r
	return r
}

func (r *Relay) String() string {
	return "hub-relay"
}

// Publish delivers ev to the local connections of room and queues it for the
// other nodes.
func (r *Relay) Publish(ctx context.Context, room Room, ev Event) {
	r.hub.Publish(ctx, room, ev)
	r.forward(envelope{Room: room, Event: ev})
}

// forward never blocks, it is also called from the hub loop.
func (r *Relay) forward(env envelope) bool {
	env.Node = r.node
	select {
	case r.outbox <- env:
		return true
	default:
		metrics.RelayPublishFailures.Inc()
		r.sugar.Warnf("Relay outbox is full, %s event for room %s stays on this node", env.Event.Type, env.Room)
		return false
	}
}

// Serve sends queued envelopes and receives the ones of other nodes. The
// sender runs even while the subscription can't be established.
func (r *Relay) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	publisherDone := make(chan struct{})
	go func() {
		r.publishLoop(ctx)
		close(publisherDone)
	}()
	defer func() {
		cancel()
		<-publisherDone
	}()

	pubsub := r.client.Subscribe(ctx, relayChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	r.sugar.Infof("Subscribed to redis channel %s as node %s", relayChannel, r.node)

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return errors.New("relay subscription closed")
			}
			r.receive(ctx, msg.Payload)
		}
	}
}

func (r *Relay) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-r.outbox:
			r.send(ctx, env)
		}
	}
}

func (r *Relay) send(ctx context.Context, env envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		r.sugar.Errorf("Couldn't encode %s envelope: %v", env.Event.Type, err)
		return
	}

	_, err = r.breaker.Execute(func() (any, error) {
		return nil, r.publish(ctx, data)
	})
	if err != nil {
		metrics.RelayPublishFailures.Inc()
		r.sugar.Debugf("Couldn't relay %s event for room %s: %v", env.Event.Type, env.Room, err)
	}
}

func (r *Relay) receive(ctx context.Context, payload string) {
	var env inboundEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		r.sugar.Errorf("Received malformed envelope from redis: %v", err)
		return
	}
	// delivered locally when it was published
	if env.Node == r.node {
		return
	}

	ev := Event{
		Type:     env.Event.Type,
		ChatID:   env.Event.ChatID,
		ServerID: env.Event.ServerID,
		UserID:   env.Event.UserID,
	}
	if len(env.Event.Payload) > 0 {
		ev.Payload = env.Event.Payload
	}
	r.hub.publishExcept(ctx, env.Room, ev, env.Except)
}
