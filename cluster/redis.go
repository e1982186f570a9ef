package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rohith-kanna-jr-2006/Agro-direct-mobile-app-sub001/domain"
)

const (
	channelPrefix  = "relay:"
	publishTimeout = 2 * time.Second
	forwardQueue   = 256
)

// Envelope is what travels between relay instances.
type Envelope struct {
	Origin string          `json:"origin"`
	Room   string          `json:"room"`
	Data   json.RawMessage `json:"data"`
}

func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

// RedisBridge shares room traffic between relay instances over redis
// pub/sub. Like the local relay it is best-effort: frames published while
// redis is unreachable, or while the forward queue is full, are lost.
type RedisBridge struct {
	rdb    *redis.Client
	origin string
	queue  chan Envelope
}

func NewRedisBridge(rdb *redis.Client) *RedisBridge {
	return &RedisBridge{
		rdb:    rdb,
		origin: uuid.NewString(),
		queue:  make(chan Envelope, forwardQueue),
	}
}

func (b *RedisBridge) Origin() string { return b.origin }

// Forward queues a frame for the other instances and returns at once.
func (b *RedisBridge) Forward(room string, data []byte) {
	select {
	case b.queue <- Envelope{Origin: b.origin, Room: room, Data: data}:
	default:
		slog.Warn("bridge queue full, frame dropped", "room", room)
	}
}

func (b *RedisBridge) publish(ctx context.Context, env Envelope) {
	raw, err := json.Marshal(env)
	if err != nil {
		slog.Warn("bridge encode failed", "room", env.Room, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := b.rdb.Publish(ctx, channelPrefix+env.Room, raw).Err(); err != nil {
		slog.Warn("bridge publish failed", "room", env.Room, "error", err)
	}
}

func (b *RedisBridge) forwardLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-b.queue:
			b.publish(ctx, env)
		}
	}
}

// Start subscribes to every relay channel, publishes queued frames and
// delivers frames from other instances to local members until ctx is done.
func (b *RedisBridge) Start(ctx context.Context, relay domain.Relay) error {
	pubsub := b.rdb.PSubscribe(ctx, channelPrefix+"*")
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("bridge subscribe: %w", err)
	}
	slog.Info("bridge subscribed", "origin", b.origin)

	go b.forwardLoop(ctx)
	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					slog.Warn("bridge subscription closed", "origin", b.origin)
					return
				}
				b.handle(relay, []byte(msg.Payload))
			}
		}
	}()
	return nil
}

func (b *RedisBridge) handle(relay domain.Relay, payload []byte) int {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		slog.Warn("bridge message dropped", "error", err)
		return 0
	}
	if env.Origin == b.origin || env.Room == "" {
		return 0
	}
	var frame domain.Frame
	if err := json.Unmarshal(env.Data, &frame); err != nil || frame.Event == "" {
		slog.Warn("bridge frame dropped", "room", env.Room, "error", err)
		return 0
	}
	return relay.Deliver(env.Room, env.Data)
}
