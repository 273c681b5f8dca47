package realtime

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const roomChannelPrefix = "chat:room:"

// NewRedis creates a new Redis client
func NewRedis(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

type relayEnvelope struct {
	Origin  string          `json:"origin"`
	Room    string          `json:"room"`
	Except  string          `json:"except,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// RedisRelay fans room frames out through Redis pub/sub so every process
// serving websockets delivers them to its local members.
type RedisRelay struct {
	rdb    *redis.Client
	hub    *Hub
	log    *zap.Logger
	origin string
}

func NewRedisRelay(rdb *redis.Client, hub *Hub, log *zap.Logger) *RedisRelay {
	return &RedisRelay{rdb: rdb, hub: hub, log: log, origin: uuid.New().String()}
}

// Publish delivers the frame to this process's members first, then to
// every other process through the room's channel. Its own echo is skipped
// by Run.
func (r *RedisRelay) Publish(ctx context.Context, room string, payload []byte, exceptClientID string) error {
	if err := r.hub.Publish(ctx, room, payload, exceptClientID); err != nil {
		return err
	}
	data, err := json.Marshal(relayEnvelope{Origin: r.origin, Room: room, Except: exceptClientID, Payload: payload})
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, roomChannelPrefix+room, data).Err()
}

// Run subscribes to every room channel and hands frames to the local hub
// until ctx ends. ready, if not nil, is closed once the subscription is live.
func (r *RedisRelay) Run(ctx context.Context, ready chan<- struct{}) error {
	sub := r.rdb.PSubscribe(ctx, roomChannelPrefix+"*")
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	if ready != nil {
		close(ready)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env relayEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.log.Warn("bad relay frame", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			if env.Origin == r.origin {
				continue
			}
			room := env.Room
			if room == "" {
				room = strings.TrimPrefix(msg.Channel, roomChannelPrefix)
			}
			if err := r.hub.Publish(ctx, room, env.Payload, env.Except); err != nil {
				return nil
			}
		}
	}
}
