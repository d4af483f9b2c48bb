package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Redis fans events out through Redis pub/sub so that every server instance
// sees changes made by the others.
type Redis struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

func NewRedis(client *redis.Client, logger *slog.Logger) *Redis {
	return &Redis{client: client, prefix: "knowsy:room:", logger: logger}
}

func (r *Redis) channel(roomID string) string { return r.prefix + roomID }

func (r *Redis) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel(ev.RoomID), data).Err(); err != nil {
		return fmt.Errorf("publishing to redis: %w", err)
	}
	return nil
}

func (r *Redis) Subscribe(ctx context.Context, roomID string) (<-chan Event, func(), error) {
	ps := r.client.Subscribe(ctx, r.channel(roomID))
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, nil, fmt.Errorf("subscribing to redis: %w", err)
	}

	out := make(chan Event, subscriberBuffer)
	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				r.logger.Warn("dropping malformed feed event", "room", roomID, "error", err)
				continue
			}
			select {
			case out <- ev:
			default:
			}
		}
	}()

	return out, func() { ps.Close() }, nil
}

// Checker reports Redis reachability to the health endpoint.
type Checker struct{ Client *redis.Client }

func (c Checker) Check(ctx context.Context) error { return c.Client.Ping(ctx).Err() }
