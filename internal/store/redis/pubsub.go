// Package redis mirrors reconciled board events onto Redis pub/sub so other
// processes (dashboards, bots, a second terminal) can follow a session.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/taskboard/internal/domain"
)

const channelPrefix = "taskboard:"

var errNotRecord = errors.New("redis: message is not an event record") //nolint:gochecknoglobals // sentinel error

// PubSub is a Redis connection used only for event fan-out.
type PubSub struct {
	client *redis.Client
}

// New connects to addr and pings it once.
func New(ctx context.Context, addr, password string, db int) (*PubSub, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis.New: ping %s: %w", addr, err)
	}

	return &PubSub{client: client}, nil
}

func (ps *PubSub) Close() error {
	if err := ps.client.Close(); err != nil {
		return fmt.Errorf("redis.PubSub.Close: %w", err)
	}
	return nil
}

func (ps *PubSub) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := ps.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis.PubSub.Publish %s: %w", channel, err)
	}
	return nil
}

// Follow streams the Records published on channels until ctx is done or the
// returned stop func is called. Messages that are not Records are logged and
// skipped.
func (ps *PubSub) Follow(ctx context.Context, channels ...string) (<-chan Record, func(), error) {
	sub := ps.client.Subscribe(ctx, channels...)

	// One confirmation per channel.
	for range channels {
		if _, err := sub.Receive(ctx); err != nil {
			_ = sub.Close()
			return nil, nil, fmt.Errorf("redis.PubSub.Follow: receive confirmation: %w", err)
		}
	}

	out := make(chan Record, 64)
	go func() {
		defer close(out)
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				rec, err := decodeRecord(msg.Payload)
				if err != nil {
					log.Warn().Err(err).Str("channel", msg.Channel).Msg("skipping foreign message")
					continue
				}
				select {
				case out <- rec:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, func() { _ = sub.Close() }, nil
}

func decodeRecord(payload string) (Record, error) {
	var rec Record
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return Record{}, fmt.Errorf("%w: %w", errNotRecord, err)
	}
	if rec.Type == "" {
		return Record{}, fmt.Errorf("%w: missing type", errNotRecord)
	}
	return rec, nil
}

// EventChannel returns the channel carrying every event applied in the
// session of identity. Usernames compare case-insensitively, so the name is
// lower-cased.
func EventChannel(identity string) string {
	return channelPrefix + "events:" + strings.ToLower(strings.TrimSpace(identity))
}

// BoardChannel returns the channel carrying the task events of one board.
func BoardChannel(board domain.ID) string {
	return channelPrefix + "board:" + board.String()
}
