package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/taskboard/internal/domain"
	"github.com/gosuda/taskboard/internal/event"
)

const (
	defaultTapBuffer = 256
	publishTimeout   = 2 * time.Second
)

// Publisher is the subset of *PubSub the Tap needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Record is the JSON document published for each event.
type Record struct {
	Type     event.Kind `json:"type"`
	Identity string     `json:"identity"`
	At       time.Time  `json:"at"`
	Payload  any        `json:"payload,omitempty"`
}

// Tap forwards applied events to Redis. Observe never blocks; records that
// do not fit in the buffer are dropped.
type Tap struct {
	pub      Publisher
	identity string
	now      func() time.Time
	queue    chan Record
}

// NewTap creates a Tap publishing to EventChannel(identity) and, for task
// events carrying a board id, to BoardChannel as well.
func NewTap(pub Publisher, identity string) *Tap {
	return &Tap{
		pub:      pub,
		identity: identity,
		now:      time.Now,
		queue:    make(chan Record, defaultTapBuffer),
	}
}

// Observe queues ev for publication. It has the signature of a
// reconcile.Observer.
func (t *Tap) Observe(ev event.Event) {
	rec := Record{
		Type:     ev.Kind(),
		Identity: t.identity,
		At:       t.now().UTC(),
		Payload:  payloadOf(ev),
	}
	select {
	case t.queue <- rec:
	default:
		log.Warn().Str("type", string(rec.Type)).Msg("redis tap full, dropping event")
	}
}

// Run publishes queued records until ctx is done.
func (t *Tap) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-t.queue:
			if err := t.publish(ctx, rec); err != nil {
				log.Warn().Err(err).Str("type", string(rec.Type)).Msg("redis tap publish")
			}
		}
	}
}

func (t *Tap) publish(ctx context.Context, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("redis.Tap.publish: marshal: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := t.pub.Publish(ctx, EventChannel(t.identity), payload); err != nil {
		return fmt.Errorf("redis.Tap.publish: %w", err)
	}
	if board := boardOf(rec.Payload); !board.IsZero() {
		if err := t.pub.Publish(ctx, BoardChannel(board), payload); err != nil {
			return fmt.Errorf("redis.Tap.publish: board: %w", err)
		}
	}
	return nil
}

func payloadOf(ev event.Event) any {
	switch e := ev.(type) {
	case event.TaskCreated:
		return e.Task
	case event.TaskUpdated:
		return e.Task
	case event.TaskMoved:
		return e.Task
	case event.TaskDeleted:
		return e.Task
	case event.UserJoined:
		return map[string]string{"username": e.Username}
	case event.UserLeft:
		return map[string]string{"username": e.Username}
	case event.UserList:
		return map[string][]string{"usernames": e.Usernames}
	case event.BoardCreated:
		return e.Board
	case event.BoardUpdated:
		return e.Board
	case event.BoardDeleted:
		return map[string]domain.ID{"boardId": e.BoardID}
	case event.BoardList:
		return map[string][]domain.Board{"boards": e.Boards}
	case event.CommentCreated:
		if e.Comment != nil {
			return e.Comment
		}
		return map[string]domain.ID{"taskId": e.TaskID}
	case event.CommentDeleted:
		return map[string]domain.ID{"taskId": e.TaskID, "commentId": e.CommentID}
	case event.ChatMessage:
		return e.Message
	default:
		return nil
	}
}

func boardOf(payload any) domain.ID {
	if task, ok := payload.(domain.Task); ok {
		return task.BoardID
	}
	return ""
}
