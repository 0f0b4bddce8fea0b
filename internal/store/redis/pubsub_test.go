package redis_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/taskboard/internal/domain"
	"github.com/gosuda/taskboard/internal/event"
	redisstore "github.com/gosuda/taskboard/internal/store/redis"
)

func TestEventChannel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		identity string
		want     string
	}{
		{name: "plain", identity: "alice", want: "taskboard:events:alice"},
		{name: "case folded", identity: "Alice", want: "taskboard:events:alice"},
		{name: "trimmed", identity: "  bob ", want: "taskboard:events:bob"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, redisstore.EventChannel(tt.identity))
		})
	}
}

func TestBoardChannel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "taskboard:board:7", redisstore.BoardChannel("7"))
	assert.NotEqual(t, redisstore.BoardChannel("7"), redisstore.BoardChannel("8"))
}

type published struct {
	channel string
	payload []byte
}

type mockPublisher struct {
	mu   sync.Mutex
	msgs []published
	got  chan struct{}
}

func newMockPublisher() *mockPublisher {
	return &mockPublisher{got: make(chan struct{}, 16)}
}

func (m *mockPublisher) Publish(_ context.Context, channel string, payload []byte) error {
	m.mu.Lock()
	m.msgs = append(m.msgs, published{channel: channel, payload: payload})
	m.mu.Unlock()
	m.got <- struct{}{}
	return nil
}

func (m *mockPublisher) wait(t *testing.T, n int) []published {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-m.got:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %d publishes", n)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]published(nil), m.msgs...)
}

func TestTap(t *testing.T) {
	t.Parallel()

	pub := newMockPublisher()
	tap := redisstore.NewTap(pub, "Alice")

	ctx, cancel := context.WithCancel(testContext(t))
	defer cancel()
	go tap.Run(ctx)

	tap.Observe(event.TaskMoved{Task: domain.Task{ID: "5", Title: "X", BoardID: "2", Status: domain.TaskStatusDone}})
	tap.Observe(event.UserJoined{Username: "bob"})

	msgs := pub.wait(t, 3)
	require.Len(t, msgs, 3)
	assert.Equal(t, "taskboard:events:alice", msgs[0].channel)
	assert.Equal(t, "taskboard:board:2", msgs[1].channel)
	assert.Equal(t, "taskboard:events:alice", msgs[2].channel)

	var rec struct {
		Type     string          `json:"type"`
		Identity string          `json:"identity"`
		Payload  json.RawMessage `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(msgs[0].payload, &rec))
	assert.Equal(t, "TASK_MOVED", rec.Type)
	assert.Equal(t, "Alice", rec.Identity)

	var task domain.Task
	require.NoError(t, json.Unmarshal(rec.Payload, &task))
	assert.Equal(t, domain.ID("5"), task.ID)
	assert.Equal(t, domain.TaskStatusDone, task.Status)

	require.NoError(t, json.Unmarshal(msgs[2].payload, &rec))
	assert.JSONEq(t, `{"username":"bob"}`, string(rec.Payload))
}

func TestDecodeRecord(t *testing.T) {
	t.Parallel()

	t.Run("record", func(t *testing.T) {
		t.Parallel()
		rec, err := redisstore.DecodeRecord(`{"type":"TASK_MOVED","identity":"alice","at":"2026-10-19T09:00:00Z","payload":{"id":"7"}}`)
		require.NoError(t, err)
		assert.Equal(t, event.KindTaskMoved, rec.Type)
		assert.Equal(t, "alice", rec.Identity)
		assert.Equal(t, map[string]any{"id": "7"}, rec.Payload)
	})

	t.Run("not json", func(t *testing.T) {
		t.Parallel()
		_, err := redisstore.DecodeRecord("hello")
		require.ErrorIs(t, err, redisstore.ErrNotRecord)
	})

	t.Run("missing type", func(t *testing.T) {
		t.Parallel()
		_, err := redisstore.DecodeRecord(`{"identity":"alice"}`)
		require.ErrorIs(t, err, redisstore.ErrNotRecord)
	})
}
