package realtime_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/taskboard/internal/event"
	"github.com/gosuda/taskboard/internal/realtime"
)

func TestRegistry(t *testing.T) {
	t.Parallel()

	t.Run("register and dispatch", func(t *testing.T) {
		t.Parallel()

		reg := realtime.NewRegistry()
		var got []event.Event
		reg.Register("/topic/users", func(ev event.Event) { got = append(got, ev) })

		ok := reg.Dispatch("/topic/users", event.UserJoined{Username: "bob"})
		require.True(t, ok)
		assert.Equal(t, []event.Event{event.UserJoined{Username: "bob"}}, got)
	})

	t.Run("dispatch to unregistered topic drops", func(t *testing.T) {
		t.Parallel()

		reg := realtime.NewRegistry()
		assert.False(t, reg.Dispatch("/topic/none", event.UserLeft{Username: "x"}))
	})

	t.Run("register overwrites previous", func(t *testing.T) {
		t.Parallel()

		reg := realtime.NewRegistry()
		first, second := 0, 0
		reg.Register("/topic/tasks", func(event.Event) { first++ })
		reg.Register("/topic/tasks", func(event.Event) { second++ })

		reg.Dispatch("/topic/tasks", event.TaskDeleted{})
		assert.Zero(t, first)
		assert.Equal(t, 1, second)
	})

	t.Run("clear removes everything", func(t *testing.T) {
		t.Parallel()

		reg := realtime.NewRegistry()
		reg.Register("/topic/a", func(event.Event) {})
		reg.Register("/topic/b", func(event.Event) {})
		assert.Equal(t, []string{"/topic/a", "/topic/b"}, reg.Topics())

		reg.Clear()
		assert.Empty(t, reg.Topics())
		_, ok := reg.Get("/topic/a")
		assert.False(t, ok)
	})
}
