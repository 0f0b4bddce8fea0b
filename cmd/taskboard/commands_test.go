package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/taskboard/internal/config"
	"github.com/gosuda/taskboard/internal/domain"
	"github.com/gosuda/taskboard/internal/event"
	"github.com/gosuda/taskboard/internal/reconcile"
)

func TestIdentity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		flag    string
		cfgUser string
		want    string
		wantErr bool
	}{
		{name: "flag wins", flag: "alice", cfgUser: "bob", want: "alice"},
		{name: "config fallback", cfgUser: "bob", want: "bob"},
		{name: "missing", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.Defaults()
			cfg.Session.Username = tt.cfgUser
			a := &app{cfg: cfg, user: tt.flag}

			got, err := a.identity()
			if tt.wantErr {
				require.ErrorIs(t, err, errMissingUser)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDue(t *testing.T) {
	t.Parallel()

	got, err := parseDue("")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = parseDue("2026-11-01T17:00:00Z")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Equal(time.Date(2026, 11, 1, 17, 0, 0, 0, time.UTC)))

	_, err = parseDue("next tuesday")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--due")
}

func TestWriteTasksGroupsByColumn(t *testing.T) {
	t.Parallel()

	store := reconcile.NewStore()
	store.ReplaceTasks([]domain.Task{
		{ID: "3", Title: "ship", Status: domain.TaskStatusDone, AssignedTo: "bob"},
		{ID: "1", Title: "plan", Status: domain.TaskStatusTodo, DueDate: domain.NewTimestamp(time.Date(2026, 11, 1, 9, 0, 0, 0, time.Local))},
		{ID: "2", Title: "build", Status: domain.TaskStatusInProgress, AssignedTo: "alice"},
		{ID: "4", Title: "review", Status: domain.TaskStatusInProgress},
	})
	store.ReplacePresence([]string{"alice"})

	var buf bytes.Buffer
	require.NoError(t, writeTasks(&buf, store))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], "plan")
	assert.Contains(t, lines[1], "2026-11-01 09:00")
	assert.Contains(t, lines[2], "In Progress")
	assert.Contains(t, lines[2], "alice*", "online assignee is marked")
	assert.Contains(t, lines[3], "review")
	assert.Contains(t, lines[4], "ship")
	assert.Contains(t, lines[4], "bob")
	assert.NotContains(t, lines[4], "bob*")
}

func TestDescribe(t *testing.T) {
	t.Parallel()

	roster := reconcile.NewStore()
	roster.ReplacePresence([]string{"alice"})

	tests := []struct {
		ev     event.Event
		roster presence
		want   string
	}{
		{ev: event.TaskCreated{Task: domain.Task{ID: "7", Title: "Fix"}}, want: `TASK_CREATED 7 "Fix"`},
		{ev: event.TaskCreated{Task: domain.Task{ID: "8", Title: "Ship", AssignedTo: "alice"}}, roster: roster, want: `TASK_CREATED 8 "Ship" @alice (online)`},
		{ev: event.TaskUpdated{Task: domain.Task{ID: "8", Title: "Ship", AssignedTo: "bob"}}, roster: roster, want: `TASK_UPDATED 8 "Ship" @bob`},
		{ev: event.TaskUpdated{Task: domain.Task{ID: "9", Title: "Test", AssignedTo: "alice"}}, want: `TASK_UPDATED 9 "Test" @alice`},
		{ev: event.TaskMoved{Task: domain.Task{ID: "7", Status: domain.TaskStatusDone}}, want: "TASK_MOVED 7 -> Done"},
		{ev: event.UserList{Raw: "a,b", Usernames: []string{"a", "b"}}, want: "USER_LIST a, b"},
		{ev: event.ChatMessage{Message: domain.ChatMessage{Username: "bob", Message: "hi"}}, want: "<bob> hi"},
		{ev: event.CommentDeleted{TaskID: "7"}, want: "COMMENT_DELETED"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, describe(tt.ev, tt.roster))
		})
	}
}

func TestRootCommandTree(t *testing.T) {
	t.Parallel()

	root := newRootCmd()
	for _, path := range [][]string{
		{"watch"},
		{"task", "create"},
		{"task", "move"},
		{"task", "delete"},
		{"task", "list"},
		{"comment", "add"},
		{"comment", "list"},
		{"chat"},
		{"boards", "list"},
		{"boards", "create"},
		{"tap"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}
