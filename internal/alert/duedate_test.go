package alert_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/taskboard/internal/alert"
	"github.com/gosuda/taskboard/internal/domain"
)

type taskList struct {
	mu    sync.Mutex
	tasks []domain.Task
}

func (l *taskList) Tasks() []domain.Task {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.Task(nil), l.tasks...)
}

func (l *taskList) Set(tasks ...domain.Task) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tasks = tasks
}

type raised struct {
	message  string
	severity alert.Severity
}

type recordingRaiser struct {
	mu     sync.Mutex
	alerts []raised
}

func (r *recordingRaiser) Raise(message string, severity alert.Severity) alert.Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, raised{message: message, severity: severity})
	return alert.Alert{Message: message, Severity: severity}
}

func (r *recordingRaiser) All() []raised {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]raised(nil), r.alerts...)
}

func dueTask(id, title, assignee string, status domain.TaskStatus, due time.Time) domain.Task {
	return domain.Task{
		ID:         domain.ID(id),
		Title:      title,
		AssignedTo: assignee,
		Status:     status,
		DueDate:    domain.NewTimestamp(due),
	}
}

func newScanner(tasks *taskList, opts ...alert.ScannerOption) (*alert.Scanner, *recordingRaiser, *manualScheduler) {
	sched := newManualScheduler(epoch)
	raiser := &recordingRaiser{}
	opts = append([]alert.ScannerOption{alert.WithScannerClock(sched.Now)}, opts...)
	return alert.NewScanner(tasks, raiser, sched, opts...), raiser, sched
}

func TestScanner_Scan(t *testing.T) {
	t.Parallel()

	tasks := &taskList{}
	tasks.Set(
		dueTask("1", "late", "alice", domain.TaskStatusTodo, epoch.Add(-time.Hour)),
		dueTask("2", "soon", "ALICE", domain.TaskStatusInProgress, epoch.Add(2*time.Hour)),
		dueTask("3", "finished", "alice", domain.TaskStatusDone, epoch.Add(-time.Hour)),
		dueTask("4", "far", "alice", domain.TaskStatusTodo, epoch.Add(72*time.Hour)),
		dueTask("5", "not mine", "bob", domain.TaskStatusTodo, epoch.Add(-time.Hour)),
		domain.Task{ID: "6", Title: "no due", AssignedTo: "alice"},
	)

	s, raiser, _ := newScanner(tasks)
	s.SetIdentity("Alice")

	assert.Equal(t, 2, s.Scan())
	assert.Equal(t, []raised{
		{message: `Task "late" is OVERDUE`, severity: alert.SeverityError},
		{message: `Task "soon" is DUE SOON`, severity: alert.SeverityWarning},
	}, raiser.All())
}

func TestScanner_NoIdentityNoAlerts(t *testing.T) {
	t.Parallel()

	tasks := &taskList{}
	tasks.Set(dueTask("1", "late", "alice", domain.TaskStatusTodo, epoch.Add(-time.Hour)))

	s, raiser, _ := newScanner(tasks)
	assert.Zero(t, s.Scan())
	assert.Empty(t, raiser.All())
}

func TestScanner_Eligibility(t *testing.T) {
	t.Parallel()

	tasks := &taskList{}
	tasks.Set(dueTask("1", "late", "alice", domain.TaskStatusTodo, epoch.Add(-time.Hour)))

	s, raiser, sched := newScanner(tasks)

	s.SetConnected(true)
	assert.False(t, s.Running(), "no identity yet")
	assert.Empty(t, raiser.All())

	s.SetIdentity("alice")
	assert.True(t, s.Running())
	require.Len(t, raiser.All(), 1, "becoming eligible scans immediately")

	sched.Advance(59 * time.Second)
	assert.Len(t, raiser.All(), 1)

	sched.Advance(time.Second)
	assert.Len(t, raiser.All(), 2, "same condition re-alerts every interval")

	sched.Advance(60 * time.Second)
	assert.Len(t, raiser.All(), 3)

	s.SetConnected(false)
	assert.False(t, s.Running())
	assert.Zero(t, sched.Pending())

	sched.Advance(5 * time.Minute)
	assert.Len(t, raiser.All(), 3)

	s.SetConnected(true)
	assert.Len(t, raiser.All(), 4, "re-eligible scans immediately again")
	s.Stop()
}

func TestScanner_StatusChangeStopsAlerts(t *testing.T) {
	t.Parallel()

	tasks := &taskList{}
	tasks.Set(dueTask("1", "late", "alice", domain.TaskStatusTodo, epoch.Add(-time.Hour)))

	s, raiser, sched := newScanner(tasks)
	s.SetIdentity("alice")
	s.SetConnected(true)
	require.Len(t, raiser.All(), 1)

	tasks.Set(dueTask("1", "late", "alice", domain.TaskStatusDone, epoch.Add(-time.Hour)))
	sched.Advance(time.Minute)
	assert.Len(t, raiser.All(), 1)
	s.Stop()
}

func TestScanner_Dedupe(t *testing.T) {
	t.Parallel()

	soon := epoch.Add(25 * time.Minute)
	tasks := &taskList{}
	tasks.Set(dueTask("1", "ship", "alice", domain.TaskStatusTodo, soon))

	s, raiser, sched := newScanner(tasks, alert.WithDedupe(), alert.WithScanInterval(10*time.Minute))
	s.SetIdentity("alice")
	s.SetConnected(true)
	require.Len(t, raiser.All(), 1)

	sched.Advance(10 * time.Minute)
	assert.Len(t, raiser.All(), 1, "unchanged state stays quiet")

	sched.Advance(20 * time.Minute)
	require.Len(t, raiser.All(), 2, "crossing the due date is a new state")
	assert.Equal(t, `Task "ship" is OVERDUE`, raiser.All()[1].message)

	tasks.Set(dueTask("1", "ship", "alice", domain.TaskStatusTodo, epoch.Add(48*time.Hour)))
	sched.Advance(10 * time.Minute)
	assert.Len(t, raiser.All(), 2)

	tasks.Set(dueTask("1", "ship", "alice", domain.TaskStatusTodo, epoch.Add(-time.Minute)))
	sched.Advance(10 * time.Minute)
	assert.Len(t, raiser.All(), 3, "forgotten after leaving the due window")
	s.Stop()
}
