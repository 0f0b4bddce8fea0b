package alert_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/taskboard/internal/alert"
)

type recordingSink struct {
	mu     sync.Mutex
	alerts []alert.Alert
}

func (s *recordingSink) Deliver(_ context.Context, a alert.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
}

func (s *recordingSink) Alerts() []alert.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]alert.Alert(nil), s.alerts...)
}

var epoch = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC) //nolint:gochecknoglobals // test fixture

func TestPipeline_Expiry(t *testing.T) {
	t.Parallel()

	sched := newManualScheduler(epoch)
	p := alert.NewPipeline(sched, alert.WithClock(sched.Now))

	a := p.Raise("hello", alert.SeverityInfo)
	require.Len(t, p.Active(), 1)
	assert.Equal(t, "hello", p.Active()[0].Message)
	assert.Equal(t, epoch, a.CreatedAt)

	sched.Advance(5999 * time.Millisecond)
	assert.Len(t, p.Active(), 1, "alert must still be visible at 5999ms")

	sched.Advance(2 * time.Millisecond)
	assert.Empty(t, p.Active(), "alert must be gone at 6001ms")
}

func TestPipeline_UniqueIDs(t *testing.T) {
	t.Parallel()

	sched := newManualScheduler(epoch)
	p := alert.NewPipeline(sched, alert.WithClock(sched.Now))

	a := p.Raise("one", alert.SeverityInfo)
	b := p.Raise("two", alert.SeverityWarning)
	c := p.Raise("three", alert.SeverityError)

	assert.Less(t, a.ID, b.ID)
	assert.Less(t, b.ID, c.ID)
	assert.Len(t, p.Active(), 3)
}

func TestPipeline_RemoveIdempotent(t *testing.T) {
	t.Parallel()

	sched := newManualScheduler(epoch)
	p := alert.NewPipeline(sched, alert.WithClock(sched.Now))

	a := p.Raise("bye", alert.SeveritySuccess)
	assert.True(t, p.Remove(a.ID))
	assert.False(t, p.Remove(a.ID))

	// The expiry timer still fires and must not disturb anything.
	other := p.Raise("stay", alert.SeverityInfo)
	sched.Advance(6 * time.Second)
	assert.Empty(t, p.Active())
	assert.False(t, p.Remove(other.ID))
}

func TestPipeline_StaggeredExpiry(t *testing.T) {
	t.Parallel()

	sched := newManualScheduler(epoch)
	p := alert.NewPipeline(sched, alert.WithClock(sched.Now), alert.WithTTL(time.Second))

	p.Raise("first", alert.SeverityInfo)
	sched.Advance(500 * time.Millisecond)
	p.Raise("second", alert.SeverityInfo)

	sched.Advance(600 * time.Millisecond)
	require.Len(t, p.Active(), 1)
	assert.Equal(t, "second", p.Active()[0].Message)

	sched.Advance(time.Second)
	assert.Empty(t, p.Active())
}

func TestPipeline_Sinks(t *testing.T) {
	t.Parallel()

	sched := newManualScheduler(epoch)
	sink := &recordingSink{}
	p := alert.NewPipeline(sched, alert.WithClock(sched.Now), alert.WithSink(sink), alert.WithSink(alert.LogSink{}))

	p.Raise("a", alert.SeverityWarning)
	p.Raise("b", alert.SeverityError)

	got := sink.Alerts()
	require.Len(t, got, 2)
	assert.Equal(t, alert.SeverityWarning, got[0].Severity)
	assert.Equal(t, "b", got[1].Message)
}
