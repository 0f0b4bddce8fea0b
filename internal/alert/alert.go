// Package alert turns reconciled state changes and due-date checks into
// short-lived user-facing alerts.
package alert

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/taskboard/internal/loop"
)

// DefaultTTL is how long an alert stays visible.
const DefaultTTL = 6 * time.Second

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Alert is one ephemeral notification. ID is derived from the creation time
// and is unique within a Pipeline.
type Alert struct {
	ID        int64     `json:"id"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	CreatedAt time.Time `json:"createdAt"`
}

// Sink receives every raised alert. Implementations must not block.
type Sink interface {
	Deliver(ctx context.Context, a Alert)
}

// Option configures optional Pipeline parameters.
type Option func(*Pipeline)

// WithTTL overrides the display window.
func WithTTL(d time.Duration) Option {
	return func(p *Pipeline) { p.ttl = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithSink adds a sink.
func WithSink(s Sink) Option {
	return func(p *Pipeline) { p.sinks = append(p.sinks, s) }
}

// Pipeline holds the active alerts and expires each one TTL after creation.
type Pipeline struct {
	sched loop.Scheduler
	ttl   time.Duration
	now   func() time.Time
	sinks []Sink

	mu     sync.Mutex
	active []Alert
	lastID int64
}

// NewPipeline creates a Pipeline whose expiry timers run on sched.
func NewPipeline(sched loop.Scheduler, opts ...Option) *Pipeline {
	p := &Pipeline{
		sched: sched,
		ttl:   DefaultTTL,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Raise records an alert, schedules its removal, and forwards it to sinks.
func (p *Pipeline) Raise(message string, severity Severity) Alert {
	now := p.now()

	p.mu.Lock()
	id := now.UnixNano()
	if id <= p.lastID {
		id = p.lastID + 1
	}
	p.lastID = id
	a := Alert{ID: id, Message: message, Severity: severity, CreatedAt: now}
	p.active = append(p.active, a)
	p.mu.Unlock()

	p.sched.AfterFunc(p.ttl, func() { p.Remove(id) })

	for _, s := range p.sinks {
		s.Deliver(context.Background(), a)
	}
	return a
}

// Remove drops the alert with id. It reports whether anything was removed;
// removing twice is a no-op.
func (p *Pipeline) Remove(id int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, a := range p.active {
		if a.ID == id {
			p.active = append(p.active[:i], p.active[i+1:]...)
			return true
		}
	}
	return false
}

// Active returns the alerts currently on display, oldest first.
func (p *Pipeline) Active() []Alert {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Alert(nil), p.active...)
}

// LogSink writes each alert as a structured log line.
type LogSink struct{}

func (LogSink) Deliver(_ context.Context, a Alert) {
	ev := log.Info()
	switch a.Severity {
	case SeverityWarning:
		ev = log.Warn()
	case SeverityError:
		ev = log.Error()
	case SeverityInfo, SeveritySuccess:
	}
	ev.Int64("alert_id", a.ID).Str("severity", string(a.Severity)).Msg(a.Message)
}
