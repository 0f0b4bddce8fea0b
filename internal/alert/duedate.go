package alert

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/taskboard/internal/domain"
	"github.com/gosuda/taskboard/internal/loop"
)

const (
	// DefaultScanInterval is how often the scanner re-checks due dates.
	DefaultScanInterval = 60 * time.Second
	// DefaultDueSoonWindow is how far ahead a due date counts as "soon".
	DefaultDueSoonWindow = 24 * time.Hour
)

// TaskSource supplies the current task collection.
type TaskSource interface {
	Tasks() []domain.Task
}

// Raiser raises alerts. *Pipeline satisfies it.
type Raiser interface {
	Raise(message string, severity Severity) Alert
}

type dueState int

const (
	dueNone dueState = iota
	dueSoon
	dueOverdue
)

type lastAlert struct {
	state dueState
	due   time.Time
}

// ScannerOption configures optional Scanner parameters.
type ScannerOption func(*Scanner)

// WithScanInterval sets the period between scans.
func WithScanInterval(d time.Duration) ScannerOption {
	return func(s *Scanner) { s.interval = d }
}

// WithDueSoonWindow sets how far ahead counts as due soon.
func WithDueSoonWindow(d time.Duration) ScannerOption {
	return func(s *Scanner) { s.window = d }
}

// WithScannerClock overrides the time source.
func WithScannerClock(now func() time.Time) ScannerOption {
	return func(s *Scanner) { s.now = now }
}

// WithDedupe makes the scanner remember what it last raised per task and
// stay quiet until the task's due state or due date changes. Without it the
// same condition is raised again on every scan.
func WithDedupe() ScannerOption {
	return func(s *Scanner) { s.dedupe = true }
}

// Scanner periodically raises OVERDUE and DUE SOON alerts for tasks
// assigned to the local user. It runs while both an identity is set and the
// connection is up, and scans once immediately whenever that becomes true.
type Scanner struct {
	tasks    TaskSource
	raiser   Raiser
	sched    loop.Scheduler
	interval time.Duration
	window   time.Duration
	now      func() time.Time
	dedupe   bool

	mu        sync.Mutex
	identity  string
	connected bool
	cancel    loop.Cancel
	last      map[domain.ID]lastAlert
}

// NewScanner creates an idle Scanner.
func NewScanner(tasks TaskSource, raiser Raiser, sched loop.Scheduler, opts ...ScannerOption) *Scanner {
	s := &Scanner{
		tasks:    tasks,
		raiser:   raiser,
		sched:    sched,
		interval: DefaultScanInterval,
		window:   DefaultDueSoonWindow,
		now:      time.Now,
		last:     make(map[domain.ID]lastAlert),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetIdentity updates the local user.
func (s *Scanner) SetIdentity(identity string) {
	s.mu.Lock()
	s.identity = identity
	s.mu.Unlock()
	s.reevaluate()
}

// SetConnected updates the connection flag.
func (s *Scanner) SetConnected(connected bool) {
	s.mu.Lock()
	s.connected = connected
	s.mu.Unlock()
	s.reevaluate()
}

// Running reports whether the periodic scan is scheduled.
func (s *Scanner) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Stop cancels the periodic scan.
func (s *Scanner) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Scanner) reevaluate() {
	s.mu.Lock()
	eligible := s.connected && s.identity != ""
	running := s.cancel != nil
	s.mu.Unlock()

	switch {
	case eligible && !running:
		s.Scan()
		cancel := s.sched.Every(s.interval, func() { s.Scan() })
		s.mu.Lock()
		dup := s.cancel != nil
		if !dup {
			s.cancel = cancel
		}
		s.mu.Unlock()
		if dup {
			cancel()
		}
	case !eligible && running:
		s.Stop()
	}
}

// Scan checks every task once and returns how many alerts it raised.
func (s *Scanner) Scan() int {
	s.mu.Lock()
	identity := s.identity
	s.mu.Unlock()
	if identity == "" {
		return 0
	}

	now := s.now()
	raised := 0
	seen := make(map[domain.ID]struct{})

	for _, t := range s.tasks.Tasks() {
		if !t.AssignedToUser(identity) {
			continue
		}

		state := dueNone
		switch {
		case t.IsOverdue(now):
			state = dueOverdue
		case t.IsDueSoon(now, s.window):
			state = dueSoon
		}
		if state == dueNone {
			continue
		}
		seen[t.ID] = struct{}{}

		if s.dedupe && !s.changed(t, state) {
			continue
		}

		if state == dueOverdue {
			s.raiser.Raise(fmt.Sprintf("Task \"%s\" is OVERDUE", t.Title), SeverityError)
		} else {
			s.raiser.Raise(fmt.Sprintf("Task \"%s\" is DUE SOON", t.Title), SeverityWarning)
		}
		raised++
	}

	if s.dedupe {
		s.mu.Lock()
		for id := range s.last {
			if _, ok := seen[id]; !ok {
				delete(s.last, id)
			}
		}
		s.mu.Unlock()
	}

	if raised > 0 {
		log.Debug().Int("alerts", raised).Msg("due-date scan")
	}
	return raised
}

func (s *Scanner) changed(t domain.Task, state dueState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := lastAlert{state: state, due: t.DueDate.Time}
	prev, ok := s.last[t.ID]
	s.last[t.ID] = cur
	return !ok || prev.state != cur.state || !prev.due.Equal(cur.due)
}
