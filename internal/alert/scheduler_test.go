package alert_test

import (
	"sort"
	"sync"
	"time"

	"github.com/gosuda/taskboard/internal/loop"
)

// manualScheduler is a loop.Scheduler driven by Advance instead of wall time.
type manualScheduler struct {
	mu     sync.Mutex
	now    time.Time
	nextID int
	timers map[int]*manualTimer
}

type manualTimer struct {
	at     time.Time
	period time.Duration
	fn     func()
}

func newManualScheduler(start time.Time) *manualScheduler {
	return &manualScheduler{now: start, timers: make(map[int]*manualTimer)}
}

func (m *manualScheduler) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *manualScheduler) add(d, period time.Duration, fn func()) loop.Cancel {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.timers[id] = &manualTimer{at: m.now.Add(d), period: period, fn: fn}
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.timers, id)
	}
}

func (m *manualScheduler) AfterFunc(d time.Duration, fn func()) loop.Cancel {
	return m.add(d, 0, fn)
}

func (m *manualScheduler) Every(period time.Duration, fn func()) loop.Cancel {
	return m.add(period, period, fn)
}

func (m *manualScheduler) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// Advance moves the clock forward by d, running due callbacks in deadline
// order, one at a time.
func (m *manualScheduler) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		var ids []int
		for id, t := range m.timers {
			if !t.at.After(target) {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			m.now = target
			m.mu.Unlock()
			return
		}
		sort.Slice(ids, func(i, j int) bool {
			ti, tj := m.timers[ids[i]], m.timers[ids[j]]
			if ti.at.Equal(tj.at) {
				return ids[i] < ids[j]
			}
			return ti.at.Before(tj.at)
		})
		id := ids[0]
		t := m.timers[id]
		m.now = t.at
		if t.period > 0 {
			t.at = t.at.Add(t.period)
		} else {
			delete(m.timers, id)
		}
		fn := t.fn
		m.mu.Unlock()

		fn()
	}
}
