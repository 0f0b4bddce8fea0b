// Package loop provides a single-goroutine event queue. Inbound frames,
// outbound commands and timer callbacks are all posted to one Loop so each
// runs to completion before the next starts.
package loop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrStopped is returned when posting to a loop that has exited.
var ErrStopped = errors.New("loop: stopped") //nolint:gochecknoglobals // sentinel error

// Cancel stops a scheduled callback. It is safe to call more than once.
type Cancel func()

// Scheduler schedules callbacks onto an execution queue.
type Scheduler interface {
	// AfterFunc runs fn once after d.
	AfterFunc(d time.Duration, fn func()) Cancel
	// Every runs fn each period until cancelled.
	Every(period time.Duration, fn func()) Cancel
}

// Loop executes posted functions sequentially on the goroutine running Run.
type Loop struct {
	queue    chan func()
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a Loop with a queue of the given capacity.
func New(capacity int) *Loop {
	if capacity <= 0 {
		capacity = 256
	}
	return &Loop{
		queue: make(chan func(), capacity),
		done:  make(chan struct{}),
	}
}

// Run executes queued functions until ctx is cancelled. A panicking
// function is logged and does not stop the loop.
func (l *Loop) Run(ctx context.Context) {
	defer l.stop()
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-l.queue:
			l.exec(fn)
		}
	}
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("loop: recovered from panic in callback")
		}
	}()
	fn()
}

func (l *Loop) stop() {
	l.stopOnce.Do(func() { close(l.done) })
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Post enqueues fn. It blocks while the queue is full and returns ErrStopped
// if the loop has exited. Posting from inside a callback onto a full queue
// deadlocks; callbacks should use Go for follow-up work instead.
func (l *Loop) Post(fn func()) error {
	select {
	case <-l.done:
		return ErrStopped
	default:
	}
	select {
	case l.queue <- fn:
		return nil
	case <-l.done:
		return ErrStopped
	}
}

// Go enqueues fn from a fresh goroutine so the caller never blocks.
func (l *Loop) Go(fn func()) {
	go func() { _ = l.Post(fn) }()
}

// Do posts fn and waits for it to finish.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if err := l.Post(func() {
		defer close(finished)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AfterFunc posts fn to the loop after d. Cancelling before fn runs on the
// loop guarantees it never runs.
func (l *Loop) AfterFunc(d time.Duration, fn func()) Cancel {
	var cancelled atomic.Bool
	t := time.AfterFunc(d, func() {
		_ = l.Post(func() {
			if !cancelled.Load() {
				fn()
			}
		})
	})
	return func() {
		cancelled.Store(true)
		t.Stop()
	}
}

// Every posts fn to the loop once per period until cancelled or the loop exits.
func (l *Loop) Every(period time.Duration, fn func()) Cancel {
	var (
		cancelled atomic.Bool
		stopCh    = make(chan struct{})
		once      sync.Once
	)
	go func() {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-l.done:
				return
			case <-ticker.C:
				if err := l.Post(func() {
					if !cancelled.Load() {
						fn()
					}
				}); err != nil {
					return
				}
			}
		}
	}()
	return func() {
		cancelled.Store(true)
		once.Do(func() { close(stopCh) })
	}
}

var _ Scheduler = (*Loop)(nil)
