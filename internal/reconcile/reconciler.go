// Package reconcile applies inbound board events to the local collections
// and raises the user-facing notifications those changes imply.
package reconcile

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/taskboard/internal/alert"
	"github.com/gosuda/taskboard/internal/domain"
	"github.com/gosuda/taskboard/internal/event"
)

// Notifier raises alerts. *alert.Pipeline satisfies it.
type Notifier interface {
	Raise(message string, severity alert.Severity) alert.Alert
}

// Observer is called after an event has been applied to the store.
type Observer func(event.Event)

// Option configures optional Reconciler parameters.
type Option func(*Reconciler)

// WithObserver adds an observer invoked after every applied event.
func WithObserver(fn Observer) Option {
	return func(r *Reconciler) { r.observers = append(r.observers, fn) }
}

// WithCommentRefresh sets the hook called when a comment event arrives
// without the comment itself, so the caller can reload the task's comments.
func WithCommentRefresh(fn func(task domain.ID)) Option {
	return func(r *Reconciler) { r.refreshComments = fn }
}

// Reconciler applies events strictly in delivery order. It is not safe for
// concurrent Apply calls; run it on the event loop.
type Reconciler struct {
	store    *Store
	notify   Notifier
	identity func() string

	observers       []Observer
	refreshComments func(domain.ID)
}

// New creates a Reconciler. identity returns the local username at the time
// each event is applied.
func New(store *Store, notify Notifier, identity func() string, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:    store,
		notify:   notify,
		identity: identity,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Store returns the collections the reconciler writes to.
func (r *Reconciler) Store() *Store { return r.store }

// Apply reconciles one event.
func (r *Reconciler) Apply(ev event.Event) {
	me := r.identity()

	switch e := ev.(type) {
	case event.TaskCreated:
		r.store.UpsertTask(e.Task)
		switch {
		case e.Task.AssignedToUser(me):
			r.raise(alert.SeveritySuccess, "You've been assigned to: %s", e.Task.Title)
		case e.Task.CreatedBy != "" && !domain.SameUser(e.Task.CreatedBy, me):
			r.raise(alert.SeverityInfo, "%s created: %s", e.Task.CreatedBy, e.Task.Title)
		}

	case event.TaskUpdated:
		// Only a change against a copy we already hold counts as a new
		// assignment; updates for unseen tasks are stored silently.
		prev, existed := r.store.UpsertTask(e.Task)
		if existed && e.Task.AssignedToUser(me) && !prev.AssignedToUser(me) {
			r.raise(alert.SeveritySuccess, "You've been assigned to: %s", e.Task.Title)
		}

	case event.TaskMoved:
		r.store.UpsertTask(e.Task)
		if e.Task.AssignedToUser(me) {
			r.raise(alert.SeverityInfo, "Your task \"%s\" moved to %s", e.Task.Title, e.Task.Status.Label())
		}

	case event.TaskDeleted:
		prev, existed := r.store.RemoveTask(e.Task.ID)
		gone := e.Task
		if existed {
			if gone.Title == "" {
				gone.Title = prev.Title
			}
			if gone.AssignedTo == "" {
				gone.AssignedTo = prev.AssignedTo
			}
		}
		if gone.AssignedToUser(me) {
			r.raise(alert.SeverityWarning, "Task \"%s\" was deleted", gone.Title)
		}

	case event.UserJoined:
		if !domain.SameUser(e.Username, me) {
			r.raise(alert.SeverityInfo, "%s joined the board", e.Username)
		}

	case event.UserLeft:
		if !domain.SameUser(e.Username, me) {
			r.raise(alert.SeverityInfo, "%s left the board", e.Username)
		}

	case event.UserList:
		if e.Raw == "" {
			return
		}
		r.store.ReplacePresence(e.Usernames)

	case event.BoardCreated:
		r.store.UpsertBoard(e.Board)
		if !domain.SameUser(e.Board.Owner, me) {
			r.raise(alert.SeverityInfo, "Board \"%s\" created", e.Board.Name)
		}

	case event.BoardUpdated:
		r.store.UpsertBoard(e.Board)

	case event.BoardDeleted:
		r.store.RemoveBoard(e.BoardID)
		r.raise(alert.SeverityInfo, "Board deleted")

	case event.BoardList:
		r.store.ReplaceBoards(e.Boards)

	case event.CommentCreated:
		if e.Comment != nil {
			c := *e.Comment
			if c.TaskID.IsZero() {
				c.TaskID = e.TaskID
			}
			r.store.UpsertComment(c)
			if !domain.SameUser(c.Author, me) {
				r.raise(alert.SeverityInfo, "New comment on task")
			}
		} else {
			r.refresh(e.TaskID)
			r.raise(alert.SeverityInfo, "New comment on task")
		}

	case event.CommentDeleted:
		if e.CommentID.IsZero() {
			r.refresh(e.TaskID)
		} else {
			r.store.RemoveComment(e.CommentID)
		}

	case event.ChatMessage:
		r.store.AppendChat(e.Message)
		if !domain.SameUser(e.Message.Username, me) {
			r.raise(alert.SeverityInfo, "%s: %s", e.Message.Username, e.Message.Message)
		}

	case event.Unrecognized:
		log.Debug().Str("type", e.Type).Msg("dropping unrecognized event")
		return

	default:
		log.Warn().Str("type", fmt.Sprintf("%T", ev)).Msg("reconcile: unhandled event variant")
		return
	}

	for _, obs := range r.observers {
		obs(ev)
	}
}

// ApplyLocalMove merges an optimistic status change into the local copy of
// a task before the server echo arrives. It reports whether the task was
// known.
func (r *Reconciler) ApplyLocalMove(id domain.ID, status domain.TaskStatus, board domain.ID) bool {
	return r.store.MergeTaskStatus(id, status, board)
}

func (r *Reconciler) raise(severity alert.Severity, format string, args ...any) {
	if r.notify == nil {
		return
	}
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	r.notify.Raise(msg, severity)
}

func (r *Reconciler) refresh(task domain.ID) {
	if r.refreshComments != nil && !task.IsZero() {
		r.refreshComments(task)
	}
}
