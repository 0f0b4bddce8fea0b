// Package event defines the typed broadcast events carried in MESSAGE
// frame bodies. Each inbound "type" discriminator maps to one concrete
// variant; anything else becomes Unrecognized.
package event

import (
	"encoding/json"

	"github.com/gosuda/taskboard/internal/domain"
)

// Kind is the wire "type" discriminator.
type Kind string

const (
	KindTaskCreated    Kind = "TASK_CREATED"
	KindTaskUpdated    Kind = "TASK_UPDATED"
	KindTaskMoved      Kind = "TASK_MOVED"
	KindTaskDeleted    Kind = "TASK_DELETED"
	KindUserJoined     Kind = "USER_JOINED"
	KindUserLeft       Kind = "USER_LEFT"
	KindUserList       Kind = "USER_LIST"
	KindBoardCreated   Kind = "BOARD_CREATED"
	KindBoardUpdated   Kind = "BOARD_UPDATED"
	KindBoardDeleted   Kind = "BOARD_DELETED"
	KindBoardList      Kind = "BOARD_LIST"
	KindCommentCreated Kind = "COMMENT_CREATED"
	KindCommentDeleted Kind = "COMMENT_DELETED"
	KindChatMessage    Kind = "CHAT_MESSAGE"
)

// Event is implemented by every variant in this package.
type Event interface {
	Kind() Kind
	isEvent()
}

type TaskCreated struct{ Task domain.Task }
type TaskUpdated struct{ Task domain.Task }

// TaskMoved carries the full task record as echoed by the server.
type TaskMoved struct{ Task domain.Task }

// TaskDeleted carries whatever the server echoed; only Task.ID is guaranteed.
type TaskDeleted struct{ Task domain.Task }

type UserJoined struct{ Username string }
type UserLeft struct{ Username string }

// UserList is a full roster snapshot. Raw is the comma-separated string as
// received; Usernames holds its trimmed, non-empty entries.
type UserList struct {
	Raw       string
	Usernames []string
}

type BoardCreated struct{ Board domain.Board }
type BoardUpdated struct{ Board domain.Board }
type BoardDeleted struct{ BoardID domain.ID }
type BoardList struct{ Boards []domain.Board }

// CommentCreated may or may not embed the new comment; TaskID is always set.
type CommentCreated struct {
	TaskID  domain.ID
	Comment *domain.Comment
}

type CommentDeleted struct {
	TaskID    domain.ID
	CommentID domain.ID
}

type ChatMessage struct{ Message domain.ChatMessage }

// Unrecognized is a well-formed envelope whose type is not handled.
type Unrecognized struct {
	Type string
	Raw  json.RawMessage
}

func (TaskCreated) Kind() Kind    { return KindTaskCreated }
func (TaskUpdated) Kind() Kind    { return KindTaskUpdated }
func (TaskMoved) Kind() Kind      { return KindTaskMoved }
func (TaskDeleted) Kind() Kind    { return KindTaskDeleted }
func (UserJoined) Kind() Kind     { return KindUserJoined }
func (UserLeft) Kind() Kind       { return KindUserLeft }
func (UserList) Kind() Kind       { return KindUserList }
func (BoardCreated) Kind() Kind   { return KindBoardCreated }
func (BoardUpdated) Kind() Kind   { return KindBoardUpdated }
func (BoardDeleted) Kind() Kind   { return KindBoardDeleted }
func (BoardList) Kind() Kind      { return KindBoardList }
func (CommentCreated) Kind() Kind { return KindCommentCreated }
func (CommentDeleted) Kind() Kind { return KindCommentDeleted }
func (ChatMessage) Kind() Kind    { return KindChatMessage }
func (u Unrecognized) Kind() Kind { return Kind(u.Type) }

func (TaskCreated) isEvent()    {}
func (TaskUpdated) isEvent()    {}
func (TaskMoved) isEvent()      {}
func (TaskDeleted) isEvent()    {}
func (UserJoined) isEvent()     {}
func (UserLeft) isEvent()       {}
func (UserList) isEvent()       {}
func (BoardCreated) isEvent()   {}
func (BoardUpdated) isEvent()   {}
func (BoardDeleted) isEvent()   {}
func (BoardList) isEvent()      {}
func (CommentCreated) isEvent() {}
func (CommentDeleted) isEvent() {}
func (ChatMessage) isEvent()    {}
func (Unrecognized) isEvent()   {}
