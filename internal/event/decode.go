package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/gosuda/taskboard/internal/domain"
)

// ErrInvalidPayload is returned for bodies that are not a valid event envelope.
var ErrInvalidPayload = errors.New("event: invalid payload") //nolint:gochecknoglobals // sentinel error

// envelopeSchema describes the fields each known type must carry. Extra
// fields are allowed; the server adds timestamps and ids freely.
const envelopeSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["type"],
  "properties": {
    "type": {"type": "string", "minLength": 1},
    "username": {"type": ["string", "null"]}
  },
  "allOf": [
    {
      "if": {"properties": {"type": {"enum": ["TASK_CREATED", "TASK_UPDATED", "TASK_MOVED", "TASK_DELETED"]}}},
      "then": {
        "required": ["task"],
        "properties": {"task": {"type": "object", "required": ["id"]}}
      }
    },
    {
      "if": {"properties": {"type": {"enum": ["USER_JOINED", "USER_LEFT"]}}},
      "then": {
        "required": ["username"],
        "properties": {"username": {"type": "string", "minLength": 1}}
      }
    },
    {
      "if": {"properties": {"type": {"const": "COMMENT_CREATED"}}},
      "then": {"anyOf": [{"required": ["taskId"]}, {"required": ["comment"]}]}
    },
    {
      "if": {"properties": {"type": {"const": "CHAT_MESSAGE"}}},
      "then": {"required": ["username"]}
    }
  ]
}`

var schema = jsonschema.MustCompileString("taskboard-event.json", envelopeSchema) //nolint:gochecknoglobals // compiled once

// envelope is the union of every field any event type carries.
type envelope struct {
	Type      string            `json:"type"`
	Task      *domain.Task      `json:"task"`
	Board     *domain.Board     `json:"board"`
	Boards    json.RawMessage   `json:"boards"`
	Payload   json.RawMessage   `json:"payload"`
	BoardID   domain.ID         `json:"boardId"`
	ID        domain.ID         `json:"id"`
	Username  string            `json:"username"`
	Message   string            `json:"message"`
	TaskID    domain.ID         `json:"taskId"`
	CommentID domain.ID         `json:"commentId"`
	Comment   *domain.Comment   `json:"comment"`
	Timestamp *domain.Timestamp `json:"timestamp"`
}

// Decode validates body against the envelope schema and returns the matching
// variant. Unknown types decode to Unrecognized rather than failing.
func Decode(body []byte) (Event, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("event.Decode: %w: %w", ErrInvalidPayload, err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("event.Decode: %w: %s", ErrInvalidPayload, firstCause(err))
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("event.Decode: %w: %w", ErrInvalidPayload, err)
	}

	switch Kind(env.Type) {
	case KindTaskCreated:
		return TaskCreated{Task: *env.Task}, nil
	case KindTaskUpdated:
		return TaskUpdated{Task: *env.Task}, nil
	case KindTaskMoved:
		return TaskMoved{Task: *env.Task}, nil
	case KindTaskDeleted:
		return TaskDeleted{Task: *env.Task}, nil
	case KindUserJoined:
		return UserJoined{Username: env.Username}, nil
	case KindUserLeft:
		return UserLeft{Username: env.Username}, nil
	case KindUserList:
		return UserList{Raw: env.Username, Usernames: ParseRoster(env.Username)}, nil
	case KindBoardCreated, KindBoardUpdated:
		board, err := boardFrom(&env, body)
		if err != nil {
			return nil, fmt.Errorf("event.Decode: %s: %w", env.Type, err)
		}
		if Kind(env.Type) == KindBoardCreated {
			return BoardCreated{Board: board}, nil
		}
		return BoardUpdated{Board: board}, nil
	case KindBoardDeleted:
		return BoardDeleted{BoardID: boardIDFrom(&env)}, nil
	case KindBoardList:
		return BoardList{Boards: boardsFrom(&env)}, nil
	case KindCommentCreated:
		taskID := env.TaskID
		if taskID.IsZero() && env.Comment != nil {
			taskID = env.Comment.TaskID
		}
		return CommentCreated{TaskID: taskID, Comment: env.Comment}, nil
	case KindCommentDeleted:
		commentID := env.CommentID
		if commentID.IsZero() && env.Comment != nil {
			commentID = env.Comment.ID
		}
		return CommentDeleted{TaskID: env.TaskID, CommentID: commentID}, nil
	case KindChatMessage:
		return ChatMessage{Message: domain.ChatMessage{
			Username: env.Username,
			Message:  env.Message,
			SentAt:   env.Timestamp,
		}}, nil
	default:
		return Unrecognized{Type: env.Type, Raw: append(json.RawMessage(nil), body...)}, nil
	}
}

// ParseRoster splits a comma-separated username list, trimming whitespace
// and dropping empty entries.
func ParseRoster(s string) []string {
	parts := strings.Split(s, ",")
	names := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			names = append(names, p)
		}
	}
	return names
}

// boardFrom accepts the board under "board", under "payload", or as the
// message itself.
func boardFrom(env *envelope, body []byte) (domain.Board, error) {
	if env.Board != nil {
		return *env.Board, nil
	}
	src := []byte(env.Payload)
	if isAbsent(env.Payload) {
		src = body
	}
	var b domain.Board
	if err := json.Unmarshal(src, &b); err != nil {
		return domain.Board{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if b.ID.IsZero() {
		return domain.Board{}, fmt.Errorf("%w: board without id", ErrInvalidPayload)
	}
	return b, nil
}

func boardIDFrom(env *envelope) domain.ID {
	switch {
	case !env.BoardID.IsZero():
		return env.BoardID
	case !env.ID.IsZero():
		return env.ID
	case env.Board != nil:
		return env.Board.ID
	default:
		return ""
	}
}

// boardsFrom reads the list from "boards", falling back to "payload" when
// "boards" is absent. A value that is not an array of boards yields an empty
// list.
func boardsFrom(env *envelope) []domain.Board {
	src := env.Boards
	if isAbsent(src) {
		src = env.Payload
	}
	var boards []domain.Board
	if !isAbsent(src) {
		if err := json.Unmarshal(src, &boards); err != nil {
			boards = nil
		}
	}
	if boards == nil {
		boards = []domain.Board{}
	}
	return boards
}

func isAbsent(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// firstCause returns the innermost validation message, which names the
// offending field instead of the top-level "doesn't validate" summary.
func firstCause(err error) string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err.Error()
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	loc := ve.InstanceLocation
	if loc == "" {
		loc = "/"
	}
	return loc + ": " + ve.Message
}
