package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/taskboard/internal/domain"
	"github.com/gosuda/taskboard/internal/realtime"
)

type movePayload struct {
	ID      domain.ID         `json:"id"`
	Status  domain.TaskStatus `json:"status"`
	BoardID domain.ID         `json:"boardId,omitempty"`
}

type commentPayload struct {
	Content string    `json:"content"`
	TaskID  domain.ID `json:"taskId"`
	Author  string    `json:"author"`
}

type chatPayload struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

// JoinBoard re-announces the local user to the roster.
func (s *Session) JoinBoard() error {
	if !s.client.Send(DestUserJoin, s.client.Identity()) {
		return fmt.Errorf("session.Session.JoinBoard: %w", realtime.ErrNotConnected)
	}
	return nil
}

// CreateTask asks the server to create t. The creator is the local user,
// the board defaults to the selected one and status and priority default to
// TODO and MEDIUM. It returns the payload as sent.
func (s *Session) CreateTask(t domain.Task) (domain.Task, error) {
	t.Title = strings.TrimSpace(t.Title)
	if t.Title == "" {
		return domain.Task{}, ErrBlankTitle
	}
	if !s.client.IsConnected() {
		return domain.Task{}, fmt.Errorf("session.Session.CreateTask: %w", realtime.ErrNotConnected)
	}

	t.CreatedBy = s.client.Identity()
	if t.BoardID.IsZero() {
		t.BoardID = s.Board()
	}
	if t.Status == "" {
		t.Status = domain.TaskStatusTodo
	}
	if t.Priority == "" {
		t.Priority = domain.PriorityMedium
	}
	if !t.Status.Valid() {
		return domain.Task{}, fmt.Errorf("session.Session.CreateTask: %w: %q", domain.ErrInvalidStatus, t.Status)
	}
	if !t.Priority.Valid() {
		return domain.Task{}, fmt.Errorf("session.Session.CreateTask: %w: %q", domain.ErrInvalidPriority, t.Priority)
	}

	if !s.client.Send(DestTaskCreate, t) {
		return domain.Task{}, fmt.Errorf("session.Session.CreateTask: %w", realtime.ErrNotConnected)
	}
	return t, nil
}

// DeleteTask asks the server to delete a task. The full local copy is sent
// when known, otherwise just the id.
func (s *Session) DeleteTask(id domain.ID) error {
	var payload any = map[string]domain.ID{"id": id}
	if t, ok := s.store.Task(id); ok {
		payload = t
	}
	if !s.client.Send(DestTaskDelete, payload) {
		return fmt.Errorf("session.Session.DeleteTask: %w", realtime.ErrNotConnected)
	}
	return nil
}

// MoveTask asks the server to change a task's status and optimistically
// merges the change into the local copy. The server echo later replaces
// the whole record.
func (s *Session) MoveTask(id domain.ID, status domain.TaskStatus, board domain.ID) error {
	if !status.Valid() {
		return fmt.Errorf("session.Session.MoveTask: %q: %w", status, domain.ErrInvalidStatus)
	}
	if board.IsZero() {
		board = s.Board()
	}
	if !s.client.Send(DestTaskMove, movePayload{ID: id, Status: status, BoardID: board}) {
		return fmt.Errorf("session.Session.MoveTask: %w", realtime.ErrNotConnected)
	}

	if err := s.loop.Post(func() { s.rec.ApplyLocalMove(id, status, board) }); err != nil {
		log.Debug().Err(err).Msg("optimistic move skipped")
	}
	return nil
}

// CreateComment posts content on task as the local user.
func (s *Session) CreateComment(task domain.ID, content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrBlankComment
	}
	payload := commentPayload{Content: content, TaskID: task, Author: s.client.Identity()}
	if !s.client.Send(DestCommentCreate, payload) {
		return fmt.Errorf("session.Session.CreateComment: %w", realtime.ErrNotConnected)
	}
	return nil
}

// SendChat posts a line to the board chat.
func (s *Session) SendChat(message string) error {
	if strings.TrimSpace(message) == "" {
		return ErrBlankMessage
	}
	payload := chatPayload{Username: s.client.Identity(), Message: message}
	if !s.client.Send(DestChatMessage, payload) {
		return fmt.Errorf("session.Session.SendChat: %w", realtime.ErrNotConnected)
	}
	return nil
}

// SelectBoard follows the task stream of board and, with an API
// configured, replaces the local tasks with that board's. It blocks on the
// loop and must not be called from a loop callback.
func (s *Session) SelectBoard(ctx context.Context, board domain.ID) error {
	s.mu.Lock()
	s.board = board
	s.mu.Unlock()

	s.client.Subscribe(BoardTopic(board), s.apply)

	if s.api == nil {
		return nil
	}
	tasks, err := s.api.ListBoardTasks(ctx, board)
	if err != nil {
		return fmt.Errorf("session.Session.SelectBoard: %w", err)
	}
	if err := s.loop.Do(ctx, func() { s.store.ReplaceTasks(tasks) }); err != nil {
		return fmt.Errorf("session.Session.SelectBoard: %w", err)
	}
	return nil
}

// OpenComments follows the comment stream of task and, with an API
// configured, loads its existing comments. Like SelectBoard it must not be
// called from a loop callback.
func (s *Session) OpenComments(ctx context.Context, task domain.ID) error {
	s.client.Subscribe(CommentsTopic(task), s.apply)

	if s.api == nil {
		return nil
	}
	comments, err := s.api.ListTaskComments(ctx, task)
	if err != nil {
		return fmt.Errorf("session.Session.OpenComments: %w", err)
	}
	if err := s.loop.Do(ctx, func() { s.store.ReplaceComments(task, comments) }); err != nil {
		return fmt.Errorf("session.Session.OpenComments: %w", err)
	}
	return nil
}
