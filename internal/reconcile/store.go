package reconcile

import (
	"sort"
	"sync"

	"github.com/gosuda/taskboard/internal/domain"
)

// DefaultChatHistory is how many chat lines the store keeps.
const DefaultChatHistory = 200

// Store holds the authoritative in-memory collections. Within each
// collection ids are unique; upserts replace in place or append, and
// records are always replaced whole. Reads return copies so callers on
// other goroutines can render while events are applied.
type Store struct {
	mu          sync.RWMutex
	tasks       []domain.Task
	boards      []domain.Board
	comments    []domain.Comment
	presence    map[string]struct{}
	chat        []domain.ChatMessage
	chatHistory int
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		presence:    make(map[string]struct{}),
		chatHistory: DefaultChatHistory,
	}
}

func taskID(t domain.Task) domain.ID       { return t.ID }
func boardID(b domain.Board) domain.ID     { return b.ID }
func commentID(c domain.Comment) domain.ID { return c.ID }

// upsert replaces the element with item's id in place, or appends it. It
// returns the replaced element, if any.
func upsert[T any](items []T, item T, idOf func(T) domain.ID) ([]T, T, bool) {
	id := idOf(item)
	for i := range items {
		if idOf(items[i]) == id {
			prev := items[i]
			items[i] = item
			return items, prev, true
		}
	}
	var zero T
	return append(items, item), zero, false
}

// remove deletes the element with id. Removing an absent id is a no-op.
func remove[T any](items []T, id domain.ID, idOf func(T) domain.ID) ([]T, T, bool) {
	for i := range items {
		if idOf(items[i]) == id {
			prev := items[i]
			return append(items[:i], items[i+1:]...), prev, true
		}
	}
	var zero T
	return items, zero, false
}

// dedupe keeps the last occurrence of each id at the position of its first.
func dedupe[T any](items []T, idOf func(T) domain.ID) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		out, _, _ = upsert(out, it, idOf)
	}
	return out
}

// --- tasks ---

func (s *Store) Tasks() []domain.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Task(nil), s.tasks...)
}

// TasksByStatus returns the tasks in one column, in collection order.
func (s *Store) TasksByStatus(status domain.TaskStatus) []domain.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Task
	for _, t := range s.tasks {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out
}

func (s *Store) Task(id domain.ID) (domain.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tasks {
		if t.ID == id {
			return t, true
		}
	}
	return domain.Task{}, false
}

// UpsertTask stores t and returns the copy it replaced, if any.
func (s *Store) UpsertTask(t domain.Task) (domain.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		prev domain.Task
		ok   bool
	)
	s.tasks, prev, ok = upsert(s.tasks, t, taskID)
	return prev, ok
}

// RemoveTask deletes the task with id and returns it, if it was present.
func (s *Store) RemoveTask(id domain.ID) (domain.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		prev domain.Task
		ok   bool
	)
	s.tasks, prev, ok = remove(s.tasks, id, taskID)
	return prev, ok
}

// ReplaceTasks swaps the whole task collection.
func (s *Store) ReplaceTasks(tasks []domain.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = dedupe(tasks, taskID)
}

// MergeTaskStatus applies a partial {status, boardId} update to an existing
// task. It reports whether the task was found.
func (s *Store) MergeTaskStatus(id domain.ID, status domain.TaskStatus, board domain.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.tasks {
		if s.tasks[i].ID != id {
			continue
		}
		merged := s.tasks[i]
		merged.Status = status
		if !board.IsZero() {
			merged.BoardID = board
		}
		s.tasks[i] = merged
		return true
	}
	return false
}

// --- boards ---

func (s *Store) Boards() []domain.Board {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Board(nil), s.boards...)
}

func (s *Store) Board(id domain.ID) (domain.Board, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.boards {
		if b.ID == id {
			return b, true
		}
	}
	return domain.Board{}, false
}

func (s *Store) UpsertBoard(b domain.Board) (domain.Board, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		prev domain.Board
		ok   bool
	)
	s.boards, prev, ok = upsert(s.boards, b, boardID)
	return prev, ok
}

func (s *Store) RemoveBoard(id domain.ID) (domain.Board, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		prev domain.Board
		ok   bool
	)
	s.boards, prev, ok = remove(s.boards, id, boardID)
	return prev, ok
}

func (s *Store) ReplaceBoards(boards []domain.Board) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.boards = dedupe(boards, boardID)
}

// --- comments ---

// Comments returns the comments attached to task, in collection order.
func (s *Store) Comments(task domain.ID) []domain.Comment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Comment
	for _, c := range s.comments {
		if c.TaskID == task {
			out = append(out, c)
		}
	}
	return out
}

func (s *Store) UpsertComment(c domain.Comment) (domain.Comment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		prev domain.Comment
		ok   bool
	)
	s.comments, prev, ok = upsert(s.comments, c, commentID)
	return prev, ok
}

func (s *Store) RemoveComment(id domain.ID) (domain.Comment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		prev domain.Comment
		ok   bool
	)
	s.comments, prev, ok = remove(s.comments, id, commentID)
	return prev, ok
}

// ReplaceComments swaps every comment of task for comments.
func (s *Store) ReplaceComments(task domain.ID, comments []domain.Comment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.comments[:0:0]
	for _, c := range s.comments {
		if c.TaskID != task {
			kept = append(kept, c)
		}
	}
	for _, c := range comments {
		if c.TaskID.IsZero() {
			c.TaskID = task
		}
		kept, _, _ = upsert(kept, c, commentID)
	}
	s.comments = kept
}

// --- presence ---

// Presence returns the active usernames, sorted.
func (s *Store) Presence() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.presence))
	for u := range s.presence {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// IsPresent reports whether username is in the roster.
func (s *Store) IsPresent(username string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.presence[username]
	return ok
}

// ReplacePresence swaps the roster wholesale.
func (s *Store) ReplacePresence(usernames []string) {
	set := make(map[string]struct{}, len(usernames))
	for _, u := range usernames {
		set[u] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presence = set
}

// --- chat ---

func (s *Store) Chat() []domain.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.ChatMessage(nil), s.chat...)
}

// AppendChat records msg, discarding the oldest lines past the history limit.
func (s *Store) AppendChat(msg domain.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chat = append(s.chat, msg)
	if over := len(s.chat) - s.chatHistory; over > 0 {
		s.chat = append(s.chat[:0:0], s.chat[over:]...)
	}
}
