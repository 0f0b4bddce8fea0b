package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/gosuda/taskboard/internal/config"
	"github.com/gosuda/taskboard/internal/domain"
	"github.com/gosuda/taskboard/internal/event"
	"github.com/gosuda/taskboard/internal/reconcile"
	"github.com/gosuda/taskboard/internal/session"
	redisstore "github.com/gosuda/taskboard/internal/store/redis"
)

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "taskboard",
		Short:         "Realtime task board client",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			a.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&a.user, "user", "u", "", "username to join the board as")

	root.AddCommand(
		newWatchCmd(a),
		newTaskCmd(a),
		newCommentCmd(a),
		newChatCmd(a),
		newBoardsCmd(a),
		newTapCmd(a),
	)
	return root
}

func newWatchCmd(a *app) *cobra.Command {
	var board string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Join the board and stream events until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			var roster atomic.Pointer[reconcile.Store]
			l, err := a.connect(cmd.Context(), session.WithObserver(func(ev event.Event) {
				var r presence
				if st := roster.Load(); st != nil {
					r = st
				}
				fmt.Fprintln(out, describe(ev, r))
			}))
			if err != nil {
				return err
			}
			defer l.close(a.cfg.Session.CloseGrace)
			roster.Store(l.sess.Store())

			if board != "" {
				if err := l.sess.SelectBoard(cmd.Context(), domain.ID(board)); err != nil {
					return err
				}
			}

			select {
			case <-cmd.Context().Done():
				return nil
			case err := <-l.lost:
				return fmt.Errorf("connection lost: %w", err)
			}
		},
	}
	cmd.Flags().StringVar(&board, "board", "", "also follow this board's task stream")
	return cmd
}

func newTaskCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Create, move, delete and list tasks",
	}
	cmd.AddCommand(newTaskCreateCmd(a), newTaskMoveCmd(a), newTaskDeleteCmd(a), newTaskListCmd(a))
	return cmd
}

func newTaskCreateCmd(a *app) *cobra.Command {
	var (
		t   domain.Task
		due string
	)

	cmd := &cobra.Command{
		Use:   "create TITLE",
		Short: "Create a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dueDate, err := parseDue(due)
			if err != nil {
				return err
			}
			t.Title = args[0]
			t.DueDate = dueDate
			t.Status = domain.TaskStatus(strings.ToUpper(string(t.Status)))
			t.Priority = domain.Priority(strings.ToUpper(string(t.Priority)))

			return a.oneShot(cmd.Context(), func(s *session.Session) error {
				sent, err := s.CreateTask(t)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "requested %q (%s, %s)\n", sent.Title, sent.Status.Label(), sent.Priority)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVarP(&t.Description, "description", "d", "", "task description")
	f.StringVar((*string)(&t.Status), "status", "", "TODO, IN_PROGRESS or DONE")
	f.StringVar((*string)(&t.Priority), "priority", "", "LOW, MEDIUM, HIGH or URGENT")
	f.StringVar(&t.AssignedTo, "assign", "", "assignee username")
	f.StringVar((*string)(&t.BoardID), "board", "", "board id")
	f.StringVar(&due, "due", "", "due date, e.g. 2026-11-01T17:00")
	return cmd
}

func newTaskMoveCmd(a *app) *cobra.Command {
	var board string

	cmd := &cobra.Command{
		Use:   "move ID STATUS",
		Short: "Move a task to another column",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status := domain.TaskStatus(strings.ToUpper(args[1]))
			if !status.Valid() {
				return fmt.Errorf("%q: %w", args[1], domain.ErrInvalidStatus)
			}
			return a.oneShot(cmd.Context(), func(s *session.Session) error {
				return s.MoveTask(domain.ID(args[0]), status, domain.ID(board))
			})
		},
	}
	cmd.Flags().StringVar(&board, "board", "", "board id")
	return cmd
}

func newTaskDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.oneShot(cmd.Context(), func(s *session.Session) error {
				return s.DeleteTask(domain.ID(args[0]))
			})
		},
	}
}

func newTaskListCmd(a *app) *cobra.Command {
	var board string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks by column",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				tasks []domain.Task
				err   error
			)
			if board == "" {
				tasks, err = a.api().ListTasks(cmd.Context())
			} else {
				tasks, err = a.api().ListBoardTasks(cmd.Context(), domain.ID(board))
			}
			if err != nil {
				return err
			}
			store := reconcile.NewStore()
			store.ReplaceTasks(tasks)
			return writeTasks(cmd.OutOrStdout(), store)
		},
	}
	cmd.Flags().StringVar(&board, "board", "", "only this board's tasks")
	return cmd
}

func newCommentCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "comment",
		Short: "Add and list task comments",
	}

	add := &cobra.Command{
		Use:   "add TASK_ID TEXT",
		Short: "Comment on a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.oneShot(cmd.Context(), func(s *session.Session) error {
				return s.CreateComment(domain.ID(args[0]), args[1])
			})
		},
	}

	list := &cobra.Command{
		Use:   "list TASK_ID",
		Short: "List a task's comments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			comments, err := a.api().ListTaskComments(cmd.Context(), domain.ID(args[0]))
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tAUTHOR\tAT\tCONTENT")
			for _, c := range comments {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.ID, c.Author, formatTime(c.CreatedAt), c.Content)
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(add, list)
	return cmd
}

func newChatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat MESSAGE",
		Short: "Send a line to the board chat",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.oneShot(cmd.Context(), func(s *session.Session) error {
				return s.SendChat(strings.Join(args, " "))
			})
		},
	}
}

func newBoardsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "boards",
		Short: "List and create boards",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List your boards",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := a.identity()
			if err != nil {
				return err
			}
			boards, err := a.api().ListUserBoards(cmd.Context(), user)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tOWNER\tPUBLIC")
			for _, b := range boards {
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", b.ID, b.Name, b.Owner, b.IsPublic)
			}
			return w.Flush()
		},
	}

	var b domain.Board
	create := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a board",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := a.identity()
			if err != nil {
				return err
			}
			b.Name = args[0]
			b.Owner = user
			created, err := a.api().CreateBoard(cmd.Context(), b)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created board %s (%s)\n", created.Name, created.ID)
			return nil
		},
	}
	create.Flags().StringVarP(&b.Description, "description", "d", "", "board description")
	create.Flags().BoolVar(&b.IsPublic, "public", false, "make the board public")

	cmd.AddCommand(list, create)
	return cmd
}

func newTapCmd(a *app) *cobra.Command {
	var board string

	cmd := &cobra.Command{
		Use:   "tap",
		Short: "Print events another session published to Redis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !a.cfg.Redis.Enabled() {
				return errNoRedis
			}
			channel := redisstore.BoardChannel(domain.ID(board))
			if board == "" {
				user, err := a.identity()
				if err != nil {
					return err
				}
				channel = redisstore.EventChannel(user)
			}
			return tap(cmd.Context(), a.cfg.Redis, channel, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&board, "board", "", "follow a board channel instead of a user's")
	return cmd
}

func tap(ctx context.Context, cfg config.RedisConfig, channel string, out io.Writer) error {
	ps, err := redisstore.New(ctx, cfg.Addr, cfg.Password, cfg.DB)
	if err != nil {
		return err
	}
	defer ps.Close()

	records, stop, err := ps.Follow(ctx, channel)
	if err != nil {
		return err
	}
	defer stop()

	for rec := range records {
		payload, err := json.Marshal(rec.Payload)
		if err != nil {
			payload = []byte("?")
		}
		fmt.Fprintf(out, "%s %s %s %s\n", rec.At.Local().Format(time.TimeOnly), rec.Identity, rec.Type, payload)
	}
	return nil
}

// writeTasks prints the store's tasks column by column. Assignees in the
// store's roster are marked with "*".
func writeTasks(out io.Writer, store *reconcile.Store) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tPRIORITY\tASSIGNEE\tDUE\tTITLE")
	for _, status := range []domain.TaskStatus{domain.TaskStatusTodo, domain.TaskStatusInProgress, domain.TaskStatusDone} {
		for _, t := range store.TasksByStatus(status) {
			assignee := t.AssignedTo
			if assignee != "" && store.IsPresent(assignee) {
				assignee += "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				t.ID, t.Status.Label(), t.Priority, assignee, formatTime(t.DueDate), t.Title)
		}
	}
	return w.Flush()
}

// presence answers roster lookups. *reconcile.Store satisfies it.
type presence interface {
	IsPresent(username string) bool
}

// assignment describes who a task is assigned to, noting when they are
// online. roster may be nil.
func assignment(t domain.Task, roster presence) string {
	if t.AssignedTo == "" {
		return ""
	}
	if roster != nil && roster.IsPresent(t.AssignedTo) {
		return fmt.Sprintf(" @%s (online)", t.AssignedTo)
	}
	return " @" + t.AssignedTo
}

func formatTime(ts *domain.Timestamp) string {
	if ts == nil || ts.IsZero() {
		return "-"
	}
	return ts.Local().Format("2006-01-02 15:04")
}

func describe(ev event.Event, roster presence) string {
	switch e := ev.(type) {
	case event.TaskCreated:
		return fmt.Sprintf("%s %s %q%s", e.Kind(), e.Task.ID, e.Task.Title, assignment(e.Task, roster))
	case event.TaskUpdated:
		return fmt.Sprintf("%s %s %q%s", e.Kind(), e.Task.ID, e.Task.Title, assignment(e.Task, roster))
	case event.TaskMoved:
		return fmt.Sprintf("%s %s -> %s", e.Kind(), e.Task.ID, e.Task.Status.Label())
	case event.TaskDeleted:
		return fmt.Sprintf("%s %s", e.Kind(), e.Task.ID)
	case event.UserJoined:
		return fmt.Sprintf("%s %s", e.Kind(), e.Username)
	case event.UserLeft:
		return fmt.Sprintf("%s %s", e.Kind(), e.Username)
	case event.UserList:
		return fmt.Sprintf("%s %s", e.Kind(), strings.Join(e.Usernames, ", "))
	case event.BoardCreated:
		return fmt.Sprintf("%s %s %q", e.Kind(), e.Board.ID, e.Board.Name)
	case event.BoardUpdated:
		return fmt.Sprintf("%s %s %q", e.Kind(), e.Board.ID, e.Board.Name)
	case event.BoardDeleted:
		return fmt.Sprintf("%s %s", e.Kind(), e.BoardID)
	case event.ChatMessage:
		return fmt.Sprintf("<%s> %s", e.Message.Username, e.Message.Message)
	case event.CommentCreated:
		return fmt.Sprintf("%s on %s", e.Kind(), e.TaskID)
	default:
		return string(ev.Kind())
	}
}
