// Package session ties the realtime client, the reconciler and the alert
// pipeline into one connected board session driven by a single event loop.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/taskboard/internal/alert"
	"github.com/gosuda/taskboard/internal/domain"
	"github.com/gosuda/taskboard/internal/event"
	"github.com/gosuda/taskboard/internal/loop"
	"github.com/gosuda/taskboard/internal/realtime"
	"github.com/gosuda/taskboard/internal/reconcile"
)

var (
	ErrBlankTitle   = errors.New("session: task title is blank")   //nolint:gochecknoglobals // sentinel error
	ErrBlankComment = errors.New("session: comment is blank")      //nolint:gochecknoglobals // sentinel error
	ErrBlankMessage = errors.New("session: chat message is blank") //nolint:gochecknoglobals // sentinel error
)

// Broadcast topics.
const (
	TopicTasks  = "/topic/tasks"
	TopicBoards = "/topic/boards"
	TopicUsers  = "/topic/users"
	TopicChat   = "/topic/chat"
)

// Command destinations.
const (
	DestUserJoin      = "/app/user.join"
	DestTaskCreate    = "/app/task.create"
	DestTaskDelete    = "/app/task.delete"
	DestTaskMove      = "/app/task.move"
	DestCommentCreate = "/app/comment.create"
	DestChatMessage   = "/app/chat.message"
)

// BoardTopic is the per-board task stream.
func BoardTopic(board domain.ID) string { return "/topic/board/" + board.String() }

// CommentsTopic is the comment stream of one task.
func CommentsTopic(task domain.ID) string { return "/topic/task/" + task.String() + "/comments" }

// API is the bulk-load surface of the REST server. *restapi.Client
// satisfies it.
type API interface {
	ListTasks(ctx context.Context) ([]domain.Task, error)
	ListBoardTasks(ctx context.Context, board domain.ID) ([]domain.Task, error)
	ListUserBoards(ctx context.Context, username string) ([]domain.Board, error)
	ListTaskComments(ctx context.Context, task domain.ID) ([]domain.Comment, error)
}

// Option configures optional Session parameters.
type Option func(*settings)

type settings struct {
	api          API
	clientOpts   []realtime.Option
	alertOpts    []alert.Option
	scannerOpts  []alert.ScannerOption
	observers    []reconcile.Observer
	onReadyHooks []func()
	onErrorHooks []func(error)
}

// WithAPI enables REST bulk loads on connect, board selection and comment
// refresh.
func WithAPI(api API) Option {
	return func(s *settings) { s.api = api }
}

// WithClientOptions forwards options to the realtime client.
func WithClientOptions(opts ...realtime.Option) Option {
	return func(s *settings) { s.clientOpts = append(s.clientOpts, opts...) }
}

// WithAlertOptions forwards options to the alert pipeline.
func WithAlertOptions(opts ...alert.Option) Option {
	return func(s *settings) { s.alertOpts = append(s.alertOpts, opts...) }
}

// WithScannerOptions forwards options to the due-date scanner.
func WithScannerOptions(opts ...alert.ScannerOption) Option {
	return func(s *settings) { s.scannerOpts = append(s.scannerOpts, opts...) }
}

// WithObserver is called on the loop after each applied event.
func WithObserver(fn reconcile.Observer) Option {
	return func(s *settings) { s.observers = append(s.observers, fn) }
}

// WithReadyHook runs fn on the loop each time the server acknowledges a
// connection, after the default subscriptions are in place.
func WithReadyHook(fn func()) Option {
	return func(s *settings) { s.onReadyHooks = append(s.onReadyHooks, fn) }
}

// WithErrorHook runs fn on the loop when the connection fails.
func WithErrorHook(fn func(error)) Option {
	return func(s *settings) { s.onErrorHooks = append(s.onErrorHooks, fn) }
}

// Session is one user's live view of the board server. Inbound events,
// timers and the reconciler all run on the Loop passed to New.
type Session struct {
	loop    *loop.Loop
	client  *realtime.Client
	store   *reconcile.Store
	rec     *reconcile.Reconciler
	alerts  *alert.Pipeline
	scanner *alert.Scanner
	api     API
	onReady []func()
	onError []func(error)

	mu    sync.Mutex
	ctx   context.Context //nolint:containedctx // scope of the current connection's background loads
	board domain.ID
}

// New builds a Session for the websocket endpoint at wsURL. lp must be
// running (or about to run) for the Session to make progress.
func New(lp *loop.Loop, wsURL string, opts ...Option) *Session {
	var cfg settings
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Session{
		loop:    lp,
		store:   reconcile.NewStore(),
		api:     cfg.api,
		onReady: cfg.onReadyHooks,
		onError: cfg.onErrorHooks,
		ctx:     context.Background(),
	}

	s.alerts = alert.NewPipeline(lp, cfg.alertOpts...)
	s.scanner = alert.NewScanner(s.store, s.alerts, lp, cfg.scannerOpts...)

	clientOpts := append([]realtime.Option{
		realtime.WithExecutor(lp),
	}, cfg.clientOpts...)
	clientOpts = append(clientOpts, realtime.WithStateListener(s.stateChanged))
	s.client = realtime.NewClient(wsURL, clientOpts...)

	recOpts := []reconcile.Option{reconcile.WithCommentRefresh(s.reloadComments)}
	for _, obs := range cfg.observers {
		recOpts = append(recOpts, reconcile.WithObserver(obs))
	}
	s.rec = reconcile.New(s.store, s.alerts, s.client.Identity, recOpts...)

	return s
}

func (s *Session) Store() *reconcile.Store  { return s.store }
func (s *Session) Alerts() *alert.Pipeline  { return s.alerts }
func (s *Session) Scanner() *alert.Scanner  { return s.scanner }
func (s *Session) Client() *realtime.Client { return s.client }
func (s *Session) State() realtime.State    { return s.client.State() }
func (s *Session) Identity() string         { return s.client.Identity() }

// Board returns the selected board, if any.
func (s *Session) Board() domain.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board
}

// Connect starts connecting as identity. Blank identities are rejected
// before any network traffic.
func (s *Session) Connect(ctx context.Context, identity string) error {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return realtime.ErrBlankIdentity
	}

	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.scanner.SetIdentity(identity)
	if err := s.client.Connect(ctx, identity, s.ready, s.connectionError); err != nil {
		return fmt.Errorf("session.Session.Connect: %w", err)
	}
	return nil
}

// Disconnect leaves the board and stops the due-date scanner. Alerts on
// display still expire on their own.
func (s *Session) Disconnect() {
	s.client.Disconnect()
	s.scanner.Stop()
}

func (s *Session) stateChanged(st realtime.State) {
	log.Debug().Stringer("state", st).Msg("session state")
	s.scanner.SetConnected(st == realtime.StateConnected)
}

func (s *Session) ready() {
	identity := s.client.Identity()

	for _, topic := range []string{TopicTasks, TopicBoards, TopicUsers, TopicChat} {
		s.client.Subscribe(topic, s.apply)
	}
	if board := s.Board(); !board.IsZero() {
		s.client.Subscribe(BoardTopic(board), s.apply)
	}
	s.client.Send(DestUserJoin, identity)

	s.alerts.Raise(fmt.Sprintf("Welcome %s! You're now connected.", identity), alert.SeveritySuccess)
	log.Info().Str("identity", identity).Msg("session connected")

	for _, fn := range s.onReady {
		fn()
	}

	s.bulkLoad(identity, s.Board())
}

func (s *Session) connectionError(err error) {
	log.Error().Err(err).Msg("session connection error")
	s.alerts.Raise("Connection error occurred", alert.SeverityError)
	for _, fn := range s.onError {
		fn(err)
	}
}

func (s *Session) apply(ev event.Event) { s.rec.Apply(ev) }

func (s *Session) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// bulkLoad fetches boards and tasks off the loop and applies the results
// on it.
func (s *Session) bulkLoad(identity string, board domain.ID) {
	if s.api == nil {
		return
	}
	ctx := s.context()

	go func() {
		boards, err := s.api.ListUserBoards(ctx, identity)
		if err != nil {
			log.Warn().Err(err).Msg("load boards")
		} else {
			s.loop.Go(func() { s.store.ReplaceBoards(boards) })
		}

		var tasks []domain.Task
		if board.IsZero() {
			tasks, err = s.api.ListTasks(ctx)
		} else {
			tasks, err = s.api.ListBoardTasks(ctx, board)
		}
		if err != nil {
			log.Warn().Err(err).Msg("load tasks")
			return
		}
		s.loop.Go(func() { s.store.ReplaceTasks(tasks) })
	}()
}

func (s *Session) reloadComments(task domain.ID) {
	if s.api == nil {
		return
	}
	ctx := s.context()

	go func() {
		comments, err := s.api.ListTaskComments(ctx, task)
		if err != nil {
			log.Warn().Err(err).Str("task_id", task.String()).Msg("load comments")
			return
		}
		s.loop.Go(func() { s.store.ReplaceComments(task, comments) })
	}()
}
