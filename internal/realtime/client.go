// Package realtime owns the board's websocket session: it frames commands,
// tracks connection state, and routes inbound MESSAGE frames to per-topic
// handlers.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/taskboard/internal/event"
	"github.com/gosuda/taskboard/internal/stomp"
)

var (
	// ErrBlankIdentity is returned when connecting without a display name.
	ErrBlankIdentity = errors.New("realtime: identity must not be blank") //nolint:gochecknoglobals // sentinel error
	// ErrNotConnected is returned by callers that need an open transport.
	ErrNotConnected = errors.New("realtime: not connected") //nolint:gochecknoglobals // sentinel error
)

// Destination used to announce departure on disconnect.
const DestinationUserLeave = "/app/user.leave"

// DefaultOutboundQueue is how many frames may wait for the writer.
const DefaultOutboundQueue = 64

// State is the connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	default:
		return "UNKNOWN"
	}
}

// Executor runs callbacks. *loop.Loop satisfies it.
type Executor interface {
	Post(fn func()) error
}

type inlineExecutor struct{}

func (inlineExecutor) Post(fn func()) error {
	fn()
	return nil
}

// Option configures optional Client parameters.
type Option func(*Client)

// WithDialer replaces the websocket dialer.
func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithExecutor routes inbound frames and callbacks through e.
func WithExecutor(e Executor) Option {
	return func(c *Client) { c.exec = e }
}

// WithCloseGrace sets how long disconnect waits before closing the
// transport so the leave frame can flush.
func WithCloseGrace(d time.Duration) Option {
	return func(c *Client) { c.closeGrace = d }
}

// WithHeartBeat sets the heart-beat header advertised in CONNECT.
func WithHeartBeat(hb string) Option {
	return func(c *Client) { c.heartBeat = hb }
}

// WithAcceptVersion sets the accept-version header advertised in CONNECT.
func WithAcceptVersion(v string) Option {
	return func(c *Client) { c.acceptVersion = v }
}

// WithStateListener registers fn to observe state transitions.
func WithStateListener(fn func(State)) Option {
	return func(c *Client) { c.onState = fn }
}

// WithOutboundQueue sets how many frames may wait for the writer. Values
// below one keep the default.
func WithOutboundQueue(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.outQueue = n
		}
	}
}

// Client is the connection lifecycle manager. At most one transport is live
// per Client; connecting again replaces it.
type Client struct {
	url           string
	dialer        Dialer
	exec          Executor
	registry      *Registry
	closeGrace    time.Duration
	heartBeat     string
	acceptVersion string
	outQueue      int
	onState       func(State)

	mu       sync.Mutex
	state    State
	identity string
	conn     *connection
}

// NewClient creates a Client for the websocket endpoint at url.
func NewClient(url string, opts ...Option) *Client {
	c := &Client{
		url:           url,
		dialer:        &WebSocketDialer{},
		exec:          inlineExecutor{},
		registry:      NewRegistry(),
		closeGrace:    100 * time.Millisecond,
		heartBeat:     "10000,10000",
		acceptVersion: "1.1,1.0",
		outQueue:      DefaultOutboundQueue,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether the server has acknowledged CONNECT.
func (c *Client) IsConnected() bool { return c.State() == StateConnected }

// Identity returns the display name given to the last Connect.
func (c *Client) Identity() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// Registry exposes the subscription table.
func (c *Client) Registry() *Registry { return c.registry }

// Connect opens a transport and starts the CONNECT handshake. It returns
// immediately; onReady fires once the server acknowledges, onError fires
// at most once if the transport fails. A previous connection is closed and
// its subscriptions are dropped.
func (c *Client) Connect(ctx context.Context, identity string, onReady func(), onError func(error)) error {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return ErrBlankIdentity
	}

	connCtx, cancel := context.WithCancel(ctx)
	conn := &connection{
		ctx:     connCtx,
		cancel:  cancel,
		out:     make(chan []byte, c.outQueue),
		onReady: onReady,
		onError: onError,
	}

	c.mu.Lock()
	prev := c.conn
	c.conn = conn
	c.identity = identity
	c.state = StateConnecting
	c.mu.Unlock()

	if prev != nil {
		c.registry.Clear()
		prev.close()
	}
	c.notifyState(StateConnecting)

	go c.run(conn)
	return nil
}

// Subscribe registers handler for topic. The SUBSCRIBE frame is only sent
// when the transport is open; otherwise the registration is kept locally
// and nothing goes on the wire. It reports whether a frame was queued.
func (c *Client) Subscribe(topic string, handler Handler) bool {
	c.registry.Register(topic, handler)

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil || !conn.isOpen() {
		log.Debug().Str("destination", topic).Msg("subscribe recorded without wire frame: transport not open")
		return false
	}

	frame := stomp.Encode(stomp.Frame{
		Command: stomp.CommandSubscribe,
		Headers: stomp.Headers{
			{Key: stomp.HeaderID, Value: "sub-" + uuid.NewString()},
			{Key: stomp.HeaderDestination, Value: topic},
		},
	})
	return conn.enqueue(frame)
}

// Send frames payload as a SEND to topic. Strings and byte slices go out
// verbatim; anything else is JSON-encoded. It returns false without touching
// the wire when the transport is not open.
func (c *Client) Send(topic string, payload any) bool {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil || !conn.isOpen() {
		return false
	}

	body, err := encodeBody(payload)
	if err != nil {
		log.Warn().Err(err).Str("destination", topic).Msg("send: encode payload")
		return false
	}

	frame := stomp.Encode(stomp.Frame{
		Command: stomp.CommandSend,
		Headers: stomp.Headers{{Key: stomp.HeaderDestination, Value: topic}},
		Body:    body,
	})
	return conn.enqueue(frame)
}

// Disconnect announces departure when an identity is set, then closes the
// transport after the grace delay. The registry is cleared and the state
// becomes DISCONNECTED before Disconnect returns.
func (c *Client) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	identity := c.identity
	wasState := c.state
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	c.registry.Clear()

	if conn != nil {
		if identity != "" && conn.isOpen() {
			conn.enqueue(stomp.Encode(stomp.Frame{
				Command: stomp.CommandSend,
				Headers: stomp.Headers{{Key: stomp.HeaderDestination, Value: DestinationUserLeave}},
				Body:    identity,
			}))
			time.AfterFunc(c.closeGrace, conn.close)
		} else {
			conn.close()
		}
	}

	if wasState != StateDisconnected {
		c.notifyState(StateDisconnected)
	}
}

func (c *Client) notifyState(s State) {
	if c.onState != nil {
		c.onState(s)
	}
}

func (c *Client) current(conn *connection) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn == conn
}

// run dials, starts the writer, sends CONNECT and then reads until the
// transport fails or the connection is replaced.
func (c *Client) run(conn *connection) {
	t, err := c.dialer.Dial(conn.ctx, c.url)
	if err != nil {
		c.post(func() { c.fail(conn, err) })
		return
	}
	connect := stomp.Encode(stomp.Frame{
		Command: stomp.CommandConnect,
		Headers: stomp.Headers{
			{Key: stomp.HeaderAcceptVersion, Value: c.acceptVersion},
			{Key: stomp.HeaderHeartBeat, Value: c.heartBeat},
		},
	})
	if !c.current(conn) || !conn.attach(t, connect) {
		_ = t.Close()
		return
	}
	log.Debug().Str("url", c.url).Msg("transport open")

	go conn.writeLoop()

	splitter := stomp.NewSplitter(0)
	for {
		p, err := t.Read(conn.ctx)
		if err != nil {
			c.post(func() { c.fail(conn, err) })
			return
		}

		raws, splitErr := splitter.Feed(p)
		if splitErr != nil {
			log.Warn().Err(splitErr).Msg("discarding oversized partial frame")
		}
		for _, raw := range raws {
			f, decErr := stomp.Decode(raw)
			if decErr != nil {
				log.Warn().Err(decErr).Msg("discarding malformed frame")
				continue
			}
			c.post(func() { c.handleFrame(conn, f) })
		}
	}
}

func (c *Client) post(fn func()) {
	if err := c.exec.Post(fn); err != nil {
		log.Debug().Err(err).Msg("executor rejected callback")
	}
}

func (c *Client) handleFrame(conn *connection, f stomp.Frame) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	state := c.state
	if f.Command == stomp.CommandConnected && state == StateConnecting {
		c.state = StateConnected
	}
	c.mu.Unlock()

	switch f.Command {
	case stomp.CommandConnected:
		if state != StateConnecting {
			return
		}
		log.Info().Msg("connected")
		c.notifyState(StateConnected)
		if hb, ok := f.Headers.Get(stomp.HeaderHeartBeat); ok {
			if every := negotiateHeartBeat(c.heartBeat, hb); every > 0 {
				go conn.heartbeatLoop(every)
			}
		}
		if conn.onReady != nil {
			conn.onReady()
		}
	case stomp.CommandMessage:
		if state != StateConnected {
			return
		}
		c.dispatch(f)
	case stomp.CommandError:
		msg, _ := f.Headers.Get(stomp.HeaderMessage)
		log.Warn().Str("message", msg).Str("body", f.Body).Msg("server error frame")
	default:
		log.Debug().Str("command", string(f.Command)).Msg("ignoring frame")
	}
}

func (c *Client) dispatch(f stomp.Frame) {
	dest, _ := f.Headers.Get(stomp.HeaderDestination)
	if dest == "" {
		log.Warn().Msg("discarding message without destination")
		return
	}
	if _, ok := c.registry.Get(dest); !ok {
		log.Debug().Str("destination", dest).Msg("no handler for destination")
		return
	}

	ev, err := event.Decode([]byte(f.Body))
	if err != nil {
		log.Warn().Err(err).Str("destination", dest).Msg("discarding undecodable message")
		return
	}
	c.registry.Dispatch(dest, ev)
}

// fail handles a transport error for conn. Errors on a connection that has
// already been replaced or disconnected are ignored.
func (c *Client) fail(conn *connection, err error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	conn.close()
	log.Error().Err(err).Str("url", c.url).Msg("transport error")
	c.notifyState(StateDisconnected)

	if conn.onError != nil {
		conn.onError(err)
	}
}

func encodeBody(payload any) (string, error) {
	switch v := payload.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case json.RawMessage:
		return string(v), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}
