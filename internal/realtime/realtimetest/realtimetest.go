// Package realtimetest provides in-memory transports for exercising
// realtime.Client without a network.
package realtimetest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/gosuda/taskboard/internal/realtime"
)

// ErrClosed is returned by a closed Transport.
var ErrClosed = errors.New("realtimetest: transport closed") //nolint:gochecknoglobals // sentinel error

// Transport is a realtime.Transport whose inbound side is fed by Deliver
// and whose writes are recorded.
type Transport struct {
	in chan []byte

	mu       sync.Mutex
	writes   []string
	closed   bool
	closedCh chan struct{}
	readErr  chan error
}

// NewTransport creates an open Transport.
func NewTransport() *Transport {
	return &Transport{
		in:       make(chan []byte, 16),
		closedCh: make(chan struct{}),
		readErr:  make(chan error, 1),
	}
}

func (f *Transport) Read(ctx context.Context) ([]byte, error) {
	select {
	case p := <-f.in:
		return p, nil
	case err := <-f.readErr:
		return nil, err
	case <-f.closedCh:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *Transport) Write(_ context.Context, p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	f.writes = append(f.writes, string(p))
	return nil
}

func (f *Transport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.closedCh)
	}
	return nil
}

// Deliver queues s as one inbound transport message.
func (f *Transport) Deliver(s string) { f.in <- []byte(s) }

// Fail makes the next Read return err.
func (f *Transport) Fail(err error) { f.readErr <- err }

// Written returns every write so far, in order.
func (f *Transport) Written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.writes...)
}

// WrittenWithPrefix returns the writes starting with prefix.
func (f *Transport) WrittenWithPrefix(prefix string) []string {
	var out []string
	for _, w := range f.Written() {
		if strings.HasPrefix(w, prefix) {
			out = append(out, w)
		}
	}
	return out
}

func (f *Transport) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Dialer hands out a fresh Transport per Dial, or Err when set.
type Dialer struct {
	mu         sync.Mutex
	Err        error
	transports []*Transport
}

func (d *Dialer) Dial(context.Context, string) (realtime.Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return nil, d.Err
	}
	t := NewTransport()
	d.transports = append(d.transports, t)
	return t, nil
}

// Count reports how many transports were dialled.
func (d *Dialer) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.transports)
}

// Last returns the most recent transport, or nil.
func (d *Dialer) Last() *Transport {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.transports) == 0 {
		return nil
	}
	return d.transports[len(d.transports)-1]
}

var _ realtime.Dialer = (*Dialer)(nil)
