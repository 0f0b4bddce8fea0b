package realtime

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const writeTimeout = 10 * time.Second

// connection is one transport generation. Frames are written in queue order
// by a single writer goroutine so Send and Subscribe never block on I/O.
type connection struct {
	ctx     context.Context //nolint:containedctx // lifetime of this transport
	cancel  context.CancelFunc
	out     chan []byte
	onReady func()
	onError func(error)

	mu        sync.Mutex
	transport Transport
	closed    bool
}

// attach installs the transport with first already queued, so nothing
// sent once the connection reports open can reach the wire ahead of it.
func (cn *connection) attach(t Transport, first []byte) bool {
	cn.mu.Lock()
	defer cn.mu.Unlock()
	if cn.closed {
		return false
	}
	select {
	case cn.out <- first:
	default:
		return false
	}
	cn.transport = t
	return true
}

func (cn *connection) isOpen() bool {
	cn.mu.Lock()
	defer cn.mu.Unlock()
	return cn.transport != nil && !cn.closed
}

// enqueue hands a frame to the writer without blocking. A full queue drops
// the frame.
func (cn *connection) enqueue(frame []byte) bool {
	select {
	case <-cn.ctx.Done():
		return false
	default:
	}
	select {
	case cn.out <- frame:
		return true
	default:
		log.Warn().Msg("outbound queue full, dropping frame")
		return false
	}
}

func (cn *connection) writeLoop() {
	for {
		select {
		case <-cn.ctx.Done():
			return
		case frame := <-cn.out:
			cn.mu.Lock()
			t := cn.transport
			cn.mu.Unlock()
			if t == nil {
				return
			}
			wctx, cancel := context.WithTimeout(cn.ctx, writeTimeout)
			err := t.Write(wctx, frame)
			cancel()
			if err != nil {
				log.Debug().Err(err).Msg("transport write")
				return
			}
		}
	}
}

func (cn *connection) heartbeatLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-cn.ctx.Done():
			return
		case <-ticker.C:
			cn.enqueue([]byte{'\n'})
		}
	}
}

// close cancels the generation and closes its transport. Safe to repeat.
func (cn *connection) close() {
	cn.mu.Lock()
	if cn.closed {
		cn.mu.Unlock()
		return
	}
	cn.closed = true
	t := cn.transport
	cn.mu.Unlock()

	cn.cancel()
	if t != nil {
		if err := t.Close(); err != nil {
			log.Debug().Err(err).Msg("transport close")
		}
	}
}

// negotiateHeartBeat returns how often the client must send heart-beats,
// given its own "cx,cy" header and the server's "sx,sy". Zero disables.
func negotiateHeartBeat(client, server string) time.Duration {
	cx, _, ok := parseHeartBeat(client)
	if !ok {
		return 0
	}
	_, sy, ok := parseHeartBeat(server)
	if !ok || cx == 0 || sy == 0 {
		return 0
	}
	return time.Duration(max(cx, sy)) * time.Millisecond
}

func parseHeartBeat(s string) (int, int, bool) {
	a, b, ok := strings.Cut(s, ",")
	if !ok {
		return 0, 0, false
	}
	x, err := strconv.Atoi(strings.TrimSpace(a))
	if err != nil || x < 0 {
		return 0, 0, false
	}
	y, err := strconv.Atoi(strings.TrimSpace(b))
	if err != nil || y < 0 {
		return 0, 0, false
	}
	return x, y, true
}
