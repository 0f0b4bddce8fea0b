package realtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopTransport struct{}

func (nopTransport) Read(ctx context.Context) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
func (nopTransport) Write(context.Context, []byte) error { return nil }
func (nopTransport) Close() error                        { return nil }

func newTestConnection(t *testing.T, queue int) *connection {
	t.Helper()
	ctx, cancel := context.WithCancel(testContext(t))
	t.Cleanup(cancel)
	return &connection{ctx: ctx, cancel: cancel, out: make(chan []byte, queue)}
}

func TestConnection_Attach(t *testing.T) {
	t.Parallel()

	t.Run("first frame queued before the connection opens", func(t *testing.T) {
		t.Parallel()
		cn := newTestConnection(t, 4)

		assert.False(t, cn.isOpen())

		require.True(t, cn.attach(nopTransport{}, []byte("CONNECT")))
		assert.True(t, cn.isOpen())
		require.True(t, cn.enqueue([]byte("SUBSCRIBE")))

		assert.Equal(t, "CONNECT", string(<-cn.out))
		assert.Equal(t, "SUBSCRIBE", string(<-cn.out))
	})

	t.Run("closed connection refuses", func(t *testing.T) {
		t.Parallel()
		cn := newTestConnection(t, 4)
		cn.mu.Lock()
		cn.closed = true
		cn.mu.Unlock()

		assert.False(t, cn.attach(nopTransport{}, []byte("CONNECT")))
		assert.False(t, cn.isOpen())
		assert.Empty(t, cn.out)
	})

	t.Run("no room for the first frame", func(t *testing.T) {
		t.Parallel()
		cn := newTestConnection(t, 1)
		cn.out <- []byte("stale")

		assert.False(t, cn.attach(nopTransport{}, []byte("CONNECT")))
		assert.False(t, cn.isOpen())
	})
}

func TestWithOutboundQueue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		n    int
		want int
	}{
		{name: "positive kept", n: 8, want: 8},
		{name: "one kept", n: 1, want: 1},
		{name: "zero keeps default", n: 0, want: DefaultOutboundQueue},
		{name: "negative keeps default", n: -3, want: DefaultOutboundQueue},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := NewClient("ws://board.test/ws", WithOutboundQueue(tc.n))
			assert.Equal(t, tc.want, c.outQueue)
		})
	}
}
