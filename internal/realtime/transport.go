package realtime

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
)

// Transport is a persistent, ordered, message-oriented byte stream.
type Transport interface {
	// Read blocks for the next delivery.
	Read(ctx context.Context) ([]byte, error)
	// Write sends one delivery.
	Write(ctx context.Context, p []byte) error
	// Close tears the stream down. Pending reads return an error.
	Close() error
}

// Dialer opens transports.
type Dialer interface {
	Dial(ctx context.Context, url string) (Transport, error)
}

// WebSocketDialer dials text websockets with coder/websocket.
type WebSocketDialer struct {
	HTTPClient *http.Client
	Header     http.Header
	// ReadLimit caps a single inbound message. Zero keeps the library default.
	ReadLimit int64
}

// Dial opens a websocket to url.
func (d *WebSocketDialer) Dial(ctx context.Context, url string) (Transport, error) {
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{ //nolint:bodyclose // closed by the websocket library
		HTTPClient: d.HTTPClient,
		HTTPHeader: d.Header,
	})
	if err != nil {
		return nil, fmt.Errorf("realtime.WebSocketDialer.Dial: %w", err)
	}
	if d.ReadLimit > 0 {
		conn.SetReadLimit(d.ReadLimit)
	}
	return &wsTransport{conn: conn}, nil
}

type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) Read(ctx context.Context) ([]byte, error) {
	_, p, err := t.conn.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("realtime.wsTransport.Read: %w", err)
	}
	return p, nil
}

func (t *wsTransport) Write(ctx context.Context, p []byte) error {
	if err := t.conn.Write(ctx, websocket.MessageText, p); err != nil {
		return fmt.Errorf("realtime.wsTransport.Write: %w", err)
	}
	return nil
}

func (t *wsTransport) Close() error {
	err := t.conn.Close(websocket.StatusNormalClosure, "client closed")
	if err != nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
		return fmt.Errorf("realtime.wsTransport.Close: %w", err)
	}
	return nil
}
