// Package stomp implements the text frame codec spoken over the board's
// websocket: a command line, key:value header lines, a blank line, the body,
// and a NUL terminator.
package stomp

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Terminator ends every frame on the wire.
const Terminator byte = 0x00

var (
	// ErrEmptyFrame is returned for deliveries that contain no command.
	ErrEmptyFrame = errors.New("stomp: empty frame") //nolint:gochecknoglobals // sentinel error
	// ErrMissingSeparator is returned when no blank line separates headers from body.
	ErrMissingSeparator = errors.New("stomp: missing header/body separator") //nolint:gochecknoglobals // sentinel error
	// ErrUnknownCommand is returned for command keywords outside the protocol.
	ErrUnknownCommand = errors.New("stomp: unknown command") //nolint:gochecknoglobals // sentinel error
)

// Command is a frame's leading keyword.
type Command string

const (
	CommandConnect     Command = "CONNECT"
	CommandStomp       Command = "STOMP"
	CommandConnected   Command = "CONNECTED"
	CommandSubscribe   Command = "SUBSCRIBE"
	CommandUnsubscribe Command = "UNSUBSCRIBE"
	CommandSend        Command = "SEND"
	CommandMessage     Command = "MESSAGE"
	CommandReceipt     Command = "RECEIPT"
	CommandError       Command = "ERROR"
	CommandDisconnect  Command = "DISCONNECT"
)

// Known reports whether c is a protocol command.
func (c Command) Known() bool {
	switch c {
	case CommandConnect, CommandStomp, CommandConnected, CommandSubscribe, CommandUnsubscribe,
		CommandSend, CommandMessage, CommandReceipt, CommandError, CommandDisconnect:
		return true
	default:
		return false
	}
}

// Header names used by the client.
const (
	HeaderAcceptVersion = "accept-version"
	HeaderHeartBeat     = "heart-beat"
	HeaderID            = "id"
	HeaderDestination   = "destination"
	HeaderContentLength = "content-length"
	HeaderMessage       = "message"
)

// Header is one key:value line.
type Header struct {
	Key   string
	Value string
}

// Headers keeps header lines in wire order. When a key repeats, the first
// occurrence wins.
type Headers []Header

// Get returns the first value for key.
func (h Headers) Get(key string) (string, bool) {
	for _, kv := range h {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

// Frame is one decoded protocol unit.
type Frame struct {
	Command Command
	Headers Headers
	Body    string
}

// Encode serializes f. SEND frames get a content-length header with the
// body's byte length unless one is already present.
func Encode(f Frame) []byte {
	var buf bytes.Buffer
	buf.Grow(len(f.Command) + len(f.Body) + 64)

	buf.WriteString(string(f.Command))
	buf.WriteByte('\n')

	for _, kv := range f.Headers {
		buf.WriteString(kv.Key)
		buf.WriteByte(':')
		buf.WriteString(kv.Value)
		buf.WriteByte('\n')
	}
	if f.Command == CommandSend {
		if _, ok := f.Headers.Get(HeaderContentLength); !ok {
			buf.WriteString(HeaderContentLength)
			buf.WriteByte(':')
			buf.WriteString(strconv.Itoa(len(f.Body)))
			buf.WriteByte('\n')
		}
	}

	buf.WriteByte('\n')
	buf.WriteString(f.Body)
	buf.WriteByte(Terminator)
	return buf.Bytes()
}

// Decode parses one raw frame. Leading EOLs (heart-beats) are skipped and a
// single trailing terminator is stripped from the body. Header lines split on
// their first colon; lines without a colon are ignored.
func Decode(raw []byte) (Frame, error) {
	s := strings.TrimLeft(string(raw), "\r\n")
	if s == "" || s == string(Terminator) {
		return Frame{}, ErrEmptyFrame
	}

	var (
		f       Frame
		first   = true
		bodyPos = -1
		pos     = 0
	)
	for pos < len(s) {
		end := strings.IndexByte(s[pos:], '\n')
		if end < 0 {
			break
		}
		line := strings.TrimSuffix(s[pos:pos+end], "\r")
		pos += end + 1

		if first {
			f.Command = Command(line)
			first = false
			continue
		}
		if line == "" {
			bodyPos = pos
			break
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		f.Headers = append(f.Headers, Header{Key: key, Value: value})
	}

	if first {
		// No newline at all: a bare command with nothing else.
		f.Command = Command(strings.TrimRight(s, "\r\x00"))
	}
	if !f.Command.Known() {
		return Frame{}, fmt.Errorf("stomp.Decode: %q: %w", truncate(string(f.Command), 32), ErrUnknownCommand)
	}
	if bodyPos < 0 {
		return Frame{}, fmt.Errorf("stomp.Decode: %s: %w", f.Command, ErrMissingSeparator)
	}

	body := s[bodyPos:]
	if n := len(body); n > 0 && body[n-1] == Terminator {
		body = body[:n-1]
	}
	if cl, ok := f.Headers.Get(HeaderContentLength); ok {
		if n, err := strconv.Atoi(cl); err == nil && n >= 0 && n <= len(body) {
			body = body[:n]
		}
	}
	f.Body = body

	return f, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
