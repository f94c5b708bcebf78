// Package transport carries bridge envelopes over websockets. The broker
// service accepts relay clients on /runtime and a wallet surface on
// /surface; every websocket text message is one JSON envelope.
package transport

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mrz1836/sigil-bridge/internal/envelope"
	bridgeerr "github.com/mrz1836/sigil-bridge/pkg/errors"
)

const (
	// writeWait bounds a single websocket write.
	writeWait = 10 * time.Second

	// maxMessageSize bounds an inbound envelope.
	maxMessageSize = 1 << 20
)

// ErrClosed is returned for operations on a closed connection.
var ErrClosed = errors.New("transport: connection closed")

// Logger is the logging surface used by the transport.
type Logger interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}

// conn serializes writes to a websocket.
type conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
}

func newConn(ws *websocket.Conn) *conn {
	ws.SetReadLimit(maxMessageSize)
	return &conn{ws: ws, closed: make(chan struct{})}
}

func (c *conn) write(env envelope.Envelope) error {
	data, err := envelope.Marshal(env)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.closed:
		return ErrClosed
	default:
	}

	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// read returns the next raw message. Decoding is left to the caller so a
// malformed envelope does not end the connection.
func (c *conn) read() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	return data, err
}

func (c *conn) close() {
	c.closeOnce.Do(func() {
		close(c.closed)

		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()

		_ = c.ws.Close()
	})
}

func (c *conn) done() <-chan struct{} {
	return c.closed
}

// errorCode maps err onto a wire error code.
func errorCode(err error) string {
	var se *bridgeerr.BridgeError
	if errors.As(err, &se) {
		if _, ok := bridgeerr.Lookup(se.Code); ok {
			return se.Code
		}
	}
	return envelope.CodeHandlerFailed
}

// replyError turns an error reply into the matching sentinel.
func replyError(reply envelope.Envelope) error {
	info := reply.ErrorInfo()
	if se, ok := bridgeerr.Lookup(info.Code); ok {
		if info.Message == "" {
			return se
		}
		return bridgeerr.Wrap(se, "%s", info.Message)
	}
	return bridgeerr.WithDetails(bridgeerr.ErrRequestFailed, map[string]string{
		"code":    info.Code,
		"message": info.Message,
	})
}
