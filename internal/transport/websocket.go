package transport

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// DialWS opens a WebSocket-carried connection to url. The venue speaks the
// same newline-delimited JSON frames over it, one frame per message.
func DialWS(ctx context.Context, url string, handshakeTimeout time.Duration) (Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}

	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial ws %s: %w", url, err)
	}

	c := &wsConn{
		ws:     ws,
		frames: make(chan []byte),
		done:   make(chan struct{}),
	}
	go c.readPump()
	return c, nil
}

// wsConn adapts a message-oriented WebSocket to the Conn byte stream.
// Each inbound message is surfaced with a trailing delimiter so the frame
// scanner treats both carriers identically.
//
// A pump goroutine owns ReadMessage and hands messages over a channel;
// Read applies its deadline to that hand-off alone. gorilla fails the
// connection for good once a deadline expires inside ReadMessage, which
// would break the deadline-as-poll-tick contract the channels rely on.
type wsConn struct {
	ws *websocket.Conn

	writeMu sync.Mutex

	// frames carries one delimiter-terminated message per element; the
	// pump closes it when the socket dies.
	frames chan []byte

	mu       sync.Mutex
	readErr  error
	deadline time.Time

	// leftover holds undelivered bytes of the current inbound message.
	leftover []byte

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func (c *wsConn) readPump() {
	defer close(c.frames)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.mu.Lock()
			c.readErr = err
			c.mu.Unlock()
			return
		}
		select {
		case c.frames <- append(data, '\n'):
		case <-c.done:
			return
		}
	}
}

func (c *wsConn) Read(p []byte) (int, error) {
	if len(c.leftover) == 0 {
		var expire <-chan time.Time
		c.mu.Lock()
		deadline := c.deadline
		c.mu.Unlock()
		if !deadline.IsZero() {
			wait := time.Until(deadline)
			if wait <= 0 {
				return 0, os.ErrDeadlineExceeded
			}
			timer := time.NewTimer(wait)
			defer timer.Stop()
			expire = timer.C
		}

		select {
		case frame, ok := <-c.frames:
			if !ok {
				return 0, c.readError()
			}
			c.leftover = frame
		case <-expire:
			// The pump keeps running; the next Read simply waits again.
			return 0, os.ErrDeadlineExceeded
		}
	}

	n := copy(p, c.leftover)
	c.leftover = c.leftover[n:]
	return n, nil
}

func (c *wsConn) readError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return c.readErr
	}
	return ErrClosed
}

func (c *wsConn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.WriteMessage(websocket.TextMessage, bytes.TrimRight(p, "\n")); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	c.deadline = t
	c.mu.Unlock()
	return nil
}

func (c *wsConn) RemoteAddr() net.Addr {
	return c.ws.RemoteAddr()
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.writeMu.Unlock()
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}
