package command

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/venuewire/xapi/internal/transport"
	"github.com/venuewire/xapi/internal/wire"
)

// Errors
var (
	// ErrTimeout means no response arrived within the deadline. The
	// channel is desynchronized afterwards.
	ErrTimeout = errors.New("command timeout")

	// ErrDesynchronized means a previous timeout or protocol fault broke
	// the request/response pairing; only a fresh login clears it.
	ErrDesynchronized = errors.New("command channel desynchronized")
)

// Channel is the synchronous command channel over one socket.
type Channel struct {
	conn    transport.Conn
	scanner *wire.Scanner
	logger  *slog.Logger

	// mu spans send through receive: one request in flight at a time.
	mu       sync.Mutex
	desynced bool

	lastActivity atomic.Int64 // unix nanos of the last completed round trip
}

// New wraps an established connection.
func New(conn transport.Conn, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Channel{
		conn:    conn,
		scanner: wire.NewScanner(conn),
		logger:  logger,
	}
	c.touch()
	return c
}

// Execute sends req and blocks until its response arrives or timeout
// elapses. A response with status "error" is returned with a nil error;
// callers read the rejection from the response itself.
func (c *Channel) Execute(req wire.Request, timeout time.Duration) (*wire.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.desynced {
		return nil, fmt.Errorf("%s: %w", req.Command, ErrDesynchronized)
	}

	if req.CustomTag == "" {
		req.CustomTag = uuid.NewString()
	}

	frame, err := req.Encode()
	if err != nil {
		return nil, err
	}
	if _, err := c.conn.Write(frame); err != nil {
		c.desynced = true
		return nil, fmt.Errorf("send %s: %w", req.Command, err)
	}

	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		c.desynced = true
		return nil, fmt.Errorf("arm deadline for %s: %w", req.Command, err)
	}

	raw, err := c.scanner.Next()
	if err != nil {
		c.desynced = true
		if transport.IsTimeout(err) {
			c.logger.Warn("command timed out", "command", req.Command, "timeout", timeout)
			return nil, fmt.Errorf("%s: %w", req.Command, ErrTimeout)
		}
		return nil, fmt.Errorf("receive %s: %w", req.Command, err)
	}

	resp, push, err := wire.Decode(raw)
	if err != nil {
		c.desynced = true
		return nil, err
	}
	if push != nil {
		c.desynced = true
		return nil, &wire.ProtocolError{Reason: "push frame on command channel", Frame: raw}
	}
	if resp.CustomTag != "" && resp.CustomTag != req.CustomTag {
		c.desynced = true
		return nil, &wire.ProtocolError{Reason: "response tag mismatch", Frame: raw}
	}

	c.touch()
	if !resp.OK() {
		c.logger.Debug("command rejected",
			"command", req.Command,
			"error_code", resp.ErrorCode,
		)
	}
	return resp, nil
}

// Ping issues the reserved no-op command. Used only by the keepalive
// scheduler.
func (c *Channel) Ping(timeout time.Duration) error {
	resp, err := c.Execute(wire.Request{Command: "ping"}, timeout)
	if err != nil {
		return err
	}
	return resp.Err()
}

// IdleFor reports how long ago the last round trip completed.
func (c *Channel) IdleFor() time.Duration {
	return time.Since(time.Unix(0, c.lastActivity.Load()))
}

// Desynchronized reports whether the channel needs a forced re-login.
func (c *Channel) Desynchronized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.desynced
}

// Close closes the underlying socket. Idempotent.
func (c *Channel) Close() error {
	return c.conn.Close()
}

func (c *Channel) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}
