package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"
)

// ErrClosed is returned for operations on a closed Conn.
var ErrClosed = errors.New("transport closed")

// Conn is one bidirectional stream socket. Implementations are safe for
// one concurrent reader and one concurrent writer; Close is idempotent.
type Conn interface {
	io.ReadWriteCloser

	// SetReadDeadline bounds the next Read. Pass the zero time to clear.
	SetReadDeadline(t time.Time) error

	// RemoteAddr reports the peer address for diagnostics.
	RemoteAddr() net.Addr
}

// Dial opens a TCP connection to host:port, wrapped in TLS when encrypted
// is set. The context bounds connection establishment only.
func Dial(ctx context.Context, host string, port int, encrypted bool, timeout time.Duration) (Conn, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	dialer := &net.Dialer{Timeout: timeout}

	var (
		nc  net.Conn
		err error
	)
	if encrypted {
		td := &tls.Dialer{NetDialer: dialer}
		nc, err = td.DialContext(ctx, "tcp", addr)
	} else {
		nc, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &tcpConn{Conn: nc}, nil
}

// tcpConn makes Close idempotent over a raw net.Conn.
type tcpConn struct {
	net.Conn

	closeOnce sync.Once
	closeErr  error
}

func (c *tcpConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.Conn.Close()
	})
	return c.closeErr
}

// IsTimeout reports whether err is a read-deadline expiry.
func IsTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// IsClosed reports whether err means the peer or this side closed the
// stream.
func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}
