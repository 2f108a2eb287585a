package xapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/venuewire/xapi/internal/command"
	"github.com/venuewire/xapi/internal/config"
	"github.com/venuewire/xapi/internal/creds"
	"github.com/venuewire/xapi/internal/keepalive"
	"github.com/venuewire/xapi/internal/stream"
	"github.com/venuewire/xapi/internal/transport"
	"github.com/venuewire/xapi/internal/version"
	"github.com/venuewire/xapi/internal/wire"
)

// Errors
var (
	// ErrNotAuthenticated means the session is not in the authenticated
	// state; the operation needs a successful Login first.
	ErrNotAuthenticated = errors.New("session not authenticated")

	// ErrSessionActive means Login was called on a session that already
	// holds connections. Sessions are single-use; build a new one.
	ErrSessionActive = errors.New("session already active")
)

// Re-exported aliases so callers rarely need the internal packages.
type (
	Request       = wire.Request
	Response      = wire.Response
	Record        = wire.Record
	APIError      = wire.APIError
	ProtocolError = wire.ProtocolError
	Subscription  = stream.Subscription
	Credentials   = creds.Credentials
	Config        = config.Config
	Environment   = config.Environment
)

const (
	EnvironmentDemo = config.EnvironmentDemo
	EnvironmentLive = config.EnvironmentLive
)

var (
	ErrTimeout               = command.ErrTimeout
	ErrDesynchronized        = command.ErrDesynchronized
	ErrDuplicateSubscription = stream.ErrDuplicateSubscription
)

// State is the session lifecycle phase.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticated
	StateDegraded
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateDegraded:
		return "degraded"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Session is one authenticated connection pair to the venue.
type Session struct {
	cfg    *config.Config
	creds  creds.Credentials
	logger *slog.Logger

	mu              sync.Mutex
	state           State
	cmd             *command.Channel
	stream          *stream.Channel
	streamConn      transport.Conn
	ka              *keepalive.Scheduler
	streamSessionID string

	teardownOnce sync.Once
}

// New builds a disconnected session. Call Login to connect.
func New(cfg *config.Config, cr creds.Credentials, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		cfg:    cfg,
		creds:  cr,
		logger: logger.With("environment", cr.Environment),
		state:  StateDisconnected,
	}
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// StreamSessionID returns the id issued at login, empty before then.
func (s *Session) StreamSessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamSessionID
}

// link holds the connected channels of a successful handshake before
// they are installed on the session.
type link struct {
	cmd        *command.Channel
	stream     *stream.Channel
	streamConn transport.Conn
	ssid       string
	addr       net.Addr
}

// Login dials both sockets and authenticates. Any failure, venue
// rejection or transport, closes the session for good; sessions are
// single-use and the caller builds a fresh one to retry. Credential
// rejections are returned as an *APIError.
//
// The lock is not held while dialing, so State and StreamSessionID stay
// responsive during a slow handshake.
func (s *Session) Login(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return fmt.Errorf("%w: state %s", ErrSessionActive, s.state)
	}
	s.state = StateConnecting
	s.mu.Unlock()

	l, err := s.handshake(ctx)
	if err != nil {
		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	if s.state != StateConnecting {
		// Closed concurrently while the handshake was in flight.
		state := s.state
		s.mu.Unlock()
		l.stream.Stop()
		l.streamConn.Close()
		l.cmd.Close()
		return fmt.Errorf("login: session %s during handshake", state)
	}

	ka := keepalive.New(keepalive.Config{
		Interval:     s.cfg.Session.PingInterval,
		PingTimeout:  s.cfg.Session.RequestTimeout,
		FailureLimit: s.cfg.Session.KeepaliveFailureLimit,
	}, l.cmd, l.stream, s.degrade, s.logger.With("component", "keepalive"))
	ka.Start()

	s.cmd = l.cmd
	s.stream = l.stream
	s.streamConn = l.streamConn
	s.ka = ka
	s.streamSessionID = l.ssid
	s.state = StateAuthenticated
	s.mu.Unlock()

	s.logger.Info("session authenticated",
		"account", s.creds.AccountID,
		"venue", l.addr,
	)
	return nil
}

// handshake dials the command socket, authenticates, and dials the
// stream socket, returning the connected pair with the reader started.
func (s *Session) handshake(ctx context.Context) (*link, error) {
	dialCommand, dialStream, err := s.dialers()
	if err != nil {
		return nil, err
	}

	cmdConn, err := dialCommand(ctx)
	if err != nil {
		return nil, err
	}
	cmd := command.New(cmdConn, s.logger.With("channel", "command"))

	resp, err := cmd.Execute(wire.Request{
		Command: "login",
		Arguments: map[string]any{
			"userId":   s.creds.AccountID,
			"password": s.creds.Password,
			"appName":  "xapi-go/" + version.Version,
		},
	}, s.cfg.Session.RequestTimeout)
	if err != nil {
		cmd.Close()
		return nil, fmt.Errorf("login: %w", err)
	}
	if !resp.OK() {
		// Credential rejections are terminal for this session.
		cmd.Close()
		return nil, fmt.Errorf("login: %w", resp.Err())
	}
	if resp.StreamSessionID == "" {
		cmd.Close()
		return nil, &wire.ProtocolError{Reason: "login response missing streamSessionId"}
	}

	streamConn, err := dialStream(ctx)
	if err != nil {
		cmd.Close()
		return nil, fmt.Errorf("dial stream channel: %w", err)
	}

	str := stream.New(streamConn, stream.Config{
		StreamSessionID: resp.StreamSessionID,
		BufferCapacity:  s.cfg.Session.BufferCapacity,
		PollInterval:    s.cfg.Session.ReadPollInterval,
	}, s.degrade, s.logger.With("channel", "stream"))
	str.Start()

	return &link{
		cmd:        cmd,
		stream:     str,
		streamConn: streamConn,
		ssid:       resp.StreamSessionID,
		addr:       cmdConn.RemoteAddr(),
	}, nil
}

// dialers picks the configured carrier for both channel sockets.
func (s *Session) dialers() (dialCommand, dialStream func(context.Context) (transport.Conn, error), err error) {
	v := s.cfg.Venue
	timeout := s.cfg.Session.DialTimeout

	if v.Transport == config.TransportWebSocket {
		url, streamURL, err := v.WSEndpoints(s.creds.Environment)
		if err != nil {
			return nil, nil, err
		}
		dialCommand = func(ctx context.Context) (transport.Conn, error) {
			return transport.DialWS(ctx, url, timeout)
		}
		dialStream = func(ctx context.Context) (transport.Conn, error) {
			return transport.DialWS(ctx, streamURL, timeout)
		}
		return dialCommand, dialStream, nil
	}

	port, streamPort, err := v.Endpoints(s.creds.Environment)
	if err != nil {
		return nil, nil, err
	}
	encrypted := !v.Insecure
	dialCommand = func(ctx context.Context) (transport.Conn, error) {
		return transport.Dial(ctx, v.Host, port, encrypted, timeout)
	}
	dialStream = func(ctx context.Context) (transport.Conn, error) {
		return transport.Dial(ctx, v.Host, streamPort, encrypted, timeout)
	}
	return dialCommand, dialStream, nil
}

// Execute sends one command and waits for its response. A response with
// status "error" is returned with a nil error; transport timeouts degrade
// the session.
func (s *Session) Execute(cmdName string, arguments map[string]any) (*Response, error) {
	s.mu.Lock()
	if s.state != StateAuthenticated {
		s.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", cmdName, ErrNotAuthenticated)
	}
	cmd := s.cmd
	timeout := s.cfg.Session.RequestTimeout
	s.mu.Unlock()

	resp, err := cmd.Execute(wire.Request{Command: cmdName, Arguments: arguments}, timeout)
	if err != nil {
		// Timeouts and protocol faults leave the channel desynchronized;
		// only a fresh session recovers from that.
		if cmd.Desynchronized() {
			s.degrade(err)
		}
		return nil, err
	}
	return resp, nil
}

// Subscribe opens a stream subscription. The returned Subscription's
// buffer fills in the background; consume it with Drain.
func (s *Session) Subscribe(name string, params map[string]any) (*Subscription, error) {
	s.mu.Lock()
	if s.state != StateAuthenticated {
		s.mu.Unlock()
		return nil, fmt.Errorf("subscribe %s: %w", name, ErrNotAuthenticated)
	}
	str := s.stream
	s.mu.Unlock()

	return str.Subscribe(name, params)
}

// Unsubscribe closes a subscription and discards its buffered records.
func (s *Session) Unsubscribe(sub *Subscription) error {
	s.mu.Lock()
	str := s.stream
	s.mu.Unlock()

	if str == nil {
		return nil
	}
	return str.Unsubscribe(sub)
}

// Logout sends the logout command best-effort, then closes the session.
// Safe to call in any state, any number of times.
func (s *Session) Logout() error {
	s.mu.Lock()
	cmd := s.cmd
	active := s.state == StateAuthenticated || s.state == StateDegraded
	s.mu.Unlock()

	if active && cmd != nil {
		// The venue drops the connection either way; ignore rejections.
		if _, err := cmd.Execute(wire.Request{Command: "logout"}, s.cfg.Session.RequestTimeout); err != nil {
			s.logger.Debug("logout command failed", "error", err)
		}
	}
	return s.Close()
}

// Close releases both sockets, the keepalive loop, and every
// subscription buffer. Idempotent.
func (s *Session) Close() error {
	s.teardown()

	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()
	return nil
}

// degrade marks the session degraded and schedules teardown. Called from
// the keepalive loop, the stream reader, and command timeouts; all of
// those return immediately after, so teardown's joins cannot deadlock.
func (s *Session) degrade(cause error) {
	s.mu.Lock()
	if s.state != StateAuthenticated {
		s.mu.Unlock()
		return
	}
	s.state = StateDegraded
	s.mu.Unlock()

	s.logger.Error("session degraded", "cause", cause)
	go s.teardown()
}

// teardown stops background work before touching sockets: the keepalive
// loop first, then the stream reader, and only then the connections they
// were using.
func (s *Session) teardown() {
	s.teardownOnce.Do(func() {
		s.mu.Lock()
		cmd, str, streamConn, ka := s.cmd, s.stream, s.streamConn, s.ka
		s.mu.Unlock()

		if ka != nil {
			ka.Stop()
		}
		if str != nil {
			str.Stop()
		}
		if streamConn != nil {
			streamConn.Close()
		}
		if cmd != nil {
			cmd.Close()
		}
		s.logger.Info("session closed")
	})
}
