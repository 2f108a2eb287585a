package xapi

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/venuewire/xapi/internal/config"
	"github.com/venuewire/xapi/internal/creds"
	"github.com/venuewire/xapi/internal/testserver"
)

func newTestSession(t *testing.T) (*Session, *testserver.Server) {
	t.Helper()
	srv, err := testserver.Start()
	if err != nil {
		t.Fatalf("start test server: %v", err)
	}
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.Venue.Host = srv.Host()
	cfg.Venue.DemoPort = srv.CommandPort()
	cfg.Venue.DemoStreamPort = srv.StreamPort()
	cfg.Venue.Insecure = true
	cfg.Session.RequestTimeout = 200 * time.Millisecond
	cfg.Session.ReadPollInterval = 20 * time.Millisecond
	cfg.Session.PingInterval = time.Minute

	cr := creds.Credentials{
		AccountID:   "11001100",
		Password:    "hunter2",
		Environment: config.EnvironmentDemo,
	}

	s := New(cfg, cr, nil)
	t.Cleanup(func() { s.Close() })
	return s, srv
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestLoginAuthenticates(t *testing.T) {
	s, srv := newTestSession(t)

	if err := s.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if s.State() != StateAuthenticated {
		t.Errorf("state = %s", s.State())
	}
	if s.StreamSessionID() != srv.StreamSessionID() {
		t.Errorf("streamSessionId = %q, want %q", s.StreamSessionID(), srv.StreamSessionID())
	}

	// Second login on the live session is refused.
	if err := s.Login(context.Background()); !errors.Is(err, ErrSessionActive) {
		t.Errorf("second Login = %v, want ErrSessionActive", err)
	}
}

func TestLoginRejectionClosesSession(t *testing.T) {
	s, srv := newTestSession(t)
	srv.RejectLogin("BE005", "userPasswordCheck: invalid login or password")

	err := s.Login(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Login err = %v, want *APIError", err)
	}
	if apiErr.Code != "BE005" {
		t.Errorf("code = %q", apiErr.Code)
	}
	if s.State() != StateClosed {
		t.Errorf("state = %s, want closed", s.State())
	}

	if _, err := s.Execute("getVersion", nil); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("Execute after rejection = %v, want ErrNotAuthenticated", err)
	}
}

func TestLoginDialFailureClosesSession(t *testing.T) {
	s, srv := newTestSession(t)
	srv.Close()

	if err := s.Login(context.Background()); err == nil {
		t.Fatal("expected dial error")
	}
	if s.State() != StateClosed {
		t.Errorf("state = %s, want closed", s.State())
	}
}

func TestExecuteRoundTrip(t *testing.T) {
	s, srv := newTestSession(t)
	srv.RespondWith("getVersion", map[string]any{"version": "2.5"})

	if err := s.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}

	ver, err := s.GetVersion()
	if err != nil {
		t.Fatalf("GetVersion: %v", err)
	}
	if ver != "2.5" {
		t.Errorf("version = %q", ver)
	}
}

func TestExecuteBeforeLogin(t *testing.T) {
	s, _ := newTestSession(t)

	if _, err := s.Execute("getVersion", nil); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("err = %v, want ErrNotAuthenticated", err)
	}
	if _, err := s.Subscribe("TickPrices", map[string]any{"symbol": "EURUSD"}); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("Subscribe err = %v, want ErrNotAuthenticated", err)
	}
}

func TestStreamSubscribeAndDrain(t *testing.T) {
	s, srv := newTestSession(t)

	if err := s.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}

	sub, err := s.StreamTickPrices("EURUSD")
	if err != nil {
		t.Fatalf("StreamTickPrices: %v", err)
	}

	waitFor(t, "subscribe control frame", func() bool { return len(srv.ControlFrames()) >= 1 })
	frame := srv.ControlFrames()[0]
	if frame["command"] != "streamTickPrices" {
		t.Errorf("control command = %v", frame["command"])
	}
	if frame["streamSessionId"] != srv.StreamSessionID() {
		t.Errorf("control streamSessionId = %v", frame["streamSessionId"])
	}

	for i := 1; i <= 5; i++ {
		if err := srv.Push("tickPrices", Record{"symbol": "EURUSD", "seq": i}); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}
	waitFor(t, "5 buffered records", func() bool { return sub.Len() == 5 })

	out := sub.Drain()
	for i, rec := range out {
		if rec["seq"] != float64(i+1) {
			t.Errorf("out[%d] seq = %v, want %d", i, rec["seq"], i+1)
		}
	}

	if err := s.Unsubscribe(sub); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	waitFor(t, "stop control frame", func() bool { return len(srv.ControlFrames()) >= 2 })
	if got := srv.ControlFrames()[1]["command"]; got != "stopTickPrices" {
		t.Errorf("stop command = %v", got)
	}
}

func TestRequestTimeoutDegradesSession(t *testing.T) {
	s, srv := newTestSession(t)
	srv.Silence("getTrades")

	if err := s.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}

	_, err := s.Execute("getTrades", nil)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}

	waitFor(t, "degraded state", func() bool { return s.State() == StateDegraded })
	if _, err := s.Execute("getVersion", nil); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("Execute after degrade = %v, want ErrNotAuthenticated", err)
	}
}

func TestLoginOverWebSocket(t *testing.T) {
	srv := testserver.StartWS()
	t.Cleanup(srv.Close)
	srv.RespondWith("getVersion", map[string]any{"version": "2.5"})

	cfg := config.Default()
	cfg.Venue.Transport = config.TransportWebSocket
	cfg.Venue.WSURL = srv.WSURL()
	cfg.Session.RequestTimeout = 200 * time.Millisecond
	cfg.Session.ReadPollInterval = 20 * time.Millisecond
	cfg.Session.PingInterval = time.Minute

	cr := creds.Credentials{
		AccountID:   "11001100",
		Password:    "hunter2",
		Environment: config.EnvironmentDemo,
	}
	s := New(cfg, cr, nil)
	t.Cleanup(func() { s.Close() })

	if err := s.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if s.State() != StateAuthenticated {
		t.Fatalf("state = %s", s.State())
	}

	ver, err := s.GetVersion()
	if err != nil {
		t.Fatalf("GetVersion: %v", err)
	}
	if ver != "2.5" {
		t.Errorf("version = %q", ver)
	}

	sub, err := s.StreamTickPrices("EURUSD")
	if err != nil {
		t.Fatalf("StreamTickPrices: %v", err)
	}
	waitFor(t, "subscribe control frame", func() bool { return len(srv.ControlFrames()) >= 1 })

	if err := srv.Push("tickPrices", Record{"symbol": "EURUSD", "bid": 1.1}); err != nil {
		t.Fatalf("Push: %v", err)
	}
	waitFor(t, "pushed record", func() bool { return sub.Len() == 1 })
}

func TestStateVisibleWhileConnecting(t *testing.T) {
	s, srv := newTestSession(t)
	srv.Silence("login")

	errCh := make(chan error, 1)
	go func() { errCh <- s.Login(context.Background()) }()

	// The login round trip is stalled until the request timeout; state
	// queries must answer promptly meanwhile.
	waitFor(t, "connecting state", func() bool { return s.State() == StateConnecting })

	err := <-errCh
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Login = %v, want ErrTimeout", err)
	}
	if s.State() != StateClosed {
		t.Errorf("state = %s, want closed", s.State())
	}
}

func TestLogoutIdempotent(t *testing.T) {
	s, _ := newTestSession(t)

	if err := s.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}

	if err := s.Logout(); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if s.State() != StateClosed {
		t.Errorf("state = %s, want closed", s.State())
	}
	if err := s.Logout(); err != nil {
		t.Fatalf("second Logout: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close after Logout: %v", err)
	}
}

func TestStateString(t *testing.T) {
	want := map[State]string{
		StateDisconnected:  "disconnected",
		StateConnecting:    "connecting",
		StateAuthenticated: "authenticated",
		StateDegraded:      "degraded",
		StateClosed:        "closed",
	}
	for state, str := range want {
		if state.String() != str {
			t.Errorf("%d.String() = %q, want %q", state, state.String(), str)
		}
	}
}
