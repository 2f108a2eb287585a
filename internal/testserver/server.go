package testserver

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/venuewire/xapi/internal/wire"
)

// Responder produces the returnData for one command, or an API error.
type Responder func(arguments map[string]any) (any, *wire.APIError)

// Server is a fake venue. Start binds command and stream TCP listeners
// on loopback; StartWS serves the same protocol over WebSocket endpoints
// (<base>/<env> and <base>/<env>Stream) instead.
type Server struct {
	cmdLn    net.Listener
	streamLn net.Listener
	httpSrv  *httptest.Server
	upgrader websocket.Upgrader

	mu            sync.Mutex
	streamConns   []net.Conn
	wsStreamConns []*websocket.Conn
	controlFrames []wire.Record
	responders    map[string]Responder
	silent        map[string]bool
	loginErr      *wire.APIError
	sessionID     string

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

func newServer() *Server {
	return &Server{
		responders: make(map[string]Responder),
		silent:     make(map[string]bool),
		sessionID:  "test-stream-session",
		done:       make(chan struct{}),
	}
}

// Start binds both TCP listeners on loopback and begins accepting.
func Start() (*Server, error) {
	cmdLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listen command port: %w", err)
	}
	streamLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		cmdLn.Close()
		return nil, fmt.Errorf("listen stream port: %w", err)
	}

	s := newServer()
	s.cmdLn = cmdLn
	s.streamLn = streamLn

	s.wg.Add(2)
	go s.accept(cmdLn, s.serveCommand)
	go s.accept(streamLn, s.serveStream)
	return s, nil
}

// StartWS serves the protocol over WebSocket endpoints for both
// environments.
func StartWS() *Server {
	s := newServer()

	mux := http.NewServeMux()
	for _, env := range []string{"demo", "live"} {
		mux.HandleFunc("/"+env, s.serveCommandWS)
		mux.HandleFunc("/"+env+"Stream", s.serveStreamWS)
	}
	s.httpSrv = httptest.NewServer(mux)
	return s
}

// Host returns the loopback address both TCP listeners share.
func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.cmdLn.Addr().String())
	return host
}

// CommandPort returns the command listener's port.
func (s *Server) CommandPort() int {
	return s.cmdLn.Addr().(*net.TCPAddr).Port
}

// StreamPort returns the stream listener's port.
func (s *Server) StreamPort() int {
	return s.streamLn.Addr().(*net.TCPAddr).Port
}

// WSURL returns the base ws:// URL of a server started with StartWS.
func (s *Server) WSURL() string {
	return "ws" + strings.TrimPrefix(s.httpSrv.URL, "http")
}

// StreamSessionID returns the session id handed out by login.
func (s *Server) StreamSessionID() string {
	return s.sessionID
}

// RejectLogin makes subsequent login commands fail with the given code.
func (s *Server) RejectLogin(code, descr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loginErr = &wire.APIError{Code: code, Descr: descr}
}

// Silence makes the server swallow a command without replying, so
// clients hit their request timeout.
func (s *Server) Silence(command string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.silent[command] = true
}

// Respond registers the returnData producer for a command.
func (s *Server) Respond(command string, r Responder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responders[command] = r
}

// RespondWith registers a fixed returnData value for a command.
func (s *Server) RespondWith(command string, returnData any) {
	s.Respond(command, func(map[string]any) (any, *wire.APIError) {
		return returnData, nil
	})
}

// Push writes one stream record to every connected stream client.
func (s *Server) Push(feed string, data wire.Record) error {
	frame, err := json.Marshal(map[string]any{"command": feed, "data": data})
	if err != nil {
		return err
	}

	s.mu.Lock()
	conns := make([]net.Conn, len(s.streamConns))
	copy(conns, s.streamConns)
	wsConns := make([]*websocket.Conn, len(s.wsStreamConns))
	copy(wsConns, s.wsStreamConns)
	s.mu.Unlock()

	for _, conn := range conns {
		if _, err := conn.Write(append(frame, wire.Delimiter)); err != nil {
			return err
		}
	}
	for _, conn := range wsConns {
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return err
		}
	}
	return nil
}

// ControlFrames returns the stream control frames received so far.
func (s *Server) ControlFrames() []wire.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	frames := make([]wire.Record, len(s.controlFrames))
	copy(frames, s.controlFrames)
	return frames
}

// StreamClients returns the number of connected stream sockets.
func (s *Server) StreamClients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.streamConns) + len(s.wsStreamConns)
}

// Close stops all listeners and drops all connections.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.cmdLn != nil {
			s.cmdLn.Close()
		}
		if s.streamLn != nil {
			s.streamLn.Close()
		}

		s.mu.Lock()
		for _, conn := range s.streamConns {
			conn.Close()
		}
		s.streamConns = nil
		for _, conn := range s.wsStreamConns {
			conn.Close()
		}
		s.wsStreamConns = nil
		s.mu.Unlock()

		if s.httpSrv != nil {
			s.httpSrv.Close()
		}
	})
	s.wg.Wait()
}

func (s *Server) accept(ln net.Listener, serve func(net.Conn)) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			serve(conn)
		}()
	}
}

func (s *Server) serveCommand(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		reply := s.commandReply(scanner.Bytes())
		if reply == nil {
			continue
		}
		if _, err := conn.Write(append(reply, wire.Delimiter)); err != nil {
			return
		}
	}
}

func (s *Server) serveCommandWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		reply := s.commandReply(msg)
		if reply == nil {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, reply); err != nil {
			return
		}
	}
}

// commandReply produces the encoded reply for one command frame, or nil
// when the command is silenced or the frame is malformed.
func (s *Server) commandReply(line []byte) []byte {
	var req struct {
		Command   string         `json:"command"`
		Arguments map[string]any `json:"arguments"`
		CustomTag string         `json:"customTag"`
	}
	if len(line) == 0 || json.Unmarshal(line, &req) != nil {
		return nil
	}
	if s.isSilent(req.Command) {
		return nil
	}

	reply := s.handle(req.Command, req.Arguments)
	if req.CustomTag != "" {
		reply["customTag"] = req.CustomTag
	}
	frame, err := json.Marshal(reply)
	if err != nil {
		return nil
	}
	return frame
}

func (s *Server) handle(command string, arguments map[string]any) map[string]any {
	s.mu.Lock()
	loginErr := s.loginErr
	responder := s.responders[command]
	s.mu.Unlock()

	switch {
	case command == "login" && loginErr != nil:
		return errorReply(loginErr)
	case command == "login":
		return map[string]any{"status": wire.StatusOK, "streamSessionId": s.sessionID}
	case responder != nil:
		returnData, apiErr := responder(arguments)
		if apiErr != nil {
			return errorReply(apiErr)
		}
		return map[string]any{"status": wire.StatusOK, "returnData": returnData}
	default:
		// ping, logout and unregistered commands succeed with no payload.
		return map[string]any{"status": wire.StatusOK}
	}
}

func errorReply(apiErr *wire.APIError) map[string]any {
	return map[string]any{
		"status":     wire.StatusError,
		"errorCode":  apiErr.Code,
		"errorDescr": apiErr.Descr,
	}
}

func (s *Server) isSilent(command string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.silent[command]
}

func (s *Server) serveStream(conn net.Conn) {
	s.mu.Lock()
	s.streamConns = append(s.streamConns, conn)
	s.mu.Unlock()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		s.recordControl(scanner.Bytes())
	}
}

func (s *Server) serveStreamWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.wsStreamConns = append(s.wsStreamConns, conn)
	s.mu.Unlock()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.recordControl(msg)
	}
}

func (s *Server) recordControl(line []byte) {
	if len(line) == 0 {
		return
	}
	var frame wire.Record
	if err := json.Unmarshal(line, &frame); err != nil {
		return
	}
	s.mu.Lock()
	s.controlFrames = append(s.controlFrames, frame)
	s.mu.Unlock()
}
