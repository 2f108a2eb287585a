package config

import (
	"fmt"
	"strings"
	"time"
)

// Environment selects the venue account universe.
type Environment string

const (
	EnvironmentDemo Environment = "demo"
	EnvironmentLive Environment = "live"
)

// Valid reports whether e is a known environment.
func (e Environment) Valid() bool {
	return e == EnvironmentDemo || e == EnvironmentLive
}

// Config is the root client configuration.
type Config struct {
	Venue   VenueConfig   `yaml:"venue"`
	Session SessionConfig `yaml:"session"`
}

// Transport values select the wire carrier.
const (
	TransportTCP       = "tcp"
	TransportWebSocket = "websocket"
)

// VenueConfig locates the remote venue. The TCP carrier uses per-
// environment command and stream ports on a shared host; the WebSocket
// carrier derives its endpoints from a base URL instead.
type VenueConfig struct {
	Host           string `yaml:"host"`
	Transport      string `yaml:"transport"` // "tcp" or "websocket"
	WSURL          string `yaml:"ws_url"`    // base URL for the websocket carrier
	DemoPort       int    `yaml:"demo_port"`
	DemoStreamPort int    `yaml:"demo_stream_port"`
	LivePort       int    `yaml:"live_port"`
	LiveStreamPort int    `yaml:"live_stream_port"`
	Insecure       bool   `yaml:"insecure"` // disable TLS (test servers)
}

// Endpoints returns the command and stream ports for env.
func (v VenueConfig) Endpoints(env Environment) (port, streamPort int, err error) {
	switch env {
	case EnvironmentDemo:
		return v.DemoPort, v.DemoStreamPort, nil
	case EnvironmentLive:
		return v.LivePort, v.LiveStreamPort, nil
	}
	return 0, 0, fmt.Errorf("unknown environment %q", env)
}

// WSEndpoints returns the command and stream URLs for env on the
// WebSocket carrier: <ws_url>/<env> and <ws_url>/<env>Stream.
func (v VenueConfig) WSEndpoints(env Environment) (url, streamURL string, err error) {
	if !env.Valid() {
		return "", "", fmt.Errorf("unknown environment %q", env)
	}
	base := strings.TrimRight(v.WSURL, "/")
	return base + "/" + string(env), base + "/" + string(env) + "Stream", nil
}

// SessionConfig holds per-session timing and buffering knobs.
type SessionConfig struct {
	DialTimeout    time.Duration `yaml:"dial_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// ReadPollInterval bounds each stream-socket read; it is also the
	// reader's shutdown check interval.
	ReadPollInterval time.Duration `yaml:"read_poll_interval"`

	// PingInterval must undercut the venue's idle-disconnect window.
	PingInterval time.Duration `yaml:"ping_interval"`

	KeepaliveFailureLimit int `yaml:"keepalive_failure_limit"`

	// BufferCapacity is the per-subscription record limit.
	BufferCapacity int `yaml:"buffer_capacity"`
}
