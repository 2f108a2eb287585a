package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Venue.Host == "" {
		return errors.New("venue.host is required")
	}
	switch c.Venue.Transport {
	case TransportTCP, TransportWebSocket:
	default:
		return fmt.Errorf("venue.transport must be %q or %q, got %q",
			TransportTCP, TransportWebSocket, c.Venue.Transport)
	}
	if c.Venue.Transport == TransportWebSocket && c.Venue.WSURL == "" {
		return errors.New("venue.ws_url is required for the websocket transport")
	}
	for name, port := range map[string]int{
		"venue.demo_port":        c.Venue.DemoPort,
		"venue.demo_stream_port": c.Venue.DemoStreamPort,
		"venue.live_port":        c.Venue.LivePort,
		"venue.live_stream_port": c.Venue.LiveStreamPort,
	} {
		if port < 1 || port > 65535 {
			return fmt.Errorf("%s must be between 1 and 65535, got %d", name, port)
		}
	}

	if c.Session.DialTimeout <= 0 {
		return errors.New("session.dial_timeout must be positive")
	}
	if c.Session.RequestTimeout <= 0 {
		return errors.New("session.request_timeout must be positive")
	}
	if c.Session.ReadPollInterval <= 0 {
		return errors.New("session.read_poll_interval must be positive")
	}
	if c.Session.PingInterval <= 0 {
		return errors.New("session.ping_interval must be positive")
	}
	if c.Session.KeepaliveFailureLimit < 1 {
		return errors.New("session.keepalive_failure_limit must be >= 1")
	}
	if c.Session.BufferCapacity < 1 {
		return errors.New("session.buffer_capacity must be >= 1")
	}
	return nil
}
