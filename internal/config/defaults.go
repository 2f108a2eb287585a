package config

import "time"

// Default values for optional configuration fields. The venue closes idle
// connections after ten minutes, so the default ping interval undercuts
// that window.
const (
	DefaultHost           = "xapi.venue.example.com"
	DefaultTransport      = TransportTCP
	DefaultWSURL          = "wss://ws.venue.example.com"
	DefaultDemoPort       = 5124
	DefaultDemoStreamPort = 5125
	DefaultLivePort       = 5112
	DefaultLiveStreamPort = 5113

	DefaultDialTimeout           = 10 * time.Second
	DefaultRequestTimeout        = 5 * time.Second
	DefaultReadPollInterval      = 1 * time.Second
	DefaultPingInterval          = 9 * time.Minute
	DefaultKeepaliveFailureLimit = 3
	DefaultBufferCapacity        = 1000
)

func (c *Config) applyDefaults() {
	if c.Venue.Host == "" {
		c.Venue.Host = DefaultHost
	}
	if c.Venue.Transport == "" {
		c.Venue.Transport = DefaultTransport
	}
	if c.Venue.WSURL == "" {
		c.Venue.WSURL = DefaultWSURL
	}
	if c.Venue.DemoPort == 0 {
		c.Venue.DemoPort = DefaultDemoPort
	}
	if c.Venue.DemoStreamPort == 0 {
		c.Venue.DemoStreamPort = DefaultDemoStreamPort
	}
	if c.Venue.LivePort == 0 {
		c.Venue.LivePort = DefaultLivePort
	}
	if c.Venue.LiveStreamPort == 0 {
		c.Venue.LiveStreamPort = DefaultLiveStreamPort
	}

	if c.Session.DialTimeout == 0 {
		c.Session.DialTimeout = DefaultDialTimeout
	}
	if c.Session.RequestTimeout == 0 {
		c.Session.RequestTimeout = DefaultRequestTimeout
	}
	if c.Session.ReadPollInterval == 0 {
		c.Session.ReadPollInterval = DefaultReadPollInterval
	}
	if c.Session.PingInterval == 0 {
		c.Session.PingInterval = DefaultPingInterval
	}
	if c.Session.KeepaliveFailureLimit == 0 {
		c.Session.KeepaliveFailureLimit = DefaultKeepaliveFailureLimit
	}
	if c.Session.BufferCapacity == 0 {
		c.Session.BufferCapacity = DefaultBufferCapacity
	}
}

// Default returns a configuration with every field at its default.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}
