package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultEnv               = "demo"
	DefaultHTTPDemo          = "https://demo.tradovateapi.com/v1"
	DefaultHTTPLive          = "https://live.tradovateapi.com/v1"
	DefaultWSMarketData      = "wss://md.tradovateapi.com/v1/websocket"
	DefaultWSDemo            = "wss://demo.tradovateapi.com/v1/websocket"
	DefaultWSLive            = "wss://live.tradovateapi.com/v1/websocket"
	DefaultAPITimeout        = 30 * time.Second
	DefaultRequestTimeout    = 30 * time.Second
	DefaultHeartbeatInterval = 2500 * time.Millisecond
	DefaultStaleTimeout      = 30 * time.Second
	DefaultWriteTimeout      = 5 * time.Second
	DefaultHandshakeTimeout  = 10 * time.Second
	DefaultQueueSize         = 1024
	DefaultSessionStore      = "memory"
	DefaultDBPort            = 5432
	DefaultDBSSLMode         = "prefer"
	DefaultMaxConns          = 4
	DefaultMinConns          = 1
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
)

func (c *Config) applyDefaults() {
	// API defaults
	if c.API.Env == "" {
		c.API.Env = DefaultEnv
	}
	if c.API.HTTPDemo == "" {
		c.API.HTTPDemo = DefaultHTTPDemo
	}
	if c.API.HTTPLive == "" {
		c.API.HTTPLive = DefaultHTTPLive
	}
	if c.API.WSMarketData == "" {
		c.API.WSMarketData = DefaultWSMarketData
	}
	if c.API.WSDemo == "" {
		c.API.WSDemo = DefaultWSDemo
	}
	if c.API.WSLive == "" {
		c.API.WSLive = DefaultWSLive
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}

	// Socket defaults. RequestTimeout and StaleTimeout keep an explicit
	// negative value as "disabled" and only fill in the zero value.
	if c.Socket.RequestTimeout == 0 {
		c.Socket.RequestTimeout = DefaultRequestTimeout
	}
	if c.Socket.HeartbeatInterval == 0 {
		c.Socket.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Socket.StaleTimeout == 0 {
		c.Socket.StaleTimeout = DefaultStaleTimeout
	}
	if c.Socket.WriteTimeout == 0 {
		c.Socket.WriteTimeout = DefaultWriteTimeout
	}
	if c.Socket.HandshakeTimeout == 0 {
		c.Socket.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Socket.QueueSize == 0 {
		c.Socket.QueueSize = DefaultQueueSize
	}

	// Session defaults
	if c.Session.Store == "" {
		c.Session.Store = DefaultSessionStore
	}
	applyDBDefaults(&c.Session.Database)

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
