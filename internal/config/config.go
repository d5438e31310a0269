package config

import "time"

// Config is the root configuration for a client session.
type Config struct {
	API         APIConfig         `yaml:"api"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Socket      SocketConfig      `yaml:"socket"`
	Auth        AuthConfig        `yaml:"auth"`
	Session     SessionConfig     `yaml:"session"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// APIConfig holds endpoint settings.
type APIConfig struct {
	Env          string        `yaml:"env"` // "demo" or "live"
	HTTPDemo     string        `yaml:"http_demo"`
	HTTPLive     string        `yaml:"http_live"`
	WSMarketData string        `yaml:"ws_md"`
	WSDemo       string        `yaml:"ws_demo"`
	WSLive       string        `yaml:"ws_live"`
	Timeout      time.Duration `yaml:"timeout"`
	Proxy        string        `yaml:"proxy"` // http(s) or socks5 URL for REST and websocket traffic
}

// CredentialsConfig holds the access-token request fields.
type CredentialsConfig struct {
	Name       string `yaml:"name"`
	Password   string `yaml:"password"`
	AppID      string `yaml:"app_id"`
	AppVersion string `yaml:"app_version"`
	CID        string `yaml:"cid"`
	Sec        string `yaml:"sec"`
}

// SocketConfig holds real-time connection settings.
type SocketConfig struct {
	RequestTimeout    time.Duration `yaml:"request_timeout"` // negative waits until the socket closes
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	StaleTimeout      time.Duration `yaml:"stale_timeout"` // negative disables stale detection
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`
	QueueSize         int           `yaml:"queue_size"`
}

// AuthConfig holds challenge handling settings.
type AuthConfig struct {
	ChallengeMaxAttempts int `yaml:"challenge_max_attempts"` // 0 retries until resolved
}

// SessionConfig selects where access tokens are persisted.
type SessionConfig struct {
	Store    string   `yaml:"store"` // "memory" or "postgres"
	Database DBConfig `yaml:"database"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// LoggingConfig holds slog handler settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}
