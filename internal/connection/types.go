package connection

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dearvn/tradovate-go/internal/buffer"
	"github.com/dearvn/tradovate-go/internal/config"
)

// Errors
var (
	ErrNotAuthenticated = errors.New("connection not authenticated")
	ErrConnectionClosed = errors.New("connection closed")
	ErrStaleConnection  = errors.New("connection stale (no inbound frames)")
	ErrTimeout          = errors.New("request timeout")
	ErrDuplicateRequest = errors.New("duplicate pending request id")
	ErrAlreadyConnected = errors.New("connect already called")
)

// RequestRejected is a response whose status is not 200.
type RequestRejected struct {
	Endpoint string
	Query    string
	Body     any
	Status   int
	Reason   json.RawMessage
}

func (e *RequestRejected) Error() string {
	body, err := json.Marshal(e.Body)
	if err != nil {
		body = []byte("?")
	}
	reason := string(e.Reason)
	if reason == "" {
		reason = "unknown"
	}
	return fmt.Sprintf("request %s rejected with status %d (query %q, body %s): %s",
		e.Endpoint, e.Status, e.Query, body, reason)
}

// SubscriptionMisuse is a subscribe call that cannot work on this socket.
type SubscriptionMisuse struct {
	Kind     Kind
	Expected Category
	Actual   Category
	Reason   string
}

func (e *SubscriptionMisuse) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("subscribe %s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("subscribe %s requires a %s connection, this one is %s", e.Kind, e.Expected, e.Actual)
}

// SymbolResolutionError means no contract id could be found for a symbol.
type SymbolResolutionError struct {
	Symbol string
	Err    error
}

func (e *SymbolResolutionError) Error() string {
	return fmt.Sprintf("resolve symbol %q: %v", e.Symbol, e.Err)
}

func (e *SymbolResolutionError) Unwrap() error {
	return e.Err
}

// TransportError is a failure of the underlying websocket.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("websocket %s %s: %v", e.Op, e.URL, e.Err)
	}
	return fmt.Sprintf("websocket %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// State is the lifecycle state of a Socket.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateAuthenticated
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateFailed
}

// canTransition allows forward moves only. Failed is reachable from any
// non-terminal state.
func canTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateFailed {
		return true
	}
	return to > from
}

// Category is the kind of endpoint a socket is connected to.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryMarketData
	CategoryAccount
)

func (c Category) String() string {
	switch c {
	case CategoryMarketData:
		return "market-data"
	case CategoryAccount:
		return "account"
	default:
		return "unknown"
	}
}

// Endpoints are the websocket URLs used to derive a socket's category.
type Endpoints struct {
	MarketData string
	Demo       string
	Live       string
}

// Category maps url to the category of the matching endpoint.
func (e Endpoints) Category(url string) Category {
	switch {
	case sameURL(url, e.MarketData):
		return CategoryMarketData
	case sameURL(url, e.Demo), sameURL(url, e.Live):
		return CategoryAccount
	default:
		return CategoryUnknown
	}
}

func sameURL(a, b string) bool {
	if b == "" {
		return false
	}
	return strings.EqualFold(strings.TrimRight(a, "/"), strings.TrimRight(b, "/"))
}

// Config configures a Socket. Zero durations select the defaults.
type Config struct {
	Endpoints         Endpoints
	RequestTimeout    time.Duration // negative waits until the socket closes
	HeartbeatInterval time.Duration
	StaleTimeout      time.Duration // negative disables stale detection
	WriteTimeout      time.Duration
	HandshakeTimeout  time.Duration
	QueueSize         int
	Proxy             *url.URL // nil dials directly
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Endpoints: Endpoints{
			MarketData: config.DefaultWSMarketData,
			Demo:       config.DefaultWSDemo,
			Live:       config.DefaultWSLive,
		},
		RequestTimeout:    config.DefaultRequestTimeout,
		HeartbeatInterval: config.DefaultHeartbeatInterval,
		StaleTimeout:      config.DefaultStaleTimeout,
		WriteTimeout:      config.DefaultWriteTimeout,
		HandshakeTimeout:  config.DefaultHandshakeTimeout,
		QueueSize:         config.DefaultQueueSize,
	}
}

// ConfigFrom builds a socket Config from the loaded configuration.
func ConfigFrom(cfg *config.Config) Config {
	// A bad proxy is rejected by config.Validate.
	proxy, _ := cfg.API.ProxyURL()
	return Config{
		Endpoints: Endpoints{
			MarketData: cfg.API.WSMarketData,
			Demo:       cfg.API.WSDemo,
			Live:       cfg.API.WSLive,
		},
		RequestTimeout:    cfg.Socket.RequestTimeout,
		HeartbeatInterval: cfg.Socket.HeartbeatInterval,
		StaleTimeout:      cfg.Socket.StaleTimeout,
		WriteTimeout:      cfg.Socket.WriteTimeout,
		HandshakeTimeout:  cfg.Socket.HandshakeTimeout,
		QueueSize:         cfg.Socket.QueueSize,
		Proxy:             proxy,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Endpoints == (Endpoints{}) {
		c.Endpoints = d.Endpoints
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.StaleTimeout == 0 {
		c.StaleTimeout = d.StaleTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	return c
}

// Stats is a point-in-time view of a Socket.
type Stats struct {
	State          State
	Pending        int
	Subscriptions  int
	FramesReceived int64
	KeepAlivesSent int64
	Queue          buffer.Stats
	Deliveries     buffer.Stats
}

// Listener receives one matching payload element. Listeners of a Socket
// run one at a time on a goroutine of their own, in frame order. A listener
// may call Send or Subscribe; a slow one delays later deliveries but not
// request responses. It must not call Close.
type Listener func(data json.RawMessage)

// CancelFunc ends a subscription. It is safe to call more than once.
type CancelFunc func()
