package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dearvn/tradovate-go/internal/auth"
	"github.com/dearvn/tradovate-go/internal/buffer"
	"github.com/dearvn/tradovate-go/internal/protocol"
)

// authorizeEndpoint is the bootstrap request sent after the open frame.
const authorizeEndpoint = "authorize"

// inbound is one item read by the read loop. A non-nil err ends the stream.
type inbound struct {
	data       []byte
	receivedAt time.Time
	err        error
}

// delivery is one element waiting for its listener.
type delivery struct {
	sub  *subscription
	data json.RawMessage
}

// Socket is a single real-time connection.
type Socket struct {
	cfg        Config
	logger     *slog.Logger
	dialer     Dialer
	contracts  *contractResolver
	challenges *auth.Resolver
	now        func() time.Time

	corr    *correlator
	reg     *registry
	hb      *heartbeat
	inbound *buffer.Queue[inbound]
	// deliveries feeds the listener goroutine, so a listener that waits on
	// a request never holds up the frames carrying its response.
	deliveries *buffer.Queue[delivery]

	mu          sync.RWMutex
	state       State
	category    Category
	categorySet bool
	url         string
	token       string
	conn        Conn
	err         error

	opened     chan struct{}
	openedOnce sync.Once
	done       chan struct{}
	closeOnce  sync.Once
	wg         sync.WaitGroup

	framesReceived atomic.Int64
	keepAlivesSent atomic.Int64
}

// Option configures a Socket.
type Option func(*Socket)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Socket) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDialer replaces the websocket dialer.
func WithDialer(d Dialer) Option {
	return func(s *Socket) {
		if d != nil {
			s.dialer = d
		}
	}
}

// WithContracts sets the REST lookup used to resolve symbols.
func WithContracts(finder ContractFinder) Option {
	return func(s *Socket) {
		if finder != nil {
			s.contracts = newContractResolver(finder, s.logger)
		}
	}
}

// WithCategory fixes the category instead of deriving it from the URL.
func WithCategory(c Category) Option {
	return func(s *Socket) {
		s.category = c
		s.categorySet = true
	}
}

// WithChallengeResolver sets how time-penalty challenges on subscribe
// responses are handled.
func WithChallengeResolver(r *auth.Resolver) Option {
	return func(s *Socket) {
		if r != nil {
			s.challenges = r
		}
	}
}

// WithClock sets the time source for heartbeat decisions.
func WithClock(now func() time.Time) Option {
	return func(s *Socket) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSocket creates an idle Socket.
func NewSocket(cfg Config, opts ...Option) *Socket {
	cfg = cfg.withDefaults()

	s := &Socket{
		cfg:    cfg,
		logger: slog.Default(),
		now:    time.Now,
		corr:   newCorrelator(),
		reg:    newRegistry(),
		hb:     newHeartbeat(cfg.HeartbeatInterval, cfg.StaleTimeout),
		opened: make(chan struct{}),
		done:   make(chan struct{}),
	}
	dialer := WSDialer{HandshakeTimeout: cfg.HandshakeTimeout, WriteTimeout: cfg.WriteTimeout}
	if cfg.Proxy != nil {
		dialer.Proxy = http.ProxyURL(cfg.Proxy)
	}
	s.dialer = dialer

	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "socket")
	if s.contracts != nil {
		s.contracts.logger = s.logger
	}
	if s.challenges == nil {
		s.challenges = auth.NewResolver(auth.WithLogger(s.logger))
	}
	s.inbound = buffer.NewQueue[inbound](cfg.QueueSize)
	s.deliveries = buffer.NewQueue[delivery](cfg.QueueSize)
	s.reg.emit = s.enqueue

	return s
}

// Connect dials url, waits for the open frame and authorizes with token.
// A Socket can be connected once.
func (s *Socket) Connect(ctx context.Context, url, token string) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrAlreadyConnected
	}
	s.url = url
	s.token = token
	if !s.categorySet {
		s.category = s.cfg.Endpoints.Category(url)
	}
	s.mu.Unlock()

	s.setState(StateConnecting)
	s.logger.Debug("connecting", "url", url, "category", s.Category())

	conn, err := s.dialer.Dial(ctx, url)
	if err != nil {
		err = &TransportError{Op: "dial", URL: url, Err: err}
		s.shutdown(StateFailed, err)
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	s.hb.Reset(s.now())

	s.wg.Add(4)
	go s.readLoop(conn)
	go s.dispatchLoop()
	go s.deliverLoop()
	go s.heartbeatLoop()

	select {
	case <-s.opened:
	case <-s.done:
		return s.Err()
	case <-ctx.Done():
		s.shutdown(StateFailed, ctx.Err())
		return ctx.Err()
	}
	s.setState(StateOpen)

	if _, err := s.request(ctx, authorizeEndpoint, "", token, nil, true); err != nil {
		err = fmt.Errorf("authorize: %w", err)
		s.shutdown(StateFailed, err)
		return err
	}
	s.setState(StateAuthenticated)

	s.logger.Info("socket authenticated", "url", url, "category", s.Category())
	return nil
}

// Send issues a request and waits for its response.
func (s *Socket) Send(ctx context.Context, endpoint, query string, body any) (protocol.Message, error) {
	return s.request(ctx, endpoint, query, body, nil, false)
}

type result struct {
	msg protocol.Message
	err error
}

// request sends one request. onResponse runs on the dispatch goroutine
// when a 200 response arrives, before frames behind it are handled.
// bootstrap allows the authorize request before the socket is
// authenticated.
func (s *Socket) request(ctx context.Context, endpoint, query string, body any, onResponse func(protocol.Message), bootstrap bool) (protocol.Message, error) {
	if st := s.State(); !bootstrap && st != StateAuthenticated {
		if st.Terminal() {
			return protocol.Message{}, s.closedErr()
		}
		return protocol.Message{}, ErrNotAuthenticated
	}

	ch := make(chan result, 1)
	id, err := s.corr.Track(
		outbound{endpoint: endpoint, query: query, body: body},
		func(msg protocol.Message) {
			if onResponse != nil {
				onResponse(msg)
			}
			ch <- result{msg: msg}
		},
		func(err error) {
			ch <- result{err: err}
		},
	)
	if err != nil {
		return protocol.Message{}, err
	}

	frame, err := protocol.Encode(endpoint, id, query, body)
	if err != nil {
		s.corr.Forget(id)
		return protocol.Message{}, err
	}

	s.logger.Debug("send request", "request_id", id, "endpoint", endpoint)

	if err := s.write([]byte(frame)); err != nil {
		s.corr.Forget(id)
		return protocol.Message{}, err
	}

	var timeout <-chan time.Time
	if s.cfg.RequestTimeout > 0 {
		timer := time.NewTimer(s.cfg.RequestTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case r := <-ch:
		return r.msg, r.err
	case <-ctx.Done():
		return s.abandon(id, ch, ctx.Err())
	case <-timeout:
		return s.abandon(id, ch, fmt.Errorf("%w: %s after %s", ErrTimeout, endpoint, s.cfg.RequestTimeout))
	}
}

// abandon stops waiting for id. If the response already arrived it wins
// over err.
func (s *Socket) abandon(id int64, ch <-chan result, err error) (protocol.Message, error) {
	if s.corr.Forget(id) {
		return protocol.Message{}, err
	}
	r := <-ch
	return r.msg, r.err
}

func (s *Socket) write(data []byte) error {
	s.mu.RLock()
	conn, url := s.conn, s.url
	s.mu.RUnlock()

	select {
	case <-s.done:
		return s.closedErr()
	default:
	}
	if conn == nil {
		return ErrNotAuthenticated
	}

	if err := conn.WriteMessage(data); err != nil {
		return &TransportError{Op: "write", URL: url, Err: err}
	}
	return nil
}

func (s *Socket) closedErr() error {
	if err := s.Err(); err != nil && !errors.Is(err, ErrConnectionClosed) {
		return fmt.Errorf("%w: %w", ErrConnectionClosed, err)
	}
	return ErrConnectionClosed
}

func (s *Socket) readLoop(conn Conn) {
	defer s.wg.Done()

	for {
		data, err := conn.ReadMessage()
		receivedAt := s.now()

		if err != nil {
			select {
			case <-s.done:
			default:
				s.inbound.Push(inbound{err: err, receivedAt: receivedAt})
			}
			return
		}

		if !s.inbound.Push(inbound{data: data, receivedAt: receivedAt}) {
			return
		}
	}
}

// dispatchLoop handles inbound frames one at a time in arrival order.
func (s *Socket) dispatchLoop() {
	defer s.wg.Done()

	for {
		item, ok := s.inbound.Pop()
		if !ok {
			return
		}
		select {
		case <-s.done:
			return
		default:
		}

		if item.err != nil {
			if errors.Is(item.err, ErrConnectionClosed) {
				s.shutdown(StateClosed, item.err)
			} else {
				s.shutdown(StateFailed, &TransportError{Op: "read", URL: s.URL(), Err: item.err})
			}
			return
		}

		s.handleFrame(item.data, item.receivedAt)
	}
}

func (s *Socket) handleFrame(data []byte, receivedAt time.Time) {
	s.framesReceived.Add(1)

	if s.hb.Observe(receivedAt) {
		s.sendKeepAlive()
	}

	frame, err := protocol.Decode(data)
	if err != nil {
		s.logger.Error("undecodable frame", "error", err)
		s.shutdown(StateFailed, err)
		return
	}

	switch frame.Type {
	case protocol.FrameOpen:
		s.openedOnce.Do(func() { close(s.opened) })
	case protocol.FrameHeartbeat:
	case protocol.FrameClose:
		s.shutdown(StateClosed, ErrConnectionClosed)
	case protocol.FrameArray:
		for _, msg := range frame.Messages {
			if s.corr.Dispatch(msg) {
				continue
			}
			s.reg.dispatch(msg)
		}
	}
}

// enqueue hands data to the listener goroutine.
func (s *Socket) enqueue(sub *subscription, data json.RawMessage) bool {
	if sub.removed.Load() {
		return false
	}
	return s.deliveries.Push(delivery{sub: sub, data: data})
}

// deliverLoop invokes listeners one at a time in dispatch order.
func (s *Socket) deliverLoop() {
	defer s.wg.Done()

	for {
		d, ok := s.deliveries.Pop()
		if !ok {
			return
		}
		deliver(d.sub, d.data)
	}
}

// heartbeatLoop sends keep-alives on quiet connections and fails the
// socket once the peer goes stale.
func (s *Socket) heartbeatLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.hb.tickEvery())
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			due, err := s.hb.Tick(s.now())
			if err != nil {
				s.logger.Warn("no inbound frames, connection stale", "timeout", s.cfg.StaleTimeout)
				s.shutdown(StateFailed, err)
				return
			}
			if due {
				s.sendKeepAlive()
			}
		}
	}
}

func (s *Socket) sendKeepAlive() {
	if err := s.write([]byte(protocol.Heartbeat)); err != nil {
		if errors.Is(err, ErrConnectionClosed) {
			return
		}
		s.logger.Warn("keep-alive write failed", "error", err)
		s.shutdown(StateFailed, err)
		return
	}
	s.keepAlivesSent.Add(1)
}

// Close ends the connection and fails pending requests with
// ErrConnectionClosed. It waits for the socket's goroutines and so must
// not be called from a Listener.
func (s *Socket) Close() error {
	s.shutdown(StateClosed, ErrConnectionClosed)
	s.wg.Wait()
	return nil
}

// shutdown moves to a terminal state once. It never blocks on the
// socket's goroutines and is safe to call from any of them.
func (s *Socket) shutdown(final State, cause error) {
	s.closeOnce.Do(func() {
		s.setState(final)

		s.mu.Lock()
		s.err = cause
		conn := s.conn
		s.mu.Unlock()

		close(s.done)
		if conn != nil {
			conn.Close()
		}
		s.inbound.Close()
		s.deliveries.Close()
		s.corr.FailAll(cause)
		s.reg.clear()

		if final == StateFailed {
			s.logger.Warn("socket failed", "error", cause)
		} else {
			s.logger.Debug("socket closed")
		}
	})
}

func (s *Socket) setState(to State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !canTransition(s.state, to) {
		s.logger.Warn("ignoring illegal state transition", "from", s.state, "to", to)
		return
	}
	s.state = to
}

// Done is closed when the socket reaches a terminal state.
func (s *Socket) Done() <-chan struct{} {
	return s.done
}

// Err returns why the socket terminated, or nil while it is live. A
// normal close reports ErrConnectionClosed.
func (s *Socket) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// State returns the current lifecycle state.
func (s *Socket) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Category returns the connection category.
func (s *Socket) Category() Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.category
}

// URL returns the URL passed to Connect.
func (s *Socket) URL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.url
}

// Stats returns current counters.
func (s *Socket) Stats() Stats {
	return Stats{
		State:          s.State(),
		Pending:        s.corr.Len(),
		Subscriptions:  s.reg.len(),
		FramesReceived: s.framesReceived.Load(),
		KeepAlivesSent: s.keepAlivesSent.Load(),
		Queue:          s.inbound.Stats(),
		Deliveries:     s.deliveries.Stats(),
	}
}
