package connection

import (
	"fmt"
	"sync"

	"github.com/dearvn/tradovate-go/internal/protocol"
)

// outbound describes a sent request. It is kept for error messages only.
type outbound struct {
	endpoint string
	query    string
	body     any
}

type pendingRequest struct {
	req       outbound
	onSuccess func(protocol.Message)
	onFailure func(error)
}

// correlator matches responses to pending requests by id. Ids start at 0
// and are never reused within one socket.
type correlator struct {
	mu      sync.Mutex
	next    int64
	pending map[int64]pendingRequest
	closed  error
}

func newCorrelator() *correlator {
	return &correlator{
		pending: make(map[int64]pendingRequest),
	}
}

// NextID returns a fresh request id.
func (c *correlator) NextID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextLocked()
}

func (c *correlator) nextLocked() int64 {
	id := c.next
	c.next++
	return id
}

// Register stores a pending request under id.
func (c *correlator) Register(id int64, req outbound, onSuccess func(protocol.Message), onFailure func(error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registerLocked(id, req, onSuccess, onFailure)
}

func (c *correlator) registerLocked(id int64, req outbound, onSuccess func(protocol.Message), onFailure func(error)) error {
	if c.closed != nil {
		return c.closed
	}
	if _, ok := c.pending[id]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateRequest, id)
	}
	c.pending[id] = pendingRequest{req: req, onSuccess: onSuccess, onFailure: onFailure}
	return nil
}

// Track assigns an id and registers the request in one step.
func (c *correlator) Track(req outbound, onSuccess func(protocol.Message), onFailure func(error)) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed != nil {
		return 0, c.closed
	}
	id := c.nextLocked()
	if err := c.registerLocked(id, req, onSuccess, onFailure); err != nil {
		return 0, err
	}
	return id, nil
}

// Dispatch completes the pending request msg answers. It returns false
// when msg is not a response to anything pending, in which case it belongs
// to the subscription registry.
func (c *correlator) Dispatch(msg protocol.Message) bool {
	id, ok := msg.RequestID()
	if !ok {
		return false
	}
	status, ok := msg.StatusCode()
	if !ok {
		return false
	}

	c.mu.Lock()
	p, found := c.pending[id]
	if found {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if !found {
		return false
	}

	if status == protocol.StatusOK {
		p.onSuccess(msg)
		return true
	}
	p.onFailure(&RequestRejected{
		Endpoint: p.req.endpoint,
		Query:    p.req.query,
		Body:     p.req.body,
		Status:   status,
		Reason:   msg.Data,
	})
	return true
}

// Forget drops a request whose caller stopped waiting. It returns false if
// the request was already completed.
func (c *correlator) Forget(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pending[id]; !ok {
		return false
	}
	delete(c.pending, id)
	return true
}

// FailAll fails every pending request and refuses new ones. The error
// passed to callbacks always matches ErrConnectionClosed.
func (c *correlator) FailAll(cause error) {
	err := ErrConnectionClosed
	if cause != nil && cause != ErrConnectionClosed {
		err = fmt.Errorf("%w: %w", ErrConnectionClosed, cause)
	}

	c.mu.Lock()
	if c.closed == nil {
		c.closed = err
	}
	pending := c.pending
	c.pending = make(map[int64]pendingRequest)
	c.mu.Unlock()

	for _, p := range pending {
		p.onFailure(err)
	}
}

// Len returns the number of pending requests.
func (c *correlator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
