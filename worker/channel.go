package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrTimeout = errors.New("worker: request timed out")
	ErrClosed  = errors.New("worker: channel closed")
)

// Envelope is a request tagged with its correlation id.
type Envelope[Req any] struct {
	ID  uint64
	Ctx context.Context
	Req Req
}

type reply[Resp any] struct {
	resp Resp
	err  error
}

// Channel correlates requests with responses by id. Responses that arrive
// after their request timed out, or for ids never issued, are dropped.
type Channel[Req, Resp any] struct {
	timeout time.Duration
	next    atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]chan reply[Resp]

	requests  chan Envelope[Req]
	closed    chan struct{}
	closeOnce sync.Once
}

// NewChannel creates a channel whose calls fail with ErrTimeout after
// timeout. A zero timeout waits indefinitely.
func NewChannel[Req, Resp any](timeout time.Duration, buffer int) *Channel[Req, Resp] {
	return &Channel[Req, Resp]{
		timeout:  timeout,
		pending:  make(map[uint64]chan reply[Resp]),
		requests: make(chan Envelope[Req], buffer),
		closed:   make(chan struct{}),
	}
}

// Requests is the consumer side of the channel.
func (c *Channel[Req, Resp]) Requests() <-chan Envelope[Req] { return c.requests }

// Done is closed when the channel is closed.
func (c *Channel[Req, Resp]) Done() <-chan struct{} { return c.closed }

// Reply delivers the response for id. It reports whether a caller was still
// waiting for it.
func (c *Channel[Req, Resp]) Reply(id uint64, resp Resp, err error) bool {
	c.mu.Lock()
	ch, ok := c.pending[id]
	delete(c.pending, id)
	c.mu.Unlock()
	if !ok {
		return false
	}
	ch <- reply[Resp]{resp: resp, err: err}
	return true
}

// Call sends req and waits for the matching response.
func (c *Channel[Req, Resp]) Call(ctx context.Context, req Req) (Resp, error) {
	var zero Resp
	select {
	case <-c.closed:
		return zero, ErrClosed
	default:
	}

	id := c.next.Add(1)
	ch := make(chan reply[Resp], 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	defer c.forget(id)

	var expired <-chan time.Time
	if c.timeout > 0 {
		timer := time.NewTimer(c.timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case c.requests <- Envelope[Req]{ID: id, Ctx: ctx, Req: req}:
	case <-expired:
		return zero, ErrTimeout
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-c.closed:
		return zero, ErrClosed
	}

	select {
	case r := <-ch:
		return r.resp, r.err
	case <-expired:
		return zero, ErrTimeout
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-c.closed:
		return zero, ErrClosed
	}
}

func (c *Channel[Req, Resp]) forget(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// Pending returns the number of calls waiting for a response.
func (c *Channel[Req, Resp]) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Close fails every waiting and future call with ErrClosed.
func (c *Channel[Req, Resp]) Close() {
	c.closeOnce.Do(func() { close(c.closed) })
}
