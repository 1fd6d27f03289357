package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pixconv/logger"
)

// HandlerFunc does the work for one request on a pool goroutine.
type HandlerFunc[Req, Resp any] func(ctx context.Context, req Req) (Resp, error)

// Pool runs a fixed number of goroutines that serve a correlated Channel.
type Pool[Req, Resp any] struct {
	ch *Channel[Req, Resp]
	wg sync.WaitGroup
}

// NewPool starts size workers. Calls that get no response within timeout
// fail with ErrTimeout; the late result is dropped.
func NewPool[Req, Resp any](size int, timeout time.Duration, fn HandlerFunc[Req, Resp]) *Pool[Req, Resp] {
	if size < 1 {
		size = 1
	}
	p := &Pool[Req, Resp]{ch: NewChannel[Req, Resp](timeout, size)}
	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.run(i, fn)
	}
	return p
}

func (p *Pool[Req, Resp]) run(n int, fn HandlerFunc[Req, Resp]) {
	defer p.wg.Done()
	for {
		select {
		case <-p.ch.Done():
			return
		case env := <-p.ch.Requests():
			resp, err := p.serve(env, fn)
			if !p.ch.Reply(env.ID, resp, err) {
				logger.Debugf("[worker %d] dropped late response for request %d", n, env.ID)
			}
		}
	}
}

func (p *Pool[Req, Resp]) serve(env Envelope[Req], fn HandlerFunc[Req, Resp]) (resp Resp, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panic: %v", r)
		}
	}()
	ctx := env.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, env.Req)
}

// Do submits req and waits for its response.
func (p *Pool[Req, Resp]) Do(ctx context.Context, req Req) (Resp, error) {
	return p.ch.Call(ctx, req)
}

// Close stops the workers and waits for them to exit. In-progress handlers
// finish but their responses are discarded.
func (p *Pool[Req, Resp]) Close() {
	p.ch.Close()
	p.wg.Wait()
}
