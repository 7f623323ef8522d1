package transform

import (
	"context"
	"sync/atomic"
)

// Pool bounds how many jobs run at once. Callers beyond the limit wait in
// line until a slot frees or their context ends.
type Pool struct {
	next  Runner
	slots chan struct{}

	running atomic.Int64
	waiting atomic.Int64
}

func NewPool(next Runner, size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{next: next, slots: make(chan struct{}, size)}
}

func (p *Pool) Transform(ctx context.Context, job Job) error {
	p.waiting.Add(1)
	select {
	case p.slots <- struct{}{}:
		p.waiting.Add(-1)
	case <-ctx.Done():
		p.waiting.Add(-1)
		return &Error{Kind: KindCanceled, ExitCode: -1, Err: ctx.Err()}
	}
	p.running.Add(1)
	defer func() {
		p.running.Add(-1)
		<-p.slots
	}()
	return p.next.Transform(ctx, job)
}

// Load reports running and queued jobs.
func (p *Pool) Load() (running, waiting int) {
	return int(p.running.Load()), int(p.waiting.Load())
}

func (p *Pool) Size() int { return cap(p.slots) }
