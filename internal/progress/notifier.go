// Package progress throttles download progress into a bounded stream of
// status-message edits.
package progress

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Func receives raw byte counts. total <= 0 means the size is unknown.
type Func func(done, total int64)

// Notifier accepts progress from a single producer and forwards whole
// percentages to sink from a single goroutine. Updates below step, or above
// the rate limit, are dropped; 100% is always delivered. Because only the
// latest pending value is kept, the sink never sees values out of order.
type Notifier struct {
	sink    func(percent int)
	step    int
	limiter *rate.Limiter

	mu     sync.Mutex
	closed bool
	ch     chan int
	done   chan struct{}
}

// New starts a notifier. every <= 0 disables the time-based limit.
func New(step int, every time.Duration, sink func(percent int)) *Notifier {
	if step < 1 {
		step = 1
	}
	lim := rate.NewLimiter(rate.Inf, 1)
	if every > 0 {
		lim = rate.NewLimiter(rate.Every(every), 1)
	}
	n := &Notifier{
		sink:    sink,
		step:    step,
		limiter: lim,
		ch:      make(chan int, 1),
		done:    make(chan struct{}),
	}
	go n.loop()
	return n
}

// Report is a Func. It never blocks.
func (n *Notifier) Report(done, total int64) {
	if total <= 0 {
		return
	}
	pct := int(done * 100 / total)
	if pct > 100 {
		pct = 100
	}
	if pct < 0 {
		pct = 0
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	select {
	case n.ch <- pct:
	default:
		// replace the stale pending value
		select {
		case <-n.ch:
		default:
		}
		n.ch <- pct
	}
}

// Close stops accepting updates and waits for the sink to finish.
func (n *Notifier) Close() {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.ch)
	}
	n.mu.Unlock()
	<-n.done
}

func (n *Notifier) loop() {
	defer close(n.done)
	last := -1
	for pct := range n.ch {
		if pct <= last {
			continue
		}
		if pct != 100 {
			if last >= 0 && pct-last < n.step {
				continue
			}
			if !n.limiter.Allow() {
				continue
			}
		}
		last = pct
		n.sink(pct)
	}
}
