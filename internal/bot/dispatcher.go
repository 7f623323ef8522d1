package bot

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog/log"
)

const maxQueuedPerUser = 32

// Dispatcher runs each user's events in order on a goroutine of their own.
// The goroutine exits once the user's queue drains.
type Dispatcher struct {
	base    context.Context
	handle  func(context.Context, Event)
	preempt func(Event) bool

	mu    sync.Mutex
	users map[int64]*userQueue
	wg    sync.WaitGroup
}

type userQueue struct {
	events []Event
	cancel context.CancelFunc // of the event being handled
}

// NewDispatcher returns a dispatcher whose handlers run under ctx. When
// preempt reports true for an incoming event, the user's running event is
// canceled so the new one does not wait behind it.
func NewDispatcher(ctx context.Context, handle func(context.Context, Event), preempt func(Event) bool) *Dispatcher {
	return &Dispatcher{base: ctx, handle: handle, preempt: preempt, users: make(map[int64]*userQueue)}
}

func (d *Dispatcher) Dispatch(ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	q, running := d.users[ev.UserID]
	if !running {
		q = &userQueue{}
		d.users[ev.UserID] = q
	}
	if len(q.events) >= maxQueuedPerUser {
		log.Warn().Int64("uid", ev.UserID).Msg("dropping event: user queue full")
		return
	}
	q.events = append(q.events, ev)
	if d.preempt != nil && q.cancel != nil && d.preempt(ev) {
		q.cancel()
	}
	if !running {
		d.wg.Add(1)
		go d.run(ev.UserID, q)
	}
}

func (d *Dispatcher) run(userID int64, q *userQueue) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		if len(q.events) == 0 {
			delete(d.users, userID)
			d.mu.Unlock()
			return
		}
		ev := q.events[0]
		q.events = q.events[1:]
		ctx, cancel := context.WithCancel(d.base)
		q.cancel = cancel
		d.mu.Unlock()

		d.safeHandle(ctx, ev)

		d.mu.Lock()
		q.cancel = nil
		d.mu.Unlock()
		cancel()
	}
}

func (d *Dispatcher) safeHandle(ctx context.Context, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Int64("uid", ev.UserID).Interface("panic", r).Bytes("stack", debug.Stack()).Msg("event handler panicked")
		}
	}()
	d.handle(ctx, ev)
}

// Active reports users with queued or running events.
func (d *Dispatcher) Active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.users)
}

// Wait blocks until every user queue has drained.
func (d *Dispatcher) Wait() { d.wg.Wait() }
