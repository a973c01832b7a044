package booking

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	mailboxSize = 32

	// limiterTimeout bounds one Allow call; a timeout counts as a limiter failure.
	limiterTimeout = 500 * time.Millisecond
)

// Limiter throttles typed input per client.
type Limiter interface {
	Allow(ctx context.Context, clientID int64) (bool, error)
}

// Dispatcher serializes events per client: one worker goroutine per client
// with pending events, so two events of the same client never run concurrently
// while different clients proceed in parallel.
type Dispatcher struct {
	ctx       context.Context
	log       *zap.Logger
	limiter   Limiter
	handle    func(context.Context, Event)
	throttled func(context.Context, Event)

	mu      sync.Mutex
	workers map[int64]*worker
	wg      sync.WaitGroup
}

type worker struct {
	mailbox chan Event
	pending int
}

// NewDispatcher creates a Dispatcher. handle is called for accepted events,
// throttled for typed events the limiter rejected. limiter may be nil.
func NewDispatcher(ctx context.Context, log *zap.Logger, limiter Limiter, handle, throttled func(context.Context, Event)) *Dispatcher {
	return &Dispatcher{
		ctx:       ctx,
		log:       log.Named("dispatcher"),
		limiter:   limiter,
		handle:    handle,
		throttled: throttled,
		workers:   make(map[int64]*worker),
	}
}

// Submit queues ev for its client. It never blocks: if the client's mailbox is
// full the event is dropped. It reports whether the event was queued.
// Throttling happens later in the client's worker, so a slow limiter only
// delays that client.
func (d *Dispatcher) Submit(ev Event) bool {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	w, ok := d.workers[ev.ClientID]
	if !ok {
		w = &worker{mailbox: make(chan Event, mailboxSize)}
		d.workers[ev.ClientID] = w
		d.wg.Add(1)
		go d.run(ev.ClientID, w)
	}
	select {
	case w.mailbox <- ev:
		w.pending++
		return true
	default:
		d.log.Warn("client mailbox full, dropping event",
			zap.Int64("client_id", ev.ClientID),
			zap.Stringer("event", ev.Kind),
			zap.String("event_id", ev.ID))
		return false
	}
}

func (d *Dispatcher) run(clientID int64, w *worker) {
	defer d.wg.Done()
	for ev := range w.mailbox {
		if d.admit(ev) {
			d.handle(d.ctx, ev)
		} else if d.throttled != nil {
			d.throttled(d.ctx, ev)
		}

		d.mu.Lock()
		w.pending--
		if w.pending == 0 {
			delete(d.workers, clientID)
			d.mu.Unlock()
			return
		}
		d.mu.Unlock()
	}
}

// admit asks the limiter about typed events. Errors and timeouts let the event through.
func (d *Dispatcher) admit(ev Event) bool {
	if !ev.Typed || d.limiter == nil {
		return true
	}
	ctx, cancel := context.WithTimeout(d.ctx, limiterTimeout)
	defer cancel()

	ok, err := d.limiter.Allow(ctx, ev.ClientID)
	if err != nil {
		d.log.Warn("rate limiter failed, letting event through",
			zap.Int64("client_id", ev.ClientID), zap.Error(err))
		return true
	}
	return ok
}

// Wait blocks until every queued event has been handled.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
