// Package dispatch implements the single-consumer FIFO action worker
// (spec.md §4.3): a bounded queue of named actions drained sequentially by
// one goroutine, with an idle flag for self-repeating actions to check
// before enqueuing a redundant repeat.
package dispatch

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"msagent/internal/actions"
	"msagent/internal/hid"
)

// job is one queued unit of work (spec.md §3 action queue item
// `(action_name, args)`).
type job struct {
	name string
	fn   actions.Func
	args actions.Args
}

// Dispatcher drains queued actions onto a single hid.Transport, one at a
// time, in FIFO order (spec.md §5 Ownership: the transport and its tracked
// cursor are owned exclusively by this worker goroutine).
type Dispatcher struct {
	transport *hid.Transport
	library   actions.Library
	queue     chan job
	idle      int32 // atomic bool: 1 when queue is empty and nothing in flight

	mu    sync.Mutex
	depth int
}

// New returns a Dispatcher with the given queue capacity, draining into
// transport using library to resolve action names.
func New(transport *hid.Transport, library actions.Library, capacity int) *Dispatcher {
	return &Dispatcher{
		transport: transport,
		library:   library,
		queue:     make(chan job, capacity),
		idle:      1,
	}
}

// Run drains the queue until ctx is cancelled. It is meant to be the sole
// goroutine ever reading from d.queue.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-d.queue:
			atomic.StoreInt32(&d.idle, 0)
			d.mu.Lock()
			d.depth--
			d.mu.Unlock()

			log.Printf("[dispatch] running: %s", j.name)
			d.safeRun(j)
			log.Printf("[dispatch] done: %s", j.name)

			d.mu.Lock()
			empty := d.depth == 0
			d.mu.Unlock()
			if empty {
				atomic.StoreInt32(&d.idle, 1)
			}
		}
	}
}

// safeRun recovers a panicking action so one bad gesture can't kill the
// single dispatcher goroutine (spec.md §7 Action panic).
func (d *Dispatcher) safeRun(j job) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[dispatch] action %s panicked: %v", j.name, r)
		}
	}()
	j.fn(d.transport, j.args)
}

// Dispatch enqueues action unconditionally, carrying args through to the
// action so it can (re)apply calibration before running (spec.md §4.2). If
// the queue is full, the action is dropped and logged rather than blocking
// the caller (spec.md §5 Backpressure: the control loop's classify cadence
// must never stall on a full action queue).
func (d *Dispatcher) Dispatch(name string, args actions.Args) {
	fn, ok := d.library[name]
	if !ok {
		log.Printf("[dispatch] unknown action: %s", name)
		return
	}
	d.mu.Lock()
	select {
	case d.queue <- job{name: name, fn: fn, args: args}:
		d.depth++
		atomic.StoreInt32(&d.idle, 0)
		d.mu.Unlock()
		log.Printf("[dispatch] enqueue: %s (depth=%d)", name, d.Depth())
	default:
		d.mu.Unlock()
		log.Printf("[dispatch] queue full, dropped: %s", name)
	}
}

// DispatchIfIdle enqueues action only if the worker is currently idle
// (queue empty and nothing in flight); otherwise it's silently skipped.
// This is the only rate-limiting mechanism, used exclusively for the
// self-repeating `play_turn` action during IN-PLAY (spec.md §4.3).
func (d *Dispatcher) DispatchIfIdle(name string, args actions.Args) {
	if atomic.LoadInt32(&d.idle) == 1 {
		d.Dispatch(name, args)
		return
	}
	log.Printf("[dispatch] skip (busy): %s", name)
}

// Idle reports whether the worker is currently idle.
func (d *Dispatcher) Idle() bool { return atomic.LoadInt32(&d.idle) == 1 }

// Depth returns the number of actions currently queued (not counting one
// in flight).
func (d *Dispatcher) Depth() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.depth
}
