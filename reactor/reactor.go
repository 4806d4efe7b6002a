// package reactor is the concrete real-time implementation of the
// toolhead's external event-loop collaborator: monotonic time, timer
// registration, cooperative pause, and one-shot completions.
//
// One goroutine per registered timer waits on a wake channel so an
// UpdateTimer call can interrupt a pending sleep early, the same
// request/response idiom the engraver driver uses for its device I/O
// goroutine and its write mutex.
package reactor

import (
	"math"
	"sync"
	"time"
)

// Time is a monotonic timestamp in seconds since the Reactor started.
type Time float64

// NOW requests immediate firing when passed to UpdateTimer.
const NOW Time = -1

// NEVER disables a timer.
var NEVER = Time(math.Inf(1))

// Reactor drives toolhead timing from the real wall clock.
type Reactor struct {
	start time.Time
}

// New returns a Reactor whose Monotonic clock starts counting from now.
func New() *Reactor {
	return &Reactor{start: time.Now()}
}

// Monotonic returns the current time.
func (r *Reactor) Monotonic() Time {
	return Time(time.Since(r.start).Seconds())
}

func (r *Reactor) durationUntil(at Time) time.Duration {
	return time.Duration((float64(at) - float64(r.Monotonic())) * float64(time.Second))
}

// Pause cooperatively sleeps until until, or returns immediately if it
// has already passed, then returns the new current time.
func (r *Reactor) Pause(until Time) Time {
	if d := r.durationUntil(until); d > 0 {
		time.Sleep(d)
	}
	return r.Monotonic()
}

// Timer is a handle returned by RegisterTimer.
type Timer struct {
	r    *Reactor
	cb   func(Time) Time
	mu   sync.Mutex
	next Time
	wake chan struct{}
	done chan struct{}
}

// RegisterTimer starts a timer disabled (NEVER); cb is invoked when it
// fires and its return value becomes the next scheduled time.
func (r *Reactor) RegisterTimer(cb func(Time) Time) *Timer {
	t := &Timer{
		r:    r,
		cb:   cb,
		next: NEVER,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go t.run()
	return t
}

func (t *Timer) run() {
	for {
		t.mu.Lock()
		next := t.next
		t.mu.Unlock()
		if next == NEVER {
			select {
			case <-t.wake:
				continue
			case <-t.done:
				return
			}
		}
		d := t.r.durationUntil(next)
		if d < 0 {
			d = 0
		}
		timer := time.NewTimer(d)
		select {
		case <-timer.C:
			nt := t.cb(t.r.Monotonic())
			t.mu.Lock()
			t.next = nt
			t.mu.Unlock()
		case <-t.wake:
			timer.Stop()
		case <-t.done:
			timer.Stop()
			return
		}
	}
}

// UpdateTimer reschedules t to fire at at (NOW for immediately, NEVER
// to disable).
func (r *Reactor) UpdateTimer(t *Timer, at Time) {
	if at == NOW {
		at = r.Monotonic()
	}
	t.mu.Lock()
	t.next = at
	t.mu.Unlock()
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// Stop permanently disables t and releases its goroutine.
func (t *Timer) Stop() {
	close(t.done)
}

// Completion is a one-shot signal used to cancel drip moves.
type Completion struct {
	mu   sync.Mutex
	done bool
	ch   chan struct{}
}

// NewCompletion returns an un-fired completion.
func NewCompletion() *Completion {
	return &Completion{ch: make(chan struct{})}
}

// Test reports whether Complete has been called.
func (c *Completion) Test() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Complete fires the completion; safe to call more than once.
func (c *Completion) Complete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.done {
		c.done = true
		close(c.ch)
	}
}

// Wait blocks until Complete is called or deadline passes, reporting
// which happened.
func (c *Completion) Wait(r *Reactor, deadline Time) bool {
	d := r.durationUntil(deadline)
	if d < 0 {
		d = 0
	}
	select {
	case <-c.ch:
		return true
	case <-time.After(d):
		return false
	}
}
