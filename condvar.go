// Package condvar provides a condition variable that works with any
// lock satisfying [sync.Locker], supports timed waits, and stays safe
// for waiters that are still blocked when the variable is closed.
package condvar

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/option"

	"github.com/daichitakahashi/condvar/internal/park"
)

type (
	// Cond is a condition variable. Unlike [sync.Cond], the lock guarding
	// the awaited state is not fixed at construction: every wait call
	// receives the caller's own [sync.Locker].
	//
	// A Cond must not be copied after first use. Use [New].
	Cond struct {
		noCopy noCopy

		// Shared with in-flight waiters. Each blocking call captures its
		// own reference before touching anything else, so the cell stays
		// alive for the duration of the wait even if the Cond's owner
		// drops it and calls Close.
		_cell *cell

		_name    string
		_journal Journal
	}

	// cell bundles the parking handle with the internal mutex that
	// serializes every access to it.
	cell struct {
		_m sync.Mutex
		_h park.Handle
	}
)

// Journal records wait/notify traffic of a [Cond] for later inspection.
// Implementations must be safe for concurrent use. See the events package.
type Journal interface {
	WaitStarted(cond, waiter string, caller string) error
	WaitFinished(cond, waiter string, caller string, timedOut bool) error
	Notified(cond string, caller string, broadcast bool) error
}

type (
	// NewOption represents an option for [New].
	NewOption struct {
		option.Interface
	}
	identOptionName    struct{}
	identOptionJournal struct{}
)

// WithName specifies the identifier used as the journal key.
// Without this option, a fresh UUID is used.
func WithName(name string) *NewOption {
	return &NewOption{
		Interface: option.New(identOptionName{}, name),
	}
}

// WithJournal enables recording of wait/notify events.
// Journal failures never affect wait semantics.
func WithJournal(j Journal) *NewOption {
	return &NewOption{
		Interface: option.New(identOptionJournal{}, j),
	}
}

// New creates a ready-to-use [Cond].
// The error is the initialization failure of the underlying parking
// primitive, propagated as is.
func New(opts ...*NewOption) (*Cond, error) {
	c := &Cond{
		_cell: &cell{},
		_name: uuid.NewString(),
	}

	// Apply options.
	for _, opt := range opts {
		switch opt.Ident() {
		case identOptionName{}:
			c._name = opt.Value().(string)
		case identOptionJournal{}:
			c._journal = opt.Value().(Journal)
		}
	}

	if err := park.Init(&c._cell._h); err != nil {
		return nil, err
	}
	return c, nil
}

// Close releases the condition variable.
// Goroutines already blocked in a wait keep their own reference to the
// internal state and remain memory-safe, but Close does not wake them:
// issue a final [Cond.Broadcast] before closing if waiters may still be
// blocked. Starting new waits or notifies once Close has begun is a
// caller error.
func (c *Cond) Close() {
	cl := c._cell
	cl._m.Lock()
	park.Destroy(&cl._h)
	cl._m.Unlock()
}

// Signal wakes one goroutine blocked on c, if there is any.
// Which waiter wakes among several is unspecified.
func (c *Cond) Signal() {
	cl := c._cell
	cl._m.Lock()
	park.Signal(&cl._h)
	cl._m.Unlock()

	if c._journal != nil {
		_ = c._journal.Notified(c._name, callsite(), false)
	}
}

// Broadcast wakes all goroutines blocked on c.
func (c *Cond) Broadcast() {
	cl := c._cell
	cl._m.Lock()
	park.Broadcast(&cl._h)
	cl._m.Unlock()

	if c._journal != nil {
		_ = c._journal.Notified(c._name, callsite(), true)
	}
}

// Wait atomically releases l and blocks the calling goroutine until a
// wakeup arrives, then re-acquires l before returning.
// Wakeups may be spurious with respect to the awaited state; callers
// re-check their condition in a loop, or use [Cond.Await].
func (c *Cond) Wait(l sync.Locker) {
	// Keep the internal mutex and handle alive even if the Cond's owner
	// closes it while this goroutine is blocked.
	cl := c._cell

	var out park.Outcome
	func() {
		cl._m.Lock()
		defer cl._m.Unlock()

		w := c.waitStarted()
		l.Unlock()
		out = park.Wait(&cl._h, &cl._m)
		if out == park.Signaled {
			c.waitFinished(w, false)
		}
	}()

	relock(l)
	if out != park.Signaled {
		fatalf("condvar: wait on closed condition variable")
	}
}

// Await calls [Cond.Wait] until cond returns true.
// cond is always evaluated with l held, so a true return is observed
// under the caller's lock.
func (c *Cond) Await(l sync.Locker, cond func() bool) {
	for !cond() {
		c.Wait(l)
	}
}

// Status is the outcome of a timed wait.
type Status int

const (
	// NoTimeout means the wait finished because of a wakeup.
	NoTimeout Status = iota
	// Timeout means the deadline passed first.
	Timeout
)

func (s Status) String() string {
	switch s {
	case NoTimeout:
		return "no timeout"
	case Timeout:
		return "timeout"
	default:
		return fmt.Sprintf("condvar.Status(%d)", int(s))
	}
}

// Deadlines further away than this are clamped, defending against
// overflow in deadline arithmetic. A clamped wait never reports
// Timeout; the caller observes a spurious wakeup instead.
var maxRelTime = 10 * 24 * time.Hour // Stubbed in tests.

// WaitFor is [Cond.Wait] with a relative timeout.
//
// With d <= 0 it releases and immediately re-acquires l and reports
// Timeout, without ever blocking. The deadline is computed against the
// wall clock once, on entry; monotonicity across system clock
// adjustments is not guaranteed.
func (c *Cond) WaitFor(l sync.Locker, d time.Duration) Status {
	if d <= 0 {
		// Keep the locking discipline consistent with a blocking wait:
		// the caller always observes release-then-reacquire.
		l.Unlock()
		relock(l)
		return Timeout
	}

	clamped := d > maxRelTime
	if clamped {
		d = maxRelTime
	}
	st := c.waitDeadline(l, time.Now().Add(d))
	if clamped {
		return NoTimeout
	}
	return st
}

// WaitUntil is [Cond.Wait] with an absolute deadline.
// The deadline is converted to a relative duration on entry and
// inherits the clamping and wall-clock caveats of [Cond.WaitFor].
func (c *Cond) WaitUntil(l sync.Locker, deadline time.Time) Status {
	return c.WaitFor(l, time.Until(deadline))
}

// AwaitFor is [Cond.Await] with a relative timeout.
// It reports whether cond was observed true with l held; false is
// returned only after a timeout with cond still false at that instant.
func (c *Cond) AwaitFor(l sync.Locker, cond func() bool, d time.Duration) bool {
	return c.AwaitUntil(l, cond, time.Now().Add(d))
}

// AwaitUntil is [Cond.Await] with an absolute deadline.
func (c *Cond) AwaitUntil(l sync.Locker, cond func() bool, deadline time.Time) bool {
	for !cond() {
		if c.WaitUntil(l, deadline) == Timeout {
			return cond()
		}
	}
	return true
}

// waitDeadline performs one timed wait. It always re-acquires l before
// returning and translates the primitive's outcome into exactly two
// results; anything else cannot happen on a live Cond and is escalated.
func (c *Cond) waitDeadline(l sync.Locker, deadline time.Time) Status {
	cl := c._cell

	var out park.Outcome
	func() {
		cl._m.Lock()
		defer cl._m.Unlock()

		w := c.waitStarted()
		l.Unlock()
		out = park.TimedWait(&cl._h, &cl._m, deadline)
		if out != park.Invalid {
			c.waitFinished(w, out == park.TimedOut)
		}
	}()

	relock(l)
	switch out {
	case park.Signaled:
		return NoTimeout
	case park.TimedOut:
		return Timeout
	default:
		fatalf("condvar: timed wait on closed condition variable")
		return Timeout // Unreachable.
	}
}

// NotifyAtExit arranges for c to be broadcast when the calling
// goroutine finishes. Defer the returned function at the top of the
// goroutine; when it runs, l (which the caller must hold) is released
// and then c is broadcast.
func NotifyAtExit(c *Cond, l sync.Locker) func() {
	return func() {
		l.Unlock()
		c.Broadcast()
	}
}

// waitStarted records the start of a wait, returning the waiter id.
// Called with the internal mutex held.
func (c *Cond) waitStarted() string {
	if c._journal == nil {
		return ""
	}
	w := uuid.NewString()
	_ = c._journal.WaitStarted(c._name, w, callsite())
	return w
}

// waitFinished records the end of a wait. Called with the internal
// mutex held, before the external lock is re-acquired.
func (c *Cond) waitFinished(waiter string, timedOut bool) {
	if c._journal == nil {
		return
	}
	_ = c._journal.WaitFinished(c._name, waiter, callsite(), timedOut)
}

// relock re-acquires the caller's lock after a wait. The wait
// operations are contractually non-failing past their suspension
// point, so a Lock that panics leaves no way to report the failure:
// the process terminates.
func relock(l sync.Locker) {
	defer func() {
		if r := recover(); r != nil {
			fatalf("condvar: failed to re-acquire caller's lock: %v", r)
		}
	}()
	l.Lock()
}

// Stubbed in tests.
var fatalf = func(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(2)
}

// noCopy triggers go vet's copylocks check.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
