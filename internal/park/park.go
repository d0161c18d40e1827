// Package park implements the waiter-parking primitive underneath a
// condition variable: a queue of blocked waiters with signal, broadcast
// and (timed) wait operations.
//
// A Handle is not safe for concurrent use by itself. The owner
// serializes every operation through a single mutex, and passes that
// same mutex to [Wait]/[TimedWait] so it can be released for the
// duration of the block.
package park

import (
	"container/list"
	"errors"
	"sync"
	"time"
)

type (
	// Handle holds the waiters currently blocked on one condition variable.
	Handle struct {
		_waiters   *list.List
		_destroyed bool
	}

	waiter struct {
		_ready chan struct{}
	}
)

// Outcome is the result of a wait operation.
type Outcome int

const (
	// Signaled means the waiter was woken by Signal or Broadcast.
	Signaled Outcome = iota
	// TimedOut means the deadline passed before a wakeup arrived.
	TimedOut
	// Invalid means the wait was attempted on a destroyed Handle.
	// Callers treat this as an unrecoverable condition.
	Invalid
)

// Init prepares h for use.
func Init(h *Handle) error {
	if h._waiters != nil {
		return errors.New("park: handle already initialized")
	}
	h._waiters = list.New()
	return nil
}

// Destroy releases h. Waiters still blocked at this point keep their
// own ready channels and stay memory-safe, but will not be woken.
func Destroy(h *Handle) {
	h._destroyed = true
	h._waiters = nil
}

// Signal wakes the waiter at the front of the queue, if any.
// Queue order is an implementation detail, not a fairness guarantee.
func Signal(h *Handle) {
	if h._waiters == nil {
		return
	}
	if e := h._waiters.Front(); e != nil {
		h._waiters.Remove(e)
		close(e.Value.(*waiter)._ready)
	}
}

// Broadcast wakes every waiter currently in the queue.
func Broadcast(h *Handle) {
	if h._waiters == nil {
		return
	}
	for {
		e := h._waiters.Front()
		if e == nil {
			break // No more waiters blocked.
		}
		h._waiters.Remove(e)
		close(e.Value.(*waiter)._ready)
	}
}

// Wait blocks the calling goroutine until h is signaled.
// mu must be held on entry; it is released while blocked and held
// again on return, so enqueueing and waking are atomic with respect
// to Signal/Broadcast callers holding mu.
func Wait(h *Handle, mu *sync.Mutex) Outcome {
	if h._destroyed {
		return Invalid
	}
	w := &waiter{_ready: make(chan struct{})}
	h._waiters.PushBack(w)

	mu.Unlock()
	<-w._ready
	mu.Lock()
	return Signaled
}

// TimedWait is [Wait] with an absolute deadline.
func TimedWait(h *Handle, mu *sync.Mutex, deadline time.Time) Outcome {
	if h._destroyed {
		return Invalid
	}
	w := &waiter{_ready: make(chan struct{})}
	e := h._waiters.PushBack(w)

	t := time.NewTimer(time.Until(deadline))
	defer t.Stop()

	mu.Unlock()
	var out Outcome
	select {
	case <-w._ready:
		out = Signaled
	case <-t.C:
		out = TimedOut
	}
	mu.Lock()

	if out == TimedOut {
		select {
		case <-w._ready:
			// A signal landed while the timer was firing and already
			// dequeued this waiter. The wakeup was consumed, report it.
			out = Signaled
		default:
			if h._waiters != nil {
				h._waiters.Remove(e)
			}
		}
	}
	return out
}
