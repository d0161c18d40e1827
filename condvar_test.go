package condvar

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
	"gotest.tools/v3/assert"

	"github.com/daichitakahashi/condvar/internal/testutil"
)

func newCond(t *testing.T, opts ...*NewOption) *Cond {
	t.Helper()

	c, err := New(opts...)
	assert.NilError(t, err)
	return c
}

// stubFatalf replaces process termination with a recorded message for
// the duration of the test. Tests using it must not run in parallel.
func stubFatalf(t *testing.T) *string {
	t.Helper()

	var (
		msg  string
		orig = fatalf
	)
	fatalf = func(format string, args ...any) {
		msg = fmt.Sprintf(format, args...)
	}
	t.Cleanup(func() {
		fatalf = orig
	})
	return &msg
}

func TestAwait(t *testing.T) {
	t.Parallel()

	var (
		c     = newCond(t)
		mu    sync.Mutex
		ready bool
		eg    errgroup.Group
	)

	eg.Go(func() error {
		mu.Lock()
		defer mu.Unlock()
		c.Await(&mu, func() bool { return ready })
		if !ready {
			return fmt.Errorf("await returned with ready=false")
		}
		return nil
	})

	time.Sleep(time.Millisecond * 100)
	mu.Lock()
	ready = true
	mu.Unlock()
	c.Signal()

	assert.NilError(t, eg.Wait())
}

func TestSignal_DrainsWaiters(t *testing.T) {
	t.Parallel()

	var (
		c    = newCond(t)
		n    = 5
		eg   errgroup.Group
		done = make(chan struct{})
	)

	for i := 0; i < n; i++ {
		eg.Go(func() error {
			// The external lock may be any Locker, one per caller.
			var mu sync.Mutex
			mu.Lock()
			c.Wait(&mu)
			mu.Unlock()
			return nil
		})
	}

	// Signals sent before a waiter blocks are lost, so keep signaling
	// until everyone woke up. At least one blocked waiter wakes per
	// call, so this terminates.
	go func() {
		defer close(done)
		_ = eg.Wait()
	}()
	for {
		select {
		case <-done:
			return
		case <-time.After(time.Millisecond):
			c.Signal()
		}
	}
}

func TestBroadcast_WakesAllWaiters(t *testing.T) {
	t.Parallel()

	var (
		c     = newCond(t)
		mu    sync.Mutex
		ready bool
		n     = 5
		eg    errgroup.Group
		out   = testutil.NewSafeBuffer()
	)

	for i := 0; i < n; i++ {
		eg.Go(func() error {
			mu.Lock()
			defer mu.Unlock()
			c.Await(&mu, func() bool { return ready })
			fmt.Fprintln(out, "woke")
			return nil
		})
	}

	time.Sleep(time.Millisecond * 100)
	mu.Lock()
	ready = true
	mu.Unlock()
	c.Broadcast()

	assert.NilError(t, eg.Wait())
	assert.DeepEqual(t, out.String(), "woke\nwoke\nwoke\nwoke\nwoke\n")
}

func TestWaitFor_NonPositiveDuration(t *testing.T) {
	t.Parallel()

	var (
		c  = newCond(t)
		mu sync.Mutex
	)

	for _, d := range []time.Duration{0, -time.Second} {
		mu.Lock()
		start := time.Now()
		st := c.WaitFor(&mu, d)
		elapsed := time.Since(start)

		assert.Equal(t, st, Timeout)
		// Never blocks(allowing scheduling slack).
		assert.Assert(t, elapsed < time.Second, "elapsed: %s", elapsed)
		// The external lock is held on return.
		assert.Assert(t, !mu.TryLock())
		mu.Unlock()
	}
}

func TestWaitFor_Timeout(t *testing.T) {
	t.Parallel()

	var (
		c  = newCond(t)
		mu sync.Mutex
	)

	mu.Lock()
	st := c.WaitFor(&mu, time.Millisecond*100)
	assert.Equal(t, st, Timeout)
	assert.Assert(t, !mu.TryLock())
	mu.Unlock()
}

func TestWaitFor_Clamped(t *testing.T) {
	// Stubs maxRelTime, so no t.Parallel().
	orig := maxRelTime
	maxRelTime = time.Millisecond * 50
	t.Cleanup(func() {
		maxRelTime = orig
	})

	var (
		c  = newCond(t)
		mu sync.Mutex
	)

	// The underlying wait expires at the clamped deadline, but a
	// clamped wait never reports Timeout.
	mu.Lock()
	st := c.WaitFor(&mu, time.Hour)
	assert.Equal(t, st, NoTimeout)
	assert.Assert(t, !mu.TryLock())
	mu.Unlock()
}

func TestAwaitUntil(t *testing.T) {
	t.Parallel()

	t.Run("condition met before deadline", func(t *testing.T) {
		t.Parallel()

		var (
			c     = newCond(t)
			mu    sync.Mutex
			ready bool
			eg    errgroup.Group
		)

		eg.Go(func() error {
			mu.Lock()
			defer mu.Unlock()
			ok := c.AwaitUntil(&mu, func() bool { return ready }, time.Now().Add(time.Minute))
			if !ok {
				return fmt.Errorf("await timed out unexpectedly")
			}
			if !ready {
				return fmt.Errorf("await returned with ready=false")
			}
			return nil
		})

		time.Sleep(time.Millisecond * 100)
		mu.Lock()
		ready = true
		mu.Unlock()
		c.Signal()

		assert.NilError(t, eg.Wait())
	})

	t.Run("deadline elapsed", func(t *testing.T) {
		t.Parallel()

		var (
			c  = newCond(t)
			mu sync.Mutex
		)

		mu.Lock()
		ok := c.AwaitFor(&mu, func() bool { return false }, time.Millisecond*100)
		assert.Assert(t, !ok)
		assert.Assert(t, !mu.TryLock())
		mu.Unlock()
	})
}

func TestClose_DuringWait(t *testing.T) {
	t.Parallel()

	var (
		c     = newCond(t)
		mu    sync.Mutex
		ready bool
		eg    errgroup.Group
	)

	eg.Go(func() error {
		mu.Lock()
		defer mu.Unlock()
		c.Await(&mu, func() bool { return ready })
		return nil
	})

	// Let the waiter block, then wake it and close the Cond right away.
	// The waiter still holds its own reference to the internal state,
	// so its wakeup path stays valid.
	time.Sleep(time.Millisecond * 100)
	mu.Lock()
	ready = true
	mu.Unlock()
	c.Broadcast()
	c.Close()

	assert.NilError(t, eg.Wait())
}

func TestWait_OnClosed(t *testing.T) {
	msg := stubFatalf(t)

	var (
		c  = newCond(t)
		mu sync.Mutex
	)
	c.Close()

	mu.Lock()
	c.Wait(&mu)
	mu.Unlock()
	assert.Equal(t, *msg, "condvar: wait on closed condition variable")

	*msg = ""
	mu.Lock()
	st := c.WaitFor(&mu, time.Second)
	mu.Unlock()
	assert.Equal(t, st, Timeout)
	assert.Equal(t, *msg, "condvar: timed wait on closed condition variable")
}

// faultyLocker fails to re-acquire after its first use.
type faultyLocker struct {
	mu     sync.Mutex
	locked bool
}

func (l *faultyLocker) Lock() {
	if l.locked {
		panic("lock is poisoned")
	}
	l.mu.Lock()
	l.locked = true
}

func (l *faultyLocker) Unlock() {
	l.mu.Unlock()
}

func TestWaitFor_RelockFailure(t *testing.T) {
	msg := stubFatalf(t)

	var (
		c = newCond(t)
		l faultyLocker
	)

	l.Lock()
	_ = c.WaitFor(&l, time.Millisecond*100)
	assert.Equal(t, *msg, "condvar: failed to re-acquire caller's lock: lock is poisoned")
}

func TestNotifyAtExit(t *testing.T) {
	t.Parallel()

	var (
		c     = newCond(t)
		mu    sync.Mutex
		ready bool
	)

	mu.Lock()
	go func() {
		mu.Lock()
		defer NotifyAtExit(c, &mu)()
		ready = true
	}()

	c.Await(&mu, func() bool { return ready })
	assert.Assert(t, ready)
	mu.Unlock()
}

func TestStatus_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, NoTimeout.String(), "no timeout")
	assert.Equal(t, Timeout.String(), "timeout")
	assert.Equal(t, Status(2).String(), "condvar.Status(2)")
}
