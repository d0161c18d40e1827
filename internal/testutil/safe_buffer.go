package testutil

import (
	"bytes"
	"sync"
)

// SafeBuffer collects output from concurrently running goroutines,
// typically to assert the order of wakeups.
type SafeBuffer struct {
	_m sync.Mutex
	_b bytes.Buffer
}

func NewSafeBuffer() *SafeBuffer {
	return &SafeBuffer{}
}

func (s *SafeBuffer) Write(p []byte) (int, error) {
	s._m.Lock()
	defer s._m.Unlock()
	return s._b.Write(p)
}

func (s *SafeBuffer) String() string {
	s._m.Lock()
	defer s._m.Unlock()
	return s._b.String()
}
