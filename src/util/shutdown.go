package util

import (
	"errors"
	"sync"
)

// ErrShutdown is the reason recorded by Request(nil).
var ErrShutdown = errors.New("shutdown requested")

// Shutdown is a process-wide, set-once request to stop. Nothing is aborted
// when it is set: every pending continuation is expected to check Requested
// immediately before it writes a file, launches a process or schedules a
// retry, and to return silently if it is set.
type Shutdown struct {
	once   sync.Once
	done   chan struct{}
	mutex  sync.RWMutex
	reason error
}

// NewShutdown returns a Shutdown that has not been requested yet.
func NewShutdown() *Shutdown {
	return &Shutdown{done: make(chan struct{})}
}

// Request sets the flag and closes the channel returned by Done. It returns
// true only for the call that actually set it; later calls keep the first
// reason.
func (s *Shutdown) Request(reason error) bool {
	if reason == nil {
		reason = ErrShutdown
	}
	first := false
	s.once.Do(func() {
		s.mutex.Lock()
		s.reason = reason
		s.mutex.Unlock()
		close(s.done)
		first = true
	})
	return first
}

// Requested reports whether Request has been called.
func (s *Shutdown) Requested() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Done returns a channel which is closed by the first call to Request.
func (s *Shutdown) Done() <-chan struct{} {
	return s.done
}

// Reason returns the error given to the first Request, or nil.
func (s *Shutdown) Reason() error {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.reason
}
