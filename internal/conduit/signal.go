// Package conduit carries formatted VT output from the render engine to the
// terminal pipe. It owns the accumulation buffer, the single blocking flush,
// the shared shutdown signal, and the watchdog that unsticks a flush blocked
// on a pipe nobody is reading anymore.
package conduit

import "sync"

// Signal is a one-shot broadcast shutdown signal shared by the render engine,
// the watchdog, and the I/O orchestrator. Setting it is idempotent and every
// waiter observes it; it is never unset.
type Signal struct {
	once sync.Once
	done chan struct{}
}

// NewSignal returns an unset Signal.
func NewSignal() *Signal {
	return &Signal{done: make(chan struct{})}
}

// Set fires the signal. Safe to call from any goroutine, any number of times.
func (s *Signal) Set() {
	s.once.Do(func() { close(s.done) })
}

// Done returns a channel that is closed once the signal fires.
func (s *Signal) Done() <-chan struct{} {
	return s.done
}

// IsSet reports whether the signal has fired.
func (s *Signal) IsSet() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
