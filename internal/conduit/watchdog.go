package conduit

import (
	"sync/atomic"

	"github.com/charmbracelet/log"
)

// Watchdog turns "a write that will never return because the peer stopped
// reading" into "a write that fails promptly". One watchdog runs per conduit,
// started at construction; its entire job is to wait for the shutdown signal
// and then cancel whatever write is in flight.
//
// The blocked-writer slot is read exactly once, after the signal fires. A
// write that starts a moment later is covered by Flush's own pre-check, not
// by the watchdog retrying.
type Watchdog struct {
	sig    *Signal
	slot   *atomic.Pointer[WriteCanceler]
	done   chan struct{}
	logger *log.Logger
}

func newWatchdog(sig *Signal, slot *atomic.Pointer[WriteCanceler], logger *log.Logger) *Watchdog {
	w := &Watchdog{
		sig:    sig,
		slot:   slot,
		done:   make(chan struct{}),
		logger: logger,
	}
	go w.run()
	return w
}

func (w *Watchdog) run() {
	defer close(w.done)
	<-w.sig.Done()

	if p := w.slot.Load(); p != nil {
		if err := (*p).CancelWrite(); err != nil && w.logger != nil {
			w.logger.Debug("watchdog: cancel pending write", "err", err)
		}
	}
}

// Wait blocks until the watchdog has observed the shutdown signal and exited.
// It must be called during teardown, after the signal is set and before the
// pipe handle is released.
func (w *Watchdog) Wait() {
	<-w.done
}
