package conduit

import (
	"bytes"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/charmbracelet/log"
)

// Conduit buffers formatted output and flushes it to the terminal pipe with a
// single blocking write. Writes and flushes are serialized by contract: only
// the paint goroutine touches the buffer, so no internal locking is provided.
// The one piece of cross-goroutine state is the blocked-writer slot, which the
// watchdog reads after the shutdown signal fires.
type Conduit struct {
	pipe WriteCanceler
	sig  *Signal
	buf  bytes.Buffer

	// blocked holds the pipe while a flush is inside the blocking write.
	// Written immediately before and cleared immediately after each
	// attempt; read once by the watchdog.
	blocked atomic.Pointer[WriteCanceler]

	wd *Watchdog
}

// New creates a Conduit over the given pipe and starts its watchdog. The
// conduit takes ownership of the pipe; sig is shared with the caller.
func New(pipe WriteCanceler, sig *Signal, logger *log.Logger) *Conduit {
	c := &Conduit{pipe: pipe, sig: sig}
	c.wd = newWatchdog(sig, &c.blocked, logger)
	return c
}

// Write appends p to the accumulation buffer. It never blocks and never
// touches the pipe.
func (c *Conduit) Write(p []byte) (int, error) {
	return c.buf.Write(p)
}

// WriteString appends s to the accumulation buffer.
func (c *Conduit) WriteString(s string) (int, error) {
	return c.buf.WriteString(s)
}

// Buffered returns the number of bytes waiting to be flushed.
func (c *Conduit) Buffered() int {
	return c.buf.Len()
}

// Flush writes the whole buffer to the pipe in one synchronous write.
//
// If the shutdown signal is already set the flush reports success without
// touching the pipe: shutdown supersedes delivery. A write failure,
// including one forced by the watchdog cancelling a stuck write, is fatal
// for this engine instance: the shutdown signal is set and the error is
// returned. On success the buffer is empty.
func (c *Conduit) Flush() error {
	if c.sig.IsSet() {
		return nil
	}
	if c.buf.Len() == 0 {
		return nil
	}

	c.blocked.Store(&c.pipe)
	_, err := c.pipe.Write(c.buf.Bytes())
	c.blocked.Store(nil)

	c.buf.Reset()
	if err != nil {
		c.sig.Set()
		return fmt.Errorf("vt output pipe write: %w", err)
	}
	return nil
}

// Close sets the shutdown signal, waits for the watchdog to observe it and
// exit, and then releases the pipe. The order matters: the handle must stay
// valid until the watchdog can no longer reference it.
func (c *Conduit) Close() error {
	c.sig.Set()
	c.wd.Wait()
	if closer, ok := c.pipe.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Watchdog exposes the conduit's watchdog so the orchestrator can join it
// during teardown.
func (c *Conduit) Watchdog() *Watchdog {
	return c.wd
}
