package conduit

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// countingPipe records writes without blocking.
type countingPipe struct {
	mu      sync.Mutex
	writes  int
	payload []byte
}

func (p *countingPipe) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writes++
	p.payload = append(p.payload, b...)
	return len(b), nil
}

func (p *countingPipe) CancelWrite() error { return nil }

func (p *countingPipe) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writes
}

// stuckPipe blocks every write until CancelWrite is called, mimicking a pipe
// whose reader has gone away.
type stuckPipe struct {
	cancel chan struct{}
	once   sync.Once
}

func newStuckPipe() *stuckPipe {
	return &stuckPipe{cancel: make(chan struct{})}
}

func (p *stuckPipe) Write(b []byte) (int, error) {
	<-p.cancel
	return 0, errors.New("write cancelled")
}

func (p *stuckPipe) CancelWrite() error {
	p.once.Do(func() { close(p.cancel) })
	return nil
}

// failingPipe fails every write immediately.
type failingPipe struct{}

func (failingPipe) Write(b []byte) (int, error) { return 0, errors.New("broken pipe") }
func (failingPipe) CancelWrite() error          { return nil }

func TestFlushWritesWholeBuffer(t *testing.T) {
	pipe := &countingPipe{}
	sig := NewSignal()
	c := New(pipe, sig, nil)
	defer c.Close()

	_, _ = c.WriteString("\x1b[2J")
	_, _ = c.WriteString("hello")

	if err := c.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if pipe.count() != 1 {
		t.Errorf("expected a single write, got %d", pipe.count())
	}
	if got := string(pipe.payload); got != "\x1b[2Jhello" {
		t.Errorf("payload = %q", got)
	}
	if c.Buffered() != 0 {
		t.Errorf("buffer not cleared after flush: %d bytes", c.Buffered())
	}
}

func TestFlushAfterShutdownIsNoOp(t *testing.T) {
	pipe := &countingPipe{}
	sig := NewSignal()
	c := New(pipe, sig, nil)

	_, _ = c.WriteString("data")
	sig.Set()

	if err := c.Flush(); err != nil {
		t.Fatalf("Flush after shutdown should succeed, got %v", err)
	}
	if pipe.count() != 0 {
		t.Errorf("flush after shutdown touched the pipe: %d writes", pipe.count())
	}
}

func TestFlushEmptyBufferSkipsPipe(t *testing.T) {
	pipe := &countingPipe{}
	c := New(pipe, NewSignal(), nil)
	defer c.Close()

	if err := c.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if pipe.count() != 0 {
		t.Errorf("empty flush performed a write")
	}
}

func TestFlushFailureSetsShutdownSignal(t *testing.T) {
	sig := NewSignal()
	c := New(failingPipe{}, sig, nil)

	_, _ = c.WriteString("data")
	if err := c.Flush(); err == nil {
		t.Fatal("expected flush error")
	}
	if !sig.IsSet() {
		t.Error("write failure must set the shutdown signal")
	}
	if c.Buffered() != 0 {
		t.Error("buffer must be cleared after a failed attempt")
	}
}

// TestWatchdogUnsticksBlockedWrite is the core cancellation scenario: a flush
// blocked on a dead pipe must return with an error within bounded time once
// the shutdown signal fires.
func TestWatchdogUnsticksBlockedWrite(t *testing.T) {
	pipe := newStuckPipe()
	sig := NewSignal()
	c := New(pipe, sig, nil)

	_, _ = c.WriteString("data")

	flushed := make(chan error, 1)
	go func() { flushed <- c.Flush() }()

	// Give the flush a moment to enter the blocking write.
	time.Sleep(20 * time.Millisecond)
	sig.Set()

	select {
	case err := <-flushed:
		if err == nil {
			t.Fatal("cancelled flush must report failure")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("flush still blocked after shutdown signal")
	}

	if !sig.IsSet() {
		t.Error("shutdown signal must remain set")
	}
	c.Watchdog().Wait()
}

func TestWatchdogExitsWhenIdle(t *testing.T) {
	pipe := &countingPipe{}
	sig := NewSignal()
	c := New(pipe, sig, nil)

	sig.Set()

	done := make(chan struct{})
	go func() {
		c.Watchdog().Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watchdog did not exit after signal with no blocked writer")
	}
}

func TestSignalIdempotentAndBroadcast(t *testing.T) {
	sig := NewSignal()
	if sig.IsSet() {
		t.Fatal("fresh signal must be unset")
	}

	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-sig.Done()
		}()
	}

	sig.Set()
	sig.Set() // redundant set must be safe
	wg.Wait()

	if !sig.IsSet() {
		t.Error("signal should report set")
	}
}
