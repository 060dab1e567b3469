package vtio

import (
	"encoding/binary"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	uv "github.com/charmbracelet/ultraviolet"
)

type recordPipe struct {
	mu      sync.Mutex
	payload []byte
}

func (p *recordPipe) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payload = append(p.payload, b...)
	return len(b), nil
}

func (p *recordPipe) CancelWrite() error { return nil }

func (p *recordPipe) String() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return string(p.payload)
}

func TestLifecycleHappyPath(t *testing.T) {
	h := NewHost(Options{
		Mode:   "",
		Output: &recordPipe{},
		Size:   uv.Rect(0, 0, 80, 24),
	})

	steps := []struct {
		name string
		call func() error
		want State
	}{
		{"Initialize", h.Initialize, StateInitialized},
		{"CreateIoHandlers", h.CreateIoHandlers, StateHandlersCreated},
		{"CreateAndStartSignalThread", h.CreateAndStartSignalThread, StateHandlersCreated},
		{"StartIfNeeded", h.StartIfNeeded, StateRunning},
		{"StartIfNeeded again", h.StartIfNeeded, StateRunning},
	}
	for _, step := range steps {
		if err := step.call(); err != nil {
			t.Fatalf("%s: %v", step.name, err)
		}
		if got := h.State(); got != step.want {
			t.Fatalf("after %s state = %v, want %v", step.name, got, step.want)
		}
	}

	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := h.State(); got != StateStopped {
		t.Errorf("after Close state = %v", got)
	}
	if err := h.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestInitializeRejectsUnknownMode(t *testing.T) {
	h := NewHost(Options{Mode: "vt52", Output: &recordPipe{}})
	if err := h.Initialize(); err == nil {
		t.Fatal("expected an error for an unknown mode string")
	}
	if got := h.State(); got != StateUninitialized {
		t.Errorf("failed Initialize must not advance state, got %v", got)
	}
}

func TestInitializeRequiresOutput(t *testing.T) {
	h := NewHost(Options{Mode: "xterm"})
	if err := h.Initialize(); !errors.Is(err, ErrMissingOutput) {
		t.Fatalf("err = %v, want ErrMissingOutput", err)
	}
}

func TestOutOfOrderCallsRejected(t *testing.T) {
	h := NewHost(Options{Output: &recordPipe{}})

	if err := h.CreateIoHandlers(); err == nil {
		t.Error("CreateIoHandlers before Initialize must fail")
	}
	// A host that was never set up for VT has nothing to start; the call
	// succeeds without side effects.
	if err := h.StartIfNeeded(); err != nil {
		t.Errorf("StartIfNeeded without handlers must be a no-op, got %v", err)
	}
	if got := h.State(); got != StateUninitialized {
		t.Errorf("no-op StartIfNeeded must not advance state, got %v", got)
	}
	if err := h.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := h.Initialize(); err == nil {
		t.Error("second Initialize must fail")
	}
}

func TestCursorInheritanceHandshake(t *testing.T) {
	pipe := &recordPipe{}
	h := NewHost(Options{
		Output: pipe,
		Input:  io.NopCloser(strings.NewReader("\x1b[6;4R")),
		Size:   uv.Rect(0, 0, 80, 24),
	})
	t.Cleanup(func() { _ = h.Close() })

	if err := h.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := h.CreateIoHandlers(); err != nil {
		t.Fatalf("CreateIoHandlers: %v", err)
	}
	if err := h.StartIfNeeded(); err != nil {
		t.Fatalf("StartIfNeeded: %v", err)
	}

	if got := pipe.String(); !strings.Contains(got, "\x1b[6n") {
		t.Errorf("handshake must emit a DSR 6 query, got %q", got)
	}
	h.mu.Lock()
	top := h.engine.VirtualTop()
	h.mu.Unlock()
	if top != 5 {
		t.Errorf("virtual top = %d, want 5 (report row 6)", top)
	}
}

func TestSignalThreadResize(t *testing.T) {
	sigR, sigW := io.Pipe()
	resized := make(chan [2]int, 1)
	pipe := &recordPipe{}
	h := NewHost(Options{
		Output:   pipe,
		Signal:   sigR,
		Size:     uv.Rect(0, 0, 80, 24),
		OnResize: func(w, ht int) { resized <- [2]int{w, ht} },
	})
	t.Cleanup(func() { _ = h.Close() })

	if err := h.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := h.CreateIoHandlers(); err != nil {
		t.Fatalf("CreateIoHandlers: %v", err)
	}
	if err := h.CreateAndStartSignalThread(); err != nil {
		t.Fatalf("CreateAndStartSignalThread: %v", err)
	}
	if err := h.StartIfNeeded(); err != nil {
		t.Fatalf("StartIfNeeded: %v", err)
	}

	writeResize(t, sigW, 100, 30)

	select {
	case got := <-resized:
		if got != [2]int{100, 30} {
			t.Errorf("resize = %v, want [100 30]", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("resize signal never reached the host")
	}

	// The terminal initiated this resize; the engine must not echo it.
	if got := pipe.String(); strings.Contains(got, "\x1b[8;") {
		t.Errorf("terminal-initiated resize was echoed back: %q", got)
	}
}

func TestResizeBeforeConnectIsStashed(t *testing.T) {
	sigR, sigW := io.Pipe()
	resized := make(chan [2]int, 1)
	h := NewHost(Options{
		Output:   &recordPipe{},
		Signal:   sigR,
		Size:     uv.Rect(0, 0, 80, 24),
		OnResize: func(w, ht int) { resized <- [2]int{w, ht} },
	})
	t.Cleanup(func() { _ = h.Close() })

	if err := h.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := h.CreateIoHandlers(); err != nil {
		t.Fatalf("CreateIoHandlers: %v", err)
	}
	if err := h.CreateAndStartSignalThread(); err != nil {
		t.Fatalf("CreateAndStartSignalThread: %v", err)
	}

	writeResize(t, sigW, 132, 43)

	// Wait for the signal thread to stash it; the console is not
	// connected yet, so OnResize must not have fired.
	deadline := time.Now().Add(2 * time.Second)
	for {
		h.mu.Lock()
		stashed := h.stashedResize != nil
		h.mu.Unlock()
		if stashed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("resize was never stashed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	select {
	case got := <-resized:
		t.Fatalf("resize %v delivered before connect", got)
	default:
	}

	if err := h.StartIfNeeded(); err != nil {
		t.Fatalf("StartIfNeeded: %v", err)
	}
	select {
	case got := <-resized:
		if got != [2]int{132, 43} {
			t.Errorf("replayed resize = %v, want [132 43]", got)
		}
	default:
		t.Fatal("stashed resize was not replayed on connect")
	}
}

func TestUnknownSignalCodeIsFatal(t *testing.T) {
	sigR, sigW := io.Pipe()
	h := NewHost(Options{
		Output: &recordPipe{},
		Signal: sigR,
		Size:   uv.Rect(0, 0, 80, 24),
	})

	if err := h.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := h.CreateIoHandlers(); err != nil {
		t.Fatalf("CreateIoHandlers: %v", err)
	}
	if err := h.CreateAndStartSignalThread(); err != nil {
		t.Fatalf("CreateAndStartSignalThread: %v", err)
	}

	if err := binary.Write(sigW, binary.LittleEndian, uint16(9999)); err != nil {
		t.Fatalf("write signal: %v", err)
	}

	select {
	case <-h.Signal().Done():
	case <-time.After(2 * time.Second):
		t.Fatal("protocol violation must set the shutdown signal")
	}

	if err := h.Close(); err == nil || !strings.Contains(err.Error(), "unknown signal code") {
		t.Errorf("Close should surface the protocol error, got %v", err)
	}
}

func writeResize(t *testing.T, w io.Writer, width, height int) {
	t.Helper()
	msg := struct {
		Code   uint16
		SX, SY uint16
	}{signalResizeWindow, uint16(width), uint16(height)}
	if err := binary.Write(w, binary.LittleEndian, msg); err != nil {
		t.Fatalf("write resize signal: %v", err)
	}
}
