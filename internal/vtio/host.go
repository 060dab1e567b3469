// Package vtio coordinates the I/O lifecycle of the VT host: it validates
// the pipe handles it is given, builds the render engine over the output
// pipe, runs the input and signal service goroutines, and tears everything
// down in an order that cannot leak a handle out from under a blocked write.
package vtio

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"
	uv "github.com/charmbracelet/ultraviolet"
	"golang.org/x/sync/errgroup"

	"vthost/internal/conduit"
	"vthost/internal/render"
	"vthost/internal/vtmode"
)

// State is the lifecycle state of a Host. Transitions only move forward.
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateHandlersCreated
	StateRunning
	StateShuttingDown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateHandlersCreated:
		return "handlers-created"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting-down"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrMissingOutput is returned by Initialize when VT output was requested
// without an output handle to write it to.
var ErrMissingOutput = errors.New("vtio: output handle required")

// Options carries the pipe endpoints and settings handed to the host by the
// hosting process.
type Options struct {
	// Mode is the VT dialect string, as accepted by vtmode.Parse. Empty
	// selects the default dialect.
	Mode string
	// Input is the read end of the VT input pipe. Optional; without it no
	// cursor-inheritance handshake happens.
	Input io.ReadCloser
	// Output is the write end of the VT output pipe. Required. The host's
	// engine takes exclusive ownership at CreateIoHandlers.
	Output conduit.WriteCanceler
	// Signal is the read end of the out-of-band signal pipe. Optional.
	Signal io.ReadCloser
	// Size is the initial viewport.
	Size uv.Rectangle
	// OnResize is invoked (under the host lock) when the signal pipe
	// delivers a window resize. Optional.
	OnResize func(w, h int)
	// Logger receives lifecycle and debug traces. May be nil.
	Logger *log.Logger
}

// Host owns the VT I/O threads and the render engine. All engine access is
// serialized through the host lock; external callers paint frames via
// WithEngine.
type Host struct {
	mu    sync.Mutex
	state State

	opts   Options
	mode   vtmode.Mode
	logger *log.Logger
	sig    *conduit.Signal

	engine *render.Engine
	input  *inputReader
	group  errgroup.Group

	// A resize that arrives before the console is connected is stashed
	// and replayed at connect time.
	connected     bool
	stashedResize *resizeEvent
}

type resizeEvent struct {
	w, h int
}

// NewHost creates a Host over the given endpoints. Nothing is validated or
// started until Initialize.
func NewHost(opts Options) *Host {
	return &Host{
		opts:   opts,
		logger: opts.Logger,
		sig:    conduit.NewSignal(),
	}
}

// State returns the host's lifecycle state.
func (h *Host) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Signal exposes the shared shutdown signal.
func (h *Host) Signal() *conduit.Signal {
	return h.sig
}

// Initialize validates the configuration: the mode string must parse and an
// output handle must be present. Configuration errors are synchronous and
// leave the host unusable but safe to Close.
func (h *Host) Initialize() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != StateUninitialized {
		return h.stateErrorLocked("Initialize", StateUninitialized)
	}

	mode, err := vtmode.Parse(h.opts.Mode)
	if err != nil {
		return err
	}
	if h.opts.Output == nil {
		return ErrMissingOutput
	}

	h.mode = mode
	h.state = StateInitialized
	return nil
}

// CreateIoHandlers builds the render engine over the output pipe. From here
// on the output handle belongs to the engine exclusively.
func (h *Host) CreateIoHandlers() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != StateInitialized {
		return h.stateErrorLocked("CreateIoHandlers", StateInitialized)
	}

	engine, err := render.New(render.Options{
		Mode:     h.mode,
		Pipe:     h.opts.Output,
		Signal:   h.sig,
		Viewport: h.opts.Size,
		Logger:   h.logger,
	})
	if err != nil {
		return err
	}
	h.engine = engine
	h.state = StateHandlersCreated
	return nil
}

// CreateAndStartSignalThread starts the goroutine servicing the out-of-band
// signal pipe. A host without a signal pipe succeeds without starting
// anything.
func (h *Host) CreateAndStartSignalThread() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != StateHandlersCreated {
		return h.stateErrorLocked("CreateAndStartSignalThread", StateHandlersCreated)
	}
	if h.opts.Signal == nil {
		return nil
	}
	h.group.Go(h.runSignalThread)
	return nil
}

// StartIfNeeded transitions the host to running. The first call performs the
// cursor-inheritance handshake (emit a DSR 6 query, pump the input pipe
// until the terminal's cursor position report arrives), then marks the
// console connected, replaying any stashed resize, and leaves the input
// reader draining in the background. Subsequent calls are no-ops, and so is
// a call on a host whose handlers were never set up: there is nothing to
// start.
func (h *Host) StartIfNeeded() error {
	h.mu.Lock()
	if h.state != StateHandlersCreated {
		h.mu.Unlock()
		return nil
	}

	if h.opts.Input != nil {
		r, err := newInputReader(h.opts.Input, h.logger)
		if err != nil {
			h.mu.Unlock()
			return fmt.Errorf("vt input reader: %w", err)
		}
		h.input = r
	}
	h.state = StateRunning
	engine, input := h.engine, h.input
	h.mu.Unlock()

	if input != nil {
		h.mu.Lock()
		err := engine.RequestCursor()
		h.mu.Unlock()
		if err != nil {
			return err
		}
		pos, err := input.AwaitCursor(h.sig)
		if err != nil {
			// No report is not fatal: the first frame simply clears
			// the screen instead of continuing in place.
			if h.logger != nil {
				h.logger.Debug("cursor inheritance handshake failed", "err", err)
			}
		} else {
			h.mu.Lock()
			engine.InheritCursor(pos)
			h.mu.Unlock()
		}
		h.group.Go(func() error { return input.Run(h.sig) })
	}

	h.connectConsole()
	return nil
}

// connectConsole marks the hosting buffer attached and replays a resize
// stashed by the signal thread before the attach.
func (h *Host) connectConsole() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connected = true
	if s := h.stashedResize; s != nil {
		h.stashedResize = nil
		h.applyResizeLocked(s.w, s.h)
	}
}

// WithEngine runs fn with exclusive access to the render engine. This is how
// the hosting paint loop brackets its frames without racing the signal
// thread.
func (h *Host) WithEngine(fn func(*render.Engine)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.engine != nil {
		fn(h.engine)
	}
}

// SuppressResizeRepaint arms the engine's one-shot resize suppression.
func (h *Host) SuppressResizeRepaint() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.engine != nil {
		h.engine.SuppressNextResize()
	}
}

// SetCursorPosition hands the terminal's reported cursor position to the
// engine. Only meaningful before the first frame; later calls are ignored by
// the engine.
func (h *Host) SetCursorPosition(pos uv.Position) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.engine != nil {
		h.engine.InheritCursor(pos)
	}
}

// BeginResize brackets the start of a host-initiated resize negotiation.
func (h *Host) BeginResize() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.engine != nil {
		h.engine.BeginResizeRequest()
	}
}

// EndResize brackets the end of a host-initiated resize negotiation.
func (h *Host) EndResize() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.engine != nil {
		h.engine.EndResizeRequest()
	}
}

// applyResizeLocked pushes a terminal-initiated resize into the engine and
// up to the hosting buffer. The engine must not echo the new size back, so
// the suppression one-shot is armed first.
func (h *Host) applyResizeLocked(w, ht int) {
	if h.engine == nil {
		return
	}
	h.engine.SuppressNextResize()
	if h.opts.OnResize != nil {
		h.opts.OnResize(w, ht)
	}
	if err := h.engine.UpdateViewport(uv.Rect(0, 0, w, ht)); err != nil && h.logger != nil {
		h.logger.Error("apply terminal resize", "err", err)
	}
}

// Close shuts the host down: set the shutdown signal, unstick and join every
// owned goroutine and the engine watchdog, then release the handles,
// strictly in that order. Safe to call more than once.
func (h *Host) Close() error {
	h.mu.Lock()
	if h.state == StateStopped {
		h.mu.Unlock()
		return nil
	}
	h.state = StateShuttingDown
	input := h.input
	engine := h.engine
	h.mu.Unlock()

	h.sig.Set()
	if input != nil {
		input.Cancel()
	}
	// Unblocks a signal thread parked in a pipe read.
	var errs []error
	if h.opts.Signal != nil {
		if err := h.opts.Signal.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if err := h.group.Wait(); err != nil {
		errs = append(errs, err)
	}
	if engine != nil {
		// Joins the watchdog before the output handle goes away.
		if err := engine.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if input != nil {
		if err := input.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	h.mu.Lock()
	h.state = StateStopped
	h.mu.Unlock()
	return errors.Join(errs...)
}

func (h *Host) stateErrorLocked(op string, want State) error {
	return fmt.Errorf("vtio: %s requires state %s, host is %s", op, want, h.state)
}
