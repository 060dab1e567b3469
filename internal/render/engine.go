// Package render implements the VT output engine: it tracks which part of
// the viewport needs retransmission, negotiates resizes and cursor
// inheritance with the attached terminal, and formats the resulting control
// sequences into the output conduit.
//
// The engine reacts to deltas computed elsewhere; it never inspects the text
// buffer itself. All methods are intended for the single paint goroutine,
// with no internal locking, matching the serialization contract of the
// conduit underneath.
package render

import (
	"errors"
	"image/color"

	"github.com/charmbracelet/colorprofile"
	"github.com/charmbracelet/log"
	uv "github.com/charmbracelet/ultraviolet"

	"vthost/internal/conduit"
	"vthost/internal/vtmode"
)

// phase tracks where the engine is in its paint lifecycle. It replaces a
// pile of one-shot booleans whose combinations were mostly illegal: an
// engine cannot be both waiting for its first paint and negotiating a
// resize.
//
// Transitions:
//
//	phaseFirstPaint --InheritCursor-------> phaseInherited
//	phaseFirstPaint --first EndPaint------> phaseSteady
//	phaseInherited  --first cursor move---> phaseSteady
//	phaseSteady     --BeginResizeRequest--> phaseResizing
//	phaseResizing   --EndResizeRequest----> phaseSteady
type phase int

const (
	// phaseFirstPaint: nothing has been transmitted yet; the first frame
	// clears the terminal and repaints everything.
	phaseFirstPaint phase = iota
	// phaseInherited: the cursor position was inherited from the
	// terminal at attach time. No initial clear is needed and the next
	// cursor move is suppressed, since the cursor is already there.
	phaseInherited
	// phaseSteady: normal frame-by-frame operation.
	phaseSteady
	// phaseResizing: a host-initiated resize negotiation is in flight;
	// buffer-circle events must not trigger repaint broadcasts until it
	// settles.
	phaseResizing
)

// Engine is the VT rendering engine. It owns the output pipe exclusively
// after construction and shares the shutdown signal with its watchdog and
// the orchestrator.
type Engine struct {
	mode    vtmode.Mode
	profile colorprofile.Profile
	out     *conduit.Conduit
	logger  *log.Logger

	// Viewport and the single invalidated rectangle, always clipped to
	// the viewport.
	viewport    uv.Rectangle
	invalid     uv.Rectangle
	invalidUsed bool

	// Last transmitted drawing state, used to elide redundant sequences.
	lastFG     color.Color
	lastBG     color.Color
	lastBold   bool
	brushKnown bool
	lastCursor uv.Position

	// virtualTop is the first row the engine will paint; rows above it
	// belong to the terminal's own scrollback after cursor inheritance.
	virtualTop int

	phase phase
	// suppressResize is a one-shot: the next UpdateViewport call emits no
	// resize sequence. Armed at construction so the engine never echoes
	// the size it was created with back to the terminal.
	suppressResize bool
	resized        bool
	circled        bool

	deferredCursor *uv.Position
	painting       bool
}

// Options configures a new Engine.
type Options struct {
	// Mode selects the output dialect. Must not be vtmode.Invalid.
	Mode vtmode.Mode
	// Pipe is the write end of the VT output pipe. The engine takes
	// exclusive ownership; the handle is not valid for any other use
	// afterwards.
	Pipe conduit.WriteCanceler
	// Signal is the shared shutdown signal.
	Signal *conduit.Signal
	// Viewport is the initial viewport.
	Viewport uv.Rectangle
	// Logger receives debug traces. May be nil.
	Logger *log.Logger
}

// New creates an Engine and starts its shutdown watchdog.
func New(opts Options) (*Engine, error) {
	if opts.Pipe == nil {
		return nil, errors.New("render: output pipe is required")
	}
	if opts.Signal == nil {
		return nil, errors.New("render: shutdown signal is required")
	}
	if opts.Mode == vtmode.Invalid {
		return nil, errors.New("render: invalid VT mode")
	}

	profile := colorprofile.ANSI
	if opts.Mode == vtmode.Xterm256 {
		profile = colorprofile.ANSI256
	}

	e := &Engine{
		mode:           opts.Mode,
		profile:        profile,
		logger:         opts.Logger,
		viewport:       opts.Viewport,
		lastCursor:     uv.Pos(-1, -1),
		phase:          phaseFirstPaint,
		suppressResize: true,
	}
	e.out = conduit.New(opts.Pipe, opts.Signal, opts.Logger)
	return e, nil
}

// Mode returns the output dialect the engine speaks.
func (e *Engine) Mode() vtmode.Mode {
	return e.mode
}

// Watchdog exposes the conduit watchdog for the orchestrator to join during
// teardown.
func (e *Engine) Watchdog() *conduit.Watchdog {
	return e.out.Watchdog()
}

// Close sets the shutdown signal, joins the watchdog, and releases the
// output pipe, in that order.
func (e *Engine) Close() error {
	return e.out.Close()
}

func (e *Engine) debugf(format string, args ...any) {
	if e.logger != nil {
		e.logger.Debugf(format, args...)
	}
}
