package render

import (
	"fmt"

	uv "github.com/charmbracelet/ultraviolet"
)

// InheritCursor adopts the terminal's reported cursor position as the
// engine's starting point. Rows above it are left to the terminal's own
// scrollback, the first full-screen clear is skipped, and the first cursor
// move is elided since the cursor is already where the report says.
//
// Must be called before any paint; after the first frame the call is a
// no-op.
func (e *Engine) InheritCursor(pos uv.Position) {
	if e.phase != phaseFirstPaint {
		e.debugf("render: InheritCursor after first paint ignored")
		return
	}
	e.virtualTop = pos.Y
	e.lastCursor = pos
	e.phase = phaseInherited
}

// VirtualTop returns the first row the engine will paint. Zero unless a
// cursor position was inherited.
func (e *Engine) VirtualTop() int {
	return e.virtualTop
}

// RequestCursor asks the terminal where its cursor is by emitting a DSR 6
// query and flushing immediately. The answer arrives on the input path as a
// cursor position report; the caller is responsible for routing it back to
// InheritCursor.
func (e *Engine) RequestCursor() error {
	if _, err := e.out.WriteString(seqRequestCursor); err != nil {
		return err
	}
	if err := e.out.Flush(); err != nil {
		return fmt.Errorf("flush cursor position request: %w", err)
	}
	return nil
}

// MoveCursor places the cursor at pos. Inside a frame the move is emitted
// immediately; outside one it is deferred to the end of the next frame so a
// host-driven cursor update cannot interleave with paint output.
func (e *Engine) MoveCursor(pos uv.Position) {
	if !e.painting {
		p := pos
		e.deferredCursor = &p
		return
	}
	e.emitCursorMove(pos)
}

// SetCursorVisible shows or hides the terminal cursor.
func (e *Engine) SetCursorVisible(visible bool) {
	if visible {
		_, _ = e.out.WriteString(seqShowCursor)
	} else {
		_, _ = e.out.WriteString(seqHideCursor)
	}
}

// BeginResizeRequest marks the start of a host-initiated resize
// negotiation. Calling it again before EndResizeRequest is a no-op, as is
// calling it before the first frame has been painted.
func (e *Engine) BeginResizeRequest() {
	if e.phase != phaseSteady {
		return
	}
	e.phase = phaseResizing
}

// EndResizeRequest marks the end of a resize negotiation. Redundant calls
// are no-ops.
func (e *Engine) EndResizeRequest() {
	if e.phase != phaseResizing {
		return
	}
	e.phase = phaseSteady
}

// emitCursorMove writes a cursor move unless the cursor is already there.
// The first move after cursor inheritance is consumed silently: the
// terminal's cursor is already at the inherited position.
func (e *Engine) emitCursorMove(pos uv.Position) {
	if e.phase == phaseInherited {
		// Whatever the frame wants first, the terminal cursor is the
		// anchor output must flow from.
		e.phase = phaseSteady
		e.lastCursor = pos
		return
	}
	if pos == e.lastCursor {
		return
	}
	_, _ = e.out.WriteString(cup(pos))
	e.lastCursor = pos
}
