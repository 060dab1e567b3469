package render

import (
	"image/color"
	"strings"

	"github.com/charmbracelet/x/ansi"
	uv "github.com/charmbracelet/ultraviolet"
)

// StartPaint opens a frame. On the very first frame the whole viewport is
// invalidated and a clear-screen is queued, unless the cursor was inherited,
// in which case the terminal's existing content is left alone and output
// continues from the inherited position.
//
// It reports whether the frame has any work to do; a caller may skip
// straight to EndPaint when it returns false.
func (e *Engine) StartPaint() bool {
	e.painting = true
	if e.phase == phaseFirstPaint {
		e.InvalidateAll()
		_, _ = e.out.WriteString(seqClearScreen)
	}
	return e.invalidUsed || e.resized || e.circled || e.deferredCursor != nil
}

// EndPaint closes the frame: any deferred cursor move is emitted, the
// accumulated buffer is flushed to the pipe, and the dirty region is reset.
// A flush failure is fatal for the engine; the dirty region is kept so the
// frame is not silently dropped on the floor.
func (e *Engine) EndPaint() error {
	if e.deferredCursor != nil {
		pos := *e.deferredCursor
		e.deferredCursor = nil
		e.emitCursorMove(pos)
	}
	e.painting = false

	if err := e.out.Flush(); err != nil {
		return err
	}

	e.invalid = uv.Rectangle{}
	e.invalidUsed = false
	e.resized = false
	e.circled = false
	if e.phase == phaseFirstPaint {
		e.phase = phaseSteady
	}
	return nil
}

// UpdateDrawingBrush sets the attributes for subsequent text. Nil colors
// select the terminal defaults. The sequence is elided when the brush
// matches what the terminal already has.
func (e *Engine) UpdateDrawingBrush(fg, bg color.Color, bold bool) {
	if e.brushKnown && bold == e.lastBold &&
		colorEqual(fg, e.lastFG) && colorEqual(bg, e.lastBG) {
		return
	}
	_, _ = e.out.WriteString(e.sgr(fg, bg, bold))
	e.lastFG, e.lastBG, e.lastBold = fg, bg, bold
	e.brushKnown = true
}

// PaintBufferLine paints one run of text starting at pos, using the current
// brush. Rows above the virtual top belong to the terminal's scrollback and
// are never painted. The cursor position is tracked through the printed
// width so a following run on the same row needs no explicit move.
func (e *Engine) PaintBufferLine(text string, pos uv.Position) {
	if pos.Y < e.virtualTop {
		return
	}
	e.emitCursorMove(pos)
	out := text
	if !e.mode.UTF8() {
		out = transliterateASCII(text)
	}
	_, _ = e.out.WriteString(out)
	// Track what the terminal actually printed: a transliterated wide
	// rune occupies one column, not two.
	e.lastCursor.X += ansi.StringWidth(out)
}

// EraseLineRight clears from pos to the end of the row using the current
// background.
func (e *Engine) EraseLineRight(pos uv.Position) {
	e.emitCursorMove(pos)
	_, _ = e.out.WriteString(seqEraseLineRight)
}

// transliterateASCII folds text for 7-bit terminals: anything outside the
// printable ASCII range becomes '?'.
func transliterateASCII(s string) string {
	if !strings.ContainsFunc(s, func(r rune) bool { return r > 0x7f }) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r > 0x7f {
			b.WriteByte('?')
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
