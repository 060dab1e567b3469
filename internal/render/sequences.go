package render

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"github.com/charmbracelet/x/ansi"
	uv "github.com/charmbracelet/ultraviolet"
)

// Control sequences the engine emits. Cursor and erase coordinates are
// 1-based on the wire; uv positions are 0-based.
const (
	seqClearScreen    = "\x1b[2J"
	seqEraseLineRight = "\x1b[K"
	seqRequestCursor  = "\x1b[6n" // DSR 6, answered with a CPR report
	seqShowCursor     = "\x1b[?25h"
	seqHideCursor     = "\x1b[?25l"
)

// xtwinopsResize asks the terminal to resize itself to w columns by h rows.
func xtwinopsResize(w, h int) string {
	return fmt.Sprintf("\x1b[8;%d;%dt", h, w)
}

// cup moves the cursor to pos.
func cup(pos uv.Position) string {
	return fmt.Sprintf("\x1b[%d;%dH", pos.Y+1, pos.X+1)
}

// sgr renders a full attribute reset followed by the given brush. Emitting
// the reset first means the sequence is self-contained and never depends on
// the terminal's current state.
func (e *Engine) sgr(fg, bg color.Color, bold bool) string {
	var b strings.Builder
	b.WriteString("\x1b[0")
	if bold {
		b.WriteString(";1")
	}
	if fg != nil {
		fg = e.profile.Convert(fg)
	}
	if bg != nil {
		bg = e.profile.Convert(bg)
	}
	writeColorParams(&b, fg, 30)
	writeColorParams(&b, bg, 40)
	b.WriteByte('m')
	return b.String()
}

// writeColorParams appends the SGR parameters for one color. base is 30 for
// foreground, 40 for background. A nil color selects the terminal default.
func writeColorParams(b *strings.Builder, c color.Color, base int) {
	switch v := c.(type) {
	case nil:
		b.WriteByte(';')
		b.WriteString(strconv.Itoa(base + 9))
	case ansi.BasicColor:
		n := int(v)
		b.WriteByte(';')
		if n < 8 {
			b.WriteString(strconv.Itoa(base + n))
		} else {
			// Bright variants live in the 90/100 range.
			b.WriteString(strconv.Itoa(base + 60 + n - 8))
		}
	case ansi.IndexedColor:
		fmt.Fprintf(b, ";%d;5;%d", base+8, uint8(v))
	default:
		r, g, bl, _ := c.RGBA()
		fmt.Fprintf(b, ";%d;2;%d;%d;%d", base+8, r>>8, g>>8, bl>>8)
	}
}

// colorEqual compares two colors by value, treating nil as the terminal
// default.
func colorEqual(a, b color.Color) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ar, ag, ab, aa := a.RGBA()
	br, bg, bb, ba := b.RGBA()
	return ar == br && ag == bg && ab == bb && aa == ba
}
