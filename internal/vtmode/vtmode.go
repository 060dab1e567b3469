// Package vtmode maps a VT mode configuration string to one of the output
// dialects the render engine can speak.
package vtmode

import "fmt"

// Mode identifies the output dialect used when rendering to the attached
// terminal.
type Mode int

const (
	// Invalid means no usable VT mode was selected.
	Invalid Mode = iota
	// Xterm256 is UTF-8 output with the extended capability set, including
	// 256-color SGR sequences. This is the default.
	Xterm256
	// Xterm is UTF-8 xterm-compatible output restricted to the 16 base
	// colors.
	Xterm
	// XtermASCII is 7-bit safe output: xterm sequences, but every rune
	// outside the ASCII range is transliterated before transmission.
	XtermASCII
)

// Mode strings accepted by Parse. The empty string selects the default.
const (
	Xterm256String   = "xterm-256color"
	XtermString      = "xterm"
	XtermASCIIString = "xterm-ascii"
	DefaultString    = ""
)

// String returns the canonical configuration string for the mode.
func (m Mode) String() string {
	switch m {
	case Xterm256:
		return Xterm256String
	case Xterm:
		return XtermString
	case XtermASCII:
		return XtermASCIIString
	default:
		return "invalid"
	}
}

// UTF8 reports whether the mode transmits UTF-8 text as-is.
func (m Mode) UTF8() bool {
	return m == Xterm256 || m == Xterm
}

// Parse maps a configuration string to a Mode. Matching is case-sensitive
// and exact. Unknown strings return Invalid and an error; no other state is
// touched, so callers can keep their previous mode on failure.
func Parse(s string) (Mode, error) {
	switch s {
	case Xterm256String, DefaultString:
		return Xterm256, nil
	case XtermString:
		return Xterm, nil
	case XtermASCIIString:
		return XtermASCII, nil
	default:
		return Invalid, fmt.Errorf("invalid VT mode %q", s)
	}
}
