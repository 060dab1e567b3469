package vtio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// Out-of-band signal pipe protocol: each message starts with a
// little-endian uint16 code followed by a code-specific payload.
const (
	// signalResizeWindow carries two little-endian uint16 fields, the
	// new width and height in cells.
	signalResizeWindow uint16 = 8
)

type resizePayload struct {
	SX uint16
	SY uint16
}

// runSignalThread services the out-of-band signal pipe until it closes.
//
// A resize that arrives before the console is connected is stashed and
// replayed at connect; a live resize is applied under the host lock with
// repaint suppression armed, since the terminal already shows the new size.
// End of stream means the terminal went away: the shutdown signal is set and
// the thread exits cleanly. An unknown code is a protocol violation and
// fatal to the thread.
func (h *Host) runSignalThread() error {
	for {
		var code uint16
		if err := binary.Read(h.opts.Signal, binary.LittleEndian, &code); err != nil {
			return h.signalPipeDone(err)
		}
		switch code {
		case signalResizeWindow:
			var p resizePayload
			if err := binary.Read(h.opts.Signal, binary.LittleEndian, &p); err != nil {
				return h.signalPipeDone(err)
			}
			h.handleResizeSignal(int(p.SX), int(p.SY))
		default:
			h.sig.Set()
			return fmt.Errorf("vtio: unknown signal code %d", code)
		}
	}
}

// signalPipeDone maps end-of-pipe conditions to a clean exit with the
// shutdown signal set; anything else is a real read failure.
func (h *Host) signalPipeDone(err error) error {
	h.sig.Set()
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) || errors.Is(err, os.ErrClosed) {
		return nil
	}
	return fmt.Errorf("signal pipe read: %w", err)
}

func (h *Host) handleResizeSignal(w, ht int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.logger != nil {
		h.logger.Debug("terminal resize signal", "w", w, "h", ht)
	}
	if !h.connected {
		h.stashedResize = &resizeEvent{w: w, h: ht}
		return
	}
	h.applyResizeLocked(w, ht)
}
