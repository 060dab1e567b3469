package vtio

import (
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	uv "github.com/charmbracelet/ultraviolet"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/cancelreader"

	"vthost/internal/conduit"
)

// inputReader drains the VT input pipe through a cancellable reader and an
// escape-sequence parser. Its one semantic job is spotting the cursor
// position report (CSI row ; col R) the terminal sends in answer to the
// DSR 6 query; everything else is parsed and discarded, which keeps the
// pipe from backing up.
type inputReader struct {
	cr     cancelreader.CancelReader
	parser *ansi.Parser
	logger *log.Logger
	cursor chan uv.Position
}

func newInputReader(r io.Reader, logger *log.Logger) (*inputReader, error) {
	cr, err := cancelreader.NewReader(r)
	if err != nil {
		return nil, err
	}
	ir := &inputReader{
		cr:     cr,
		parser: ansi.NewParser(),
		logger: logger,
		cursor: make(chan uv.Position, 1),
	}
	ir.parser.SetHandler(ansi.Handler{
		HandleCsi: ir.handleCsi,
	})
	return ir, nil
}

func (ir *inputReader) handleCsi(cmd ansi.Cmd, params ansi.Params) {
	// Cursor position report: plain CSI, final byte 'R'. The prefixed
	// variant (DECXCPR) is not what DSR 6 elicits.
	if cmd.Final() != 'R' || cmd.Prefix() != 0 {
		return
	}
	row, _, _ := params.Param(0, 1)
	col, _, _ := params.Param(1, 1)
	// Reports are 1-based.
	select {
	case ir.cursor <- uv.Pos(col-1, row-1):
	default:
	}
}

// readOnce performs one blocking read and feeds the bytes to the parser.
func (ir *inputReader) readOnce() error {
	var buf [4096]byte
	n, err := ir.cr.Read(buf[:])
	for i := range n {
		ir.parser.Advance(buf[i])
	}
	return err
}

// AwaitCursor pumps the input pipe until a cursor position report arrives
// or the shutdown signal fires.
func (ir *inputReader) AwaitCursor(sig *conduit.Signal) (uv.Position, error) {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-sig.Done():
			ir.cr.Cancel()
		case <-stop:
		}
	}()

	for {
		select {
		case pos := <-ir.cursor:
			return pos, nil
		default:
		}
		if err := ir.readOnce(); err != nil {
			// The report may have landed in the same read that
			// errored out.
			select {
			case pos := <-ir.cursor:
				return pos, nil
			default:
			}
			return uv.Position{}, fmt.Errorf("await cursor report: %w", err)
		}
	}
}

// Run drains the pipe until cancellation or pipe failure. EOF means the
// terminal went away and is reported by the returned error's caller through
// the shutdown signal, not as an errgroup failure.
func (ir *inputReader) Run(sig *conduit.Signal) error {
	for {
		err := ir.readOnce()
		if err == nil {
			continue
		}
		if errors.Is(err, cancelreader.ErrCanceled) {
			return nil
		}
		if errors.Is(err, io.EOF) {
			sig.Set()
			return nil
		}
		sig.Set()
		return fmt.Errorf("vt input pipe read: %w", err)
	}
}

// Cancel unblocks a read in flight.
func (ir *inputReader) Cancel() {
	ir.cr.Cancel()
}

// Close releases the underlying reader.
func (ir *inputReader) Close() error {
	return ir.cr.Close()
}
