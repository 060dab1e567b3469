package conduit

import (
	"io"
	"os"
	"time"
)

// WriteCanceler is the write end of the output pipe. CancelWrite must force a
// Write blocked in another goroutine to return promptly with an error; it is
// only ever called by the watchdog after the shutdown signal fires.
type WriteCanceler interface {
	io.Writer
	CancelWrite() error
}

// PipeFile adapts an *os.File pipe end to the WriteCanceler interface.
//
// Cancellation uses write deadlines through the runtime poller, which needs
// the descriptor in non-blocking mode; NewPipeFile arranges that where the
// platform allows. For descriptors the poller cannot track, CancelWrite
// falls back to closing the file, which also unsticks the writer but makes
// the handle unusable afterwards. That is acceptable: cancellation only
// happens on the shutdown path.
type PipeFile struct {
	f        *os.File
	pollable bool
}

// NewPipeFile wraps f for use as the engine's output pipe. The file is owned
// by the returned PipeFile from here on.
func NewPipeFile(f *os.File) *PipeFile {
	return &PipeFile{f: f, pollable: makePollable(f)}
}

// Write performs one synchronous write of p to the pipe.
func (p *PipeFile) Write(b []byte) (int, error) {
	return p.f.Write(b)
}

// CancelWrite aborts any write currently blocked on the pipe.
func (p *PipeFile) CancelWrite() error {
	if p.pollable {
		return p.f.SetWriteDeadline(time.Now())
	}
	return p.f.Close()
}

// Close releases the underlying file.
func (p *PipeFile) Close() error {
	return p.f.Close()
}

// Name returns the name of the underlying file, for logging.
func (p *PipeFile) Name() string {
	return p.f.Name()
}

// makePollable probes whether the runtime poller tracks the file; only then
// are write deadlines usable for cancellation.
func makePollable(f *os.File) bool {
	return f.SetWriteDeadline(time.Time{}) == nil
}
