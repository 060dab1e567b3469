//go:build !windows

package conduit

import (
	"os"

	"golang.org/x/sys/unix"
)

// NewPipeFileFromFD wraps a raw descriptor inherited from the hosting
// process. The descriptor is switched to non-blocking mode before it is
// handed to the runtime, so it registers with the poller and write deadlines
// (the cancellation mechanism) work. Descriptors arrive blocking across an
// exec boundary, so this has to happen before os.NewFile.
func NewPipeFileFromFD(fd uintptr, name string) *PipeFile {
	_ = unix.SetNonblock(int(fd), true)
	return NewPipeFile(os.NewFile(fd, name))
}

// NewReadFileFromFD wraps a raw read-side descriptor the same way: switched
// to non-blocking first so the runtime poller tracks it and Close unblocks a
// goroutine parked in Read. Without this, a reader on an inherited blocking
// descriptor can never be woken and teardown hangs.
func NewReadFileFromFD(fd uintptr, name string) *os.File {
	_ = unix.SetNonblock(int(fd), true)
	return os.NewFile(fd, name)
}
