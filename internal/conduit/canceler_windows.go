//go:build windows

package conduit

import "os"

// NewPipeFileFromFD wraps a raw handle inherited from the hosting process.
// Windows pipe handles are not tracked by the runtime poller, so CancelWrite
// falls back to closing the handle; see PipeFile.
func NewPipeFileFromFD(fd uintptr, name string) *PipeFile {
	return NewPipeFile(os.NewFile(fd, name))
}

// NewReadFileFromFD wraps a raw read-side handle. No mode change is needed
// here; closing the handle is what unblocks a pending read.
func NewReadFileFromFD(fd uintptr, name string) *os.File {
	return os.NewFile(fd, name)
}
