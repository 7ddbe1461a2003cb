package mmap

import (
	"os"
	"syscall"
	"unsafe"
)

var (
	modkernel32          = syscall.NewLazyDLL("kernel32.dll")
	procFlushViewOfFile  = modkernel32.NewProc("FlushViewOfFile")
)

// On Windows, dirty mmap'ed pages must be flushed to the file mapping
// before FlushFileBuffers makes them durable.
func fdatasync(f *os.File, mapping []byte) error {
	if mapping != nil {
		r, _, err := procFlushViewOfFile.Call(uintptr(unsafe.Pointer(&mapping[0])), uintptr(len(mapping)))
		if r == 0 {
			return os.NewSyscallError("FlushViewOfFile", err)
		}
	}
	return f.Sync()
}
