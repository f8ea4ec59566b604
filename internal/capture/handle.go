package capture

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// ErrHandleClosed is returned when a handle is used after Close or Release
var ErrHandleClosed = errors.New("handle already closed or released")

// Handle owns one kernel file descriptor delivered by the compositor.
// The descriptor leaves the handle exactly once, through Close, Release or File.
type Handle struct {
	fd int
}

// AdoptHandle takes ownership of fd. It is the only way a raw descriptor
// becomes a Handle.
func AdoptHandle(fd int) (*Handle, error) {
	if fd < 0 {
		return nil, fmt.Errorf("invalid file descriptor %d", fd)
	}
	return &Handle{fd: fd}, nil
}

// Fd returns the descriptor without transferring ownership, or -1 once the
// handle is closed or released.
func (h *Handle) Fd() int {
	if h == nil {
		return -1
	}
	return h.fd
}

// IsOpen reports whether the handle still owns a descriptor the kernel
// considers valid.
func (h *Handle) IsOpen() bool {
	if h == nil || h.fd < 0 {
		return false
	}
	_, err := unix.FcntlInt(uintptr(h.fd), unix.F_GETFD, 0)
	return err == nil
}

// Close closes the descriptor. Closing twice returns ErrHandleClosed and
// never touches a descriptor number the kernel may have reused.
func (h *Handle) Close() error {
	if h == nil || h.fd < 0 {
		return ErrHandleClosed
	}
	fd := h.fd
	h.fd = -1
	if err := unix.Close(fd); err != nil {
		return fmt.Errorf("close fd %d: %w", fd, err)
	}
	return nil
}

// Release hands the raw descriptor to the caller, who becomes responsible
// for closing it.
func (h *Handle) Release() (int, error) {
	if h == nil || h.fd < 0 {
		return -1, ErrHandleClosed
	}
	fd := h.fd
	h.fd = -1
	return fd, nil
}

// File transfers the descriptor into an *os.File
func (h *Handle) File(name string) (*os.File, error) {
	fd, err := h.Release()
	if err != nil {
		return nil, err
	}
	return os.NewFile(uintptr(fd), name), nil
}

func (h *Handle) String() string {
	if h == nil || h.fd < 0 {
		return "fd(closed)"
	}
	return fmt.Sprintf("fd(%d)", h.fd)
}
