package hymofs

import (
	"fmt"
)

// KernelHandle is an exclusively-owned privileged file descriptor to the
// kernel extension. It is not safe for concurrent protocol calls without
// external synchronization.
type KernelHandle struct {
	fd         int
	sysHandler sysProvider
}

func (h *KernelHandle) Fd() int {
	return h.fd
}

// Close releases the descriptor; it is a no-op on an already closed handle.
func (h *KernelHandle) Close() error {
	if h.fd < 0 {
		return nil
	}

	fd := h.fd
	h.fd = -1

	if err := h.sysHandler.Close(fd); err != nil {
		return fmt.Errorf("(hymofs-fd) failed to close kernel handle: %w", err)
	}

	return nil
}

// FdHandler obtains privileged handles to the kernel extension, trying a
// direct system call first and a process-control fallback second. Different
// kernel configurations expose the capability through different entry
// points, so neither path is authoritative.
type FdHandler struct {
	sysHandler sysProvider
}

func NewFdHandler(sysHandler sysProvider) *FdHandler {
	return &FdHandler{
		sysHandler: sysHandler,
	}
}

// Acquire tries the acquisition strategies in order; the first non-negative
// descriptor wins. The returned handle is the exclusive property of the
// caller and must be closed on every exit path.
func (f *FdHandler) Acquire(syscallNr int64) (*KernelHandle, error) {
	for _, acquire := range []func(int64) (int, bool){f.viaSyscall, f.viaPrctl} {
		if fd, ok := acquire(syscallNr); ok {
			return &KernelHandle{fd: fd, sysHandler: f.sysHandler}, nil
		}
	}

	return nil, fmt.Errorf("(hymofs-fd) %w", ErrKernelUnavailable)
}

func (f *FdHandler) viaSyscall(syscallNr int64) (int, bool) {
	r1, errno := f.sysHandler.Syscall(uintptr(syscallNr), Magic1, Magic2, CmdGetFd)
	if errno != 0 || int(r1) < 0 {
		return -1, false
	}

	return int(r1), true
}

func (f *FdHandler) viaPrctl(_ int64) (int, bool) {
	fd := int32(-1)
	if err := f.sysHandler.PrctlGetFd(PrctlGetFd, &fd); err != nil && fd < 0 {
		return -1, false
	}

	return int(fd), fd >= 0
}
