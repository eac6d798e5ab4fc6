// Package schema provides the concrete operating system and system call
// implementations injected into the consuming packages, so that those can
// be tested against scriptable fakes.
package schema

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// OS is an implementation wrapping operating system functions.
type OS struct{}

func (*OS) Stat(name string) (os.FileInfo, error) {
	return os.Stat(name)
}

func (*OS) Open(name string) (*os.File, error) {
	return os.Open(name)
}

func (*OS) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (*OS) ReadDir(name string) ([]os.DirEntry, error) {
	return os.ReadDir(name)
}

// Unix is an implementation wrapping Unix-specific system calls.
type Unix struct{}

func (*Unix) Uname(buf *unix.Utsname) error {
	return unix.Uname(buf)
}

func (*Unix) FinitModule(fd int, params string, flags int) error {
	return unix.FinitModule(fd, params, flags)
}

func (*Unix) Unmount(target string, flags int) error {
	return unix.Unmount(target, flags)
}

// Sys is an implementation wrapping raw system call entry points.
type Sys struct{}

func (*Sys) Syscall(trap uintptr, a1, a2, a3 uintptr) (uintptr, unix.Errno) {
	r1, _, errno := unix.Syscall(trap, a1, a2, a3)

	return r1, errno
}

// PrctlGetFd issues a prctl request that writes a file descriptor into fd.
// The pointer conversion happens inside the system call expression, as the
// written-to memory must not move for the duration of the call.
func (*Sys) PrctlGetFd(option int, fd *int32) error {
	_, _, errno := unix.Syscall6(unix.SYS_PRCTL, uintptr(option), uintptr(unsafe.Pointer(fd)), 0, 0, 0, 0)
	if errno != 0 {
		return errno
	}

	return nil
}

func (*Sys) Ioctl(fd int, req uint, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(req), uintptr(arg))
	if errno != 0 {
		return errno
	}

	return nil
}

func (*Sys) Close(fd int) error {
	return unix.Close(fd)
}
