// Package hymofs drives the HymoFS kernel extension: privileged handle
// acquisition, the typed rule command protocol, per-module rule application
// and status introspection.
package hymofs

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

type sysProvider interface {
	Syscall(trap uintptr, a1, a2, a3 uintptr) (uintptr, unix.Errno)
	PrctlGetFd(option int, fd *int32) error
	Ioctl(fd int, req uint, arg unsafe.Pointer) error
	Close(fd int) error
}

// RuleKind discriminates the directive a [Rule] installs in the kernel.
type RuleKind int

const (
	RuleFile RuleKind = iota
	RuleMerge
	RuleDelete
	RuleHide
	RuleHideXattr
)

// Rule is a single kernel-side directive mapping a source path to an
// optional target path.
type Rule struct {
	Src    string
	Target string
	Kind   RuleKind
}
