package hymofs

import "errors"

var (
	// ErrKernelUnavailable is an error that occurs when no acquisition
	// strategy yields a privileged handle to the kernel extension.
	ErrKernelUnavailable = errors.New("hymofs kernel extension unavailable")

	// ErrPathEncoding is an error that occurs when a path cannot be
	// converted to a NUL-terminated byte buffer (embedded NUL).
	ErrPathEncoding = errors.New("invalid path encoding")

	// ErrValueTooLong is an error that occurs when a value exceeds the
	// fixed-size protocol buffer it is marshaled into.
	ErrValueTooLong = errors.New("value exceeds protocol buffer")

	// ErrUnknownRuleKind is an error that occurs when a [Rule] carries a
	// kind discriminant not understood by the protocol.
	ErrUnknownRuleKind = errors.New("unknown rule kind")

	// ErrNoKMI is an error that occurs when no kernel module interface
	// identifier can be derived from the running kernel's release string.
	ErrNoKMI = errors.New("unable to derive KMI from kernel release")
)
