package hymofs

import (
	"strings"
	"unsafe"
)

// Wire contract of the HymoFS kernel extension. All values must match the
// kernel side bit-exact.
const (
	Magic1 = 0x48594D4F // "HYMO"
	Magic2 = 0x524F4F54 // "ROOT"

	CmdGetFd     = 0x48021
	PrctlGetFd   = 0x48021
	iocFamily    = 'H'

	ProtocolVersion = 12

	// DefaultSyscallNr is the system call number the extension registers
	// unless configured otherwise.
	DefaultSyscallNr = 142

	MaxPathname     = 256
	UnameFieldSize  = 65
	FakeCmdlineSize = 4096

	// ListBufferSize is the reference capacity handed to the kernel for
	// rule listings; oversized listings are truncated by the kernel side.
	ListBufferSize = 64 * 1024
)

// Sequential protocol command numbers; 4, 9 and 13 are reserved.
const (
	cmdAddRule          = 1
	cmdDelRule          = 2
	cmdHideRule         = 3
	cmdClearAll         = 5
	cmdGetVersion       = 6
	cmdListRules        = 7
	cmdSetDebug         = 8
	cmdSetStealth       = 10
	cmdHideOverlayXattr = 11
	cmdAddMergeRule     = 12
	cmdSetMirrorPath    = 14
	cmdAddSpoofKstat    = 15
	cmdUpdateSpoofKstat = 16
	cmdSetUname         = 17
	cmdSetCmdline       = 18
	cmdGetFeatures      = 19
	cmdSetEnabled       = 20
	cmdSetHideUids      = 21
)

// Linux _IOC request encoding.
const (
	iocNrBits   = 8
	iocTypeBits = 8
	iocSizeBits = 14

	iocNrShift   = 0
	iocTypeShift = iocNrShift + iocNrBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits

	iocNone  = 0
	iocWrite = 1
	iocRead  = 2
)

func ioc(dir, nr, size uint) uint {
	return dir<<iocDirShift | iocFamily<<iocTypeShift | size<<iocSizeShift | nr<<iocNrShift
}

// ruleArg is the fixed-layout record backing rule add/delete/hide/merge and
// mirror-path commands: two path pointers and a kind integer.
type ruleArg struct {
	src    *byte
	target *byte
	kind   int32
}

// listArg is the fixed-layout record backing the list-rules command. The
// kernel writes the listing into buf and updates size to the used length.
type listArg struct {
	buf  *byte
	size uint64
}

// kstatArg mirrors the kernel's spoof-kstat record.
type kstatArg struct {
	targetIno      uint64
	targetPathname [MaxPathname]byte
	spoofedIno     uint64
	spoofedDev     uint64
	spoofedNlink   uint32
	spoofedSize    int64
	spoofedAtime   int64
	spoofedAtimeNs int64
	spoofedMtime   int64
	spoofedMtimeNs int64
	spoofedCtime   int64
	spoofedCtimeNs int64
	spoofedBlksize uint64
	spoofedBlocks  uint64
	isStatic       int32
	errno          int32
}

// unameArg mirrors the kernel's uname-spoof record.
type unameArg struct {
	sysname    [UnameFieldSize]byte
	nodename   [UnameFieldSize]byte
	release    [UnameFieldSize]byte
	version    [UnameFieldSize]byte
	machine    [UnameFieldSize]byte
	domainname [UnameFieldSize]byte
	errno      int32
}

// cmdlineArg mirrors the kernel's cmdline-spoof record.
type cmdlineArg struct {
	cmdline [FakeCmdlineSize]byte
	errno   int32
}

// uidListArg mirrors the kernel's hide-uid record; uids carries the user
// space address of the uid array as an integer.
type uidListArg struct {
	count    uint32
	reserved uint32
	uids     uint64
}

//nolint:gochecknoglobals
var (
	reqAddRule          = ioc(iocWrite, cmdAddRule, uint(unsafe.Sizeof(ruleArg{})))
	reqDelRule          = ioc(iocWrite, cmdDelRule, uint(unsafe.Sizeof(ruleArg{})))
	reqHideRule         = ioc(iocWrite, cmdHideRule, uint(unsafe.Sizeof(ruleArg{})))
	reqClearAll         = ioc(iocNone, cmdClearAll, 0)
	reqGetVersion       = ioc(iocRead, cmdGetVersion, uint(unsafe.Sizeof(int32(0))))
	reqListRules        = ioc(iocRead|iocWrite, cmdListRules, uint(unsafe.Sizeof(listArg{})))
	reqSetDebug         = ioc(iocWrite, cmdSetDebug, uint(unsafe.Sizeof(int32(0))))
	reqSetStealth       = ioc(iocWrite, cmdSetStealth, uint(unsafe.Sizeof(int32(0))))
	reqHideOverlayXattr = ioc(iocWrite, cmdHideOverlayXattr, uint(unsafe.Sizeof(ruleArg{})))
	reqAddMergeRule     = ioc(iocWrite, cmdAddMergeRule, uint(unsafe.Sizeof(ruleArg{})))
	reqSetMirrorPath    = ioc(iocWrite, cmdSetMirrorPath, uint(unsafe.Sizeof(ruleArg{})))
	reqAddSpoofKstat    = ioc(iocWrite, cmdAddSpoofKstat, uint(unsafe.Sizeof(kstatArg{})))
	reqUpdateSpoofKstat = ioc(iocWrite, cmdUpdateSpoofKstat, uint(unsafe.Sizeof(kstatArg{})))
	reqSetUname         = ioc(iocWrite, cmdSetUname, uint(unsafe.Sizeof(unameArg{})))
	reqSetCmdline       = ioc(iocWrite, cmdSetCmdline, uint(unsafe.Sizeof(cmdlineArg{})))
	reqGetFeatures      = ioc(iocRead, cmdGetFeatures, uint(unsafe.Sizeof(int32(0))))
	reqSetEnabled       = ioc(iocWrite, cmdSetEnabled, uint(unsafe.Sizeof(int32(0))))
	reqSetHideUids      = ioc(iocWrite, cmdSetHideUids, uint(unsafe.Sizeof(uidListArg{})))
)

// putCString copies s NUL-terminated into the fixed-size buffer dst.
func putCString(dst []byte, s string) error {
	if strings.IndexByte(s, 0) >= 0 {
		return ErrPathEncoding
	}

	if len(s)+1 > len(dst) {
		return ErrValueTooLong
	}

	copy(dst, s)
	dst[len(s)] = 0

	return nil
}
