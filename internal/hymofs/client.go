package hymofs

import (
	"fmt"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Client is a typed wrapper over the fixed kernel command set. Each method
// takes the acquired handle plus its arguments, marshals them into the
// fixed-layout protocol records and issues a single command. Backing byte
// buffers are owned for the duration of that one call and never retained.
type Client struct {
	sysHandler sysProvider
}

func NewClient(sysHandler sysProvider) *Client {
	return &Client{
		sysHandler: sysHandler,
	}
}

// ApplyRule dispatches a [Rule] to the protocol command matching its kind.
func (c *Client) ApplyRule(h *KernelHandle, r Rule) error {
	switch r.Kind {
	case RuleFile:
		return c.AddRule(h, r.Src, r.Target, false)
	case RuleMerge:
		return c.AddMergeRule(h, r.Src, r.Target)
	case RuleDelete:
		return c.DeleteRule(h, r.Src)
	case RuleHide:
		return c.HideRule(h, r.Src)
	case RuleHideXattr:
		return c.HideOverlayXattrs(h, r.Src)
	default:
		return fmt.Errorf("(hymofs-client) %w: %d", ErrUnknownRuleKind, r.Kind)
	}
}

// AddRule installs a path rewrite rule from src to target.
func (c *Client) AddRule(h *KernelHandle, src, target string, isDir bool) error {
	return c.sendRuleArg(h, reqAddRule, "add rule", src, target, isDir)
}

// AddMergeRule installs a directory-merge rule unioning the contents of
// src into target.
func (c *Client) AddMergeRule(h *KernelHandle, src, target string) error {
	return c.sendRuleArg(h, reqAddMergeRule, "add merge rule", src, target, true)
}

// DeleteRule removes the rule installed for src.
func (c *Client) DeleteRule(h *KernelHandle, src string) error {
	return c.sendRuleArg(h, reqDelRule, "delete rule", src, "", false)
}

// HideRule hides src from lookups.
func (c *Client) HideRule(h *KernelHandle, src string) error {
	return c.sendRuleArg(h, reqHideRule, "hide rule", src, "", false)
}

// HideOverlayXattrs suppresses overlay extended attributes on src.
func (c *Client) HideOverlayXattrs(h *KernelHandle, src string) error {
	return c.sendRuleArg(h, reqHideOverlayXattr, "hide overlay xattrs", src, "", false)
}

// SetMirrorPath registers the backing/staging directory with the kernel.
func (c *Client) SetMirrorPath(h *KernelHandle, path string) error {
	return c.sendRuleArg(h, reqSetMirrorPath, "set mirror path", path, "", false)
}

// ClearAll removes every installed rule.
func (c *Client) ClearAll(h *KernelHandle) error {
	if err := c.sysHandler.Ioctl(h.Fd(), reqClearAll, nil); err != nil {
		return fmt.Errorf("(hymofs-client) clear all: %w", err)
	}

	return nil
}

// ListRules returns the kernel's textual rule listing. The listing is
// truncated by the kernel side if it exceeds [ListBufferSize]; truncation
// is not detectable at this layer.
func (c *Client) ListRules(h *KernelHandle) ([]byte, error) {
	buf := make([]byte, ListBufferSize)
	arg := listArg{
		buf:  &buf[0],
		size: uint64(len(buf)),
	}

	if err := c.sysHandler.Ioctl(h.Fd(), reqListRules, unsafe.Pointer(&arg)); err != nil {
		return nil, fmt.Errorf("(hymofs-client) list rules: %w", err)
	}
	runtime.KeepAlive(buf)

	if arg.size > uint64(len(buf)) {
		arg.size = uint64(len(buf))
	}

	return buf[:arg.size], nil
}

// SetDebug toggles the kernel extension's debug switch.
func (c *Client) SetDebug(h *KernelHandle, enable bool) error {
	return c.sendSwitch(h, reqSetDebug, "set debug", enable)
}

// SetStealth toggles suppression of observable traces of the extension.
func (c *Client) SetStealth(h *KernelHandle, enable bool) error {
	return c.sendSwitch(h, reqSetStealth, "set stealth", enable)
}

// SetEnabled toggles the extension's global enabled switch.
func (c *Client) SetEnabled(h *KernelHandle, enable bool) error {
	return c.sendSwitch(h, reqSetEnabled, "set enabled", enable)
}

// GetVersion queries the kernel-side protocol version.
func (c *Client) GetVersion(h *KernelHandle) (int, error) {
	var version int32

	if err := c.sysHandler.Ioctl(h.Fd(), reqGetVersion, unsafe.Pointer(&version)); err != nil {
		return 0, fmt.Errorf("(hymofs-client) get version: %w", err)
	}

	return int(version), nil
}

// GetFeatures queries the active-feature bitmask.
func (c *Client) GetFeatures(h *KernelHandle) (int, error) {
	var features int32

	if err := c.sysHandler.Ioctl(h.Fd(), reqGetFeatures, unsafe.Pointer(&features)); err != nil {
		return 0, fmt.Errorf("(hymofs-client) get features: %w", err)
	}

	return int(features), nil
}

// KstatSpoof carries the stat fields the kernel reports for a target path
// in place of the real ones.
type KstatSpoof struct {
	TargetIno  uint64
	TargetPath string
	Ino        uint64
	Dev        uint64
	Nlink      uint32
	Size       int64
	AtimeSec   int64
	AtimeNsec  int64
	MtimeSec   int64
	MtimeNsec  int64
	CtimeSec   int64
	CtimeNsec  int64
	Blksize    uint64
	Blocks     uint64
	Static     bool
}

// AddSpoofKstat installs a stat-spoofing entry for a target path.
func (c *Client) AddSpoofKstat(h *KernelHandle, s KstatSpoof) error {
	return c.sendKstat(h, reqAddSpoofKstat, "add spoof-kstat", s)
}

// UpdateSpoofKstat updates an already installed stat-spoofing entry.
func (c *Client) UpdateSpoofKstat(h *KernelHandle, s KstatSpoof) error {
	return c.sendKstat(h, reqUpdateSpoofKstat, "update spoof-kstat", s)
}

// UnameSpoof carries the utsname fields the kernel reports in place of the
// real ones.
type UnameSpoof struct {
	Sysname    string
	Nodename   string
	Release    string
	Version    string
	Machine    string
	Domainname string
}

// SetUnameSpoof installs the uname-spoofing record.
func (c *Client) SetUnameSpoof(h *KernelHandle, u UnameSpoof) error {
	arg := &unameArg{}

	fields := []struct {
		dst  []byte
		src  string
		name string
	}{
		{arg.sysname[:], u.Sysname, "sysname"},
		{arg.nodename[:], u.Nodename, "nodename"},
		{arg.release[:], u.Release, "release"},
		{arg.version[:], u.Version, "version"},
		{arg.machine[:], u.Machine, "machine"},
		{arg.domainname[:], u.Domainname, "domainname"},
	}

	for _, f := range fields {
		if err := putCString(f.dst, f.src); err != nil {
			return fmt.Errorf("(hymofs-client) set uname spoof: %s: %w", f.name, err)
		}
	}

	if err := c.sysHandler.Ioctl(h.Fd(), reqSetUname, unsafe.Pointer(arg)); err != nil {
		return fmt.Errorf("(hymofs-client) set uname spoof: %w", err)
	}

	return nil
}

// SetCmdlineSpoof installs the kernel cmdline the extension reports in
// place of the real one.
func (c *Client) SetCmdlineSpoof(h *KernelHandle, cmdline string) error {
	arg := &cmdlineArg{}

	if err := putCString(arg.cmdline[:], cmdline); err != nil {
		return fmt.Errorf("(hymofs-client) set cmdline spoof: %w", err)
	}

	if err := c.sysHandler.Ioctl(h.Fd(), reqSetCmdline, unsafe.Pointer(arg)); err != nil {
		return fmt.Errorf("(hymofs-client) set cmdline spoof: %w", err)
	}

	return nil
}

// SetHideUids installs the list of uids the extension hides itself from.
func (c *Client) SetHideUids(h *KernelHandle, uids []uint32) error {
	arg := &uidListArg{
		count: uint32(len(uids)),
	}

	if len(uids) > 0 {
		arg.uids = uint64(uintptr(unsafe.Pointer(&uids[0])))
	}

	err := c.sysHandler.Ioctl(h.Fd(), reqSetHideUids, unsafe.Pointer(arg))
	runtime.KeepAlive(uids)

	if err != nil {
		return fmt.Errorf("(hymofs-client) set hide uids: %w", err)
	}

	return nil
}

func (c *Client) sendRuleArg(h *KernelHandle, req uint, op string, src, target string, isDir bool) error {
	srcPtr, err := unix.BytePtrFromString(src)
	if err != nil {
		return fmt.Errorf("(hymofs-client) %s: source path: %w", op, ErrPathEncoding)
	}

	arg := &ruleArg{
		src: srcPtr,
	}

	if isDir {
		arg.kind = 1
	}

	if target != "" {
		targetPtr, err := unix.BytePtrFromString(target)
		if err != nil {
			return fmt.Errorf("(hymofs-client) %s: target path: %w", op, ErrPathEncoding)
		}
		arg.target = targetPtr
	}

	err = c.sysHandler.Ioctl(h.Fd(), req, unsafe.Pointer(arg))
	runtime.KeepAlive(arg)

	if err != nil {
		return fmt.Errorf("(hymofs-client) %s: %w", op, err)
	}

	return nil
}

func (c *Client) sendSwitch(h *KernelHandle, req uint, op string, enable bool) error {
	val := int32(0)
	if enable {
		val = 1
	}

	if err := c.sysHandler.Ioctl(h.Fd(), req, unsafe.Pointer(&val)); err != nil {
		return fmt.Errorf("(hymofs-client) %s: %w", op, err)
	}

	return nil
}

func (c *Client) sendKstat(h *KernelHandle, req uint, op string, s KstatSpoof) error {
	arg := &kstatArg{
		targetIno:      s.TargetIno,
		spoofedIno:     s.Ino,
		spoofedDev:     s.Dev,
		spoofedNlink:   s.Nlink,
		spoofedSize:    s.Size,
		spoofedAtime:   s.AtimeSec,
		spoofedAtimeNs: s.AtimeNsec,
		spoofedMtime:   s.MtimeSec,
		spoofedMtimeNs: s.MtimeNsec,
		spoofedCtime:   s.CtimeSec,
		spoofedCtimeNs: s.CtimeNsec,
		spoofedBlksize: s.Blksize,
		spoofedBlocks:  s.Blocks,
	}

	if s.Static {
		arg.isStatic = 1
	}

	if err := putCString(arg.targetPathname[:], s.TargetPath); err != nil {
		return fmt.Errorf("(hymofs-client) %s: target path: %w", op, err)
	}

	if err := c.sysHandler.Ioctl(h.Fd(), req, unsafe.Pointer(arg)); err != nil {
		return fmt.Errorf("(hymofs-client) %s: %w", op, err)
	}

	return nil
}
