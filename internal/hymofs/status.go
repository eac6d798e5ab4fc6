package hymofs

import (
	"fmt"
)

// Kernel extension feature bits.
const (
	FeatureKstatSpoof    = 1 << 0
	FeatureUnameSpoof    = 1 << 1
	FeatureCmdlineSpoof  = 1 << 2
	FeatureSelinuxBypass = 1 << 4
	FeatureMergeDir      = 1 << 5
)

//nolint:gochecknoglobals
var featureNames = []struct {
	bit  int
	name string
}{
	{FeatureKstatSpoof, "kstat_spoof"},
	{FeatureUnameSpoof, "uname_spoof"},
	{FeatureCmdlineSpoof, "cmdline_spoof"},
	{FeatureSelinuxBypass, "selinux_bypass"},
	{FeatureMergeDir, "merge_dir"},
}

// Status is a transient snapshot of the kernel extension's state.
type Status struct {
	Loaded         bool     `json:"loaded"`
	Version        int      `json:"version"`
	ActiveFeatures []string `json:"active_features"`
	ErrorMsg       string   `json:"error_msg,omitempty"`
}

// DecodeFeatures translates a feature bitmask into the active feature
// names, in ascending bit order.
func DecodeFeatures(mask int) []string {
	active := []string{}

	for _, f := range featureNames {
		if mask&f.bit != 0 {
			active = append(active, f.name)
		}
	}

	return active
}

type introspectProvider interface {
	GetVersion(h *KernelHandle) (int, error)
	GetFeatures(h *KernelHandle) (int, error)
}

// Introspector queries protocol version and the active-feature bitmask.
type Introspector struct {
	fdHandler   fdProvider
	ruleHandler introspectProvider
	syscallNr   int64
}

func NewIntrospector(fdHandler fdProvider, ruleHandler introspectProvider, syscallNr int64) *Introspector {
	return &Introspector{
		fdHandler:   fdHandler,
		ruleHandler: ruleHandler,
		syscallNr:   syscallNr,
	}
}

// Status derives a fresh [Status] snapshot. It never fails; internal errors
// are captured into the snapshot's ErrorMsg field instead.
func (i *Introspector) Status() Status {
	var status Status

	handle, err := i.fdHandler.Acquire(i.syscallNr)
	if err != nil {
		status.ErrorMsg = fmt.Sprintf("failed to get fd: %v", err)

		return status
	}
	defer handle.Close()

	version, err := i.ruleHandler.GetVersion(handle)
	if err != nil {
		status.ErrorMsg = fmt.Sprintf("failed to get version: %v", err)
	} else {
		status.Loaded = true
		status.Version = version
	}

	if features, err := i.ruleHandler.GetFeatures(handle); err == nil {
		status.ActiveFeatures = DecodeFeatures(features)
	}

	return status
}
