// Package configuration reads the manager's Unix-type configuration file
// and produces the settings consumed by the HymoFS components.
package configuration

import (
	"log/slog"
	"strconv"
)

const (
	// DefaultConfigFile is the conventional location of the configuration.
	DefaultConfigFile = "/data/adb/hybrid_mount/config.env"

	// DefaultStorageRoot is the conventional module storage root.
	DefaultStorageRoot = "/data/adb/hybrid_mount/modules"

	KeyEnable      = "HYMOFS_ENABLE"
	KeyDebug       = "HYMOFS_DEBUG"
	KeyStealth     = "HYMOFS_STEALTH"
	KeySyscallNr   = "HYMOFS_SYSCALL_NR"
	KeyStorageRoot = "STORAGE_ROOT"
	KeyUmount      = "UMOUNT_ENABLE"

	// defaultSyscallNr mirrors the kernel extension's default system call
	// number (hymofs.DefaultSyscallNr).
	defaultSyscallNr = 142
)

type genericConfigProvider interface {
	Read(filenames ...string) (envMap map[string]string, err error)
}

// Config holds the settings driving a rule-application session and the
// unmount feature gate.
type Config struct {
	Enable      bool
	Debug       bool
	Stealth     bool
	Umount      bool
	SyscallNr   int64
	StorageRoot string
}

type Handler struct {
	GenericHandler genericConfigProvider
}

func NewHandler(genericHandler genericConfigProvider) *Handler {
	return &Handler{
		GenericHandler: genericHandler,
	}
}

// DefaultConfig returns the settings used when no configuration file is
// present.
func DefaultConfig() *Config {
	return &Config{
		Enable:      true,
		SyscallNr:   defaultSyscallNr,
		StorageRoot: DefaultStorageRoot,
	}
}

// Establish reads the configuration file at path; a missing or unreadable
// file falls back to [DefaultConfig].
func (c *Handler) Establish(path string) *Config {
	config := DefaultConfig()

	envMap, err := c.ReadGeneric(path)
	if err != nil {
		slog.Warn("Failed to read configuration file (using defaults)",
			"err", err,
			"path", path,
		)

		return config
	}

	config.Enable = c.MapKeyToBool(envMap, KeyEnable, config.Enable)
	config.Debug = c.MapKeyToBool(envMap, KeyDebug, config.Debug)
	config.Stealth = c.MapKeyToBool(envMap, KeyStealth, config.Stealth)
	config.Umount = c.MapKeyToBool(envMap, KeyUmount, config.Umount)

	if nr := c.MapKeyToInt64(envMap, KeySyscallNr); nr > 0 {
		config.SyscallNr = nr
	}

	if root := c.MapKeyToString(envMap, KeyStorageRoot); root != "" {
		config.StorageRoot = root
	}

	return config
}

func (c *Handler) ReadGeneric(filenames ...string) (map[string]string, error) {
	return c.GenericHandler.Read(filenames...)
}

func (c *Handler) MapKeyToString(envMap map[string]string, key string) string {
	if value, exists := envMap[key]; exists {
		return value
	}

	return ""
}

func (c *Handler) MapKeyToBool(envMap map[string]string, key string, fallback bool) bool {
	value := c.MapKeyToString(envMap, key)
	if value == "" {
		return fallback
	}

	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}

	return boolValue
}

func (c *Handler) MapKeyToInt64(envMap map[string]string, key string) int64 {
	value := c.MapKeyToString(envMap, key)
	if value == "" {
		return -1
	}

	intValue, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return -1
	}

	return intValue
}
