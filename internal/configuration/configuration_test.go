package configuration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

// TestEstablish_Success tests reading a complete configuration file.
func TestEstablish_Success(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, `
HYMOFS_ENABLE=false
HYMOFS_DEBUG=true
HYMOFS_STEALTH=true
HYMOFS_SYSCALL_NR=294
UMOUNT_ENABLE=true
STORAGE_ROOT=/data/custom/modules
`)

	handler := NewHandler(&GodotenvProvider{})
	config := handler.Establish(path)

	assert.False(t, config.Enable)
	assert.True(t, config.Debug)
	assert.True(t, config.Stealth)
	assert.True(t, config.Umount)
	assert.Equal(t, int64(294), config.SyscallNr)
	assert.Equal(t, "/data/custom/modules", config.StorageRoot)
}

// TestEstablish_Success_Defaults tests the fallback when the file is
// missing entirely.
func TestEstablish_Success_Defaults(t *testing.T) {
	t.Parallel()

	handler := NewHandler(&GodotenvProvider{})
	config := handler.Establish(filepath.Join(t.TempDir(), "missing.env"))

	assert.Equal(t, DefaultConfig(), config, "a missing file yields the defaults")
	assert.True(t, config.Enable)
	assert.False(t, config.Umount)
	assert.Equal(t, int64(142), config.SyscallNr)
	assert.Equal(t, DefaultStorageRoot, config.StorageRoot)
}

// TestEstablish_Success_PartialFile tests that unset keys keep their
// defaults while set keys take effect.
func TestEstablish_Success_PartialFile(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, "HYMOFS_DEBUG=true\n")

	handler := NewHandler(&GodotenvProvider{})
	config := handler.Establish(path)

	assert.True(t, config.Debug)
	assert.True(t, config.Enable, "unset keys keep their defaults")
	assert.Equal(t, int64(142), config.SyscallNr)
}

// TestEstablish_Success_BadValues tests that unparseable values fall back
// instead of failing.
func TestEstablish_Success_BadValues(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, `
HYMOFS_ENABLE=banana
HYMOFS_SYSCALL_NR=not-a-number
`)

	handler := NewHandler(&GodotenvProvider{})
	config := handler.Establish(path)

	assert.True(t, config.Enable, "an unparseable bool keeps the default")
	assert.Equal(t, int64(142), config.SyscallNr, "an unparseable number keeps the default")
}

// TestEstablish_Success_NonPositiveSyscallNr tests that a non-positive
// syscall number is rejected in favor of the default.
func TestEstablish_Success_NonPositiveSyscallNr(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, "HYMOFS_SYSCALL_NR=0\n")

	handler := NewHandler(&GodotenvProvider{})
	config := handler.Establish(path)

	assert.Equal(t, int64(142), config.SyscallNr)
}

// TestMapKeyHelpers tests the typed map accessors.
func TestMapKeyHelpers(t *testing.T) {
	t.Parallel()

	handler := NewHandler(&GodotenvProvider{})
	envMap := map[string]string{
		"STR":  "value",
		"BOOL": "true",
		"INT":  "42",
		"BAD":  "zzz",
	}

	assert.Equal(t, "value", handler.MapKeyToString(envMap, "STR"))
	assert.Equal(t, "", handler.MapKeyToString(envMap, "MISSING"))

	assert.True(t, handler.MapKeyToBool(envMap, "BOOL", false))
	assert.False(t, handler.MapKeyToBool(envMap, "MISSING", false))
	assert.True(t, handler.MapKeyToBool(envMap, "BAD", true))

	assert.Equal(t, int64(42), handler.MapKeyToInt64(envMap, "INT"))
	assert.Equal(t, int64(-1), handler.MapKeyToInt64(envMap, "MISSING"))
	assert.Equal(t, int64(-1), handler.MapKeyToInt64(envMap, "BAD"))
}
