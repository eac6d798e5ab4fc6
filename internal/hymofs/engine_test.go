package hymofs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hybridmount/hybridmount/internal/configuration"
	"github.com/hybridmount/hybridmount/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// fakeFd is a fdProvider handing out handles backed by a [fakeSys].
type fakeFd struct {
	err error
	sys *fakeSys
}

func (f *fakeFd) Acquire(_ int64) (*KernelHandle, error) {
	if f.err != nil {
		return nil, f.err
	}

	return &KernelHandle{fd: 3, sysHandler: f.sys}, nil
}

type ruleCall struct {
	src    string
	target string
}

// fakeRules is a scriptable ruleProvider recording every issued rule.
type fakeRules struct {
	fileRules  []ruleCall
	mergeRules []ruleCall
	mirrorPath string
	debug      bool
	stealth    bool
	enabled    bool
	enabledSet bool

	failSrcs  map[string]bool
	switchErr error
}

func (r *fakeRules) AddRule(_ *KernelHandle, src, target string, _ bool) error {
	if r.failSrcs[src] {
		return unix.EINVAL
	}

	r.fileRules = append(r.fileRules, ruleCall{src: src, target: target})

	return nil
}

func (r *fakeRules) AddMergeRule(_ *KernelHandle, src, target string) error {
	if r.failSrcs[src] {
		return unix.EINVAL
	}

	r.mergeRules = append(r.mergeRules, ruleCall{src: src, target: target})

	return nil
}

func (r *fakeRules) SetMirrorPath(_ *KernelHandle, path string) error {
	if r.switchErr != nil {
		return r.switchErr
	}

	r.mirrorPath = path

	return nil
}

func (r *fakeRules) SetDebug(_ *KernelHandle, enable bool) error {
	r.debug = enable

	return r.switchErr
}

func (r *fakeRules) SetStealth(_ *KernelHandle, enable bool) error {
	r.stealth = enable

	return r.switchErr
}

func (r *fakeRules) SetEnabled(_ *KernelHandle, enable bool) error {
	if r.switchErr != nil {
		return r.switchErr
	}

	r.enabled = enable
	r.enabledSet = true

	return nil
}

// fakeRegistrar is a registrarProvider recording registered target paths.
type fakeRegistrar struct {
	paths []string
}

func (f *fakeRegistrar) Register(path string) {
	f.paths = append(f.paths, path)
}

func testConfig() *configuration.Config {
	return &configuration.Config{
		Enable:    true,
		Debug:     true,
		SyscallNr: DefaultSyscallNr,
	}
}

func makeModuleTree(t *testing.T, storageRoot, id string, files []string) {
	t.Helper()

	for _, f := range files {
		path := filepath.Join(storageRoot, id, f)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	}
}

// TestEngine_Apply_Success tests that a full module tree maps to merge
// rules for directories and file rules for files, rooted at "/".
func TestEngine_Apply_Success(t *testing.T) {
	t.Parallel()

	storageRoot := t.TempDir()
	makeModuleTree(t, storageRoot, "alpha", []string{"bin/x", "etc/y.conf"})

	rules := &fakeRules{}
	registrar := &fakeRegistrar{}
	engine := NewEngine(&fakeFd{sys: &fakeSys{}}, rules, &schema.OS{}, registrar)

	result, err := engine.Apply([]string{"alpha"}, testConfig(), storageRoot)
	require.NoError(t, err, "expected no error for a clean session")
	require.Equal(t, OutcomeApplied, result["alpha"], "expected the module fully applied")
	assert.Equal(t, []string{"alpha"}, result.Applied())

	moduleDir := filepath.Join(storageRoot, "alpha")
	assert.ElementsMatch(t, []ruleCall{
		{src: filepath.Join(moduleDir, "bin"), target: "/bin"},
		{src: filepath.Join(moduleDir, "etc"), target: "/etc"},
	}, rules.mergeRules, "expected one merge rule per directory")
	assert.ElementsMatch(t, []ruleCall{
		{src: filepath.Join(moduleDir, "bin/x"), target: "/bin/x"},
		{src: filepath.Join(moduleDir, "etc/y.conf"), target: "/etc/y.conf"},
	}, rules.fileRules, "expected one file rule per file")

	assert.ElementsMatch(t, []string{"/bin", "/bin/x", "/etc", "/etc/y.conf"},
		registrar.paths, "expected every ruled target registered for unmounting")

	assert.True(t, rules.debug, "expected the configured debug switch")
	assert.False(t, rules.stealth, "expected the configured stealth switch")
	assert.True(t, rules.enabledSet, "expected the enabled switch to be set last")
	assert.True(t, rules.enabled, "expected the configured enabled switch")
}

// TestEngine_Apply_EstablishesMirror tests that the staging directory is
// created under the storage root and registered with the kernel.
func TestEngine_Apply_EstablishesMirror(t *testing.T) {
	t.Parallel()

	storageRoot := t.TempDir()
	rules := &fakeRules{}
	engine := NewEngine(&fakeFd{sys: &fakeSys{}}, rules, &schema.OS{}, nil)

	_, err := engine.Apply([]string{}, testConfig(), storageRoot)
	require.NoError(t, err)

	mirrorDir := filepath.Join(storageRoot, MirrorDirName)
	assert.Equal(t, mirrorDir, rules.mirrorPath, "expected the mirror path registered")
	assert.DirExists(t, mirrorDir, "expected the mirror directory created")
}

// TestEngine_Apply_SkippedModule tests that a missing module directory is
// skipped without issuing any rule.
func TestEngine_Apply_SkippedModule(t *testing.T) {
	t.Parallel()

	storageRoot := t.TempDir()
	rules := &fakeRules{}
	engine := NewEngine(&fakeFd{sys: &fakeSys{}}, rules, &schema.OS{}, nil)

	result, err := engine.Apply([]string{"ghost"}, testConfig(), storageRoot)
	require.NoError(t, err, "a missing module is not a session failure")
	require.Equal(t, OutcomeSkipped, result["ghost"], "expected the module skipped")

	assert.Empty(t, rules.fileRules, "expected no file rules for a skipped module")
	assert.Empty(t, rules.mergeRules, "expected no merge rules for a skipped module")
	assert.Empty(t, result.Applied())
}

// TestEngine_Apply_Partial tests that a single failing rule marks the
// module partial while the remaining entries are still attempted.
func TestEngine_Apply_Partial(t *testing.T) {
	t.Parallel()

	storageRoot := t.TempDir()
	makeModuleTree(t, storageRoot, "alpha", []string{"bin/x", "etc/y.conf"})

	moduleDir := filepath.Join(storageRoot, "alpha")
	rules := &fakeRules{
		failSrcs: map[string]bool{filepath.Join(moduleDir, "bin/x"): true},
	}
	registrar := &fakeRegistrar{}
	engine := NewEngine(&fakeFd{sys: &fakeSys{}}, rules, &schema.OS{}, registrar)

	result, err := engine.Apply([]string{"alpha"}, testConfig(), storageRoot)
	require.NoError(t, err, "per-rule failures do not fail the session")
	require.Equal(t, OutcomePartial, result["alpha"], "expected the module marked partial")

	assert.ElementsMatch(t, []ruleCall{
		{src: filepath.Join(moduleDir, "etc/y.conf"), target: "/etc/y.conf"},
	}, rules.fileRules, "remaining entries should still be attempted")
	assert.NotContains(t, registrar.paths, "/bin/x", "failed targets are not registered")
	assert.Contains(t, registrar.paths, "/etc/y.conf")
	assert.Empty(t, result.Applied())

	assert.True(t, rules.enabledSet, "the enabled switch is still set after partial application")
}

// TestEngine_Apply_Fail_Acquire tests that handle acquisition failure is
// the one fatal session error.
func TestEngine_Apply_Fail_Acquire(t *testing.T) {
	t.Parallel()

	engine := NewEngine(&fakeFd{err: ErrKernelUnavailable}, &fakeRules{}, &schema.OS{}, nil)

	result, err := engine.Apply([]string{"alpha"}, testConfig(), t.TempDir())
	require.Error(t, err, "expected an error when no handle can be acquired")
	require.ErrorIs(t, err, ErrKernelUnavailable, "error should be or wrap ErrKernelUnavailable")
	assert.Nil(t, result, "expected no result on a fatal setup failure")
}

// TestEngine_Apply_SwitchFailuresNonFatal tests that global switch and
// mirror failures degrade to logs without affecting module outcomes.
func TestEngine_Apply_SwitchFailuresNonFatal(t *testing.T) {
	t.Parallel()

	storageRoot := t.TempDir()
	makeModuleTree(t, storageRoot, "alpha", []string{"bin/x"})

	rules := &fakeRules{switchErr: unix.EPERM}
	engine := NewEngine(&fakeFd{sys: &fakeSys{}}, rules, &schema.OS{}, nil)

	result, err := engine.Apply([]string{"alpha"}, testConfig(), storageRoot)
	require.NoError(t, err, "switch failures must not fail the session")
	assert.Equal(t, OutcomeApplied, result["alpha"], "switch failures must not mark modules partial")
}

// TestOutcome_String tests the outcome labels.
func TestOutcome_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "applied", OutcomeApplied.String())
	assert.Equal(t, "partial", OutcomePartial.String())
	assert.Equal(t, "skipped", OutcomeSkipped.String())
	assert.Equal(t, "unknown", Outcome(99).String())
}
