package hymofs

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/hybridmount/hybridmount/internal/configuration"
)

// MirrorDirName is the directory under the storage root registered as the
// kernel extension's backing/staging area.
const MirrorDirName = "hymofs"

const mirrorDirPerms = 0o755

type fdProvider interface {
	Acquire(syscallNr int64) (*KernelHandle, error)
}

type ruleProvider interface {
	AddRule(h *KernelHandle, src, target string, isDir bool) error
	AddMergeRule(h *KernelHandle, src, target string) error
	SetMirrorPath(h *KernelHandle, path string) error
	SetDebug(h *KernelHandle, enable bool) error
	SetStealth(h *KernelHandle, enable bool) error
	SetEnabled(h *KernelHandle, enable bool) error
}

type osProvider interface {
	Stat(name string) (os.FileInfo, error)
	Open(name string) (*os.File, error)
	MkdirAll(path string, perm os.FileMode) error
}

type fsWalkProvider interface {
	WalkDir(root string, fn fs.WalkDirFunc) error
}

type registrarProvider interface {
	Register(path string)
}

// Outcome is the per-module result of a rule-application session.
type Outcome int

const (
	// OutcomeApplied means every filesystem entry in the module's tree
	// produced a successful rule call.
	OutcomeApplied Outcome = iota

	// OutcomePartial means at least one entry's rule call failed; the
	// remaining entries were still attempted.
	OutcomePartial

	// OutcomeSkipped means the module directory does not exist.
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomePartial:
		return "partial"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Result maps each requested module id to its session [Outcome].
type Result map[string]Outcome

// Applied returns the sorted set of fully applied module ids.
func (r Result) Applied() []string {
	applied := []string{}

	for id, outcome := range r {
		if outcome == OutcomeApplied {
			applied = append(applied, id)
		}
	}

	sort.Strings(applied)

	return applied
}

type fileWalker struct{}

func (*fileWalker) WalkDir(root string, fn fs.WalkDirFunc) error {
	return filepath.WalkDir(root, fn)
}

// Engine walks module file trees and synthesizes one kernel rule per entry,
// tracking per-module success. Per-entry and global-switch failures are
// absorbed into logs and the per-module outcome; only handle acquisition
// failure crosses the boundary as an error.
type Engine struct {
	fdHandler       fdProvider
	ruleHandler     ruleProvider
	osHandler       osProvider
	fileWalkHandler fsWalkProvider
	umountHandler   registrarProvider
}

func NewEngine(fdHandler fdProvider, ruleHandler ruleProvider, osHandler osProvider, umountHandler registrarProvider) *Engine {
	return &Engine{
		fdHandler:       fdHandler,
		ruleHandler:     ruleHandler,
		osHandler:       osHandler,
		fileWalkHandler: &fileWalker{},
		umountHandler:   umountHandler,
	}
}

// Apply runs one rule-application session over the given module ids with a
// single freshly acquired kernel handle. The returned [Result] carries the
// per-module outcomes; an error is returned only for unrecoverable setup
// failures.
func (e *Engine) Apply(moduleIDs []string, config *configuration.Config, storageRoot string) (Result, error) {
	handle, err := e.fdHandler.Acquire(config.SyscallNr)
	if err != nil {
		return nil, fmt.Errorf("(hymofs-engine) failed to acquire kernel handle: %w", err)
	}
	defer handle.Close()

	slog.Info("Applying HymoFS configuration")

	if err := e.ruleHandler.SetDebug(handle, config.Debug); err != nil {
		slog.Error("Failed to set HymoFS debug mode", "err", err)
	}

	if err := e.ruleHandler.SetStealth(handle, config.Stealth); err != nil {
		slog.Error("Failed to set HymoFS stealth mode", "err", err)
	}

	e.establishMirror(handle, storageRoot)

	result := make(Result, len(moduleIDs))

	for _, id := range moduleIDs {
		moduleDir := filepath.Join(storageRoot, id)

		if _, err := e.osHandler.Stat(moduleDir); err != nil {
			slog.Warn("Module directory not found",
				"module", id,
				"path", moduleDir,
			)
			result[id] = OutcomeSkipped

			continue
		}

		slog.Info("Processing rules for module", "module", id)

		if e.applyModuleRules(handle, id, moduleDir) {
			slog.Info("Successfully applied all rules for module", "module", id)
			result[id] = OutcomeApplied
		} else {
			slog.Warn("Partial or failed rule application for module", "module", id)
			result[id] = OutcomePartial
		}
	}

	if err := e.ruleHandler.SetEnabled(handle, config.Enable); err != nil {
		slog.Error("Failed to set HymoFS enabled state", "err", err)
	} else {
		slog.Info("HymoFS enabled state set", "enabled", config.Enable)
	}

	return result, nil
}

func (e *Engine) establishMirror(handle *KernelHandle, storageRoot string) {
	mirrorDir := filepath.Join(storageRoot, MirrorDirName)

	if err := e.osHandler.MkdirAll(mirrorDir, mirrorDirPerms); err != nil {
		slog.Error("Failed to create HymoFS mirror directory",
			"err", err,
			"path", mirrorDir,
		)
	}

	if err := e.ruleHandler.SetMirrorPath(handle, mirrorDir); err != nil {
		slog.Error("Failed to set HymoFS mirror path",
			"err", err,
			"path", mirrorDir,
		)
	}
}

// applyModuleRules walks every entry below moduleDir and issues one rule
// per entry: directories become merge rules, everything else file rules.
// It returns false if any single entry failed; the walk is fully attempted
// regardless.
func (e *Engine) applyModuleRules(handle *KernelHandle, id string, moduleDir string) bool {
	success := true

	_ = e.fileWalkHandler.WalkDir(moduleDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if path != moduleDir {
				slog.Warn("Failure for path during walking of module tree (was skipped)",
					"path", path,
					"err", err,
					"module", id,
				)
			}

			return nil
		}

		if path == moduleDir {
			return nil
		}

		relPath, err := filepath.Rel(moduleDir, path)
		if err != nil {
			return nil
		}
		targetPath := filepath.Join("/", relPath)

		if d.IsDir() {
			if err := e.ruleHandler.AddMergeRule(handle, path, targetPath); err != nil {
				slog.Error("Failed to add merge rule",
					"err", err,
					"src", path,
					"target", targetPath,
					"module", id,
				)
				success = false

				return nil
			}

			slog.Info("Added merge rule", "src", path, "target", targetPath)
		} else {
			if err := e.ruleHandler.AddRule(handle, path, targetPath, false); err != nil {
				slog.Error("Failed to add file rule",
					"err", err,
					"src", path,
					"target", targetPath,
					"module", id,
				)
				success = false

				return nil
			}

			slog.Info("Added file rule", "src", path, "target", targetPath)
		}

		if e.umountHandler != nil {
			e.umountHandler.Register(targetPath)
		}

		return nil
	})

	return success
}
