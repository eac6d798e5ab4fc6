// Package umount keeps a process-wide, deduplicated registry of paths to
// unmount and commits them as a single detach-unmount batch at orderly
// shutdown.
package umount

import (
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
)

type unixProvider interface {
	Unmount(target string, flags int) error
}

// Manager is the process-wide unmount registry. Registration and commit
// are serialized by a mutual-exclusion lock held only for the duration of
// the set mutation or the batch unmount.
type Manager struct {
	sync.Mutex

	enabled     bool
	targets     []string
	unixHandler unixProvider
}

// NewManager returns a pointer to a new [Manager]. The feature gate is
// read once at startup; a disabled manager ignores all registrations and
// commits.
func NewManager(enabled bool, unixHandler unixProvider) *Manager {
	return &Manager{
		enabled:     enabled,
		unixHandler: unixHandler,
	}
}

// Register records an absolute path for the eventual unmount batch. A path
// already covered by a registered ancestor is skipped, so that no redundant
// unmount attempts happen on nested mounts.
func (m *Manager) Register(path string) {
	if !m.enabled {
		return
	}

	m.Lock()
	defer m.Unlock()

	for _, target := range m.targets {
		if strings.HasPrefix(path, target) {
			slog.Debug("Unmount list already includes an ancestor of path",
				"path", path,
				"ancestor", target,
			)

			return
		}
	}

	m.targets = append(m.targets, path)
}

// Commit performs a single detach-style unmount pass over every registered
// path, so that busy mounts do not block process exit. Failures are logged
// as warnings and do not abort the remaining unmounts. Intended to run
// exactly once, at orderly process shutdown.
func (m *Manager) Commit() {
	if !m.enabled {
		return
	}

	m.Lock()
	defer m.Unlock()

	for _, target := range m.targets {
		if err := m.unixHandler.Unmount(target, unix.MNT_DETACH); err != nil {
			slog.Warn("Failed to unmount path", "err", err, "path", target)

			continue
		}

		slog.Info("Unmounted path", "path", target)
	}
}

// Targets returns a copy of the currently registered paths.
func (m *Manager) Targets() []string {
	m.Lock()
	defer m.Unlock()

	targets := make([]string, len(m.targets))
	copy(targets, m.targets)

	return targets
}
