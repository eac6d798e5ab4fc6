package hymofs

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"regexp"

	"github.com/dustin/go-humanize"
	"github.com/zeebo/blake3"
	"golang.org/x/sys/unix"
)

// LkmDir is the fixed installation directory of the packaged kernel-module
// images, one per kernel module interface (KMI).
const LkmDir = "/data/adb/modules/hybrid_mount/lkm"

//nolint:gochecknoglobals
var kmiPattern = regexp.MustCompile(`(.* )?(\d+\.\d+)(\S+)?(android\d+)(.*)`)

type unixProvider interface {
	Uname(buf *unix.Utsname) error
	FinitModule(fd int, params string, flags int) error
}

// Loader best-effort loads the kernel extension image matching the running
// kernel's KMI. A missing image is not an error, as the extension may be
// built into the kernel or simply not packaged for this target.
type Loader struct {
	osHandler   osProvider
	unixHandler unixProvider
	syscallNr   int64
}

func NewLoader(osHandler osProvider, unixHandler unixProvider, syscallNr int64) *Loader {
	return &Loader{
		osHandler:   osHandler,
		unixHandler: unixHandler,
		syscallNr:   syscallNr,
	}
}

// Load derives the expected image filename from the running kernel and
// issues the module-load request if the image is packaged. Load failures
// reported by the kernel are logged and non-fatal; the caller degrades to
// a non-HymoFS mount strategy.
func (l *Loader) Load() error {
	kmi, err := l.kmi()
	if err != nil {
		return fmt.Errorf("(hymofs-loader) %w", err)
	}

	koPath := filepath.Join(LkmDir, fmt.Sprintf("%s_hymofs_lkm.ko", kmi))

	info, err := l.osHandler.Stat(koPath)
	if err != nil {
		slog.Warn("HymoFS LKM not found", "path", koPath)

		return nil
	}

	file, err := l.osHandler.Open(koPath)
	if err != nil {
		return fmt.Errorf("(hymofs-loader) failed to open LKM image: %w", err)
	}
	defer file.Close()

	digest := blake3.New()
	if _, err := io.Copy(digest, file); err != nil {
		slog.Warn("Failed to digest LKM image", "err", err, "path", koPath)
	} else {
		slog.Info("Loading HymoFS LKM",
			"path", koPath,
			"size", humanize.IBytes(uint64(info.Size())),
			"blake3", fmt.Sprintf("%x", digest.Sum(nil)),
		)
	}

	params := fmt.Sprintf("hymo_syscall_nr=%d", l.syscallNr)

	if err := l.unixHandler.FinitModule(int(file.Fd()), params, 0); err != nil {
		slog.Error("Failed to load HymoFS LKM", "err", err)

		return nil
	}

	slog.Info("HymoFS LKM loaded successfully")

	return nil
}

func (l *Loader) kmi() (string, error) {
	var uts unix.Utsname

	if err := l.unixHandler.Uname(&uts); err != nil {
		return "", fmt.Errorf("failed to uname: %w", err)
	}

	return parseKMI(unix.ByteSliceToString(uts.Release[:]))
}

// parseKMI derives the "<androidN>-<major.minor>" KMI identifier from a
// kernel release string.
func parseKMI(release string) (string, error) {
	matches := kmiPattern.FindStringSubmatch(release)
	if matches == nil {
		return "", fmt.Errorf("%w: %q", ErrNoKMI, release)
	}

	return fmt.Sprintf("%s-%s", matches[4], matches[2]), nil
}
