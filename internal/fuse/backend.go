// Package fuse mounts an adapter.Adapter with one of two FUSE libraries:
// hanwen/go-fuse (inode API, Linux and macOS) or winfsp/cgofuse (path API,
// also Windows via WinFsp).
package fuse

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/huglovefan/cfgfs/internal/adapter"
	"github.com/huglovefan/cfgfs/internal/vfs"
)

// Backend is a mounted filesystem.
type Backend interface {
	Name() string
	// Start mounts and blocks until the filesystem is unmounted or ctx is
	// cancelled.
	Start(ctx context.Context) error
	Stop() error
}

// Options configures a mount.
type Options struct {
	MountPoint string
	Debug      bool
	AllowOther bool
}

// ErrUnknownBackend is returned by New for names other than gofuse, cgofuse
// and auto.
var ErrUnknownBackend = errors.New("unknown backend")

// ErrMount wraps failures to establish the mount. A failed mount may be
// retried; errors after the mount is up may not.
var ErrMount = errors.New("mount failed")

// New creates the named backend serving ad. "auto" picks gofuse where it is
// available and cgofuse elsewhere.
func New(name string, ad *adapter.Adapter, opts Options) (Backend, error) {
	switch strings.ToLower(name) {
	case "gofuse", "go-fuse":
		return newGoFuse(ad, opts)
	case "cgofuse", "winfsp":
		return newCgoFuse(ad, opts)
	case "", "auto":
		if runtime.GOOS == "windows" {
			return newCgoFuse(ad, opts)
		}
		return newGoFuse(ad, opts)
	default:
		return nil, fmt.Errorf("%w: %s (use auto, gofuse or cgofuse)", ErrUnknownBackend, name)
	}
}

// toErrno translates adapter and tree errors to errno values.
func toErrno(err error) syscall.Errno {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, vfs.ErrNotFound):
		return syscall.ENOENT
	case errors.Is(err, vfs.ErrNotDir):
		return syscall.ENOTDIR
	case errors.Is(err, vfs.ErrIsDir):
		return syscall.EISDIR
	case errors.Is(err, adapter.ErrBadHandle):
		return syscall.EBADF
	case errors.Is(err, adapter.ErrReadOnly):
		return syscall.EACCES
	default:
		return syscall.EIO
	}
}

const (
	dirMode  = 0o555
	fileMode = 0o444
	// Trigger files are written by the game.
	triggerMode = 0o644
)

// mountTime stamps every node; the tree has no modification times.
var mountTime = time.Now()

func childPath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}
