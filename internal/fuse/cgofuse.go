//go:build cgo || windows

package fuse

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/winfsp/cgofuse/fuse"

	"github.com/huglovefan/cfgfs/internal/adapter"
	"github.com/huglovefan/cfgfs/internal/logging"
	"github.com/huglovefan/cfgfs/internal/vfs"
)

// cgoFuseBackend implements the path-based cgofuse interface on top of the
// adapter. Operations the tree does not support fall through to
// FileSystemBase, which answers ENOSYS.
type cgoFuseBackend struct {
	fuse.FileSystemBase

	ad   *adapter.Adapter
	opts Options

	mu   sync.Mutex
	host *fuse.FileSystemHost
}

func newCgoFuse(ad *adapter.Adapter, opts Options) (Backend, error) {
	return &cgoFuseBackend{ad: ad, opts: opts}, nil
}

func (b *cgoFuseBackend) Name() string {
	return "cgofuse"
}

func (b *cgoFuseBackend) mountArgs() []string {
	args := []string{"-o", "fsname=cfgfs,direct_io,attr_timeout=0,entry_timeout=0,negative_timeout=0"}
	if b.opts.AllowOther {
		args = append(args, "-o", "allow_other")
	}
	if b.opts.Debug {
		args = append(args, "-d")
	}
	// Requests are serialized by the adapter; -s keeps libfuse from
	// starting worker threads for them.
	return append(args, "-s")
}

func (b *cgoFuseBackend) Start(ctx context.Context) error {
	host := fuse.NewFileSystemHost(b)
	host.SetCapReaddirPlus(false)
	b.mu.Lock()
	b.host = host
	b.mu.Unlock()

	logging.Info("mounting",
		logging.String("backend", b.Name()),
		logging.String("path", b.opts.MountPoint))

	// Mount blocks until unmounted.
	errCh := make(chan error, 1)
	go func() {
		if !host.Mount(b.opts.MountPoint, b.mountArgs()) {
			errCh <- fmt.Errorf("mount %s: %w", b.opts.MountPoint, ErrMount)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		host.Unmount()
		<-errCh
		return ctx.Err()
	}
}

func (b *cgoFuseBackend) Stop() error {
	b.mu.Lock()
	host := b.host
	b.mu.Unlock()
	if host != nil {
		host.Unmount()
	}
	return nil
}

// cgoErrno translates errors to the negated errno values cgofuse expects.
func cgoErrno(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, vfs.ErrNotFound):
		return -fuse.ENOENT
	case errors.Is(err, vfs.ErrNotDir):
		return -fuse.ENOTDIR
	case errors.Is(err, vfs.ErrIsDir):
		return -fuse.EISDIR
	case errors.Is(err, adapter.ErrBadHandle):
		return -fuse.EBADF
	case errors.Is(err, adapter.ErrReadOnly):
		return -fuse.EACCES
	default:
		return -fuse.EIO
	}
}

func fillStat(stat *fuse.Stat_t, a adapter.Attr) {
	switch {
	case a.Dir:
		stat.Mode = fuse.S_IFDIR | dirMode
		stat.Nlink = 2
	case a.Writable:
		stat.Mode = fuse.S_IFREG | triggerMode
		stat.Nlink = 1
	default:
		stat.Mode = fuse.S_IFREG | fileMode
		stat.Nlink = 1
	}
	stat.Size = a.Size
	ts := fuse.NewTimespec(mountTime)
	stat.Mtim = ts
	stat.Atim = ts
	stat.Ctim = ts
	uid, gid, _ := fuse.Getcontext()
	stat.Uid = uid
	stat.Gid = gid
}

func (b *cgoFuseBackend) Init() {
	logging.Debug("cgofuse: init")
}

func (b *cgoFuseBackend) Destroy() {
	logging.Debug("cgofuse: destroy")
}

func (b *cgoFuseBackend) Getattr(path string, stat *fuse.Stat_t, fh uint64) int {
	a, err := b.ad.Getattr(path)
	if err != nil {
		return cgoErrno(err)
	}
	fillStat(stat, a)
	return 0
}

func (b *cgoFuseBackend) Opendir(path string) (int, uint64) {
	a, err := b.ad.Getattr(path)
	if err != nil {
		return cgoErrno(err), ^uint64(0)
	}
	if !a.Dir {
		return -fuse.ENOTDIR, ^uint64(0)
	}
	return 0, 0
}

func (b *cgoFuseBackend) Readdir(path string, fill func(name string, stat *fuse.Stat_t, ofst int64) bool, ofst int64, fh uint64) int {
	entries, err := b.ad.Readdir(path)
	if err != nil {
		return cgoErrno(err)
	}
	fill(".", nil, 0)
	fill("..", nil, 0)
	for _, e := range entries {
		if !fill(e.Name, nil, 0) {
			break
		}
	}
	return 0
}

func (b *cgoFuseBackend) Open(path string, flags int) (int, uint64) {
	write := flags&fuse.O_ACCMODE != fuse.O_RDONLY
	if write && flags&fuse.O_TRUNC != 0 {
		if err := b.ad.Truncate(path); err != nil {
			return cgoErrno(err), ^uint64(0)
		}
	}
	fh, err := b.ad.Open(path, write)
	if err != nil {
		return cgoErrno(err), ^uint64(0)
	}
	return 0, fh
}

func (b *cgoFuseBackend) Read(path string, buff []byte, ofst int64, fh uint64) int {
	data, err := b.ad.Read(fh, ofst, len(buff))
	if err != nil {
		return cgoErrno(err)
	}
	return copy(buff, data)
}

func (b *cgoFuseBackend) Write(path string, buff []byte, ofst int64, fh uint64) int {
	n, err := b.ad.Write(fh, buff)
	if err != nil {
		return cgoErrno(err)
	}
	return n
}

func (b *cgoFuseBackend) Truncate(path string, size int64, fh uint64) int {
	return cgoErrno(b.ad.Truncate(path))
}

func (b *cgoFuseBackend) Release(path string, fh uint64) int {
	return cgoErrno(b.ad.Release(fh))
}

func (b *cgoFuseBackend) Access(path string, mask uint32) int {
	_, err := b.ad.Getattr(path)
	return cgoErrno(err)
}

func (b *cgoFuseBackend) Statfs(path string, stat *fuse.Statfs_t) int {
	stat.Bsize = 4096
	stat.Frsize = 4096
	stat.Namemax = 255
	return 0
}
