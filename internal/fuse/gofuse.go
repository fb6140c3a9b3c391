//go:build linux || darwin || freebsd

package fuse

import (
	"context"
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	gofuse "github.com/hanwen/go-fuse/v2/fuse"
	"golang.org/x/sys/unix"

	"github.com/huglovefan/cfgfs/internal/adapter"
	"github.com/huglovefan/cfgfs/internal/logging"
)

type goFuseBackend struct {
	ad   *adapter.Adapter
	opts Options

	mu     sync.Mutex
	server *gofuse.Server
}

func newGoFuse(ad *adapter.Adapter, opts Options) (Backend, error) {
	return &goFuseBackend{ad: ad, opts: opts}, nil
}

func (b *goFuseBackend) Name() string {
	return "gofuse"
}

func (b *goFuseBackend) Start(ctx context.Context) error {
	if err := os.MkdirAll(b.opts.MountPoint, 0o755); err != nil {
		return fmt.Errorf("create mount point: %w", err)
	}

	// Content changes on every access, so nothing may be cached by the
	// kernel: no entry or attribute caching and direct I/O on every open.
	var zero time.Duration
	opts := &fs.Options{
		MountOptions: gofuse.MountOptions{
			AllowOther:     b.opts.AllowOther,
			Debug:          b.opts.Debug,
			FsName:         "cfgfs",
			Name:           "cfgfs",
			SingleThreaded: true,
		},
		EntryTimeout:    &zero,
		AttrTimeout:     &zero,
		NegativeTimeout: &zero,
		UID:             uint32(os.Getuid()),
		GID:             uint32(os.Getgid()),
	}

	root := &goFuseNode{ad: b.ad, path: "/"}
	server, err := fs.Mount(b.opts.MountPoint, root, opts)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMount, err)
	}
	b.mu.Lock()
	b.server = server
	b.mu.Unlock()
	logging.Info("mounted",
		logging.String("backend", b.Name()),
		logging.String("path", b.opts.MountPoint))

	done := make(chan struct{})
	go func() {
		server.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		b.Stop()
		<-done
		return ctx.Err()
	}
}

func (b *goFuseBackend) Stop() error {
	b.mu.Lock()
	server := b.server
	b.mu.Unlock()
	if server == nil {
		return nil
	}
	return server.Unmount()
}

// goFuseNode is a path in the tree. Nodes hold no state of their own; every
// call goes back to the adapter, so removed paths fail on the next request.
type goFuseNode struct {
	fs.Inode

	ad   *adapter.Adapter
	path string
}

var _ fs.InodeEmbedder = (*goFuseNode)(nil)
var _ fs.NodeGetattrer = (*goFuseNode)(nil)
var _ fs.NodeLookuper = (*goFuseNode)(nil)
var _ fs.NodeReaddirer = (*goFuseNode)(nil)
var _ fs.NodeOpener = (*goFuseNode)(nil)
var _ fs.NodeReader = (*goFuseNode)(nil)
var _ fs.NodeSetattrer = (*goFuseNode)(nil)

func fillAttr(out *gofuse.Attr, a adapter.Attr) {
	switch {
	case a.Dir:
		out.Mode = syscall.S_IFDIR | dirMode
		out.Nlink = 2
	case a.Writable:
		out.Mode = syscall.S_IFREG | triggerMode
		out.Nlink = 1
	default:
		out.Mode = syscall.S_IFREG | fileMode
		out.Nlink = 1
	}
	out.Size = uint64(a.Size)
	out.Mtime = uint64(mountTime.Unix())
	out.Atime = out.Mtime
	out.Ctime = out.Mtime
	out.Uid = uint32(os.Getuid())
	out.Gid = uint32(os.Getgid())
}

// Getattr reports the adapter's view of the node.
func (n *goFuseNode) Getattr(ctx context.Context, f fs.FileHandle, out *gofuse.AttrOut) syscall.Errno {
	a, err := n.ad.Getattr(n.path)
	if err != nil {
		return toErrno(err)
	}
	fillAttr(&out.Attr, a)
	return 0
}

// Lookup finds a child by name.
func (n *goFuseNode) Lookup(ctx context.Context, name string, out *gofuse.EntryOut) (*fs.Inode, syscall.Errno) {
	p := childPath(n.path, name)
	a, err := n.ad.Getattr(p)
	if err != nil {
		return nil, toErrno(err)
	}
	fillAttr(&out.Attr, a)
	child := &goFuseNode{ad: n.ad, path: p}
	return n.NewInode(ctx, child, fs.StableAttr{Mode: out.Mode & syscall.S_IFMT}), 0
}

// Readdir lists directory contents.
func (n *goFuseNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	list, err := n.ad.Readdir(n.path)
	if err != nil {
		return nil, toErrno(err)
	}
	entries := make([]gofuse.DirEntry, 0, len(list))
	for _, e := range list {
		mode := uint32(syscall.S_IFREG)
		if e.Dir {
			mode = syscall.S_IFDIR
		}
		entries = append(entries, gofuse.DirEntry{Name: e.Name, Mode: mode})
	}
	return fs.NewListDirStream(entries), 0
}

// Open starts an adapter session. Every open uses direct I/O so reads reach
// the adapter even when the size reported earlier was a placeholder.
func (n *goFuseNode) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	write := flags&(unix.O_WRONLY|unix.O_RDWR) != 0
	if write && flags&unix.O_TRUNC != 0 {
		if err := n.ad.Truncate(n.path); err != nil {
			return nil, 0, toErrno(err)
		}
	}
	fh, err := n.ad.Open(n.path, write)
	if err != nil {
		return nil, 0, toErrno(err)
	}
	return &goFuseHandle{ad: n.ad, fh: fh}, gofuse.FOPEN_DIRECT_IO, 0
}

// Read serves a byte range of the session content.
func (n *goFuseNode) Read(ctx context.Context, f fs.FileHandle, dest []byte, off int64) (gofuse.ReadResult, syscall.Errno) {
	h, ok := f.(*goFuseHandle)
	if !ok {
		return nil, syscall.EBADF
	}
	data, err := n.ad.Read(h.fh, off, len(dest))
	if err != nil {
		return nil, toErrno(err)
	}
	return gofuse.ReadResultData(dest[:copy(dest, data)]), 0
}

// Setattr accepts truncation of trigger files and ignores everything else.
func (n *goFuseNode) Setattr(ctx context.Context, f fs.FileHandle, in *gofuse.SetAttrIn, out *gofuse.AttrOut) syscall.Errno {
	if _, ok := in.GetSize(); ok {
		if err := n.ad.Truncate(n.path); err != nil {
			return toErrno(err)
		}
	}
	return n.Getattr(ctx, f, out)
}

type goFuseHandle struct {
	ad *adapter.Adapter
	fh uint64
}

var _ fs.FileHandle = (*goFuseHandle)(nil)
var _ fs.FileWriter = (*goFuseHandle)(nil)
var _ fs.FileReleaser = (*goFuseHandle)(nil)

// Write hands data to a trigger file. Offsets are ignored; triggers are
// append-only streams.
func (h *goFuseHandle) Write(ctx context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	n, err := h.ad.Write(h.fh, data)
	if err != nil {
		return 0, toErrno(err)
	}
	return uint32(n), 0
}

// Release ends the adapter session.
func (h *goFuseHandle) Release(ctx context.Context) syscall.Errno {
	return toErrno(h.ad.Release(h.fh))
}
