// Package adapter serves a vfs tree through path-level filesystem calls.
//
// The adapter keeps one session per open file handle. A session computes the
// content of a dynamic file at most once, on its first read, and serves later
// chunked reads from that copy. Content that is not empty is followed by a
// single NUL byte, which tells the game's config reader the file ends there.
package adapter

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/huglovefan/cfgfs/internal/logging"
	"github.com/huglovefan/cfgfs/internal/metrics"
	"github.com/huglovefan/cfgfs/internal/vfs"
)

// DefaultReportedSize is the size reported for files whose content has not
// been computed yet. The game reads at most st_size bytes, so it has to be
// larger than any content served.
const DefaultReportedSize = 1 << 20

var (
	// ErrBadHandle is returned for unknown or released file handles.
	ErrBadHandle = errors.New("bad file handle")
	// ErrReadOnly is returned for writes to anything but a trigger file.
	ErrReadOnly = errors.New("read-only file")
)

// Attr is what the adapter knows about a node.
type Attr struct {
	Dir      bool
	Writable bool
	Size     int64
}

// DirEntry is one entry of a directory listing.
type DirEntry struct {
	Name string
	Dir  bool
}

// Config configures an Adapter.
type Config struct {
	// ReportedSize is the size of files not yet computed in any session.
	// Zero means DefaultReportedSize.
	ReportedSize int64
}

type session struct {
	id       string
	path     string
	node     vfs.Node
	computed bool
	served   []byte
}

// Adapter translates filesystem requests into tree operations. All methods
// are safe for concurrent use; requests are processed one at a time.
type Adapter struct {
	mu           sync.Mutex
	root         *vfs.Dir
	reportedSize int64

	handles map[uint64]*session
	nextFh  uint64
}

// New creates an adapter serving root.
func New(root *vfs.Dir, cfg Config) *Adapter {
	size := cfg.ReportedSize
	if size <= 0 {
		size = DefaultReportedSize
	}
	return &Adapter{
		root:         root,
		reportedSize: size,
		handles:      make(map[uint64]*session),
		nextFh:       1,
	}
}

// Exclusive runs fn with request processing paused. Mutations of the tree or
// the bind table from outside a request go through here.
func (a *Adapter) Exclusive(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn()
}

func (a *Adapter) lookup(path string) (vfs.Node, error) {
	n, err := a.root.Lookup(vfs.SplitPath(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return n, nil
}

// served returns the bytes served for content at path. The game's cfg
// reader needs a NUL after the text of .cfg files; other files are served
// as is.
func served(path, content string) []byte {
	if content == "" {
		return nil
	}
	if !strings.HasSuffix(path, ".cfg") {
		return []byte(content)
	}
	b := make([]byte, len(content)+1)
	copy(b, content)
	return b
}

// Getattr reports whether path is a directory and the size of a file. A
// dynamic file reports its served length while a session holds computed
// content, and the configured reported size otherwise.
func (a *Adapter) Getattr(path string) (attr Attr, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	defer func() { metrics.RecordFSOp("getattr", err) }()

	n, err := a.lookup(path)
	if err != nil {
		return Attr{}, err
	}
	switch n := n.(type) {
	case *vfs.Dir:
		return Attr{Dir: true}, nil
	case *vfs.StaticFile:
		return Attr{Size: int64(len(served(path, n.Content())))}, nil
	case *vfs.DynamicFile:
		for _, s := range a.handles {
			if s.node == n && s.computed {
				return Attr{Size: int64(len(s.served))}, nil
			}
		}
		return Attr{Size: a.reportedSize}, nil
	case *vfs.TriggerFile:
		return Attr{Writable: true}, nil
	default:
		panic(fmt.Sprintf("adapter: unexpected node %T", n))
	}
}

// Open starts a session on a file. Directories are refused with
// vfs.ErrIsDir and writable opens of anything but a trigger file with
// ErrReadOnly.
func (a *Adapter) Open(path string, write bool) (fh uint64, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	defer func() { metrics.RecordFSOp("open", err) }()

	n, err := a.lookup(path)
	if err != nil {
		return 0, err
	}
	switch n := n.(type) {
	case *vfs.Dir:
		return 0, fmt.Errorf("%s: %w", path, vfs.ErrIsDir)
	case *vfs.StaticFile:
		if write {
			return 0, fmt.Errorf("%s: %w", path, ErrReadOnly)
		}
	case *vfs.DynamicFile:
		if write {
			return 0, fmt.Errorf("%s: %w", path, ErrReadOnly)
		}
		if n.OnOpen != nil {
			if err := n.OnOpen(); err != nil {
				return 0, fmt.Errorf("%s: %w", path, err)
			}
		}
	case *vfs.TriggerFile:
	default:
		panic(fmt.Sprintf("adapter: unexpected node %T", n))
	}

	s := &session{id: uuid.NewString(), path: path, node: n}
	fh = a.nextFh
	a.nextFh++
	a.handles[fh] = s
	metrics.SetOpenSessions(len(a.handles))
	logging.Debug("open",
		logging.String("path", path),
		logging.String("session", s.id),
		logging.Bool("write", write))
	return fh, nil
}

// Read returns up to size bytes of the session's content at off. Reading at
// or past the end returns an empty slice.
func (a *Adapter) Read(fh uint64, off int64, size int) (data []byte, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	defer func() { metrics.RecordFSOp("read", err) }()

	s, ok := a.handles[fh]
	if !ok {
		return nil, ErrBadHandle
	}
	if !s.computed {
		switch n := s.node.(type) {
		case *vfs.StaticFile:
			s.served = served(s.path, n.Content())
		case *vfs.DynamicFile:
			s.served = served(s.path, n.Content())
		case *vfs.TriggerFile:
		}
		s.computed = true
	}

	if off < 0 || off >= int64(len(s.served)) || size <= 0 {
		return []byte{}, nil
	}
	end := off + int64(size)
	if end > int64(len(s.served)) {
		end = int64(len(s.served))
	}
	data = s.served[off:end]
	metrics.RecordBytesServed(len(data))
	logging.Debug("read",
		logging.String("path", s.path),
		logging.String("session", s.id),
		logging.Int64("offset", off),
		logging.Int("size", size),
		logging.Int("served", len(data)))
	return data, nil
}

// Write hands data to a trigger file.
func (a *Adapter) Write(fh uint64, data []byte) (n int, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	defer func() { metrics.RecordFSOp("write", err) }()

	s, ok := a.handles[fh]
	if !ok {
		return 0, ErrBadHandle
	}
	t, ok := s.node.(*vfs.TriggerFile)
	if !ok {
		return 0, fmt.Errorf("%s: %w", s.path, ErrReadOnly)
	}
	if t.OnWrite != nil {
		if err := t.OnWrite(data); err != nil {
			return 0, fmt.Errorf("%s: %w", s.path, err)
		}
	}
	return len(data), nil
}

// Truncate accepts truncation of trigger files, which the game requests when
// it opens a log for writing.
func (a *Adapter) Truncate(path string) (err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	defer func() { metrics.RecordFSOp("truncate", err) }()

	n, err := a.lookup(path)
	if err != nil {
		return err
	}
	switch n.(type) {
	case *vfs.TriggerFile:
		return nil
	case *vfs.Dir:
		return fmt.Errorf("%s: %w", path, vfs.ErrIsDir)
	default:
		return fmt.Errorf("%s: %w", path, ErrReadOnly)
	}
}

// Release ends a session.
func (a *Adapter) Release(fh uint64) (err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	defer func() { metrics.RecordFSOp("release", err) }()

	s, ok := a.handles[fh]
	if !ok {
		return ErrBadHandle
	}
	delete(a.handles, fh)
	metrics.SetOpenSessions(len(a.handles))
	logging.Debug("release",
		logging.String("path", s.path),
		logging.String("session", s.id),
		logging.Bool("read", s.computed))

	switch n := s.node.(type) {
	case *vfs.DynamicFile:
		if n.OnRelease != nil {
			n.OnRelease(s.computed)
		}
	case *vfs.TriggerFile:
		if n.OnRelease != nil {
			n.OnRelease()
		}
	}
	return nil
}

// Readdir lists a directory.
func (a *Adapter) Readdir(path string) (entries []DirEntry, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	defer func() { metrics.RecordFSOp("readdir", err) }()

	n, err := a.lookup(path)
	if err != nil {
		return nil, err
	}
	d, ok := n.(*vfs.Dir)
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, vfs.ErrNotDir)
	}
	names := d.List()
	entries = make([]DirEntry, 0, len(names))
	for _, name := range names {
		child, _ := d.Child(name)
		entries = append(entries, DirEntry{Name: name, Dir: vfs.IsDir(child)})
	}
	return entries, nil
}

// OpenSessions returns the number of open handles.
func (a *Adapter) OpenSessions() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.handles)
}
