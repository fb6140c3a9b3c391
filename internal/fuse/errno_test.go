package fuse

import (
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/huglovefan/cfgfs/internal/adapter"
	"github.com/huglovefan/cfgfs/internal/vfs"
)

func TestToErrno(t *testing.T) {
	tests := []struct {
		err  error
		want syscall.Errno
	}{
		{nil, 0},
		{vfs.ErrNotFound, syscall.ENOENT},
		{fmt.Errorf("/cfg/x: %w", vfs.ErrNotFound), syscall.ENOENT},
		{vfs.ErrNotDir, syscall.ENOTDIR},
		{vfs.ErrIsDir, syscall.EISDIR},
		{adapter.ErrBadHandle, syscall.EBADF},
		{fmt.Errorf("/cfg/cfgfs/keys.txt: %w", adapter.ErrReadOnly), syscall.EACCES},
		{errors.New("other"), syscall.EIO},
	}
	for _, tt := range tests {
		if got := toErrno(tt.err); got != tt.want {
			t.Errorf("toErrno(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestChildPath(t *testing.T) {
	tests := []struct {
		parent, name, want string
	}{
		{"/", "cfg", "/cfg"},
		{"/cfg", "binds", "/cfg/binds"},
		{"/cfg/binds", "+w.cfg", "/cfg/binds/+w.cfg"},
	}
	for _, tt := range tests {
		if got := childPath(tt.parent, tt.name); got != tt.want {
			t.Errorf("childPath(%q, %q) = %q, want %q", tt.parent, tt.name, got, tt.want)
		}
	}
}

func TestNewUnknownBackend(t *testing.T) {
	if _, err := New("nfs", nil, Options{}); !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("New(nfs) = %v, want ErrUnknownBackend", err)
	}
}
