// Package vfs provides the in-memory tree served through the mount.
//
// A Node is one of *Dir, *StaticFile, *DynamicFile or *TriggerFile. The set is
// closed: consumers switch on the concrete type and treat anything else as a
// programming error.
package vfs

import (
	"errors"
	"strings"
)

var (
	ErrNotFound = errors.New("no such file or directory")
	ErrNotDir   = errors.New("not a directory")
	ErrIsDir    = errors.New("is a directory")
)

// Node is a member of the tree.
type Node interface {
	node()
}

// StaticFile has fixed content.
type StaticFile struct {
	content string
}

// NewStaticFile creates a file with the given content.
func NewStaticFile(content string) *StaticFile {
	return &StaticFile{content: content}
}

// Content returns the file content.
func (f *StaticFile) Content() string {
	return f.content
}

// DynamicFile computes its content on every Content call. Readers must call
// Content once per read session and keep the result.
//
// OnOpen and OnRelease, when set, bracket a read session. OnOpen runs before
// any content is computed; OnRelease receives whether content was computed.
type DynamicFile struct {
	content   func() string
	OnOpen    func() error
	OnRelease func(read bool)
}

// NewDynamicFile creates a file whose content comes from fn.
func NewDynamicFile(fn func() string) *DynamicFile {
	return &DynamicFile{content: fn}
}

// Content invokes the content function.
func (f *DynamicFile) Content() string {
	if f.content == nil {
		return ""
	}
	return f.content()
}

// TriggerFile accepts writes and hands the data to a callback. It reads as
// empty.
type TriggerFile struct {
	OnWrite   func(data []byte) error
	OnRelease func()
}

// NewTriggerFile creates a write trigger.
func NewTriggerFile(onWrite func(data []byte) error) *TriggerFile {
	return &TriggerFile{OnWrite: onWrite}
}

func (*Dir) node()         {}
func (*StaticFile) node()  {}
func (*DynamicFile) node() {}
func (*TriggerFile) node() {}

// SplitPath splits a slash-separated path into its non-empty components.
func SplitPath(p string) []string {
	parts := strings.Split(p, "/")
	out := parts[:0]
	for _, c := range parts {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

// IsDir reports whether n is a directory.
func IsDir(n Node) bool {
	_, ok := n.(*Dir)
	return ok
}
