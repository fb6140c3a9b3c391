package vfs

// Dir maps names to child nodes. Listing order is insertion order.
type Dir struct {
	names    []string
	children map[string]Node

	// Fallback resolves names that are not stored in the directory. Nodes it
	// returns are not listed.
	Fallback func(name string) (Node, bool)
}

// NewDir creates an empty directory.
func NewDir() *Dir {
	return &Dir{children: make(map[string]Node)}
}

// Put inserts or replaces a child. A replaced child keeps its listing
// position.
func (d *Dir) Put(name string, n Node) {
	if _, exists := d.children[name]; !exists {
		d.names = append(d.names, name)
	}
	d.children[name] = n
}

// Remove deletes a child. Removing a missing name is a no-op.
func (d *Dir) Remove(name string) {
	if _, exists := d.children[name]; !exists {
		return
	}
	delete(d.children, name)
	for i, n := range d.names {
		if n == name {
			d.names = append(d.names[:i], d.names[i+1:]...)
			break
		}
	}
}

// Child returns the named child.
func (d *Dir) Child(name string) (Node, bool) {
	if n, ok := d.children[name]; ok {
		return n, true
	}
	if d.Fallback != nil {
		return d.Fallback(name)
	}
	return nil, false
}

// List returns the child names in insertion order.
func (d *Dir) List() []string {
	out := make([]string, len(d.names))
	copy(out, d.names)
	return out
}

// Len returns the number of stored children.
func (d *Dir) Len() int {
	return len(d.names)
}

// Lookup resolves components one directory level at a time. Reaching a
// non-directory before the last component is ErrNotFound.
func (d *Dir) Lookup(components []string) (Node, error) {
	n, err := d.LookupPath(components)
	if err == ErrNotDir {
		return nil, ErrNotFound
	}
	return n, err
}

// LookupPath is Lookup that reports ErrNotDir when a file is traversed as a
// directory.
func (d *Dir) LookupPath(components []string) (Node, error) {
	var cur Node = d
	for _, c := range components {
		dir, ok := cur.(*Dir)
		if !ok {
			return nil, ErrNotDir
		}
		child, ok := dir.Child(c)
		if !ok {
			return nil, ErrNotFound
		}
		cur = child
	}
	return cur, nil
}

// MkdirAll returns the directory at components, creating missing levels.
// It fails with ErrNotDir if a file is in the way.
func (d *Dir) MkdirAll(components []string) (*Dir, error) {
	cur := d
	for _, c := range components {
		child, ok := cur.children[c]
		if !ok {
			next := NewDir()
			cur.Put(c, next)
			cur = next
			continue
		}
		next, ok := child.(*Dir)
		if !ok {
			return nil, ErrNotDir
		}
		cur = next
	}
	return cur, nil
}
