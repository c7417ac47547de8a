// Package resolve maps request paths onto the serve root and decides whether
// the result stays inside it.
package resolve

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// ErrNotDirectory is returned by New when the serve root is not a directory.
var ErrNotDirectory = errors.New("serve root is not a directory")

// Kind is the filesystem state of a target, sampled once.
type Kind int

const (
	Absent Kind = iota
	File
	Directory
	// Special is anything else on disk: FIFOs, sockets, devices.
	Special
)

func (k Kind) String() string {
	switch k {
	case File:
		return "file"
	case Directory:
		return "directory"
	case Special:
		return "special"
	default:
		return "absent"
	}
}

// Target is a resolved request path.
type Target struct {
	// Path is the canonical absolute path. It also keys the lock table.
	Path      string
	Kind      Kind
	Contained bool
}

// Name returns the last element of the target path.
func (t Target) Name() string {
	return filepath.Base(t.Path)
}

type Resolver struct {
	root string
}

// New canonicalises root once. Every later containment check compares
// against this form.
func New(root string) (*Resolver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %q: %w", root, err)
	}
	canon, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolve root %q: %w", root, err)
	}
	info, err := os.Stat(canon)
	if err != nil {
		return nil, fmt.Errorf("stat root %q: %w", canon, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, canon)
	}
	return &Resolver{root: canon}, nil
}

// Root returns the canonical serve root.
func (r *Resolver) Root() string {
	return r.root
}

// Resolve joins requestPath onto the root, follows symlinks and `..`
// segments, and reports whether the outcome is still under the root.
func (r *Resolver) Resolve(requestPath string) Target {
	candidate := filepath.Join(r.root, filepath.FromSlash(requestPath))
	canon, err := canonical(candidate)
	if err != nil {
		return Target{Path: candidate}
	}

	t := Target{Path: canon, Contained: within(r.root, canon)}
	if info, err := os.Stat(canon); err == nil {
		switch {
		case info.IsDir():
			t.Kind = Directory
		case info.Mode().IsRegular():
			t.Kind = File
		default:
			t.Kind = Special
		}
	}
	return t
}

// canonical evaluates symlinks on the longest existing prefix of p and
// appends the missing tail unchanged.
func canonical(p string) (string, error) {
	var tail []string
	cur := p
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			return filepath.Join(append([]string{resolved}, tail...)...), nil
		}
		if !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, syscall.ENOTDIR) {
			return "", err
		}
		// A dangling symlink would be followed on create.
		if _, lerr := os.Lstat(cur); lerr == nil {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", err
		}
		tail = append([]string{filepath.Base(cur)}, tail...)
		cur = parent
	}
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
