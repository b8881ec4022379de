package register

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/gofrs/flock"

	"chrdev/internal/errors"
)

// Dynamic majors are handed out from the range Linux reserves for
// local and experimental use.
const (
	dynamicMajorFirst = 240
	dynamicMajorLast  = 254
)

var errBusy = errors.New("device number already registered")

// DirHost is a Host backed by a directory tree, so that several
// processes on one machine agree on which device numbers are taken:
//
//	<root>/regions/<major>-<minor>.lock   flock held while registered
//	<root>/class/<class>/                 one directory per class
//	<root>/dev/<name>                     node file containing "major:minor"
//
// Operations tables live in memory; Lookup only resolves nodes
// registered by this process.
type DirHost struct {
	root string

	mu    sync.Mutex
	locks map[int]*flock.Flock // by major
	nodes map[string]Region    // by node path
	ops   map[string]Operations
}

// NewDirHost returns a DirHost rooted at root, creating the directory
// layout if needed.
func NewDirHost(root string) (*DirHost, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("host root: %w", err)
	}
	for _, sub := range []string{"regions", "class", "dev"} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return nil, fmt.Errorf("host root: %w", err)
		}
	}
	return &DirHost{
		root:  root,
		locks: make(map[int]*flock.Flock),
		nodes: make(map[string]Region),
		ops:   make(map[string]Operations),
	}, nil
}

// Root returns the directory the host is rooted at.
func (h *DirHost) Root() string { return h.root }

func (h *DirHost) lockPath(major, minor int) string {
	return filepath.Join(h.root, "regions", fmt.Sprintf("%d-%d.lock", major, minor))
}

// RegisterRegion claims want by taking an exclusive lock file.  With
// Major 0 it scans the dynamic range for the first free major.
func (h *DirHost) RegisterRegion(ctx context.Context, want Region) (Region, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if want.Major != 0 {
		if err := h.claim(want.Major, want.Minor); err != nil {
			return Region{}, err
		}
		return want, nil
	}
	for major := dynamicMajorFirst; major <= dynamicMajorLast; major++ {
		if err := ctx.Err(); err != nil {
			return Region{}, err
		}
		err := h.claim(major, want.Minor)
		if err == nil {
			want.Major = major
			return want, nil
		}
		if !errors.Is(err, errBusy) {
			return Region{}, err
		}
	}
	return Region{}, fmt.Errorf("no free major in %d-%d: %w",
		dynamicMajorFirst, dynamicMajorLast, errBusy)
}

// claim takes the lock for major:minor.  h.mu must be held.
func (h *DirHost) claim(major, minor int) error {
	if _, held := h.locks[major]; held {
		return fmt.Errorf("major %d: %w", major, errBusy)
	}
	fl := flock.New(h.lockPath(major, minor))
	ok, err := fl.TryLock()
	if err != nil {
		return fmt.Errorf("lock %s: %w", fl.Path(), err)
	}
	if !ok {
		fl.Close() //nolint:errcheck // release the probe handle
		return fmt.Errorf("major %d: %w", major, errBusy)
	}
	h.locks[major] = fl
	return nil
}

// UnregisterRegion releases the lock.  The lock file is left in place
// so every claimant of major:minor locks the same inode.
func (h *DirHost) UnregisterRegion(r Region) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	fl, ok := h.locks[r.Major]
	if !ok {
		return nil
	}
	delete(h.locks, r.Major)
	if err := fl.Close(); err != nil {
		return fmt.Errorf("unlock %s: %w", fl.Path(), err)
	}
	return nil
}

// CreateClass creates the class directory.
func (h *DirHost) CreateClass(_ context.Context, name string) error {
	if name == "" || strings.ContainsRune(name, os.PathSeparator) {
		return fmt.Errorf("invalid class name %q", name)
	}
	return os.MkdirAll(filepath.Join(h.root, "class", name), 0o755)
}

// DestroyClass removes the class directory.  It fails if nodes still
// reference it.
func (h *DirHost) DestroyClass(name string) error {
	err := os.Remove(filepath.Join(h.root, "class", name))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// CreateNode writes the node file and links it from the class
// directory.  A node left behind by a process that exited without
// teardown is replaced; a node whose region is still locked is not.
func (h *DirHost) CreateNode(_ context.Context, class string, r Region, name string) (string, error) {
	if name == "" || strings.ContainsRune(name, os.PathSeparator) {
		return "", fmt.Errorf("invalid node name %q", name)
	}
	classDir := filepath.Join(h.root, "class", class)
	if _, err := os.Stat(classDir); err != nil {
		return "", fmt.Errorf("class %q: %w", class, errors.ErrNotFound)
	}

	path := filepath.Join(h.root, "dev", name)
	if err := h.checkStale(path); err != nil {
		return "", err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create node: %w", err)
	}
	_, werr := fmt.Fprintf(f, "%s\n", r)
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		os.Remove(path) //nolint:errcheck // best-effort cleanup
		return "", fmt.Errorf("create node: %w", werr)
	}
	link := filepath.Join(classDir, name)
	if err := os.Remove(link); err != nil && !os.IsNotExist(err) {
		os.Remove(path) //nolint:errcheck // best-effort cleanup
		return "", fmt.Errorf("link node: %w", err)
	}
	if err := os.Symlink(path, link); err != nil {
		os.Remove(path) //nolint:errcheck // best-effort cleanup
		return "", fmt.Errorf("link node: %w", err)
	}

	h.mu.Lock()
	h.nodes[path] = r
	h.mu.Unlock()
	return path, nil
}

// checkStale fails with errBusy when the node at path names a region
// another process still holds.  A missing or unparsable node, or one on
// a major this host claimed, is free to replace.  h.mu must not be held.
func (h *DirHost) checkStale(path string) error {
	old, err := ReadNode(path)
	if err != nil {
		return nil
	}
	h.mu.Lock()
	_, ours := h.locks[old.Major]
	h.mu.Unlock()
	if ours {
		return nil
	}

	fl := flock.New(h.lockPath(old.Major, old.Minor))
	defer fl.Close() //nolint:errcheck // probe handle
	ok, err := fl.TryLock()
	if err != nil {
		return fmt.Errorf("check node %s: %w", path, err)
	}
	if !ok {
		return fmt.Errorf("node %s in use by %s: %w", path, old, errBusy)
	}
	return nil
}

// DestroyNode removes the node file and its class link.
func (h *DirHost) DestroyNode(path string) error {
	h.mu.Lock()
	delete(h.nodes, path)
	h.mu.Unlock()

	name := filepath.Base(path)
	links, _ := filepath.Glob(filepath.Join(h.root, "class", "*", name))
	for _, l := range links {
		os.Remove(l) //nolint:errcheck // link may already be gone
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// AddOps attaches ops to node.
func (h *DirHost) AddOps(_ context.Context, r Region, node string, ops Operations) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.nodes[node]; !ok {
		return fmt.Errorf("node %s: %w", node, errors.ErrNotFound)
	}
	h.ops[node] = ops
	return nil
}

// RemoveOps detaches every operations table on r's major.
func (h *DirHost) RemoveOps(r Region) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for path, nr := range h.nodes {
		if nr.Major == r.Major {
			delete(h.ops, path)
		}
	}
	return nil
}

// Lookup resolves path to an active device.  Relative paths are taken
// relative to <root>/dev.
func (h *DirHost) Lookup(path string) (Operations, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(h.root, "dev", path)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	ops, ok := h.ops[filepath.Clean(path)]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, errors.ErrNotFound)
	}
	return ops, nil
}

// ReadNode parses the "major:minor" contents of a node file.
func ReadNode(path string) (Region, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Region{}, fmt.Errorf("%s: %w", path, errors.ErrNotFound)
		}
		return Region{}, err
	}
	majStr, minStr, ok := strings.Cut(strings.TrimSpace(string(data)), ":")
	if !ok {
		return Region{}, fmt.Errorf("%s: malformed node %q", path, data)
	}
	major, err := strconv.Atoi(majStr)
	if err != nil {
		return Region{}, fmt.Errorf("%s: major: %w", path, err)
	}
	minor, err := strconv.Atoi(minStr)
	if err != nil {
		return Region{}, fmt.Errorf("%s: minor: %w", path, err)
	}
	return Region{Major: major, Minor: minor, Count: 1, Name: filepath.Base(path)}, nil
}
