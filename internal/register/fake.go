package register

import (
	"context"
	"fmt"
	"sync"

	"chrdev/internal/errors"
)

// Fake is an in-memory Host for tests and in-process use.  It records
// every call and can be told to fail at a chosen stage.
type Fake struct {
	// FailAt makes the setup call that would complete a stage fail.
	FailAt map[Stage]error

	mu      sync.Mutex
	calls   []string
	regions map[int]Region // by major
	classes map[string]bool
	nodes   map[string]Region
	ops     map[string]Operations // by node path
	next    int                   // next dynamic major
}

// NewFake returns an empty Fake host.  Dynamic majors start at 240.
func NewFake() *Fake {
	return &Fake{
		FailAt:  make(map[Stage]error),
		regions: make(map[int]Region),
		classes: make(map[string]bool),
		nodes:   make(map[string]Region),
		ops:     make(map[string]Operations),
		next:    dynamicMajorFirst,
	}
}

func (f *Fake) record(call string) {
	f.calls = append(f.calls, call)
}

// RegisterRegion implements Host.
func (f *Fake) RegisterRegion(_ context.Context, want Region) (Region, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("RegisterRegion")
	if err := f.FailAt[StageRegionRegistered]; err != nil {
		return Region{}, err
	}
	if want.Major == 0 {
		want.Major = f.next
		f.next++
	}
	if _, taken := f.regions[want.Major]; taken {
		return Region{}, fmt.Errorf("major %d: %w", want.Major, errBusy)
	}
	f.regions[want.Major] = want
	return want, nil
}

// UnregisterRegion implements Host.
func (f *Fake) UnregisterRegion(r Region) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("UnregisterRegion")
	delete(f.regions, r.Major)
	return nil
}

// CreateClass implements Host.
func (f *Fake) CreateClass(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateClass")
	if err := f.FailAt[StageClassCreated]; err != nil {
		return err
	}
	f.classes[name] = true
	return nil
}

// DestroyClass implements Host.
func (f *Fake) DestroyClass(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("DestroyClass")
	delete(f.classes, name)
	return nil
}

// CreateNode implements Host.  Nodes are named "/dev/<name>".
func (f *Fake) CreateNode(_ context.Context, class string, r Region, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateNode")
	if err := f.FailAt[StageNodeCreated]; err != nil {
		return "", err
	}
	if !f.classes[class] {
		return "", fmt.Errorf("class %q: %w", class, errors.ErrNotFound)
	}
	path := "/dev/" + name
	f.nodes[path] = r
	return path, nil
}

// DestroyNode implements Host.
func (f *Fake) DestroyNode(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("DestroyNode")
	delete(f.nodes, path)
	return nil
}

// AddOps implements Host.
func (f *Fake) AddOps(_ context.Context, r Region, node string, ops Operations) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("AddOps")
	if err := f.FailAt[StageActive]; err != nil {
		return err
	}
	f.ops[node] = ops
	return nil
}

// RemoveOps implements Host.
func (f *Fake) RemoveOps(r Region) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("RemoveOps")
	for path, nr := range f.nodes {
		if nr.Major == r.Major {
			delete(f.ops, path)
		}
	}
	return nil
}

// Lookup implements Host.
func (f *Fake) Lookup(path string) (Operations, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ops, ok := f.ops[path]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, errors.ErrNotFound)
	}
	return ops, nil
}

// Empty reports whether every registered resource has been released.
func (f *Fake) Empty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.regions) == 0 && len(f.classes) == 0 && len(f.nodes) == 0 && len(f.ops) == 0
}

// CallLog returns a copy of the recorded calls.
func (f *Fake) CallLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}
