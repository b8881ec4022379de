package register

import (
	"context"
	"fmt"
)

// Region is a claimed range of device numbers.
type Region struct {
	Major int
	Minor int
	Count int
	Name  string
}

func (r Region) String() string { return fmt.Sprintf("%d:%d", r.Major, r.Minor) }

// Operations is the I/O table a device installs into a host.  Handles
// are opaque to the host.
type Operations interface {
	Open() (int64, error)
	Read(h int64, p []byte) (int, error)
	Write(h int64, p []byte) (int, error)
	Close(h int64) error
}

// Host is the device-registration API of whatever platform the device
// lives on.  Each Create/Register/Add call has a matching undo.
type Host interface {
	RegisterRegion(ctx context.Context, want Region) (Region, error)
	UnregisterRegion(r Region) error

	CreateClass(ctx context.Context, name string) error
	DestroyClass(name string) error

	// CreateNode exposes the device and returns the path clients open.
	CreateNode(ctx context.Context, class string, r Region, name string) (string, error)
	DestroyNode(path string) error

	AddOps(ctx context.Context, r Region, node string, ops Operations) error
	RemoveOps(r Region) error

	// Lookup resolves an exposed node path to its operations.  It fails
	// with errors.ErrNotFound for paths that are not active devices.
	Lookup(path string) (Operations, error)
}
