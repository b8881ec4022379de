// Package register installs a device into a host and removes it again.
//
// Setup is a fixed sequence of stages.  Each completed stage pushes its
// undo onto a stack; a failing stage unwinds that stack in reverse and
// reports how far setup got.  Teardown runs the same unwinding for a
// fully active device.
package register

import (
	"context"
	"fmt"
	"sync"

	"chrdev/internal/errors"
	"chrdev/internal/telemetry"
	"chrdev/util"
)

// Stage records how far registration has progressed.
type Stage int

const (
	StageNone Stage = iota
	StageRegionRegistered
	StageClassCreated
	StageNodeCreated
	StageActive
)

func (s Stage) String() string {
	switch s {
	case StageNone:
		return "none"
	case StageRegionRegistered:
		return "region"
	case StageClassCreated:
		return "class"
	case StageNodeCreated:
		return "node"
	case StageActive:
		return "active"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Params names the device to register.
type Params struct {
	Name  string // device and node name
	Class string // logical grouping
	Major int    // 0 asks the host to pick one
	Minor int
	Count int // minor numbers to claim; 0 means 1
}

// Registration is the result of a successful Setup.
type Registration struct {
	Region Region
	Class  string
	Node   string // path clients open
}

type step struct {
	stage Stage
	do    func(ctx context.Context) error
	undo  func() error
}

type undo struct {
	stage Stage
	fn    func() error
}

// Registrar drives a device through the setup stages against a Host.
type Registrar struct {
	host   Host
	params Params
	ops    Operations
	logger *util.Logger

	mu    sync.Mutex
	stage Stage
	done  []undo
	reg   Registration
}

// NewRegistrar prepares ops to be installed into host under params.
func NewRegistrar(host Host, params Params, ops Operations, logger *util.Logger) *Registrar {
	if params.Count == 0 {
		params.Count = 1
	}
	if params.Class == "" {
		params.Class = params.Name
	}
	if logger == nil {
		logger = util.Discard()
	}
	return &Registrar{host: host, params: params, ops: ops, logger: logger.With("register")}
}

// Stage reports the last stage completed.
func (r *Registrar) Stage() Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stage
}

// Setup runs every stage in order.  If one fails, the stages already
// completed are undone in reverse and the failure is returned as a
// *errors.StageError, joined with any errors from the undo steps.
func (r *Registrar) Setup(ctx context.Context) (Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stage != StageNone {
		return Registration{}, &errors.StageError{
			Stage: r.stage.String(),
			Err:   errors.ErrContractViolation,
		}
	}

	for _, st := range r.steps() {
		if err := ctx.Err(); err != nil {
			return Registration{}, r.fail(ctx, st.stage, err)
		}
		r.logger.Debug("%s: %s", r.params.Name, st.stage)
		if err := st.do(ctx); err != nil {
			return Registration{}, r.fail(ctx, st.stage, err)
		}
		telemetry.RecordStage(ctx, r.params.Name, st.stage.String(), nil)
		r.stage = st.stage
		r.done = append(r.done, undo{stage: st.stage, fn: st.undo})
	}
	r.logger.Verbose("%s: active at %s (%d:%d)",
		r.params.Name, r.reg.Node, r.reg.Region.Major, r.reg.Region.Minor)
	return r.reg, nil
}

// Teardown undoes every completed stage in reverse.  It is safe to call
// after a failed Setup or more than once; later calls do nothing.
func (r *Registrar) Teardown() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unwind(context.Background())
}

func (r *Registrar) fail(ctx context.Context, stage Stage, err error) error {
	telemetry.RecordStage(ctx, r.params.Name, stage.String(), err)
	r.logger.Error("%s: %s failed: %v", r.params.Name, stage, err)
	serr := &errors.StageError{Stage: stage.String(), Err: err}
	if uerr := r.unwind(ctx); uerr != nil {
		return errors.Join(serr, uerr)
	}
	return serr
}

// unwind pops and runs undo steps until the stack is empty.  r.mu must
// be held.
func (r *Registrar) unwind(ctx context.Context) error {
	var errs []error
	for len(r.done) > 0 {
		u := r.done[len(r.done)-1]
		r.done = r.done[:len(r.done)-1]
		err := u.fn()
		telemetry.RecordRollback(ctx, r.params.Name, u.stage.String(), err)
		if err != nil {
			errs = append(errs, fmt.Errorf("undo %s: %w", u.stage, err))
		}
		r.logger.Debug("%s: undid %s", r.params.Name, u.stage)
	}
	r.stage = StageNone
	r.reg = Registration{}
	return errors.Join(errs...)
}

func (r *Registrar) steps() []step {
	return []step{
		{
			stage: StageRegionRegistered,
			do: func(ctx context.Context) error {
				region, err := r.host.RegisterRegion(ctx, Region{
					Major: r.params.Major, Minor: r.params.Minor,
					Count: r.params.Count, Name: r.params.Name,
				})
				r.reg.Region = region
				return err
			},
			undo: func() error { return r.host.UnregisterRegion(r.reg.Region) },
		},
		{
			stage: StageClassCreated,
			do: func(ctx context.Context) error {
				r.reg.Class = r.params.Class
				return r.host.CreateClass(ctx, r.params.Class)
			},
			undo: func() error { return r.host.DestroyClass(r.params.Class) },
		},
		{
			stage: StageNodeCreated,
			do: func(ctx context.Context) error {
				node, err := r.host.CreateNode(ctx, r.params.Class, r.reg.Region, r.params.Name)
				r.reg.Node = node
				return err
			},
			undo: func() error { return r.host.DestroyNode(r.reg.Node) },
		},
		{
			stage: StageActive,
			do: func(ctx context.Context) error {
				return r.host.AddOps(ctx, r.reg.Region, r.reg.Node, r.ops)
			},
			undo: func() error { return r.host.RemoveOps(r.reg.Region) },
		},
	}
}
