package register

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"chrdev/internal/errors"
)

type nopOps struct{}

func (nopOps) Open() (int64, error) { return 1, nil }
func (nopOps) Read(int64, []byte) (int, error) { return 0, nil }
func (nopOps) Write(int64, []byte) (int, error) { return 0, nil }
func (nopOps) Close(int64) error { return nil }

func testParams() Params {
	return Params{Name: "chrdev", Class: "chrclass"}
}

func TestSetup_AllStages(t *testing.T) {
	host := NewFake()
	r := NewRegistrar(host, testParams(), nopOps{}, nil)

	reg, err := r.Setup(context.Background())
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if r.Stage() != StageActive {
		t.Errorf("stage = %s, want active", r.Stage())
	}
	if reg.Node != "/dev/chrdev" || reg.Region.Major != dynamicMajorFirst {
		t.Errorf("registration = %+v", reg)
	}
	if _, err := host.Lookup(reg.Node); err != nil {
		t.Errorf("Lookup after setup: %v", err)
	}

	if err := r.Teardown(); err != nil {
		t.Fatalf("Teardown: %v", err)
	}
	if !host.Empty() {
		t.Error("teardown left resources registered")
	}
	if _, err := host.Lookup(reg.Node); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Lookup after teardown = %v, want ErrNotFound", err)
	}
}

// TestSetup_Rollback fails each stage in turn and checks that exactly
// the completed stages are undone, newest first.
func TestSetup_Rollback(t *testing.T) {
	tests := []struct {
		failAt Stage
		calls  string
	}{
		{StageRegionRegistered, "RegisterRegion"},
		{StageClassCreated, "RegisterRegion CreateClass UnregisterRegion"},
		{StageNodeCreated, "RegisterRegion CreateClass CreateNode DestroyClass UnregisterRegion"},
		{StageActive, "RegisterRegion CreateClass CreateNode AddOps DestroyNode DestroyClass UnregisterRegion"},
	}
	for _, tt := range tests {
		t.Run(tt.failAt.String(), func(t *testing.T) {
			host := NewFake()
			boom := fmt.Errorf("boom")
			host.FailAt[tt.failAt] = boom
			r := NewRegistrar(host, testParams(), nopOps{}, nil)

			_, err := r.Setup(context.Background())
			if !errors.Is(err, boom) {
				t.Fatalf("Setup err = %v, want boom", err)
			}
			var se *errors.StageError
			if !errors.As(err, &se) || se.Stage != tt.failAt.String() {
				t.Errorf("StageError = %+v, want stage %s", se, tt.failAt)
			}
			if got := strings.Join(host.CallLog(), " "); got != tt.calls {
				t.Errorf("calls:\n got %s\nwant %s", got, tt.calls)
			}
			if !host.Empty() {
				t.Error("rollback left resources registered")
			}
			if r.Stage() != StageNone {
				t.Errorf("stage after rollback = %s", r.Stage())
			}
		})
	}
}

func TestTeardown_Idempotent(t *testing.T) {
	host := NewFake()
	r := NewRegistrar(host, testParams(), nopOps{}, nil)
	if _, err := r.Setup(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := r.Teardown(); err != nil {
		t.Fatal(err)
	}
	n := len(host.CallLog())
	if err := r.Teardown(); err != nil {
		t.Fatal(err)
	}
	if len(host.CallLog()) != n {
		t.Error("second teardown should make no host calls")
	}
}

func TestSetup_Twice(t *testing.T) {
	r := NewRegistrar(NewFake(), testParams(), nopOps{}, nil)
	if _, err := r.Setup(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Setup(context.Background()); !errors.Is(err, errors.ErrContractViolation) {
		t.Errorf("second Setup = %v, want ErrContractViolation", err)
	}
}

func TestSetup_CancelledContext(t *testing.T) {
	host := NewFake()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRegistrar(host, testParams(), nopOps{}, nil)
	if _, err := r.Setup(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Setup = %v, want context.Canceled", err)
	}
	if len(host.CallLog()) != 0 {
		t.Errorf("no host calls expected, got %v", host.CallLog())
	}
}

func TestParamsDefaults(t *testing.T) {
	host := NewFake()
	r := NewRegistrar(host, Params{Name: "solo", Major: 42}, nopOps{}, nil)
	reg, err := r.Setup(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if reg.Class != "solo" || reg.Region.Count != 1 || reg.Region.Major != 42 {
		t.Errorf("registration = %+v", reg)
	}
}

func TestStageString(t *testing.T) {
	if got := Stage(99).String(); got != "stage(99)" {
		t.Errorf("unknown stage = %q", got)
	}
}
