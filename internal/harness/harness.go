// Package harness runs the classic open/write/read/close exercises
// against a device, either in-process or through a transport client.
package harness

import (
	"fmt"
	"io"
	"strings"

	"chrdev/internal/errors"
	"chrdev/internal/register"
)

// Conn is an open session as seen by a client.  Read returns 0 and a
// nil error (or io.EOF) at end of stream.
type Conn interface {
	Write(p []byte) (int, error)
	Read(p []byte) (int, error)
	Close() error
}

// Dialer opens a session on the device at path.
type Dialer func(path string) (Conn, error)

// HostDialer opens sessions directly through a host's operations table.
func HostDialer(host register.Host) Dialer {
	return func(path string) (Conn, error) {
		ops, err := host.Lookup(path)
		if err != nil {
			return nil, errors.Op("open", 0, err)
		}
		h, err := ops.Open()
		if err != nil {
			return nil, err
		}
		return &opsConn{ops: ops, h: h}, nil
	}
}

type opsConn struct {
	ops register.Operations
	h   int64
}

func (c *opsConn) Write(p []byte) (int, error) { return c.ops.Write(c.h, p) }
func (c *opsConn) Read(p []byte) (int, error) { return c.ops.Read(c.h, p) }
func (c *opsConn) Close() error { return c.ops.Close(c.h) }

// Scenario writes each string in order, then issues one read per entry
// of Reads and compares the data returned against Want.
type Scenario struct {
	Name   string
	Writes []string
	Reads  []int
	Want   []string
}

// Scenarios are the reference exercises: a full read, a read shorter
// than the data, an oversized request, two writes read back at once,
// two writes read back in pieces, and a read past the end.
var Scenarios = []Scenario{
	{
		Name:   "full read",
		Writes: []string{"Testing string"},
		Reads:  []int{1024},
		Want:   []string{"Testing string"},
	},
	{
		Name:   "short read",
		Writes: []string{"Testing string"},
		Reads:  []int{10},
		Want:   []string{"Testing st"},
	},
	{
		Name:   "oversized request",
		Writes: []string{"Test 3: testing string"},
		Reads:  []int{3000},
		Want:   []string{"Test 3: testing string"},
	},
	{
		Name:   "two writes",
		Writes: []string{"Testing string", "Again testing string"},
		Reads:  []int{1025},
		Want:   []string{"Testing stringAgain testing string"},
	},
	{
		Name:   "two writes, partial reads",
		Writes: []string{"Testing string", "Again testing string"},
		Reads:  []int{10, 10},
		Want:   []string{"Testing st", "ringAgain "},
	},
	{
		Name:   "read past end",
		Writes: []string{"Testing string"},
		Reads:  []int{100, 100},
		Want:   []string{"Testing string", ""},
	},
}

// Result is the outcome of one scenario.
type Result struct {
	Name string   `json:"name"`
	Got  []string `json:"got"`
	Err  string   `json:"error,omitempty"`
	Pass bool     `json:"pass"`
}

// Run executes s against the device at path.
func Run(dial Dialer, path string, s Scenario) Result {
	res := Result{Name: s.Name}
	got, err := run(dial, path, s)
	res.Got = got
	if err != nil {
		res.Err = err.Error()
		return res
	}
	res.Pass = equal(got, s.Want)
	if !res.Pass {
		res.Err = fmt.Sprintf("got %q, want %q", got, s.Want)
	}
	return res
}

// RunAll executes every scenario on a fresh session each and reports
// whether all passed.
func RunAll(dial Dialer, path string, scenarios []Scenario) ([]Result, bool) {
	ok := true
	out := make([]Result, 0, len(scenarios))
	for _, s := range scenarios {
		r := Run(dial, path, s)
		ok = ok && r.Pass
		out = append(out, r)
	}
	return out, ok
}

func run(dial Dialer, path string, s Scenario) (got []string, err error) {
	conn, err := dial(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := conn.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close: %w", cerr)
		}
	}()

	for _, w := range s.Writes {
		if err := WriteAll(conn, []byte(w)); err != nil {
			return nil, err
		}
	}
	for _, size := range s.Reads {
		buf := make([]byte, size)
		n, err := conn.Read(buf)
		if err != nil && err != io.EOF {
			return got, fmt.Errorf("read %d: %w", size, err)
		}
		got = append(got, string(buf[:n]))
	}
	return got, nil
}

// WriteAll retries short writes until p is stored, and fails with
// ErrOutOfSpace once the session stops accepting bytes.
func WriteAll(conn Conn, p []byte) error {
	for len(p) > 0 {
		n, err := conn.Write(p)
		p = p[n:]
		if err != nil && (!errors.Is(err, io.ErrShortWrite) || n == 0) {
			return fmt.Errorf("write: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("write: %w", errors.ErrOutOfSpace)
		}
	}
	return nil
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Summary renders results as one line per scenario.
func Summary(results []Result) string {
	var b strings.Builder
	for i, r := range results {
		status := "ok"
		if !r.Pass {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "%-4s %d %s", status, i+1, r.Name)
		if r.Err != "" {
			fmt.Fprintf(&b, ": %s", r.Err)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
