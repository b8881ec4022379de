package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/term"

	"chrdev/config"
	"chrdev/internal/device"
	"chrdev/internal/errors"
	"chrdev/internal/harness"
	"chrdev/internal/metrics"
	"chrdev/internal/register"
	"chrdev/internal/retry"
	"chrdev/internal/telemetry"
	"chrdev/internal/transport"
	"chrdev/util"
)

func newDevice(cfg *config.Config, logger *util.Logger, m *metrics.Collector) *device.Device {
	return device.New(device.Config{
		Name:        cfg.DeviceName,
		Limits:      cfg.Limits(),
		MaxSessions: cfg.MaxSessions,
		MemoryLimit: cfg.MemoryLimit,
	}, device.WithLogger(logger), device.WithMetrics(m))
}

func registration(cfg *config.Config) register.Params {
	return register.Params{
		Name:  cfg.DeviceName,
		Class: cfg.ClassName,
		Major: cfg.Major,
		Minor: cfg.Minor,
	}
}

// runServe registers the device under cfg.Root and serves it on
// cfg.Socket until ctx is done.
func runServe(ctx context.Context, cfg *config.Config) (err error) {
	logger := util.NewLogger(cfg.Verbose)
	logger.SetTimestamps(true)

	shutdown, err := telemetry.Init(ctx, cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		if serr := shutdown(context.Background()); serr != nil {
			logger.Warn("telemetry shutdown: %v", serr)
		}
	}()

	host, err := register.NewDirHost(cfg.Root)
	if err != nil {
		return err
	}

	m := metrics.New()
	dev := newDevice(cfg, logger, m)
	reg := register.NewRegistrar(host, registration(cfg), dev, logger)
	r, err := reg.Setup(ctx)
	if err != nil {
		return err
	}
	logger.Info("%s registered at %s (%s)", cfg.DeviceName, r.Node, r.Region)

	defer func() {
		err = errors.Join(err, dev.Shutdown(), reg.Teardown())
		logger.Verbose("final metrics: %s", m.JSON())
	}()

	srv := transport.NewServer(host, logger)
	return srv.ListenAndServe(ctx, cfg.Socket)
}

// testReport is the JSON form of a test run.
type testReport struct {
	Results []harness.Result  `json:"results"`
	Passed  bool              `json:"passed"`
	Metrics *metrics.Snapshot `json:"metrics,omitempty"`
}

// runTest runs the reference exercises against an in-process device,
// or against the server on cfg.Socket when remote is set.
func runTest(ctx context.Context, cfg *config.Config, remote bool) error {
	logger := util.NewLogger(cfg.Verbose)

	var (
		dial harness.Dialer
		path string
		m    *metrics.Collector
	)
	if remote {
		dial = socketDialer(ctx, cfg)
		path = cfg.DeviceName
	} else {
		m = metrics.New()
		host := register.NewFake()
		dev := newDevice(cfg, logger, m)
		reg := register.NewRegistrar(host, registration(cfg), dev, logger)
		r, err := reg.Setup(ctx)
		if err != nil {
			return err
		}
		defer reg.Teardown() //nolint:errcheck
		defer dev.Shutdown() //nolint:errcheck
		dial = harness.HostDialer(host)
		path = r.Node
	}

	results, ok := harness.RunAll(dial, path, harness.Scenarios)

	if cfg.JSON || !term.IsTerminal(int(os.Stdout.Fd())) {
		rep := testReport{Results: results, Passed: ok}
		if m != nil {
			snap := m.Snapshot()
			rep.Metrics = &snap
		}
		if err := printJSON(rep); err != nil {
			return err
		}
	} else {
		fmt.Print(harness.Summary(results))
	}

	if !ok {
		return fmt.Errorf("test: %d scenario(s) failed", failed(results))
	}
	return nil
}

// runStats prints the lifetime totals of the device served on
// cfg.Socket.
func runStats(ctx context.Context, cfg *config.Config) error {
	dctx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	c, err := transport.DialRetry(dctx, cfg.Socket, retry.DialBackoff())
	if err != nil {
		return err
	}
	defer c.Close()

	totals, err := c.Stats(cfg.DeviceName)
	if err != nil {
		return err
	}
	if cfg.JSON || !term.IsTerminal(int(os.Stdout.Fd())) {
		return printJSON(totals)
	}
	fmt.Printf("sessions: %d (%d active)\nread:     %d bytes\nwritten:  %d bytes\nbuffers:  %d bytes\n",
		totals.Sessions, totals.Active, totals.BytesRead, totals.BytesWritten, totals.BufferBytes)
	return nil
}

// socketDialer opens each session on its own connection to cfg.Socket.
func socketDialer(ctx context.Context, cfg *config.Config) harness.Dialer {
	return func(path string) (harness.Conn, error) {
		dctx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
		c, err := transport.DialRetry(dctx, cfg.Socket, retry.DialBackoff())
		if err != nil {
			return nil, err
		}
		if _, err := c.Open(path); err != nil {
			c.Close() //nolint:errcheck
			return nil, err
		}
		return c, nil
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func failed(results []harness.Result) int {
	n := 0
	for _, r := range results {
		if !r.Pass {
			n++
		}
	}
	return n
}
