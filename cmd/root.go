// Package cmd wires up the CLI flags and dispatches to the chrdev
// commands.
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	flag "github.com/spf13/pflag"

	"chrdev/config"
)

// version is overridable at link time:
//
//	go build -ldflags "-X chrdev/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// Execute parses args and runs the requested chrdev command.
func Execute(ctx context.Context, args []string) error {
	cfg := config.Default()
	fs := flag.NewFlagSet("chrdev", flag.ContinueOnError)

	var configPath string
	fs.StringVar(&configPath, "config", "", "TOML config file")

	// ── registration ─────────────────────────────────────────────
	fs.StringVar(&cfg.DeviceName, "name", cfg.DeviceName, "Device name (node is <root>/dev/<name>)")
	fs.StringVar(&cfg.ClassName, "class", cfg.ClassName, "Device class")
	fs.IntVar(&cfg.Major, "major", cfg.Major, "Major number (0 picks a free one)")
	fs.IntVar(&cfg.Minor, "minor", cfg.Minor, "First minor number")
	fs.StringVar(&cfg.Root, "root", cfg.Root, "Host directory for regions, classes and nodes")

	// ── sessions ─────────────────────────────────────────────────
	fs.IntVar(&cfg.BufLen, "buf-len", cfg.BufLen, "Per-session buffer size in bytes")
	fs.BoolVar(&cfg.ByteOriented, "byte-oriented", cfg.ByteOriented, "Do not reserve a terminator byte")
	fs.IntVar(&cfg.MaxSessions, "max-sessions", cfg.MaxSessions, "Concurrent session limit (0 = unlimited)")
	fs.Int64Var(&cfg.MemoryLimit, "memory-limit", cfg.MemoryLimit, "Buffer memory limit in bytes (0 = unlimited)")

	// ── serving ──────────────────────────────────────────────────
	fs.StringVarP(&cfg.Socket, "socket", "s", cfg.Socket, "Unix socket to serve on or dial")
	fs.DurationVar(&cfg.DialTimeout, "dial-timeout", cfg.DialTimeout, "Timeout for connecting to --socket")
	fs.StringVar(&cfg.OTelEndpoint, "otel-endpoint", cfg.OTelEndpoint, "OTLP/HTTP endpoint URL for metrics and logs")

	// ── output ───────────────────────────────────────────────────
	fs.CountVarP(&cfg.Verbose, "verbose", "v", "Increase verbosity (repeatable)")
	fs.BoolVar(&cfg.JSON, "json", cfg.JSON, "Print results as JSON")

	var showVersion, showHelp bool
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}

	if showHelp || len(args) == 0 {
		printUsage(fs)
		return nil
	}
	if showVersion {
		fmt.Printf("chrdev %s\n", version)
		return nil
	}

	cfg, err := layer(fs, cfg, configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	rest := fs.Args()
	if len(rest) == 0 {
		return fmt.Errorf("command required (use --help for usage)")
	}
	if len(rest) > 1 {
		return fmt.Errorf("%s: unexpected arguments %q", rest[0], rest[1:])
	}

	switch rest[0] {
	case "serve":
		return runServe(ctx, cfg)
	case "test":
		return runTest(ctx, cfg, fs.Changed("socket"))
	case "stats":
		return runStats(ctx, cfg)
	default:
		return fmt.Errorf("unknown command %q (use --help for usage)", rest[0])
	}
}

// ── helpers ──────────────────────────────────────────────────────────

// layer rebuilds the configuration in precedence order: defaults, the
// config file, the environment, and last the flags that were set on
// the command line.
func layer(fs *flag.FlagSet, flagged *config.Config, path string) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		if err := config.LoadFile(cfg, path); err != nil {
			return nil, err
		}
	}
	config.LoadFromEnv(cfg)

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "name":
			cfg.DeviceName = flagged.DeviceName
		case "class":
			cfg.ClassName = flagged.ClassName
		case "major":
			cfg.Major = flagged.Major
		case "minor":
			cfg.Minor = flagged.Minor
		case "root":
			cfg.Root = flagged.Root
		case "buf-len":
			cfg.BufLen = flagged.BufLen
		case "byte-oriented":
			cfg.ByteOriented = flagged.ByteOriented
		case "max-sessions":
			cfg.MaxSessions = flagged.MaxSessions
		case "memory-limit":
			cfg.MemoryLimit = flagged.MemoryLimit
		case "socket":
			cfg.Socket = flagged.Socket
		case "dial-timeout":
			cfg.DialTimeout = flagged.DialTimeout
		case "otel-endpoint":
			cfg.OTelEndpoint = flagged.OTelEndpoint
		case "verbose":
			cfg.Verbose = flagged.Verbose
		case "json":
			cfg.JSON = flagged.JSON
		}
	})

	// The socket follows the root unless it was placed explicitly.
	if cfg.Socket == filepath.Join(config.DefaultRoot, config.DefaultSocketName) &&
		cfg.Root != config.DefaultRoot {
		cfg.Socket = filepath.Join(cfg.Root, config.DefaultSocketName)
	}
	return cfg, nil
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `chrdev – Character Device Session Buffer v%s

A character device whose clients each write into and read back from
their own fixed-size session buffer.

Usage:
  chrdev [options] serve                      Register the device and serve it
  chrdev [options] test                       Run the reference exercises
  chrdev [options] stats                      Print device totals from a server

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Examples:
  chrdev -v serve                             Serve under /tmp/chrdev
  chrdev --root /run/chr --max-sessions 1 serve
                                              Single-client device
  chrdev test                                 Exercise an in-process device
  chrdev -s /tmp/chrdev/chrdev.sock test      Exercise a running server
  chrdev --json stats                         Totals as JSON
`)
}
