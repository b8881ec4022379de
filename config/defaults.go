package config

import (
	"time"

	"chrdev/internal/session"
)

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, config file parsing, and environment variable
// loading.

const (
	// DefaultDeviceName is the device and node name.
	DefaultDeviceName = "ngrtdrv"

	// DefaultClassName groups chrdev nodes on the host.
	DefaultClassName = "chrdev"

	// DefaultRoot is where the directory host keeps its state.
	DefaultRoot = "/tmp/chrdev"

	// DefaultSocketName is the socket file created under the root.
	DefaultSocketName = "chrdev.sock"

	// DefaultBufLen is the size of each session buffer.
	DefaultBufLen = session.DefaultBufLen

	// MinBufLen leaves room for one payload byte beside the reserved
	// terminator byte.
	MinBufLen = 2

	// MaxBufLen keeps a full buffer inside one transport frame.
	MaxBufLen = 64 * 1024

	// MaxMajor and MaxMinor bound device numbers.
	MaxMajor = 4095
	MaxMinor = 255

	// DefaultDialTimeout bounds connecting to a running server.
	DefaultDialTimeout = 5 * time.Second
)
