// chrdev - a character device that gives each client its own session
// buffer.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"chrdev/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "chrdev: %v\n", err)
		os.Exit(1)
	}
}
