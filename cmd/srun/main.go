// Command srun logs in to and out of an SRUN campus network portal.
//
//	srun [flags] query|login|logout|history
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
