package main

import (
	"errors"
	"fmt"
	"os"

	"podfetch/backend"
)

const (
	exitFailure   = 1
	exitUsage     = 2
	exitInterrupt = 130
)

func main() {
	os.Exit(run())
}

func run() int {
	err := newRootCommand().Execute()
	if err == nil {
		return 0
	}

	var f *failure
	if errors.As(err, &f) && f.kind == backend.KindCancelled {
		// The progress line already reported the stop.
		return exitInterrupt
	}
	fmt.Fprintf(os.Stderr, "podfetch: %v\n", err)
	return exitCode(err)
}

func exitCode(err error) int {
	var f *failure
	if errors.As(err, &f) && f.kind == backend.KindInvalidRequest {
		return exitUsage
	}
	return exitFailure
}
