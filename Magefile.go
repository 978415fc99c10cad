//go:build mage

package main

import (
	"github.com/magefile/mage/sh"
)

// Test runs the test suite with the race detector.
func Test() error {
	return sh.RunV("go", "test", "-race", "./...")
}

// Lint runs golangci-lint over all packages.
func Lint() error {
	return sh.RunV("golangci-lint", "run", "./...")
}

// Bench runs the benchmarks without the regular tests.
func Bench() error {
	return sh.RunV("go", "test", "-run=NONE", "-bench=.", "-benchmem", ".")
}

// Build compiles the nipc command into bin/.
func Build() error {
	return sh.RunV("go", "build", "-o", "bin/nipc", "./cmd/nipc")
}
