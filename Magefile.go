//go:build mage
// +build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Build builds the moveforge binary.
func Build() error {
	mg.Deps(Test)

	version, err := sh.Output("git", "describe", "--tags", "--always", "--dirty")
	if err != nil {
		version = "dev"
	}

	fmt.Println("Building moveforge...")
	return sh.RunV("go", "build",
		"-o", "bin/moveforge",
		"-ldflags", fmt.Sprintf("-s -w -X main.version=%s", version),
		".")
}

// Test runs all Go tests with the race detector.
func Test() error {
	fmt.Println("Running Go tests...")
	return sh.RunV("go", "test", "-race", "-coverprofile=coverage.out", "./...")
}

// Lint runs golangci-lint.
func Lint() error {
	fmt.Println("Running linters...")
	return sh.RunV("golangci-lint", "run")
}

// Clean removes build and test artifacts.
func Clean() error {
	return sh.Rm("bin")
}
