package compiler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Toolchain invokes the real Move build tool against a scratch package.
// Diagnostics come back on stderr; a second pass with --json-errors gives the
// classifier structured records to work from.
type Toolchain struct {
	bin     string
	workDir string
}

// NewToolchain creates a toolchain adapter. bin defaults to "sui"; workDir
// defaults to the system temp directory.
func NewToolchain(bin, workDir string) *Toolchain {
	if bin == "" {
		bin = "sui"
	}
	if workDir == "" {
		workDir = os.TempDir()
	}
	return &Toolchain{bin: bin, workDir: workDir}
}

const packageManifest = `[package]
name = "refinement_scratch"
version = "0.0.1"

[dependencies]
Sui = { git = "https://github.com/MystenLabs/sui.git", subdir = "crates/sui-framework/packages/sui-framework", rev = "framework/mainnet" }

[addresses]
refinement_scratch = "0x0"
`

// Compile writes the source into a scratch Move package and runs the build.
// Toolchain invocation problems (missing binary, unwritable scratch dir) are
// ErrUnavailable; a build that runs and reports errors is a normal Result.
func (t *Toolchain) Compile(ctx context.Context, source string) (Result, error) {
	pkgDir, err := os.MkdirTemp(t.workDir, "moveforge-build-")
	if err != nil {
		return Result{}, unavailable(fmt.Sprintf("scratch dir: %v", err))
	}
	defer os.RemoveAll(pkgDir)

	if err := t.writePackage(pkgDir, source); err != nil {
		return Result{}, unavailable(err.Error())
	}

	build := exec.CommandContext(ctx, t.bin, "move", "build", "--path", pkgDir)
	buildOut, buildErr := build.CombinedOutput()
	if buildErr == nil {
		return Result{Success: true, RawDiagnostics: string(buildOut)}, nil
	}

	if ctx.Err() != nil {
		return Result{}, unavailable(ctx.Err().Error())
	}
	var exitErr *exec.ExitError
	if !errors.As(buildErr, &exitErr) {
		// The binary never ran: not a diagnostic, an infrastructure failure.
		return Result{}, unavailable(buildErr.Error())
	}

	diagnostics := string(buildOut)

	// Prefer the structured JSON error array when the toolchain supports it.
	jsonCmd := exec.CommandContext(ctx, t.bin, "move", "build", "--path", pkgDir, "--json-errors")
	if jsonOut, err := jsonCmd.CombinedOutput(); err != nil && strings.Contains(string(jsonOut), "[") {
		diagnostics = string(jsonOut)
	}

	return Result{Success: false, RawDiagnostics: diagnostics}, nil
}

func (t *Toolchain) writePackage(pkgDir, source string) error {
	if err := os.WriteFile(filepath.Join(pkgDir, "Move.toml"), []byte(packageManifest), 0644); err != nil {
		return fmt.Errorf("write manifest: %v", err)
	}
	srcDir := filepath.Join(pkgDir, "sources")
	if err := os.MkdirAll(srcDir, 0755); err != nil {
		return fmt.Errorf("create sources dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(srcDir, "contract.move"), []byte(source), 0644); err != nil {
		return fmt.Errorf("write source: %v", err)
	}
	return nil
}
