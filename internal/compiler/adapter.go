// Package compiler defines the adapter boundary between the refinement loop
// and whatever produces compile diagnostics: a deterministic simulator for
// tests and demos, or the real Move toolchain.
package compiler

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnavailable marks an infrastructure failure of the compile step, as
// opposed to a compile reporting diagnostics. It is recoverable and subject
// to the same retry policy as generation failures.
var ErrUnavailable = errors.New("compiler unavailable")

// Result is the outcome of one compile attempt. RawDiagnostics carries the
// compiler's output verbatim; the classifier turns it into structured errors.
type Result struct {
	Success        bool
	RawDiagnostics string
}

// Adapter compiles contract source and reports diagnostics.
type Adapter interface {
	Compile(ctx context.Context, source string) (Result, error)
}

// Adapter names accepted by Select.
const (
	AdapterSimulator = "simulator"
	AdapterToolchain = "toolchain"
)

// Select builds the configured adapter. Selection is configuration, never a
// hardcoded branch inside the engine.
func Select(name, toolchainBin, workDir string) (Adapter, error) {
	switch name {
	case AdapterSimulator, "":
		return NewSimulator(), nil
	case AdapterToolchain:
		return NewToolchain(toolchainBin, workDir), nil
	default:
		return nil, fmt.Errorf("unknown compiler adapter %q", name)
	}
}

func unavailable(detail string) error {
	return fmt.Errorf("%w: %s", ErrUnavailable, detail)
}
