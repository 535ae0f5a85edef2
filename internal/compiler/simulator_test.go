package compiler

import (
	"context"
	"strings"
	"testing"
)

const cleanModule = `module demo::registry {
    use sui::object::{Self, UID};

    struct Registry has key {
        id: UID,
        entries: u64,
    }
}`

func TestSimulatorCleanSource(t *testing.T) {
	sim := NewSimulator()

	result, err := sim.Compile(context.Background(), cleanModule)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if !result.Success {
		t.Errorf("Expected success, got diagnostics: %s", result.RawDiagnostics)
	}
}

func TestSimulatorErrorKeyword(t *testing.T) {
	// Mirrors the simulated-compilation behavior this adapter replaces: any
	// source mentioning "error" fails with an ability-constraint diagnostic.
	sim := NewSimulator()

	src := "module demo::broken {\n    // error on purpose\n}"
	result, err := sim.Compile(context.Background(), src)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if result.Success {
		t.Fatal("Expected failure for source containing 'error'")
	}
	if !strings.Contains(result.RawDiagnostics, "ability constraint not satisfied") {
		t.Errorf("Expected ability diagnostic, got: %s", result.RawDiagnostics)
	}
}

func TestSimulatorEmptySource(t *testing.T) {
	sim := NewSimulator()

	result, err := sim.Compile(context.Background(), "")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if result.Success {
		t.Error("Expected failure for empty source")
	}
	if !strings.Contains(result.RawDiagnostics, "unbound module") {
		t.Errorf("Unexpected diagnostics: %s", result.RawDiagnostics)
	}
}

func TestSimulatorMissingModuleDecl(t *testing.T) {
	sim := NewSimulator()

	result, err := sim.Compile(context.Background(), "struct Foo has key { id: u64 }")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if result.Success {
		t.Error("Expected failure for source without module declaration")
	}
}

func TestSimulatorDiagnosticsIncludeLine(t *testing.T) {
	sim := NewSimulator()

	src := "module demo::x {\n\n// error here\n}"
	result, _ := sim.Compile(context.Background(), src)
	if !strings.Contains(result.RawDiagnostics, "at line 3") {
		t.Errorf("Expected line number in diagnostics, got: %s", result.RawDiagnostics)
	}
}

func TestSelect(t *testing.T) {
	if _, err := Select(AdapterSimulator, "", ""); err != nil {
		t.Errorf("simulator: %v", err)
	}
	if _, err := Select(AdapterToolchain, "sui", ""); err != nil {
		t.Errorf("toolchain: %v", err)
	}
	if _, err := Select("", "", ""); err != nil {
		t.Errorf("default: %v", err)
	}
	if _, err := Select("nope", "", ""); err == nil {
		t.Error("Expected error for unknown adapter")
	}
}
