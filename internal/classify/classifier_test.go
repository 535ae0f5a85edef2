package classify

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestClassifier(t *testing.T) *Classifier {
	t.Helper()
	c, err := New(DefaultRules())
	if err != nil {
		t.Fatalf("Failed to build classifier: %v", err)
	}
	return c
}

func TestClassifyAbilityMismatch(t *testing.T) {
	c := newTestClassifier(t)

	diags := c.Classify("error[E05001]: ability mismatch at line 12")
	if len(diags) != 1 {
		t.Fatalf("Expected 1 diagnostic, got %d", len(diags))
	}

	d := diags[0]
	if d.Category != AbilityConstraint {
		t.Errorf("Expected category %s, got %s", AbilityConstraint, d.Category)
	}
	if d.Code != "E05001" {
		t.Errorf("Expected code E05001, got %q", d.Code)
	}
	if d.Location != "at line 12" {
		t.Errorf("Expected location 'at line 12', got %q", d.Location)
	}
}

func TestClassifyFallbackToOther(t *testing.T) {
	c := newTestClassifier(t)

	diags := c.Classify("error: something nobody has seen before")
	if len(diags) != 1 {
		t.Fatalf("Expected 1 diagnostic, got %d", len(diags))
	}
	if diags[0].Category != Other {
		t.Errorf("Expected fallback category OTHER, got %s", diags[0].Category)
	}
}

func TestClassifyOrderedTable(t *testing.T) {
	// A unit matching two rules takes the first, most specific one.
	rules := []Rule{
		{Pattern: `ability constraint not satisfied`, Category: AbilityConstraint},
		{Pattern: `(?i)error`, Category: Other},
	}
	c, err := New(rules)
	if err != nil {
		t.Fatalf("Failed to build classifier: %v", err)
	}

	diags := c.Classify("error[E05001]: ability constraint not satisfied")
	if len(diags) != 1 {
		t.Fatalf("Expected 1 diagnostic, got %d", len(diags))
	}
	if diags[0].Category != AbilityConstraint {
		t.Errorf("Expected first-match category, got %s", diags[0].Category)
	}
}

func TestClassifyDoesNotDeduplicate(t *testing.T) {
	c := newTestClassifier(t)

	raw := "error[E05001]: ability constraint not satisfied at line 47\n" +
		"error[E05001]: ability constraint not satisfied at line 47\n" +
		"error[E05001]: ability constraint not satisfied at line 47"

	diags := c.Classify(raw)
	if len(diags) != 3 {
		t.Fatalf("Expected 3 diagnostics (no dedup), got %d", len(diags))
	}
	for i, d := range diags {
		if d.Category != AbilityConstraint {
			t.Errorf("Diagnostic %d: expected ABILITY_CONSTRAINT, got %s", i, d.Category)
		}
	}
}

func TestClassifySkipsToolchainNoise(t *testing.T) {
	c := newTestClassifier(t)

	raw := "UPDATING GIT DEPENDENCY https://github.com/example/dep.git\n" +
		"INCLUDING DEPENDENCY Sui\n" +
		"BUILDING scratch\n" +
		"error[E03002]: unbound module 'sui::coins' at line 3"

	diags := c.Classify(raw)
	if len(diags) != 1 {
		t.Fatalf("Expected 1 diagnostic, got %d", len(diags))
	}
	if diags[0].Category != UnboundReference {
		t.Errorf("Expected UNBOUND_REFERENCE, got %s", diags[0].Category)
	}
}

func TestClassifyJSONDiagnostics(t *testing.T) {
	c := newTestClassifier(t)

	raw := `BUILDING scratch
[
  {"file": "./sources/mine.move", "line": 47, "column": 12, "level": "NonblockingError", "category": 5, "code": 1, "msg": "ability constraint not satisfied"},
  {"file": "./sources/mine.move", "line": 50, "column": 18, "level": "NonblockingError", "category": 5, "code": 1, "msg": "ability constraint not satisfied"},
  {"file": "./sources/mine.move", "line": 434, "column": 8, "level": "Warning", "category": 4, "code": 2, "msg": "unnecessary 'while (true)', replace with 'loop'"}
]
Failed to build Move modules: Compilation error.`

	diags := c.Classify(raw)
	if len(diags) != 2 {
		t.Fatalf("Expected 2 error-level diagnostics (warnings excluded), got %d", len(diags))
	}
	for i, d := range diags {
		if d.Category != AbilityConstraint {
			t.Errorf("Diagnostic %d: expected ABILITY_CONSTRAINT, got %s", i, d.Category)
		}
	}
	if diags[0].Location != "./sources/mine.move:47:12" {
		t.Errorf("Expected JSON location, got %q", diags[0].Location)
	}
}

func TestStripANSI(t *testing.T) {
	in := "\x1b[31mCompilation error occurred\x1b[0m"
	out := StripANSI(in)
	if out != "Compilation error occurred" {
		t.Errorf("Expected ANSI codes stripped, got %q", out)
	}
}

func TestClassifyEmptyInput(t *testing.T) {
	c := newTestClassifier(t)
	if diags := c.Classify(""); len(diags) != 0 {
		t.Errorf("Expected no diagnostics for empty input, got %d", len(diags))
	}
}

func TestNewRejectsBadRules(t *testing.T) {
	if _, err := New([]Rule{{Pattern: "(", Category: Other}}); err == nil {
		t.Error("Expected error for invalid pattern")
	}
	if _, err := New([]Rule{{Pattern: "x", Category: "NOT_A_CATEGORY"}}); err == nil {
		t.Error("Expected error for unknown category")
	}
}

func TestLoadRules(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")

	content := "rules:\n" +
		"  - pattern: 'custom dialect failure'\n" +
		"    category: TYPE_MISMATCH\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write rule file: %v", err)
	}

	rules, err := LoadRules(path)
	if err != nil {
		t.Fatalf("Failed to load rules: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("Expected 1 rule, got %d", len(rules))
	}
	if rules[0].Category != TypeMismatch {
		t.Errorf("Expected TYPE_MISMATCH, got %s", rules[0].Category)
	}

	c, err := New(rules)
	if err != nil {
		t.Fatalf("Failed to build classifier from loaded rules: %v", err)
	}
	diags := c.Classify("error: custom dialect failure")
	if len(diags) != 1 || diags[0].Category != TypeMismatch {
		t.Errorf("Loaded rule did not classify as expected: %+v", diags)
	}
}

func TestLoadRulesMissingFile(t *testing.T) {
	if _, err := LoadRules(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing rule file")
	}
}
