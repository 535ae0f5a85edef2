package compiler

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// simCheck is one deterministic lint the simulator applies to source text.
type simCheck struct {
	re         *regexp.Regexp
	diagnostic string
}

// Simulator is a deterministic pattern-based stand-in for the Move compiler.
// It reports plausible Move diagnostics for recognizable mistakes so the
// refinement loop can be exercised without a toolchain install.
type Simulator struct {
	checks []simCheck
}

// NewSimulator builds a simulator with the default check set.
func NewSimulator() *Simulator {
	return &Simulator{checks: []simCheck{
		{
			re:         regexp.MustCompile(`struct\s+\w+\s+has\s+copy\s*,?\s*drop[^{]*\{\s*id:\s*UID`),
			diagnostic: "error[E05001]: ability constraint not satisfied: object with 'id: UID' cannot have 'copy' or 'drop'",
		},
		{
			re:         regexp.MustCompile(`\bTODO\b|\bFIXME\b`),
			diagnostic: "error[E01002]: unexpected name: placeholder marker in source",
		},
		{
			re:         regexp.MustCompile(`(?i)\berror\b`),
			diagnostic: "error[E05001]: ability constraint not satisfied",
		},
	}}
}

// Compile runs every check against the source. Only cancellation makes it
// fail; the simulator exists precisely to be dependable.
func (s *Simulator) Compile(ctx context.Context, source string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, unavailable(err.Error())
	}

	var diags []string

	if strings.TrimSpace(source) == "" {
		diags = append(diags, "error[E03001]: unbound module: empty source")
	}
	if !moduleDeclRe.MatchString(source) && strings.TrimSpace(source) != "" {
		diags = append(diags, "error[E01003]: unexpected name: missing 'module' declaration")
	}

	for _, check := range s.checks {
		for _, loc := range check.re.FindAllStringIndex(source, -1) {
			line := lineOf(source, loc[0])
			diags = append(diags, fmt.Sprintf("%s at line %d", check.diagnostic, line))
		}
	}

	if len(diags) == 0 {
		return Result{Success: true, RawDiagnostics: "Compilation Successful"}, nil
	}
	return Result{
		Success:        false,
		RawDiagnostics: strings.Join(diags, "\n"),
	}, nil
}

var moduleDeclRe = regexp.MustCompile(`(?m)^\s*module\s+[\w:]+`)

// lineOf returns the 1-based line number of a byte offset.
func lineOf(s string, offset int) int {
	return strings.Count(s[:offset], "\n") + 1
}
