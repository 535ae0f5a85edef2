package refine

import (
	"fmt"
	"strings"
)

// buildPrompt assembles the user prompt for one pass: the original template
// body plus a structured feedback block from the most recent iteration only.
// Bounding feedback to the latest pass keeps prompts from growing without
// losing corrective signal, since each pass's diagnostics describe the
// current source.
func buildPrompt(base string, prev *Iteration) string {
	if prev == nil {
		return base
	}

	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\nThe previous attempt did not compile. Compiler reported ")
	fmt.Fprintf(&b, "%d error(s):\n", prev.ErrorCount)

	for _, e := range prev.Errors {
		b.WriteString("- [")
		b.WriteString(string(e.Category))
		if e.Code != "" {
			b.WriteString(" ")
			b.WriteString(e.Code)
		}
		b.WriteString("] ")
		b.WriteString(e.Message)
		if e.Location != "" {
			b.WriteString(" (")
			b.WriteString(e.Location)
			b.WriteString(")")
		}
		b.WriteString("\n")
	}

	b.WriteString("\nPrevious source:\n")
	b.WriteString(prev.SourceCode)
	b.WriteString("\n\nRevise the contract so that every reported error is resolved. Return only the corrected source.")
	return b.String()
}

// testPrompt asks for a Move test module covering a compiled contract.
func testPrompt(source string) string {
	return fmt.Sprintf("The following Sui Move contract compiles cleanly:\n\n%s\n\nWrite a Move test module exercising its public entry functions. Use #[test] annotations and test_scenario where object ownership matters. Return only the test module source.", source)
}
