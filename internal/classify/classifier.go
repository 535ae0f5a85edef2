package classify

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Category is the closed set of diagnostic categories. Every downstream
// consumer (metrics, artifact export, dashboard) switches over this set.
type Category string

const (
	AbilityConstraint        Category = "ABILITY_CONSTRAINT"
	UnboundReference         Category = "UNBOUND_REFERENCE"
	InvalidObjectDeclaration Category = "INVALID_OBJECT_DECLARATION"
	UnexpectedName           Category = "UNEXPECTED_NAME"
	InvalidEntrySignature    Category = "INVALID_ENTRY_SIGNATURE"
	TypeMismatch             Category = "TYPE_MISMATCH"
	Other                    Category = "OTHER"
)

// Categories lists all known categories in display order.
var Categories = []Category{
	AbilityConstraint,
	UnboundReference,
	InvalidObjectDeclaration,
	UnexpectedName,
	InvalidEntrySignature,
	TypeMismatch,
	Other,
}

// Valid reports whether c is a member of the closed category set.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Diagnostic is one categorized error parsed from raw compiler output.
// Records are immutable once created and are never deduplicated: repeated
// occurrences count separately so iteration-over-iteration trends stay honest.
type Diagnostic struct {
	Category Category `json:"category"`
	Code     string   `json:"code,omitempty"`
	Message  string   `json:"message"`
	RawLine  string   `json:"raw_line"`
	Location string   `json:"location,omitempty"`
}

// Classifier matches diagnostic units against an ordered rule table,
// most specific patterns first, falling back to Other.
type Classifier struct {
	rules []compiledRule
}

type compiledRule struct {
	re       *regexp.Regexp
	category Category
}

// New compiles the given rule table into a classifier. Rules are applied in
// the order given; the first match wins.
func New(rules []Rule) (*Classifier, error) {
	c := &Classifier{rules: make([]compiledRule, 0, len(rules))}
	for _, r := range rules {
		if !r.Category.Valid() {
			return nil, fmt.Errorf("rule %q: unknown category %q", r.Pattern, r.Category)
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Pattern, err)
		}
		c.rules = append(c.rules, compiledRule{re: re, category: r.Category})
	}
	return c, nil
}

// codeRe extracts bracketed compiler codes like error[E05001].
var codeRe = regexp.MustCompile(`\[([A-Za-z]\d{3,6})\]`)

// locationRe extracts "at line 12" / "file.move:47:12" style locations.
var locationRe = regexp.MustCompile(`(?:at line \d+|[\w./-]+\.move:\d+(?::\d+)?)`)

// ansiRe matches ANSI escape sequences, which the real toolchain emits.
var ansiRe = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// StripANSI removes terminal color codes from raw compiler output.
func StripANSI(s string) string {
	return ansiRe.ReplaceAllString(s, "")
}

// Classify splits raw diagnostic text into units and categorizes each one in
// order. Lines that carry no diagnostic signal (build progress, blank lines)
// are skipped. When the output embeds the toolchain's JSON diagnostic array,
// each JSON record becomes one unit instead.
func (c *Classifier) Classify(raw string) []Diagnostic {
	raw = StripANSI(raw)

	if recs, ok := parseJSONDiagnostics(raw); ok {
		out := make([]Diagnostic, 0, len(recs))
		for _, rec := range recs {
			out = append(out, c.classifyUnit(rec.unit(), rec.location()))
		}
		return out
	}

	var out []Diagnostic
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if !isDiagnosticLine(line) {
			continue
		}
		out = append(out, c.classifyUnit(line, ""))
	}
	return out
}

func (c *Classifier) classifyUnit(unit, location string) Diagnostic {
	d := Diagnostic{
		Category: Other,
		Message:  unit,
		RawLine:  unit,
		Location: location,
	}

	if m := codeRe.FindStringSubmatch(unit); m != nil {
		d.Code = m[1]
	}
	if d.Location == "" {
		d.Location = locationRe.FindString(unit)
	}
	for _, r := range c.rules {
		if r.re.MatchString(unit) {
			d.Category = r.category
			break
		}
	}
	return d
}

// isDiagnosticLine filters out toolchain noise so only error-bearing lines
// become diagnostic units.
func isDiagnosticLine(line string) bool {
	if line == "" {
		return false
	}
	lower := strings.ToLower(line)
	switch {
	case strings.HasPrefix(line, "UPDATING "),
		strings.HasPrefix(line, "INCLUDING "),
		strings.HasPrefix(line, "BUILDING "),
		strings.HasPrefix(line, "FETCHING "):
		return false
	case strings.HasPrefix(lower, "error"),
		strings.Contains(lower, "error["),
		strings.Contains(lower, "invalid"),
		strings.Contains(lower, "unbound"),
		strings.Contains(lower, "unexpected"),
		strings.Contains(lower, "mismatch"),
		strings.Contains(lower, "constraint"),
		strings.Contains(lower, "failed"):
		return true
	}
	return false
}

// jsonDiagnostic mirrors one record of the Move toolchain's --json-errors
// output.
type jsonDiagnostic struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
	Level    string `json:"level"`
	Category int    `json:"category"`
	Code     int    `json:"code"`
	Msg      string `json:"msg"`
}

func (j jsonDiagnostic) unit() string {
	return fmt.Sprintf("%s [%s C%02dx%02d] %s", j.location(), j.Level, j.Category, j.Code, j.Msg)
}

func (j jsonDiagnostic) location() string {
	return fmt.Sprintf("%s:%d:%d", j.File, j.Line, j.Column)
}

// parseJSONDiagnostics finds and decodes the embedded JSON array the
// toolchain prints between its progress lines and the trailing failure
// message. Warnings are excluded: only error-level records feed the
// refinement decision.
func parseJSONDiagnostics(raw string) ([]jsonDiagnostic, bool) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return nil, false
	}
	var recs []jsonDiagnostic
	if err := json.Unmarshal([]byte(raw[start:end+1]), &recs); err != nil {
		return nil, false
	}
	var errs []jsonDiagnostic
	for _, r := range recs {
		if strings.Contains(strings.ToLower(r.Level), "error") {
			errs = append(errs, r)
		}
	}
	if len(errs) == 0 {
		return nil, false
	}
	return errs, true
}
