package classify

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Rule pairs a regular expression with the category assigned on match.
// Tables are ordered most specific first; classification takes the first hit.
type Rule struct {
	Pattern  string   `yaml:"pattern"`
	Category Category `yaml:"category"`
}

// DefaultRules is the built-in table for the Sui Move diagnostic dialect.
// It is configuration, not control flow: callers may replace or extend it
// (see LoadRules) without touching the classifier.
func DefaultRules() []Rule {
	return []Rule{
		{Pattern: `(?i)ability (constraint|mismatch)`, Category: AbilityConstraint},
		{Pattern: `(?i)does not have the .* ability`, Category: AbilityConstraint},
		{Pattern: `(?i)unbound (module|function|type|variable|field)`, Category: UnboundReference},
		{Pattern: `(?i)unbound reference`, Category: UnboundReference},
		{Pattern: `(?i)invalid object declaration`, Category: InvalidObjectDeclaration},
		{Pattern: `(?i)first field must be 'id'`, Category: InvalidObjectDeclaration},
		{Pattern: `(?i)unexpected name`, Category: UnexpectedName},
		{Pattern: `(?i)invalid 'entry' (function|signature)`, Category: InvalidEntrySignature},
		{Pattern: `(?i)entry function.*(cannot|must not|invalid)`, Category: InvalidEntrySignature},
		{Pattern: `(?i)(type mismatch|incompatible type|expected .* found)`, Category: TypeMismatch},
	}
}

// ruleFile is the on-disk shape of an external rule table.
type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules reads an ordered rule table from a YAML file. The full
// authoritative table for a compiler dialect is not knowable up front, so
// deployments ship their own tables as they learn new diagnostics.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule table: %w", err)
	}
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse rule table %s: %w", path, err)
	}
	if len(f.Rules) == 0 {
		return nil, fmt.Errorf("rule table %s contains no rules", path)
	}
	return f.Rules, nil
}
