package dropcheck

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

//go:embed combined_drop_counters.yml
var defaultRulesYAML []byte

// CombinationRules holds the platform patterns for shared drop counters.
type CombinationRules struct {
	L2L3   []string `yaml:"l2_l3"`
	ACLL2  []string `yaml:"acl_l2"`
	l2l3   []*regexp.Regexp
	aclL2  []*regexp.Regexp
	source string
}

// DefaultCombinationRules returns the rules shipped with dropcheck.
func DefaultCombinationRules() (*CombinationRules, error) {
	return ParseCombinationRules(defaultRulesYAML, "builtin")
}

// LoadCombinationRules reads a rules file. An empty path selects the
// built-in rules.
func LoadCombinationRules(path string) (*CombinationRules, error) {
	if path == "" {
		return DefaultCombinationRules()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading combination rules %s: %w", path, err)
	}
	return ParseCombinationRules(data, path)
}

// ParseCombinationRules decodes and compiles a rules document. Each pattern
// must match from the start of the platform id.
func ParseCombinationRules(data []byte, source string) (*CombinationRules, error) {
	var doc CombinationRules
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing combination rules %s: %w", source, err)
	}
	r, err := NewCombinationRules(doc.L2L3, doc.ACLL2)
	if err != nil {
		return nil, fmt.Errorf("combination rules %s: %w", source, err)
	}
	r.source = source
	return r, nil
}

// NewCombinationRules compiles the two pattern lists directly.
func NewCombinationRules(l2l3, aclL2 []string) (*CombinationRules, error) {
	r := &CombinationRules{L2L3: l2l3, ACLL2: aclL2, source: "inline"}
	var err error
	if r.l2l3, err = compileAnchored(l2l3); err != nil {
		return nil, fmt.Errorf("l2_l3: %w", err)
	}
	if r.aclL2, err = compileAnchored(aclL2); err != nil {
		return nil, fmt.Errorf("acl_l2: %w", err)
	}
	return r, nil
}

// Source names where the rules came from.
func (r *CombinationRules) Source() string { return r.source }

func compileAnchored(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("^(?:" + p + ")")
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// Resolve classifies platform against both rule lists. A nil rules value
// yields no combined counters.
func Resolve(platform string, rules *CombinationRules) CombinationFlags {
	if rules == nil {
		return CombinationFlags{}
	}
	return CombinationFlags{
		L2L3Combined:  matchAny(rules.l2l3, platform),
		ACLL2Combined: matchAny(rules.aclL2, platform),
	}
}

func matchAny(res []*regexp.Regexp, platform string) bool {
	for _, re := range res {
		if re.MatchString(platform) {
			return true
		}
	}
	return false
}
