// Package rewrite applies element-level edits to an HTML stream: prepended
// text, replaced inner content, and attribute substitutions, selected per
// element by tag name or id attribute.
package rewrite

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

// KV is a single attribute replacement.
type KV struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

// Rule describes the edits applied to one matched element. Exactly one of
// Tag or ID selects the element: Tag matches every element with that tag
// name, ID matches the element carrying that id attribute value.
type Rule struct {
	Tag string `yaml:"tag,omitempty"`
	ID  string `yaml:"id,omitempty"`

	// Prepend is inserted as text immediately after the start tag, ahead
	// of the element's existing inner content.
	Prepend string `yaml:"prepend,omitempty"`
	// Content replaces the element's whole inner content. Treated as text
	// unless HTML is set, in which case it is sanitized at compile time.
	Content string `yaml:"content,omitempty"`
	HTML    bool   `yaml:"html,omitempty"`
	// Attributes are set on the start tag in order: existing values are
	// replaced in place, missing attributes are appended.
	Attributes []KV `yaml:"attributes,omitempty"`
}

// RuleSet is an ordered list of rules. Compiled into a Rewriter it is
// read-only and safe to share across concurrent requests.
type RuleSet []Rule

func (rs RuleSet) Count() int { return len(rs) }

// Selectors lists each rule's selector (tag name, or "#id"), for logs and
// the ops ruleset view.
func (rs RuleSet) Selectors() []string {
	sels := make([]string, 0, len(rs))
	for _, r := range rs {
		if r.Tag != "" {
			sels = append(sels, r.Tag)
		} else {
			sels = append(sels, "#"+r.ID)
		}
	}
	return sels
}

func (rs RuleSet) validate() error {
	tags := make(map[string]bool)
	ids := make(map[string]bool)
	for i, r := range rs {
		switch {
		case r.Tag == "" && r.ID == "":
			return fmt.Errorf("rule %d: a tag or an id selector is required", i)
		case r.Tag != "" && r.ID != "":
			return fmt.Errorf("rule %d: tag and id selectors are mutually exclusive", i)
		}
		if r.Prepend == "" && r.Content == "" && len(r.Attributes) == 0 {
			return fmt.Errorf("rule %d: no edits", i)
		}
		if r.Tag != "" {
			if tags[r.Tag] {
				return fmt.Errorf("duplicate rule for tag %q", r.Tag)
			}
			tags[r.Tag] = true
		}
		if r.ID != "" {
			if ids[r.ID] {
				return fmt.Errorf("duplicate rule for id %q", r.ID)
			}
			ids[r.ID] = true
		}
	}
	return nil
}

// Parse decodes a YAML rule list.
func Parse(data []byte) (RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("syntax error in ruleset: %w", err)
	}
	return rs, nil
}

//go:embed rules.yaml
var defaultRulesYAML []byte

// Default returns the fixed production rule set compiled into the binary.
func Default() RuleSet {
	rs, err := Parse(defaultRulesYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded ruleset: %v", err))
	}
	return rs
}
