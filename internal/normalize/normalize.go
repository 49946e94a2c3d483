// Package normalize rewrites raw transcripts with ordered literal
// substitutions: a fixed phonetic table followed by a user dictionary.
package normalize

import "strings"

// Rule replaces every occurrence of From with To.
type Rule struct {
	From string
	To   string
}

// Normalize applies the built-in table and then userRules, each rule as a
// global literal replacement over the text produced so far.
func Normalize(text string, userRules []Rule) string {
	result := apply(text, builtin)
	return apply(result, userRules)
}

func apply(text string, rules []Rule) string {
	for _, rule := range rules {
		if rule.From == "" {
			continue
		}
		text = strings.ReplaceAll(text, rule.From, rule.To)
	}
	return text
}

// RuleSource supplies the user table current at call time.
type RuleSource interface {
	Rules() []Rule
}

// Rewriter binds Normalize to a live user dictionary.
type Rewriter struct {
	source RuleSource
}

func NewRewriter(source RuleSource) *Rewriter {
	return &Rewriter{source: source}
}

// Rewrite normalizes text against a single snapshot of the user rules.
func (r *Rewriter) Rewrite(text string) string {
	var rules []Rule
	if r != nil && r.source != nil {
		rules = r.source.Rules()
	}
	return Normalize(text, rules)
}
