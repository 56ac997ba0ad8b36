// Package rules holds ordered keyword tables used to classify free text.
//
// A Table is evaluated top to bottom and the first Rule with any keyword
// present in the text wins. Matching is a plain substring test over the
// lower-cased text, so rule order decides conflicts, not text position.
package rules

import "strings"

// Rule maps a set of synonyms to a tag
type Rule struct {
	Tag      string
	Keywords []string
}

// Matches reports whether any keyword occurs in text. text must already be lower-cased.
func (r Rule) Matches(text string) bool {
	for _, kw := range r.Keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// Table is a named, priority-ordered list of rules
type Table struct {
	Name  string
	Rules []Rule
}

// Match returns the tag of the first matching rule
func (t Table) Match(text string) (string, bool) {
	text = strings.ToLower(text)
	for _, r := range t.Rules {
		if r.Matches(text) {
			return r.Tag, true
		}
	}
	return "", false
}

// MatchOr returns the first matching tag or def when nothing matches
func (t Table) MatchOr(text, def string) string {
	if tag, ok := t.Match(text); ok {
		return tag
	}
	return def
}

// Tags lists the tags of the table in priority order
func (t Table) Tags() []string {
	tags := make([]string, len(t.Rules))
	for i, r := range t.Rules {
		tags[i] = r.Tag
	}
	return tags
}
