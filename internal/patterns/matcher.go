package patterns

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
)

// compiledString holds the byte needles searched for one pattern string
type compiledString struct {
	id      string
	needles [][]byte
	nocase  bool
}

// compiledRule is a rule whose strings and condition are ready for evaluation
type compiledRule struct {
	rule      Rule
	strings   []compiledString
	condition ConditionNode
}

// Validate reports whether a rule would compile
func Validate(rule Rule) error {
	_, err := compile(rule)
	return err
}

// compile validates a rule and prepares its strings and condition
func compile(rule Rule) (*compiledRule, error) {
	if rule.ID == "" {
		return nil, fmt.Errorf("rule without id")
	}
	if len(rule.Strings) == 0 {
		return nil, fmt.Errorf("rule %s: no strings", rule.ID)
	}

	cr := &compiledRule{rule: rule}
	ids := make([]string, 0, len(rule.Strings))
	seen := make(map[string]bool, len(rule.Strings))
	for _, ps := range rule.Strings {
		cs, err := compileString(ps)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", rule.ID, err)
		}
		if seen[cs.id] {
			return nil, fmt.Errorf("rule %s: duplicate string %s", rule.ID, cs.id)
		}
		seen[cs.id] = true
		ids = append(ids, cs.id)
		cr.strings = append(cr.strings, cs)
	}

	if rule.ConditionParsed != nil {
		cr.condition = *rule.ConditionParsed
	} else {
		cond := rule.Condition
		if strings.TrimSpace(cond) == "" {
			cond = "any of them"
		}
		parsed, err := ParseCondition(cond)
		if err != nil {
			return nil, fmt.Errorf("rule %s: condition: %w", rule.ID, err)
		}
		cr.condition = parsed
	}
	if err := validateCondition(&cr.condition, ids); err != nil {
		return nil, fmt.Errorf("rule %s: condition: %w", rule.ID, err)
	}
	return cr, nil
}

func compileString(ps PatternString) (compiledString, error) {
	if !strings.HasPrefix(ps.ID, "$") || len(ps.ID) < 2 {
		return compiledString{}, fmt.Errorf("string id %q must look like $name", ps.ID)
	}

	var base []byte
	switch {
	case ps.Text != "" && ps.Hex != "":
		return compiledString{}, fmt.Errorf("string %s: both text and hex set", ps.ID)
	case ps.Text != "":
		base = []byte(ps.Text)
	case ps.Hex != "":
		b, err := decodeHexString(ps.Hex)
		if err != nil {
			return compiledString{}, fmt.Errorf("string %s: %w", ps.ID, err)
		}
		base = b
	default:
		return compiledString{}, fmt.Errorf("string %s: empty", ps.ID)
	}

	cs := compiledString{id: ps.ID, nocase: ps.NoCase}
	if ps.NoCase {
		base = asciiLower(base)
	}
	cs.needles = append(cs.needles, base)
	if ps.Wide {
		cs.needles = append(cs.needles, widen(base))
	}
	return cs, nil
}

// decodeHexString accepts "4D5A", "4D 5A" and "{ 4D 5A }"
func decodeHexString(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '{', '}':
			return -1
		}
		return r
	}, s)
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("hex: %w", err)
	}
	if len(b) == 0 {
		return nil, fmt.Errorf("hex: empty")
	}
	return b, nil
}

// widen converts ASCII bytes to UTF-16LE
func widen(b []byte) []byte {
	out := make([]byte, 0, len(b)*2)
	for _, c := range b {
		out = append(out, c, 0)
	}
	return out
}

// asciiLower lower-cases A-Z only, leaving every other byte (and the length) intact
func asciiLower(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return out
}

// found reports whether any needle of the string occurs in data (or in lowered for nocase strings)
func (cs *compiledString) found(data, lowered []byte) bool {
	haystack := data
	if cs.nocase {
		haystack = lowered
	}
	for _, n := range cs.needles {
		if bytes.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// matches evaluates the rule against file content
func (cr *compiledRule) matches(data, lowered []byte) bool {
	found := make(map[string]bool, len(cr.strings))
	for i := range cr.strings {
		found[cr.strings[i].id] = cr.strings[i].found(data, lowered)
	}
	return EvaluateCondition(&cr.condition, found)
}

func (cr *compiledRule) needsLowered() bool {
	for i := range cr.strings {
		if cr.strings[i].nocase {
			return true
		}
	}
	return false
}
