// Package patterns matches executables against content rules: named byte strings combined by a
// boolean condition, in the manner of YARA.
package patterns

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Rule is a compiled-from-JSON content rule
type Rule struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Severity    string          `json:"severity"`
	Tags        []string        `json:"tags,omitempty"`
	Strings     []PatternString `json:"strings"`
	Condition   string          `json:"condition"`
	// ConditionParsed is optional; Condition is parsed when it is absent
	ConditionParsed *ConditionNode `json:"condition_parsed,omitempty"`
	// MaxFileSize skips the rule for larger files; 0 means no limit
	MaxFileSize int64 `json:"max_file_size,omitempty"`
}

// PatternString is one named string of a rule. Exactly one of Text and Hex is set.
type PatternString struct {
	ID     string `json:"id"` // "$a"
	Text   string `json:"text,omitempty"`
	Hex    string `json:"hex,omitempty"` // "4D 5A 90 00"
	NoCase bool   `json:"nocase,omitempty"`
	Wide   bool   `json:"wide,omitempty"` // also search the UTF-16LE form
}

// ConditionNode represents a parsed condition tree
type ConditionNode struct {
	Op       string          `json:"op"` // ref, and, or, not, n_of, all_of
	Ref      string          `json:"ref,omitempty"`
	Count    int             `json:"count,omitempty"`
	Patterns []string        `json:"patterns,omitempty"`
	Operands []ConditionNode `json:"operands,omitempty"`
}

// UnmarshalJSON handles both object and string forms of ConditionNode.
// String operands like "$a" are converted to {op:"ref", ref:"$a"}.
func (c *ConditionNode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		c.Op = OpRef
		c.Ref = s
		return nil
	}

	type Alias ConditionNode
	var a Alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*c = ConditionNode(a)
	return nil
}

// String renders the node back to condition syntax
func (c ConditionNode) String() string {
	switch c.Op {
	case OpRef:
		return c.Ref
	case OpNot:
		if len(c.Operands) == 0 {
			return "not ?"
		}
		return "not " + c.Operands[0].String()
	case OpAnd, OpOr:
		parts := make([]string, len(c.Operands))
		for i, op := range c.Operands {
			parts[i] = op.String()
		}
		return "(" + strings.Join(parts, " "+c.Op+" ") + ")"
	case OpNOf, OpAllOf:
		quant := "all"
		if c.Op == OpNOf {
			quant = strconv.Itoa(c.Count)
		}
		set := "them"
		if !(len(c.Patterns) == 1 && c.Patterns[0] == "*") {
			set = "(" + strings.Join(c.Patterns, ", ") + ")"
		}
		return quant + " of " + set
	}
	return "?"
}

// RuleFile is the rules section of a bundle
type RuleFile struct {
	Metadata RuleFileMetadata `json:"metadata"`
	Rules    []Rule           `json:"rules"`
}

// RuleFileMetadata contains metadata about the rule file
type RuleFileMetadata struct {
	RuleCount  int    `json:"rule_count"`
	CompiledAt string `json:"compiled_at"`
	Version    string `json:"version"`
}

// Severity constants
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
)

// ConditionOp constants for condition evaluation
const (
	OpRef   = "ref"
	OpAnd   = "and"
	OpOr    = "or"
	OpNot   = "not"
	OpNOf   = "n_of"
	OpAllOf = "all_of"
)
