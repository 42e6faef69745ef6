package patterns

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// EvaluateCondition evaluates a parsed condition node against per-string search results
func EvaluateCondition(cond *ConditionNode, found map[string]bool) bool {
	switch cond.Op {
	case OpRef:
		return found[cond.Ref]

	case OpAnd:
		for i := range cond.Operands {
			if !EvaluateCondition(&cond.Operands[i], found) {
				return false
			}
		}
		return len(cond.Operands) > 0

	case OpOr:
		for i := range cond.Operands {
			if EvaluateCondition(&cond.Operands[i], found) {
				return true
			}
		}
		return false

	case OpNot:
		if len(cond.Operands) > 0 {
			return !EvaluateCondition(&cond.Operands[0], found)
		}
		return true

	case OpNOf:
		return evaluateNOf(cond.Count, cond.Patterns, found)

	case OpAllOf:
		return evaluateAllOf(cond.Patterns, found)

	default:
		return false
	}
}

// evaluateNOf checks if at least n strings matching any of patterns were found
func evaluateNOf(n int, patterns []string, found map[string]bool) bool {
	if n <= 0 {
		return true
	}
	count := 0
	for id, hit := range found {
		if hit && matchesAny(patterns, id) {
			count++
			if count >= n {
				return true
			}
		}
	}
	return false
}

// evaluateAllOf checks if every string matching patterns was found
func evaluateAllOf(patterns []string, found map[string]bool) bool {
	matched := false
	for id, hit := range found {
		if matchesAny(patterns, id) {
			matched = true
			if !hit {
				return false
			}
		}
	}
	return matched
}

func matchesAny(patterns []string, id string) bool {
	for _, p := range patterns {
		if matchGlob(p, id) {
			return true
		}
	}
	return false
}

// matchGlob performs glob-style matching of a string set pattern such as "$a*"
func matchGlob(pattern, id string) bool {
	if pattern == id || pattern == "*" {
		return true
	}
	matched, err := filepath.Match(pattern, id)
	if err != nil {
		return false
	}
	return matched
}

// ParseCondition parses condition syntax:
//
//	expr    := and ("or" and)*
//	and     := unary ("and" unary)*
//	unary   := "not" unary | primary
//	primary := "(" expr ")" | $id | quant "of" set
//	quant   := "any" | "all" | N
//	set     := "them" | "(" $pattern ("," $pattern)* ")"
func ParseCondition(condition string) (ConditionNode, error) {
	toks := tokenize(condition)
	if len(toks) == 0 {
		return ConditionNode{}, fmt.Errorf("empty condition")
	}
	p := &condParser{toks: toks}
	node, err := p.parseOr()
	if err != nil {
		return ConditionNode{}, err
	}
	if p.pos != len(p.toks) {
		return ConditionNode{}, fmt.Errorf("unexpected %q at token %d", p.toks[p.pos], p.pos)
	}
	return node, nil
}

func tokenize(s string) []string {
	var toks []string
	i := 0
	for i < len(s) {
		switch c := s[i]; {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(' || c == ')' || c == ',':
			toks = append(toks, string(c))
			i++
		default:
			start := i
			for i < len(s) && !strings.ContainsRune(" \t\n\r(),", rune(s[i])) {
				i++
			}
			tok := s[start:i]
			if !strings.HasPrefix(tok, "$") {
				tok = strings.ToLower(tok)
			}
			toks = append(toks, tok)
		}
	}
	return toks
}

type condParser struct {
	toks []string
	pos  int
}

func (p *condParser) peek() string {
	if p.pos < len(p.toks) {
		return p.toks[p.pos]
	}
	return ""
}

func (p *condParser) next() string {
	tok := p.peek()
	if tok != "" {
		p.pos++
	}
	return tok
}

func (p *condParser) expect(tok string) error {
	if got := p.next(); got != tok {
		if got == "" {
			return fmt.Errorf("expected %q, got end of condition", tok)
		}
		return fmt.Errorf("expected %q, got %q", tok, got)
	}
	return nil
}

func (p *condParser) parseOr() (ConditionNode, error) {
	return p.parseBinary(OpOr, p.parseAnd)
}

func (p *condParser) parseAnd() (ConditionNode, error) {
	return p.parseBinary(OpAnd, p.parseUnary)
}

// parseBinary collects a flat operand list for a left-associative operator
func (p *condParser) parseBinary(op string, operand func() (ConditionNode, error)) (ConditionNode, error) {
	first, err := operand()
	if err != nil {
		return ConditionNode{}, err
	}
	if p.peek() != op {
		return first, nil
	}
	node := ConditionNode{Op: op, Operands: []ConditionNode{first}}
	for p.peek() == op {
		p.next()
		next, err := operand()
		if err != nil {
			return ConditionNode{}, err
		}
		node.Operands = append(node.Operands, next)
	}
	return node, nil
}

func (p *condParser) parseUnary() (ConditionNode, error) {
	if p.peek() == "not" {
		p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return ConditionNode{}, err
		}
		return ConditionNode{Op: OpNot, Operands: []ConditionNode{operand}}, nil
	}
	return p.parsePrimary()
}

func (p *condParser) parsePrimary() (ConditionNode, error) {
	tok := p.next()
	switch {
	case tok == "":
		return ConditionNode{}, fmt.Errorf("unexpected end of condition")

	case tok == "(":
		node, err := p.parseOr()
		if err != nil {
			return ConditionNode{}, err
		}
		if err := p.expect(")"); err != nil {
			return ConditionNode{}, err
		}
		return node, nil

	case strings.HasPrefix(tok, "$"):
		if strings.ContainsAny(tok, "*?") {
			return ConditionNode{}, fmt.Errorf("wildcard %q outside a string set", tok)
		}
		return ConditionNode{Op: OpRef, Ref: tok}, nil

	case tok == "any" || tok == "all":
		set, err := p.parseOfSet()
		if err != nil {
			return ConditionNode{}, err
		}
		if tok == "all" {
			return ConditionNode{Op: OpAllOf, Patterns: set}, nil
		}
		return ConditionNode{Op: OpNOf, Count: 1, Patterns: set}, nil
	}

	n, err := strconv.Atoi(tok)
	if err != nil {
		return ConditionNode{}, fmt.Errorf("unexpected %q", tok)
	}
	if n < 1 {
		return ConditionNode{}, fmt.Errorf("string count must be positive, got %d", n)
	}
	set, err := p.parseOfSet()
	if err != nil {
		return ConditionNode{}, err
	}
	return ConditionNode{Op: OpNOf, Count: n, Patterns: set}, nil
}

func (p *condParser) parseOfSet() ([]string, error) {
	if err := p.expect("of"); err != nil {
		return nil, err
	}
	tok := p.next()
	if tok == "them" {
		return []string{"*"}, nil
	}
	if tok != "(" {
		return nil, fmt.Errorf("expected string set, got %q", tok)
	}

	var set []string
	for {
		item := p.next()
		if !strings.HasPrefix(item, "$") {
			return nil, fmt.Errorf("expected string identifier in set, got %q", item)
		}
		set = append(set, item)
		switch sep := p.next(); sep {
		case ",":
			continue
		case ")":
			return set, nil
		default:
			return nil, fmt.Errorf("expected \",\" or \")\" in string set, got %q", sep)
		}
	}
}

// validateCondition checks that every reference and set names at least one defined string
func validateCondition(node *ConditionNode, ids []string) error {
	switch node.Op {
	case OpRef:
		for _, id := range ids {
			if id == node.Ref {
				return nil
			}
		}
		return fmt.Errorf("undefined string %s", node.Ref)

	case OpNOf, OpAllOf:
		for _, pattern := range node.Patterns {
			hit := false
			for _, id := range ids {
				if matchGlob(pattern, id) {
					hit = true
					break
				}
			}
			if !hit {
				return fmt.Errorf("string set %s matches no string", pattern)
			}
		}
		if node.Op == OpNOf && node.Count > len(ids) {
			return fmt.Errorf("condition needs %d strings, rule defines %d", node.Count, len(ids))
		}
		return nil

	case OpAnd, OpOr, OpNot:
		if len(node.Operands) == 0 {
			return fmt.Errorf("%s without operands", node.Op)
		}
		for i := range node.Operands {
			if err := validateCondition(&node.Operands[i], ids); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("unknown operator %q", node.Op)
}
