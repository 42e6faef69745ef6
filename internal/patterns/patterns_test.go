package patterns

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCondition(t *testing.T) {
	tests := []struct {
		cond string
		want string
	}{
		{"$a", "$a"},
		{"$a and $b", "($a and $b)"},
		{"$a or $b and $c", "($a or ($b and $c))"},
		{"($a or $b) and not $c", "(($a or $b) and not $c)"},
		{"any of them", "1 of them"},
		{"ALL OF them", "all of them"},
		{"2 of ($a*, $b)", "2 of ($a*, $b)"},
		{"$a and $b and $c", "($a and $b and $c)"},
	}
	for _, tt := range tests {
		t.Run(tt.cond, func(t *testing.T) {
			node, err := ParseCondition(tt.cond)
			require.NoError(t, err)
			assert.Equal(t, tt.want, node.String())
		})
	}
}

func TestParseConditionErrors(t *testing.T) {
	for _, cond := range []string{
		"",
		"$a and",
		"($a",
		"$a $b",
		"0 of them",
		"any of",
		"any of ($a",
		"any of (a)",
		"$a*",
		"maybe",
	} {
		_, err := ParseCondition(cond)
		assert.Error(t, err, "condition %q", cond)
	}
}

func TestEvaluateCondition(t *testing.T) {
	found := map[string]bool{"$a1": true, "$a2": false, "$b": true, "$c": false}

	tests := []struct {
		cond string
		want bool
	}{
		{"$a1", true},
		{"$c", false},
		{"$a1 and $b", true},
		{"$a1 and $c", false},
		{"$c or $b", true},
		{"not $c", true},
		{"not ($a1 or $c)", false},
		{"any of them", true},
		{"all of them", false},
		{"2 of them", true},
		{"3 of them", false},
		{"all of ($a1, $b)", true},
		{"all of ($a*)", false},
		{"1 of ($a*)", true},
	}
	for _, tt := range tests {
		t.Run(tt.cond, func(t *testing.T) {
			node, err := ParseCondition(tt.cond)
			require.NoError(t, err)
			assert.Equal(t, tt.want, EvaluateCondition(&node, found))
		})
	}
}

func TestConditionNodeUnmarshal(t *testing.T) {
	var node ConditionNode
	require.NoError(t, json.Unmarshal([]byte(`{"op":"and","operands":["$a",{"op":"not","operands":["$b"]}]}`), &node))

	assert.Equal(t, "($a and not $b)", node.String())
	assert.True(t, EvaluateCondition(&node, map[string]bool{"$a": true}))
	assert.False(t, EvaluateCondition(&node, map[string]bool{"$a": true, "$b": true}))
}

func TestValidate(t *testing.T) {
	valid := Rule{
		ID:        "ok",
		Strings:   []PatternString{{ID: "$a", Text: "x"}, {ID: "$b", Hex: "4D 5A"}},
		Condition: "$a or $b",
	}
	require.NoError(t, Validate(valid))

	noCond := valid
	noCond.Condition = ""
	assert.NoError(t, Validate(noCond), "empty condition defaults to any of them")

	tests := []struct {
		name string
		mod  func(r *Rule)
	}{
		{"missing id", func(r *Rule) { r.ID = "" }},
		{"no strings", func(r *Rule) { r.Strings = nil }},
		{"undefined ref", func(r *Rule) { r.Condition = "$z" }},
		{"empty set", func(r *Rule) { r.Condition = "any of ($q*)" }},
		{"count too high", func(r *Rule) { r.Condition = "3 of them" }},
		{"bad hex", func(r *Rule) { r.Strings = []PatternString{{ID: "$a", Hex: "4G"}} }},
		{"text and hex", func(r *Rule) { r.Strings = []PatternString{{ID: "$a", Text: "x", Hex: "41"}} }},
		{"bad id", func(r *Rule) { r.Strings = []PatternString{{ID: "a", Text: "x"}} }},
		{"duplicate id", func(r *Rule) {
			r.Strings = []PatternString{{ID: "$a", Text: "x"}, {ID: "$a", Text: "y"}}
			r.Condition = "$a"
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			r.Strings = append([]PatternString(nil), valid.Strings...)
			tt.mod(&r)
			assert.Error(t, Validate(r))
		})
	}
}

func TestCompiledStringFound(t *testing.T) {
	data := []byte("MZ\x90\x00header\x00I\x00n\x00j\x00e\x00c\x00t\x00 AimAssist")
	lowered := asciiLower(data)

	tests := []struct {
		name string
		ps   PatternString
		want bool
	}{
		{"text", PatternString{ID: "$a", Text: "AimAssist"}, true},
		{"text case sensitive", PatternString{ID: "$a", Text: "aimassist"}, false},
		{"nocase", PatternString{ID: "$a", Text: "AIMASSIST", NoCase: true}, true},
		{"wide", PatternString{ID: "$a", Text: "Inject", Wide: true}, true},
		{"wide not requested", PatternString{ID: "$a", Text: "Inject"}, false},
		{"wide nocase", PatternString{ID: "$a", Text: "INJECT", Wide: true, NoCase: true}, true},
		{"hex", PatternString{ID: "$a", Hex: "{ 4D 5A 90 00 }"}, true},
		{"hex miss", PatternString{ID: "$a", Hex: "4D5A9001"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cs, err := compileString(tt.ps)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cs.found(data, lowered))
		})
	}
}

func TestAsciiLowerKeepsBinary(t *testing.T) {
	in := []byte{'A', 0xC3, 0x89, 'z', 0x00, 'Q'}
	assert.Equal(t, []byte{'a', 0xC3, 0x89, 'z', 0x00, 'q'}, asciiLower(in))
}

func testRules() []Rule {
	return []Rule{
		{
			ID:       "cheat-strings",
			Severity: SeverityHigh,
			Strings: []PatternString{
				{ID: "$s1", Text: "aimbot", NoCase: true},
				{ID: "$s2", Text: "wallhack", NoCase: true},
			},
			Condition: "any of them",
		},
		{
			ID:       "mz-and-inject",
			Severity: SeverityMedium,
			Strings: []PatternString{
				{ID: "$mz", Hex: "4D 5A"},
				{ID: "$inj", Text: "Inject", Wide: true},
			},
			Condition: "$mz and $inj",
		},
		{
			ID:          "tiny-only",
			Severity:    SeverityLow,
			Strings:     []PatternString{{ID: "$mz", Hex: "4D5A"}},
			MaxFileSize: 4,
		},
		{
			ID:        "broken",
			Strings:   []PatternString{{ID: "$a", Text: "x"}},
			Condition: "$b",
		},
	}
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestEngineMatch(t *testing.T) {
	e, err := NewEngine(testRules(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, e.TotalRules())
	assert.Equal(t, 1, e.Skipped())

	dir := t.TempDir()
	cheat := writeFile(t, dir, "cheat.exe", []byte("MZ...AimBot v2 I\x00n\x00j\x00e\x00c\x00t\x00"))
	clean := writeFile(t, dir, "clean.exe", []byte("MZ plain program"))
	tiny := writeFile(t, dir, "tiny.exe", []byte("MZ"))

	ids, err := e.Match(cheat)
	require.NoError(t, err)
	assert.Equal(t, []string{"cheat-strings", "mz-and-inject"}, ids)

	ids, err = e.Match(clean)
	require.NoError(t, err)
	assert.Empty(t, ids)

	ids, err = e.Match(tiny)
	require.NoError(t, err)
	assert.Equal(t, []string{"tiny-only"}, ids)

	_, err = e.Match(filepath.Join(dir, "missing.exe"))
	assert.Error(t, err)
	_, err = e.Match(dir)
	assert.Error(t, err)
}

func TestEngineMaxFileSizeReadsPrefix(t *testing.T) {
	e, err := NewEngine(testRules()[:1], Options{MaxFileSize: 8})
	require.NoError(t, err)

	dir := t.TempDir()
	early := writeFile(t, dir, "early.exe", []byte("aimbot.........."))
	late := writeFile(t, dir, "late.exe", []byte("..........aimbot"))

	ids, err := e.Match(early)
	require.NoError(t, err)
	assert.Equal(t, []string{"cheat-strings"}, ids)

	ids, err = e.Match(late)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestEngineMemo(t *testing.T) {
	e, err := NewEngine(testRules()[:1], Options{CacheSize: 8})
	require.NoError(t, err)

	dir := t.TempDir()
	path := writeFile(t, dir, "x.exe", []byte("clean"))

	ids, err := e.Match(path)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Equal(t, 1, e.memo.Len())

	// A new size and mtime is a new file version
	require.NoError(t, os.WriteFile(path, []byte("now with wallhack"), 0o600))
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))

	ids, err = e.Match(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"cheat-strings"}, ids)

	// Returned slices are copies
	ids[0] = "mutated"
	again, err := e.Match(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"cheat-strings"}, again)
	assert.Equal(t, 2, e.memo.Len())

	e.Load(testRules()[1:2])
	assert.Equal(t, 0, e.memo.Len())
	assert.Equal(t, "mz-and-inject", e.Rules()[0].ID)
}

func TestEngineMemoIgnoresVerdictFromReplacedRules(t *testing.T) {
	e, err := NewEngine(testRules()[:1], Options{CacheSize: 8})
	require.NoError(t, err)

	dir := t.TempDir()
	path := writeFile(t, dir, "x.exe", []byte("MZ wallhack"))
	info, err := os.Stat(path)
	require.NoError(t, err)
	staleKey := memoKey{path: path, size: info.Size(), mtime: info.ModTime().UnixNano(), gen: e.gen}

	e.Load(testRules()[1:2])

	// A Match that began before Load can still store its verdict afterwards
	e.memo.Add(staleKey, []string{"cheat-strings"})

	ids, err := e.Match(path)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestEngineConcurrentLoadAndMatch(t *testing.T) {
	e, err := NewEngine(testRules()[:1], Options{CacheSize: 8})
	require.NoError(t, err)

	dir := t.TempDir()
	path := writeFile(t, dir, "x.exe", []byte("MZ wallhack"))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_, _ = e.Match(path)
			}
		}()
	}
	for j := 0; j < 50; j++ {
		e.Load(testRules()[j%2 : j%2+1])
	}
	wg.Wait()

	// The last Load installed the rules without cheat-strings
	e.Load(testRules()[1:2])
	ids, err := e.Match(path)
	require.NoError(t, err)
	assert.Empty(t, ids)
}
