// Package rulestore manages rule bundle loading and hot-reloading.
// A bundle is a single rules.json carrying content rules and the cheat signer deny list.
package rulestore

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/digggggmori-pixel/ferret-bam/internal/patterns"
)

//go:embed default_rules.json
var defaultBundle []byte

// BundleFile represents the on-disk rules.json structure
type BundleFile struct {
	Version    string            `json:"version"`
	CompiledAt string            `json:"compiled_at"`
	Patterns   patterns.RuleFile `json:"patterns"`
	DenyList   []string          `json:"deny_list,omitempty"`
}

// RuleBundle is the in-memory representation of a loaded rule bundle.
// It contains a ready-to-use pattern engine.
type RuleBundle struct {
	Version    string
	CompiledAt string
	Source     string // file path, or "embedded"
	Engine     *patterns.Engine
	DenyList   []string
}

// LoadBundleFromFile loads a rule bundle from a JSON file on disk
func LoadBundleFromFile(path string, opts patterns.Options) (*RuleBundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	bundle, err := LoadBundleFromBytes(data, opts)
	if err != nil {
		return nil, err
	}
	bundle.Source = path
	return bundle, nil
}

// LoadDefaultBundle parses the bundle compiled into the binary
func LoadDefaultBundle(opts patterns.Options) (*RuleBundle, error) {
	bundle, err := LoadBundleFromBytes(defaultBundle, opts)
	if err != nil {
		return nil, err
	}
	bundle.Source = "embedded"
	return bundle, nil
}

// LoadBundleFromBytes parses a rule bundle from raw JSON bytes
func LoadBundleFromBytes(data []byte, opts patterns.Options) (*RuleBundle, error) {
	var bf BundleFile
	if err := json.Unmarshal(data, &bf); err != nil {
		return nil, fmt.Errorf("failed to parse rules bundle: %w", err)
	}

	engine, err := patterns.NewEngine(bf.Patterns.Rules, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to build pattern engine: %w", err)
	}
	if engine.TotalRules() == 0 && len(bf.Patterns.Rules) > 0 {
		return nil, fmt.Errorf("none of the %d rules in the bundle compiled", len(bf.Patterns.Rules))
	}

	version := bf.Version
	if version == "" {
		version = bf.Patterns.Metadata.Version
	}

	return &RuleBundle{
		Version:    version,
		CompiledAt: bf.CompiledAt,
		Engine:     engine,
		DenyList:   normalizeDenyList(bf.DenyList),
	}, nil
}

func normalizeDenyList(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}
