package queue

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/gosimple/slug"
	"gopkg.in/yaml.v3"
)

//go:embed default_seeds.yaml
var defaultSeedsYAML []byte

const defaultSeedLimit = 5

// SeedRule adds titles found by a free-text search when a group's
// finalized genres are exactly Genres, in any order
type SeedRule struct {
	Genres []string `yaml:"genres"`
	Search string   `yaml:"search"`
	Limit  int      `yaml:"limit"`
}

// Name is the identifier recorded in a seeded candidate's reason
func (r SeedRule) Name() string {
	return strings.ReplaceAll(slug.Make(r.Search), "-", "_")
}

// Applies reports whether the rule matches genres, ignoring order and case
func (r SeedRule) Applies(genres []string) bool {
	if len(r.Genres) != len(genres) {
		return false
	}
	want := make(map[string]int, len(r.Genres))
	for _, g := range r.Genres {
		want[strings.ToLower(g)]++
	}
	for _, g := range genres {
		key := strings.ToLower(g)
		if want[key] == 0 {
			return false
		}
		want[key]--
	}
	return true
}

type seedFile struct {
	Rules []SeedRule `yaml:"rules"`
}

// SeedRules is an ordered rule table
type SeedRules []SeedRule

// Match returns the first rule that applies to genres
func (rs SeedRules) Match(genres []string) (SeedRule, bool) {
	for _, r := range rs {
		if r.Applies(genres) {
			return r, true
		}
	}
	return SeedRule{}, false
}

// ParseSeedRules decodes a YAML rule table
func ParseSeedRules(data []byte) (SeedRules, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse seed rules: %w", err)
	}
	for i := range f.Rules {
		r := &f.Rules[i]
		r.Search = strings.TrimSpace(r.Search)
		if r.Search == "" {
			return nil, fmt.Errorf("seed rule %d: search is required", i)
		}
		if len(r.Genres) == 0 {
			return nil, fmt.Errorf("seed rule %d: genres are required", i)
		}
		if r.Limit <= 0 {
			r.Limit = defaultSeedLimit
		}
	}
	return SeedRules(f.Rules), nil
}

// DefaultSeedRules returns the built-in rule table
func DefaultSeedRules() SeedRules {
	rules, err := ParseSeedRules(defaultSeedsYAML)
	if err != nil {
		panic(err)
	}
	return rules
}

// LoadSeedRules reads a rule table from path, or the built-in table when path is empty
func LoadSeedRules(path string) (SeedRules, error) {
	if path == "" {
		return DefaultSeedRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed rules: %w", err)
	}
	return ParseSeedRules(data)
}
