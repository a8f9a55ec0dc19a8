// Package filter selects which keys take part in a mirror run.
package filter

import (
	"fmt"
	"strings"
	"time"
)

// Rule represents a single include or exclude filter rule.
type Rule struct {
	Pattern *compiledPattern
	Include bool // true=include, false=exclude
}

// Chain holds an ordered list of filter rules plus size and age bounds.
type Chain struct {
	cutoff  time.Time // zero = no age bound
	rules   []Rule
	minSize int64
	maxSize int64
}

// NewChain creates an empty filter chain.
func NewChain() *Chain {
	return &Chain{}
}

// AddExclude adds an exclude rule for the given pattern.
func (c *Chain) AddExclude(pattern string) error {
	cp, err := compilePattern(pattern)
	if err != nil {
		return err
	}
	c.rules = append(c.rules, Rule{Pattern: cp, Include: false})
	return nil
}

// AddInclude adds an include rule for the given pattern.
func (c *Chain) AddInclude(pattern string) error {
	cp, err := compilePattern(pattern)
	if err != nil {
		return err
	}
	c.rules = append(c.rules, Rule{Pattern: cp, Include: true})
	return nil
}

// Add adds an include or exclude rule. A rule written prefix:P matches every
// key starting with the literal P; any other rule is a glob pattern.
func (c *Chain) Add(rule string, include bool) error {
	if prefix, ok := strings.CutPrefix(rule, "prefix:"); ok {
		if prefix == "" {
			return fmt.Errorf("rule %q has an empty prefix", rule)
		}
		c.rules = append(c.rules, Rule{Pattern: literalPrefix(prefix), Include: include})
		return nil
	}
	if include {
		return c.AddInclude(rule)
	}
	return c.AddExclude(rule)
}

// SetMinSize sets the minimum object size filter.
func (c *Chain) SetMinSize(n int64) {
	c.minSize = n
}

// SetMaxSize sets the maximum object size filter.
func (c *Chain) SetMaxSize(n int64) {
	c.maxSize = n
}

// SetMaxAge excludes objects last modified more than age before now.
// A zero age removes the bound.
func (c *Chain) SetMaxAge(age time.Duration, now time.Time) {
	if age <= 0 {
		c.cutoff = time.Time{}
		return
	}
	c.cutoff = now.Add(-age)
}

// Cutoff returns the oldest modification time still included, or the zero
// time when no age bound is set.
func (c *Chain) Cutoff() time.Time { return c.cutoff }

// Empty reports whether the chain has no rules and no bounds.
func (c *Chain) Empty() bool {
	return len(c.rules) == 0 && c.minSize == 0 && c.maxSize == 0 && c.cutoff.IsZero()
}

// Match returns true if key should be INCLUDED. modified may be nil when the
// backend cannot report it; such keys pass the age bound.
func (c *Chain) Match(key string, size int64, modified *time.Time) bool {
	if c.minSize > 0 && size < c.minSize {
		return false
	}
	if c.maxSize > 0 && size > c.maxSize {
		return false
	}
	if !c.cutoff.IsZero() && modified != nil && !modified.IsZero() && modified.Before(c.cutoff) {
		return false
	}
	return c.MatchKey(key)
}

// MatchKey applies only the pattern rules. A rule matches a key when it
// matches the key itself or any of its parent directories; the first
// matching rule wins.
func (c *Chain) MatchKey(key string) bool {
	for _, rule := range c.rules {
		if rule.Pattern.matchKey(key) {
			return rule.Include
		}
	}
	return true
}

// parents returns the directory prefixes of key, shallowest first:
// "a/b/c" yields "a", "a/b".
func parents(key string) []string {
	var dirs []string
	for i := strings.IndexByte(key, '/'); i >= 0; {
		dirs = append(dirs, key[:i])
		next := strings.IndexByte(key[i+1:], '/')
		if next < 0 {
			break
		}
		i += next + 1
	}
	return dirs
}
