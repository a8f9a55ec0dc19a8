package filter

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// LoadFile adds the rules in the file at path to the chain. See Load for the
// format.
func (c *Chain) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open filter file: %w", err)
	}
	defer f.Close()
	return c.Load(f, path)
}

// Load reads one rule per line from r:
//
//	+ pattern         include keys matching the glob
//	- pattern         exclude keys matching the glob
//	+ prefix:logs/    include keys starting with the literal prefix
//	- prefix:tmp/     exclude keys starting with the literal prefix
//	pattern           exclude (a bare line)
//
// Blank lines and lines starting with # are ignored. Errors are reported as
// name:line.
func (c *Chain) Load(r io.Reader, name string) error {
	scanner := bufio.NewScanner(r)
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		if err := c.addLine(text); err != nil {
			return fmt.Errorf("%s:%d: %w", name, line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	return nil
}

func (c *Chain) addLine(text string) error {
	include := false
	rule := text
	switch {
	case strings.HasPrefix(text, "+ "):
		include, rule = true, strings.TrimSpace(text[2:])
	case strings.HasPrefix(text, "- "):
		rule = strings.TrimSpace(text[2:])
	case text == "+" || text == "-":
		return fmt.Errorf("rule %q has no pattern", text)
	}
	return c.Add(rule, include)
}
