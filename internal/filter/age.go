package filter

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseAge parses an age such as "90m", "36h", "7d" or "2w". Anything
// time.ParseDuration accepts is also accepted.
func ParseAge(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty age string")
	}

	var unit time.Duration
	switch s[len(s)-1] {
	case 'd', 'D':
		unit = 24 * time.Hour
	case 'w', 'W':
		unit = 7 * 24 * time.Hour
	default:
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("invalid age: %q", s)
		}
		if d < 0 {
			return 0, fmt.Errorf("negative age: %q", s)
		}
		return d, nil
	}

	f, err := strconv.ParseFloat(s[:len(s)-1], 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("invalid age: %q", s)
	}
	return time.Duration(f * float64(unit)), nil
}
