package parse

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var clockRe = regexp.MustCompile(`^\s*(\d{1,2})\s*:\s*(\d{2})\s*$`)

// Clock is a wall-clock time of day with minute precision.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM" (24h). A single-digit hour is accepted.
func ParseClock(raw string) (Clock, error) {
	m := clockRe.FindStringSubmatch(raw)
	if m == nil {
		return Clock{}, fmt.Errorf("invalid time %q: expected HH:MM", raw)
	}
	h, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	if h > 23 || minute > 59 {
		return Clock{}, fmt.Errorf("invalid time %q: out of range", raw)
	}
	return Clock{Hour: h, Minute: minute}, nil
}

// Minutes returns the minute of day.
func (c Clock) Minutes() int {
	return c.Hour*60 + c.Minute
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// ParseDays validates a weekday set (0 = Sunday ... 6 = Saturday) and returns
// it sorted without duplicates.
func ParseDays(days []int) ([]int, error) {
	if len(days) == 0 {
		return nil, fmt.Errorf("at least one day of week is required")
	}
	seen := make(map[int]struct{}, len(days))
	out := make([]int, 0, len(days))
	for _, d := range days {
		if d < 0 || d > 6 {
			return nil, fmt.Errorf("invalid day of week %d: expected 0-6", d)
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Ints(out)
	return out, nil
}

var dayNames = map[string]int{
	"sun": 0, "mon": 1, "tue": 2, "wed": 3, "thu": 4, "fri": 5, "sat": 6,
}

// ParseDayList parses a comma separated list such as "mon,tue,5" or a range
// like "mon-fri". Used by the console.
func ParseDayList(raw string) ([]int, error) {
	var days []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		if lo, hi, ok := strings.Cut(part, "-"); ok {
			from, err := dayIndex(lo)
			if err != nil {
				return nil, err
			}
			to, err := dayIndex(hi)
			if err != nil {
				return nil, err
			}
			if to < from {
				return nil, fmt.Errorf("invalid day range %q", part)
			}
			for d := from; d <= to; d++ {
				days = append(days, d)
			}
			continue
		}
		d, err := dayIndex(part)
		if err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	return ParseDays(days)
}

func dayIndex(s string) (int, error) {
	s = strings.TrimSpace(s)
	if len(s) >= 3 {
		if d, ok := dayNames[s[:3]]; ok {
			return d, nil
		}
	}
	d, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("unknown day %q", s)
	}
	return d, nil
}
