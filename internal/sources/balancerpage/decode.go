package balancerpage

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var byteScales = map[string]float64{
	"":  1,
	"B": 1,
	"K": 1e3,
	"M": 1e6,
	"G": 1e9,
	"T": 1e12,
}

// DecodeBytes turns a bandwidth cell ("5.1", "K") into a byte count.
// Scales are decimal: K = 1000.
func DecodeBytes(value, scale string) (int64, error) {
	mult, ok := byteScales[strings.ToUpper(strings.TrimSpace(scale))]
	if !ok {
		return 0, fmt.Errorf("unknown byte scale %q", scale)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid byte value %q: %w", value, err)
	}
	if f < 0 {
		return 0, fmt.Errorf("negative byte value %q", value)
	}
	return int64(math.Round(f * mult)), nil
}

var maxMembersPattern = regexp.MustCompile(`^(\d+)\s*\[(\d+)\s+Used\]$`)

// parseMaxMembers reads "4 [2 Used]".
func parseMaxMembers(s string) (members, used int, err error) {
	m := maxMembersPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, fmt.Errorf("invalid max members %q", s)
	}
	members, _ = strconv.Atoi(m[1])
	used, _ = strconv.Atoi(m[2])
	return members, used, nil
}

func parseOnOff(s string) (bool, error) {
	switch s {
	case "On":
		return true, nil
	case "Off":
		return false, nil
	}
	return false, fmt.Errorf("expected On/Off, got %q", s)
}

func parseYesNo(s string) (bool, error) {
	switch s {
	case "Yes":
		return true, nil
	case "No":
		return false, nil
	}
	return false, fmt.Errorf("expected Yes/No, got %q", s)
}

// parseSticky returns nil when no sticky session is configured.
func parseSticky(s string) *string {
	if s == "" || s == "(None)" || s == "-" {
		return nil
	}
	return &s
}

// parseSeconds reads the Timeout cell, printed in whole seconds.
func parseSeconds(s string) (time.Duration, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", s, err)
	}
	return time.Duration(f * float64(time.Second)), nil
}

var buildDateLayouts = []string{
	"Jan _2 2006 15:04:05",
	"2006-01-02T15:04:05",
}

// parseBuildDate returns the zero time for unknown layouts.
func parseBuildDate(s string) time.Time {
	for _, layout := range buildDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
