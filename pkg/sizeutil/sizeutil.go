// Package sizeutil parses the -fs/-rs size flags documented in spec
// section 6: decimal (SI) suffixes B, KB, MB, GB, so "0.5MB" means
// 500000 bytes, not 524288.
package sizeutil

import (
	"fmt"
	"strconv"
	"strings"
)

var siMultiplier = map[string]float64{
	"":   1,
	"B":  1,
	"KB": 1e3,
	"MB": 1e6,
	"GB": 1e9,
}

// Parse converts a size string like "0.5MB" or "500000" into a byte count.
func Parse(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("sizeutil: empty size")
	}

	suffix := ""
	numEnd := len(s)
	for numEnd > 0 && !isDigitOrDot(s[numEnd-1]) {
		numEnd--
	}
	numPart := s[:numEnd]
	suffix = strings.ToUpper(strings.TrimSpace(s[numEnd:]))

	mult, ok := siMultiplier[suffix]
	if !ok {
		return 0, fmt.Errorf("sizeutil: unknown suffix %q in %q", suffix, s)
	}

	value, err := strconv.ParseFloat(numPart, 64)
	if err != nil {
		return 0, fmt.Errorf("sizeutil: invalid size %q: %w", s, err)
	}
	if value < 0 {
		return 0, fmt.Errorf("sizeutil: negative size %q", s)
	}

	return int64(value * mult), nil
}

func isDigitOrDot(b byte) bool {
	return (b >= '0' && b <= '9') || b == '.'
}

// Format renders a byte count back into a human-readable SI string, used
// by the statistic subcommand.
func Format(n int64) string {
	f := float64(n)
	switch {
	case f >= 1e9:
		return fmt.Sprintf("%.2fGB", f/1e9)
	case f >= 1e6:
		return fmt.Sprintf("%.2fMB", f/1e6)
	case f >= 1e3:
		return fmt.Sprintf("%.2fKB", f/1e3)
	default:
		return fmt.Sprintf("%dB", n)
	}
}
