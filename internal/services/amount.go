package services

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseDecimalMinor converts a decimal money string (e.g. "45.00") to
// integer minor units with the given exponent (2 for cents). Extra
// fractional digits are rejected rather than truncated.
func ParseDecimalMinor(s string, exponent int) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}

	neg := strings.HasPrefix(s, "-")
	if neg {
		return 0, fmt.Errorf("negative amount: %s", s)
	}

	whole, frac, _ := strings.Cut(s, ".")
	if strings.Contains(frac, ".") {
		return 0, fmt.Errorf("invalid amount: %s", s)
	}
	if len(frac) > exponent {
		return 0, fmt.Errorf("amount %s exceeds precision of %d fractional digits", s, exponent)
	}
	for len(frac) < exponent {
		frac += "0"
	}
	if whole == "" {
		whole = "0"
	}

	minor, err := strconv.ParseInt(whole+frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount: %s", s)
	}
	return minor, nil
}

// FormatMinor renders minor units back to a decimal string.
func FormatMinor(minor int64, exponent int) string {
	if exponent <= 0 {
		return strconv.FormatInt(minor, 10)
	}
	div := int64(1)
	for i := 0; i < exponent; i++ {
		div *= 10
	}
	return fmt.Sprintf("%d.%0*d", minor/div, exponent, minor%div)
}
