package fees

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseRate parses a fee fraction written as "numerator/denominator" or as a
// percentage such as "2.5%". Percentages are converted to a fraction over a
// power of ten large enough to keep every supplied digit.
func ParseRate(raw string) (numerator, denominator uint64, err error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, 0, fmt.Errorf("fees: rate required")
	}
	if strings.HasSuffix(trimmed, "%") {
		return parsePercent(strings.TrimSpace(strings.TrimSuffix(trimmed, "%")))
	}
	parts := strings.Split(trimmed, "/")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("fees: rate %q must look like 25/1000 or 2.5%%", raw)
	}
	numerator, err = strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("fees: parse numerator: %w", err)
	}
	denominator, err = strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("fees: parse denominator: %w", err)
	}
	if err := ValidateRate(numerator, denominator); err != nil {
		return 0, 0, err
	}
	return numerator, denominator, nil
}

func parsePercent(value string) (uint64, uint64, error) {
	whole, frac, _ := strings.Cut(value, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > 8 {
		return 0, 0, fmt.Errorf("fees: percentage %q has too many decimals", value)
	}
	digits := whole + frac
	numerator, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("fees: parse percentage: %w", err)
	}
	denominator := uint64(100)
	for i := 0; i < len(frac); i++ {
		denominator *= 10
	}
	if err := ValidateRate(numerator, denominator); err != nil {
		return 0, 0, err
	}
	return numerator, denominator, nil
}
