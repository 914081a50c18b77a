package domain

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/currency"
)

// ErrInvalidAmount is returned when a decimal amount cannot be represented in minor units.
var ErrInvalidAmount = errors.New("money: invalid amount")

// CurrencyScale returns the number of minor-unit digits for an ISO 4217 code.
func CurrencyScale(code string) (int, error) {
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return 0, fmt.Errorf("money: unknown currency %q: %w", code, err)
	}
	scale, _ := currency.Standard.Rounding(unit)
	return scale, nil
}

// FormatAmount renders minor units as a fixed-point decimal string ("1234" USD -> "12.34").
func FormatAmount(minor int64, code string) string {
	scale, err := CurrencyScale(code)
	if err != nil {
		scale = 2
	}
	if scale == 0 {
		return strconv.FormatInt(minor, 10)
	}

	sign := ""
	var abs uint64
	if minor < 0 {
		sign = "-"
		abs = uint64(-(minor + 1)) + 1
	} else {
		abs = uint64(minor)
	}

	digits := strconv.FormatUint(abs, 10)
	if len(digits) <= scale {
		digits = strings.Repeat("0", scale-len(digits)+1) + digits
	}
	cut := len(digits) - scale
	return sign + digits[:cut] + "." + digits[cut:]
}

// ParseAmount converts a decimal string into minor units without floating point arithmetic.
func ParseAmount(value string, code string) (int64, error) {
	scale, err := CurrencyScale(code)
	if err != nil {
		return 0, err
	}

	raw := strings.TrimSpace(value)
	if raw == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	negative := false
	switch raw[0] {
	case '-':
		negative = true
		raw = raw[1:]
	case '+':
		raw = raw[1:]
	}

	whole, frac, hasDot := strings.Cut(raw, ".")
	if whole == "" && (!hasDot || frac == "") {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, value)
	}
	if len(frac) > scale {
		return 0, fmt.Errorf("%w: %q has more than %d decimal places", ErrInvalidAmount, value, scale)
	}
	frac += strings.Repeat("0", scale-len(frac))
	if whole == "" {
		whole = "0"
	}

	digits := whole + frac
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, value)
		}
	}
	parsed, err := strconv.ParseUint(digits, 10, 64)
	if err != nil || parsed > math.MaxInt64 {
		return 0, fmt.Errorf("%w: %q out of range", ErrInvalidAmount, value)
	}
	if negative {
		return -int64(parsed), nil
	}
	return int64(parsed), nil
}
