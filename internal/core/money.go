// Package core provides money parsing and rounding utilities.
//
// Aggregations keep full float64 precision; rounding to two decimals happens
// once, at output boundaries, through Round2.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Round2 rounds half away from zero to two decimal places.
//
// It goes through a decimal representation so that values like 1.005 round
// the way a human expects instead of following the float64 bit pattern.
func Round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

// ParseAmount converts a user supplied decimal string to a positive amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and rounds
// half-up to cents. Negative, zero and malformed values are rejected.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34, nil
//	ParseAmount("12,345") -> 12.35, nil
func ParseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	d = d.Round(2)
	if !d.IsPositive() {
		return 0, ErrInvalidAmount
	}
	f, _ := d.Float64()
	return f, nil
}

// SumRounded adds values at full precision and rounds the total once.
func SumRounded(values ...float64) float64 {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(decimal.NewFromFloat(v))
	}
	f, _ := total.Round(2).Float64()
	return f
}
