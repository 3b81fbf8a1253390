package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FormatAmount renders an amount with two decimals, thousands separators and
// the currency code, e.g. 1234.5 EUR -> "1,234.50 EUR".
func FormatAmount(v float64, currency string) string {
	s := decimal.NewFromFloat(v).Round(2).StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	whole, frac, _ := strings.Cut(s, ".")
	out := groupThousands(whole) + "." + frac
	if neg && strings.Trim(out, "0.,") != "" {
		out = "-" + out
	}
	if currency != "" {
		out += " " + currency
	}
	return out
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// FormatPercent formats a 0-100 percentage with one decimal.
func FormatPercent(p float64) string {
	return fmt.Sprintf("%.1f%%", p)
}

// FormatDate renders a transaction date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Truncate shortens s to at most n runes, marking the cut with an ellipsis.
func Truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}
