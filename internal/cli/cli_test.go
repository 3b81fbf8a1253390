package cli

import (
	"strings"
	"testing"
	"time"
)

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		in       float64
		currency string
		want     string
	}{
		{0, "EUR", "0.00 EUR"},
		{12.5, "EUR", "12.50 EUR"},
		{1234.567, "EUR", "1,234.57 EUR"},
		{1234567.1, "", "1,234,567.10"},
		{-42.1, "USD", "-42.10 USD"},
		{-0.001, "", "0.00"},
	}
	for _, tt := range tests {
		if got := FormatAmount(tt.in, tt.currency); got != tt.want {
			t.Errorf("FormatAmount(%v, %q) = %q, want %q", tt.in, tt.currency, got, tt.want)
		}
	}
}

func TestFormatPercentAndDate(t *testing.T) {
	if got := FormatPercent(120); got != "120.0%" {
		t.Errorf("FormatPercent = %q", got)
	}
	if got := FormatDate(time.Date(2025, 3, 9, 23, 0, 0, 0, time.UTC)); got != "2025-03-09" {
		t.Errorf("FormatDate = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("Compte Épargne", 8); got != "Compte …" {
		t.Errorf("Truncate = %q", got)
	}
	if got := Truncate("short", 10); got != "short" {
		t.Errorf("Truncate = %q", got)
	}
}

func TestRenderTable(t *testing.T) {
	out := RenderTable(Table{
		Title:   "Accounts",
		Headers: []string{"Name", "Balance"},
		Rows: [][]string{
			{"Compte Épargne", "5,000.00"},
			{Separator},
			{"Total", "5,000.00"},
		},
	})

	for _, want := range []string{"Accounts", "Compte Épargne", "5,000.00", "╭", "╯"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")[1:]
	width := len([]rune(lines[0]))
	for i, l := range lines {
		if n := len([]rune(l)); n != width {
			t.Errorf("line %d has width %d, want %d:\n%s", i, n, width, out)
		}
	}

	if RenderTable(Table{}) != "" {
		t.Error("empty table should render nothing")
	}
}

func TestRenderBudgetBar(t *testing.T) {
	if got := RenderBudgetBar(50, 10); strings.Count(got, "█") != 5 {
		t.Errorf("half bar = %q", got)
	}
	if got := RenderBudgetBar(250, 10); strings.Count(got, "█") != 10 {
		t.Errorf("overflow bar = %q", got)
	}
	if got := RenderBudgetBar(-5, 4); strings.Count(got, "░") != 4 {
		t.Errorf("negative bar = %q", got)
	}
}

func TestRenderSparkline(t *testing.T) {
	if got := RenderSparkline([]float64{0, 50, 100, -20}); got != "▁▄█▁" {
		t.Errorf("sparkline = %q", got)
	}
	if RenderSparkline(nil) != "" {
		t.Error("empty sparkline")
	}
}
