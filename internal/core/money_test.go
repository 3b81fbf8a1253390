package core

import "testing"

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out float64
		ok  bool
	}{
		{"1", 1, true},
		{"1.23", 1.23, true},
		{"1,23", 1.23, true},
		{"1.005", 1.01, true}, // half-up rounding
		{" 2.50 ", 2.5, true},
		{"-1", 0, false},
		{"0", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %v, got %v (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestRound2(t *testing.T) {
	cases := map[float64]float64{
		0:        0,
		1.005:    1.01,
		2.675:    2.68,
		-1.005:   -1.01,
		33.3333:  33.33,
		1234.999: 1235,
	}
	for in, want := range cases {
		if got := Round2(in); got != want {
			t.Errorf("Round2(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestSumRounded(t *testing.T) {
	if got := SumRounded(0.1, 0.2); got != 0.3 {
		t.Fatalf("expected 0.3, got %v", got)
	}
	if got := SumRounded(); got != 0 {
		t.Fatalf("expected 0 for empty sum, got %v", got)
	}
}
