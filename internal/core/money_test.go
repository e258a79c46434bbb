package core

import (
	"math"
	"testing"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1", true},
		{"1.0", "1", true},
		{"1.23", "1.23", true},
		{"1,23", "1.23", true},
		{"0.01", "0.01", true},
		{"1.005", "1.01", true}, // half-up rounding
		{" 2.50 ", "2.5", true},
		{"-1", "", false},
		{"0", "", false},
		{"0.001", "", false},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"", "", false},
		{"1e400", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || got.String() != tc.out {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestSumAvoidsFloatDrift(t *testing.T) {
	if got := Sum(0.1, 0.2); got != 0.3 {
		t.Fatalf("Sum(0.1, 0.2) = %v, want 0.3", got)
	}
	if got := Sum(); got != 0 {
		t.Fatalf("Sum() = %v, want 0", got)
	}
	if got := Sub(10.1, 0.3); got != 9.8 {
		t.Fatalf("Sub(10.1, 0.3) = %v, want 9.8", got)
	}
}

func TestSumSaturatesInsteadOfOverflowing(t *testing.T) {
	got := Sum(1e308, 1e308)
	if math.IsInf(got, 0) || got != math.MaxFloat64 {
		t.Fatalf("Sum(1e308, 1e308) = %v, want MaxFloat64", got)
	}
	if got := Sub(got, -1e308); got != math.MaxFloat64 {
		t.Fatalf("Sub(max, -1e308) = %v, want MaxFloat64", got)
	}
	if got := Sub(-1e308, 1e308); got != -math.MaxFloat64 {
		t.Fatalf("Sub(-1e308, 1e308) = %v, want -MaxFloat64", got)
	}
	if got := Sum(math.Inf(1), math.NaN()); math.IsInf(got, 0) || math.IsNaN(got) {
		t.Fatalf("Sum(+Inf, NaN) = %v, want a finite amount", got)
	}
}

func TestFormatAmount(t *testing.T) {
	if got := FormatAmount(12.5); got != "12.50" {
		t.Fatalf("FormatAmount(12.5) = %q", got)
	}
	if got := FormatAmount(-3); got != "-3.00" {
		t.Fatalf("FormatAmount(-3) = %q", got)
	}
}
