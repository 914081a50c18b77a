package domain

import (
	"errors"
	"testing"
)

func TestFormatAmount(t *testing.T) {
	cases := []struct {
		minor    int64
		currency string
		want     string
	}{
		{5000, "USD", "50.00"},
		{5, "USD", "0.05"},
		{-450, "usd", "-4.50"},
		{0, "USD", "0.00"},
		{1200, "JPY", "1200"},
	}
	for _, tc := range cases {
		if got := FormatAmount(tc.minor, tc.currency); got != tc.want {
			t.Fatalf("FormatAmount(%d, %s) = %q, want %q", tc.minor, tc.currency, got, tc.want)
		}
	}
}

func TestParseAmount(t *testing.T) {
	cases := []struct {
		value string
		want  int64
	}{
		{"25", 2500},
		{"25.5", 2550},
		{"0.05", 5},
		{".5", 50},
		{"-4.50", -450},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.value, "USD")
		if err != nil {
			t.Fatalf("ParseAmount(%q) unexpected error: %v", tc.value, err)
		}
		if got != tc.want {
			t.Fatalf("ParseAmount(%q) = %d, want %d", tc.value, got, tc.want)
		}
	}
}

func TestParseAmountRejectsInvalidInput(t *testing.T) {
	for _, value := range []string{"", "abc", "1.234", "1.2.3", "."} {
		if _, err := ParseAmount(value, "USD"); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("ParseAmount(%q) expected ErrInvalidAmount, got %v", value, err)
		}
	}
	if _, err := ParseAmount("1", "XXX1"); err == nil {
		t.Fatalf("expected unknown currency error")
	}
}

func TestMoneyRoundTripIsStable(t *testing.T) {
	inputs := []string{"25.00", "0.99", "1234.56", "-3.10"}
	for _, input := range inputs {
		value := input
		for i := 0; i < 3; i++ {
			minor, err := ParseAmount(value, "USD")
			if err != nil {
				t.Fatalf("round %d parse %q: %v", i, value, err)
			}
			// compute step: apply and remove a 10% discount in minor units
			discount := (minor*1000 + 5000) / 10000
			minor = minor - discount + discount
			value = FormatAmount(minor, "USD")
		}
		if value != input {
			t.Fatalf("round trip drifted: %q -> %q", input, value)
		}
	}
}
