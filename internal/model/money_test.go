package model

import (
	"testing"
)

func TestParseCents(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int64
	}{
		{"whole number", "99.00", 9900},
		{"with cents", "123.45", 12345},
		{"zero", "0.00", 0},
		{"empty string", "", 0},
		{"large value", "1234567.89", 123456789},
		{"no decimals", "100", 10000},
		{"one decimal", "99.9", 9990},
		{"small value", "0.01", 1},
		{"invalid string", "abc", 0},
		{"negative (unusual)", "-10.00", -1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseCents(tt.input)
			if got != tt.want {
				t.Errorf("ParseCents(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseMinorUnits(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int64
	}{
		{"integer string", "8900", 8900},
		{"zero", "0", 0},
		{"empty string", "", 0},
		{"large value", "123456789", 123456789},
		{"negative", "-500", -500},
		{"invalid string", "abc", 0},
		{"with decimal (truncates)", "100.99", 100},
		{"whitespace only", "   ", 0},
		{"very large", "9999999999", 9999999999},
		{"leading zeros", "007", 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseMinorUnits(tt.input)
			if got != tt.want {
				t.Errorf("ParseMinorUnits(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		amount   int64
		currency string
		want     string
	}{
		{12950, "SEK", "129.50 SEK"},
		{5, "eur", "0.05 EUR"},
		{0, "NOK", "0.00 NOK"},
		{-2500, "DKK", "-25.00 DKK"},
		{100, "", "1.00"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := FormatMoney(tt.amount, tt.currency); got != tt.want {
				t.Errorf("FormatMoney(%d, %q) = %q, want %q", tt.amount, tt.currency, got, tt.want)
			}
		})
	}
}

// TestTaxPercentRoundTrip checks the back-calculated rate reproduces common
// VAT rates within one percentage point.
func TestTaxPercentRoundTrip(t *testing.T) {
	nets := []int64{100, 999, 1295, 7990, 12345, 99999}
	for _, rate := range []int64{0, 6, 12, 25} {
		for _, net := range nets {
			tax := (net*rate + 50) / 100
			got := TaxPercent(net, tax)
			if diff := got - rate; diff > 1 || diff < -1 {
				t.Errorf("TaxPercent(%d, %d) = %d, want %d±1", net, tax, got, rate)
			}
		}
	}
}

func TestTaxPercent(t *testing.T) {
	tests := []struct {
		name string
		net  int64
		tax  int64
		want int64
	}{
		{"zero tax", 10000, 0, 0},
		{"zero net", 0, 250, 0},
		{"25 percent", 10000, 2500, 25},
		{"rounds ratio first", 10000, 1249, 12},
		{"negative tax", 10000, -100, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TaxPercent(tt.net, tt.tax); got != tt.want {
				t.Errorf("TaxPercent(%d, %d) = %d, want %d", tt.net, tt.tax, got, tt.want)
			}
		})
	}
}

func TestTaxBasisPoints(t *testing.T) {
	if got := TaxBasisPoints(10000, 1249); got != 1249 {
		t.Errorf("TaxBasisPoints = %d, want 1249", got)
	}
	if got := TaxBasisPoints(800, 0); got != 0 {
		t.Errorf("TaxBasisPoints zero tax = %d, want 0", got)
	}
}
