package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseCents converts decimal string amounts (major units) to minor units.
// Provider callbacks and admin refund forms send amounts as "99.00".
// Examples: "99.00" → 9900, "1234.56" → 123456, "" → 0
func ParseCents(s string) int64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int64(math.Round(f * 100))
}

// ParseMinorUnits converts string amounts already in minor units to int64.
// WooCommerce Store API uses this format for all price fields.
// Examples: "8900" → 8900, "123456" → 123456, "" → 0
func ParseMinorUnits(s string) int64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int64(f)
}

// FormatMoney renders minor units with two decimals and the currency code,
// e.g. 12950, "SEK" → "129.50 SEK".
func FormatMoney(amount int64, currency string) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	s := fmt.Sprintf("%s%d.%02d", sign, amount/100, amount%100)
	if currency == "" {
		return s
	}
	return s + " " + strings.ToUpper(currency)
}

// TaxPercent back-calculates a whole tax percentage from a net amount and
// its tax, rounding the ratio to two decimals first: round(tax/net, 2) * 100.
// A zero or negative tax yields 0.
func TaxPercent(net, tax int64) int64 {
	if tax <= 0 || net <= 0 {
		return 0
	}
	ratio := math.Round(float64(tax)/float64(net)*100) / 100
	return int64(math.Round(ratio * 100))
}

// TaxBasisPoints returns the exact tax rate in basis points (2500 = 25%).
func TaxBasisPoints(net, tax int64) int64 {
	if tax <= 0 || net <= 0 {
		return 0
	}
	return int64(math.Round(float64(tax) * 10000 / float64(net)))
}
