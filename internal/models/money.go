package models

import "github.com/shopspring/decimal"

// FormatCents renders an amount of cents as a fixed two-decimal string.
func FormatCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}
