package domain

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount reads a monetary value stored as a number or as text. The
// boolean is false for missing, NaN, infinite, or unparseable values.
func ParseAmount(value any) (decimal.Decimal, bool) {
	switch v := value.(type) {
	case nil:
		return decimal.Zero, false
	case decimal.Decimal:
		return v, true
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(v), true
	case float32:
		return ParseAmount(float64(v))
	case int64:
		return decimal.NewFromInt(v), true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case string:
		text := strings.TrimSpace(v)
		if text == "" {
			return decimal.Zero, false
		}
		// Catalog forms accept a decimal comma.
		if !strings.Contains(text, ".") {
			text = strings.Replace(text, ",", ".", 1)
		}
		d, err := decimal.NewFromString(text)
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	default:
		return decimal.Zero, false
	}
}

// FloatPrice converts a stored value into the raw float used by Service.Price.
// Unparseable values become NaN.
func FloatPrice(value any) float64 {
	d, ok := ParseAmount(value)
	if !ok {
		return math.NaN()
	}
	f, _ := d.Float64()
	return f
}

// FormatMoney renders an amount with exactly two fractional digits.
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// AmountFloat converts an amount into the float64 stored on documents. The
// value is not rounded: rounding happens only when an amount is displayed,
// so a stored order re-renders exactly as it printed.
func AmountFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
