package pricing

import (
	"fmt"
	"math"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// ParseCurrency validates an ISO 4217 code such as "USD".
func ParseCurrency(code string) (currency.Unit, error) {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return currency.Unit{}, fmt.Errorf("parse currency %q: %w", code, err)
	}
	return unit, nil
}

// Format renders an amount in minor units for display in the given locale,
// e.g. "USD 1,234.50" for English or "JPY 1,234" for yen. The number of
// minor digits comes from the currency's standard rounding.
func Format(amountMinor int64, unit currency.Unit, tag language.Tag) string {
	p := message.NewPrinter(tag)
	sign := ""
	if amountMinor < 0 {
		sign = "-"
		amountMinor = -amountMinor
	}
	scale, _ := currency.Standard.Rounding(unit)
	return p.Sprintf("%s%s %.*f", sign, unit.String(), scale, float64(amountMinor)/math.Pow10(scale))
}
