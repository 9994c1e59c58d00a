package prices

import (
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// FormatAmount renders amount in currency's display form, e.g. "$1,234.56".
// Unknown currencies fall back to two decimal places.
func FormatAmount(amount float64, currency string) string {
	d := decimal.NewFromFloat(amount)
	cur := money.GetCurrency(currency)
	if cur == nil {
		return d.StringFixed(2)
	}
	factor := decimal.New(1, int32(cur.Fraction))
	return money.New(d.Mul(factor).Round(0).IntPart(), cur.Code).Display()
}

// FormatUSD renders amount as US dollars.
func FormatUSD(amount float64) string {
	return FormatAmount(amount, money.USD)
}
