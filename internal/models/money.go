package models

import (
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Currency is the single currency the ledger books in.
const Currency = money.USD

// FormatMoney renders an amount for humans, e.g. "$1,234.50".
func FormatMoney(d decimal.Decimal) string {
	cur := *money.New(0, Currency).Currency()
	minor := d.Shift(int32(cur.Fraction)).Round(0)
	return cur.Formatter().Format(minor.IntPart())
}
