package models

import "github.com/shopspring/decimal"

// Security is a tradable instrument as reported by the market data service.
type Security struct {
	ID     string          `json:"id" yaml:"id"`
	Symbol string          `json:"symbol" yaml:"symbol"`
	Name   string          `json:"name" yaml:"name"`
	Price  decimal.Decimal `json:"price" yaml:"price"`
}
