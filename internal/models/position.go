package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is the holding of one security by one account, tracked at
// weighted-average cost. A fully sold position keeps its last average cost.
type Position struct {
	AccountID   string          `json:"account_id"`
	SecurityID  string          `json:"security_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	AverageCost decimal.Decimal `json:"average_cost"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Open reports whether the position still holds shares.
func (p Position) Open() bool {
	return p.Quantity.IsPositive()
}

// Equal compares the accounting state of two positions, ignoring timestamps.
func (p Position) Equal(o Position) bool {
	return p.AccountID == o.AccountID &&
		p.SecurityID == o.SecurityID &&
		p.Quantity.Equal(o.Quantity) &&
		p.AverageCost.Equal(o.AverageCost)
}

// Valuation is a position priced at a given market price.
type Valuation struct {
	Position
	Symbol              string          `json:"symbol,omitempty"`
	Name                string          `json:"name,omitempty"`
	CurrentPrice        decimal.Decimal `json:"current_price"`
	TotalInvested       decimal.Decimal `json:"total_invested"`
	CurrentValue        decimal.Decimal `json:"current_value"`
	UnrealizedPL        decimal.Decimal `json:"unrealized_pl"`
	UnrealizedPLPercent decimal.Decimal `json:"unrealized_pl_percent"`
}
