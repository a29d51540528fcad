package models

import "github.com/shopspring/decimal"

// Side of a trade request.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// EntryKind maps the side to the ledger entry kind it produces.
func (s Side) EntryKind() EntryKind {
	if s == SideSell {
		return KindSellStock
	}
	return KindBuyStock
}

// TradeRequest is a buy or sell order. Exactly one of Amount and Quantity
// must be set. Price is honoured for buys only; sells execute at the
// current market price.
type TradeRequest struct {
	AccountID   string              `json:"account_id"`
	SecurityID  string              `json:"security_id"`
	Side        Side                `json:"side"`
	Amount      decimal.NullDecimal `json:"amount"`
	Quantity    decimal.NullDecimal `json:"quantity"`
	Price       decimal.NullDecimal `json:"price"`
	Description string              `json:"description"`
}

// TradeState is the lifecycle stage of a trade request.
type TradeState string

const (
	TradeValidated TradeState = "VALIDATED"
	TradePriced    TradeState = "PRICED"
	TradeCommitted TradeState = "COMMITTED"
	TradeRejected  TradeState = "REJECTED"
)

// TradeResult describes a committed trade.
type TradeResult struct {
	TradeID  string          `json:"trade_id"`
	State    TradeState      `json:"state"`
	Entry    LedgerEntry     `json:"entry"`
	Position Position        `json:"position"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	// RealizedGain is (price - average cost) * quantity, set on sells only.
	RealizedGain decimal.NullDecimal `json:"realized_gain"`
}
