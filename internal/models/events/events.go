package events

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TopicEntryAppended     = "entry_appended"
	TopicTradeExecuted     = "trade_executed"
	TopicTransferCompleted = "transfer_completed"
)

// EntryAppended is published for deposits and withdrawals.
type EntryAppended struct {
	EntryID     int64           `json:"entry_id"`
	AccountID   string          `json:"account_id"`
	Kind        string          `json:"kind"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

func (e EntryAppended) Key() string { return e.AccountID }

type TradeExecuted struct {
	TradeID      string              `json:"trade_id"`
	EntryID      int64               `json:"entry_id"`
	AccountID    string              `json:"account_id"`
	SecurityID   string              `json:"security_id"`
	Side         string              `json:"side"`
	Quantity     decimal.Decimal     `json:"quantity"`
	Price        decimal.Decimal     `json:"price"`
	Amount       decimal.Decimal     `json:"amount"`
	RealizedGain decimal.NullDecimal `json:"realized_gain"`
	OccurredAt   time.Time           `json:"occurred_at"`
}

func (e TradeExecuted) Key() string { return e.AccountID }

type TransferCompleted struct {
	CorrelationID string          `json:"correlation_id"`
	FromAccount   string          `json:"from_account"`
	ToAccount     string          `json:"to_account"`
	Amount        decimal.Decimal `json:"amount"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

func (e TransferCompleted) Key() string { return e.CorrelationID }
