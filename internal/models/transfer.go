package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction of a transfer relative to the account it is read for.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// Transfer is the logical view of a TRANSFER_OUT / TRANSFER_IN pair.
type Transfer struct {
	CorrelationID    string          `json:"correlation_id"`
	AccountID        string          `json:"account_id"`
	CounterpartyID   string          `json:"counterparty_id"`
	CounterpartyName string          `json:"counterparty_name"`
	Direction        Direction       `json:"direction"`
	Amount           decimal.Decimal `json:"amount"`
	Description      string          `json:"description,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// TransferRequest asks for money to move between two accounts.
type TransferRequest struct {
	FromAccount string          `json:"from_account"`
	ToAccount   string          `json:"to_account"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// TransferReceipt holds both committed legs.
type TransferReceipt struct {
	CorrelationID string      `json:"correlation_id"`
	Out           LedgerEntry `json:"out"`
	In            LedgerEntry `json:"in"`
}
