package interfaces

import (
	"context"

	"github.com/sheikh-saqib/brokerage-ledger/internal/models"
)

// AccountDirectory resolves account and user metadata owned by the account
// service. Lookups of missing accounts fail with models.ErrUnknownAccount.
type AccountDirectory interface {
	Account(ctx context.Context, accountID string) (models.Account, error)
	User(ctx context.Context, userID string) (models.User, error)
	Users(ctx context.Context) ([]models.User, error)
	AccountsOf(ctx context.Context, userID string) ([]models.Account, error)
}

// MarketData resolves securities and their current price. Lookups of
// missing securities fail with models.ErrUnknownSecurity.
type MarketData interface {
	Security(ctx context.Context, securityID string) (models.Security, error)
}
