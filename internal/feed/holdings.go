package feed

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/sheikh-saqib/brokerage-ledger/internal/models"
	"github.com/sheikh-saqib/brokerage-ledger/internal/position"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type Holder struct {
	AccountID        string          `json:"account_id"`
	AccountName      string          `json:"account_name"`
	Quantity         decimal.Decimal `json:"quantity"`
	OwnershipPercent decimal.Decimal `json:"ownership_percentage"`
	LastUpdated      time.Time       `json:"last_updated"`
}

type SecurityHolders struct {
	SecurityID   string          `json:"stock_id"`
	Symbol       string          `json:"symbol"`
	Name         string          `json:"stock_name"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	TotalHolders int             `json:"total_holders"`
	TotalShares  decimal.Decimal `json:"total_shares_held"`
	Holders      []Holder        `json:"holders"`
}

type MostTradedStock struct {
	SecurityID    string          `json:"stock_id"`
	Symbol        string          `json:"stock_symbol"`
	Name          string          `json:"stock_name"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	HolderCount   int             `json:"holder_count"`
	TotalQuantity decimal.Decimal `json:"total_quantity"`
}

// openPositions yields every open position in the store, account by account.
func (a *Aggregator) openPositions(ctx context.Context, fn func(models.Position)) error {
	ids, err := a.store.AccountIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		positions, err := a.store.Positions(ctx, id)
		if err != nil {
			return err
		}
		for _, p := range positions {
			if p.Open() {
				fn(p)
			}
		}
	}
	return nil
}

// StockHolders lists the accounts holding a security, largest holding
// first, with each holder's share of all held shares.
func (a *Aggregator) StockHolders(ctx context.Context, securityID string) (SecurityHolders, error) {
	sec, err := a.market.Security(ctx, securityID)
	if err != nil {
		return SecurityHolders{}, err
	}
	result := SecurityHolders{
		SecurityID:   sec.ID,
		Symbol:       sec.Symbol,
		Name:         sec.Name,
		CurrentPrice: sec.Price,
		TotalShares:  decimal.Zero,
		Holders:      []Holder{},
	}

	var held []models.Position
	err = a.openPositions(ctx, func(p models.Position) {
		if p.SecurityID == securityID {
			held = append(held, p)
		}
	})
	if err != nil {
		return SecurityHolders{}, err
	}

	for _, p := range held {
		acc, err := a.directory.Account(ctx, p.AccountID)
		if errors.Is(err, models.ErrUnknownAccount) {
			a.log.WithFields(logrus.Fields{"account_id": p.AccountID, "security_id": securityID}).
				Debug("holder without directory entry left out")
			continue
		}
		if err != nil {
			return SecurityHolders{}, err
		}
		result.TotalShares = result.TotalShares.Add(p.Quantity)
		result.Holders = append(result.Holders, Holder{
			AccountID:   acc.ID,
			AccountName: acc.Name,
			Quantity:    p.Quantity,
			LastUpdated: p.UpdatedAt,
		})
	}
	for i := range result.Holders {
		result.Holders[i].OwnershipPercent = position.Percent(result.Holders[i].Quantity, result.TotalShares)
	}

	slices.SortFunc(result.Holders, func(x, y Holder) int {
		if c := y.Quantity.Cmp(x.Quantity); c != 0 {
			return c
		}
		return strings.Compare(x.AccountID, y.AccountID)
	})
	result.TotalHolders = len(result.Holders)
	return result, nil
}

// MostTradedStocks ranks securities by the number of accounts with an open
// position, then by total shares held.
func (a *Aggregator) MostTradedStocks(ctx context.Context, limit int) ([]MostTradedStock, error) {
	byID := make(map[string]*MostTradedStock)
	err := a.openPositions(ctx, func(p models.Position) {
		s, ok := byID[p.SecurityID]
		if !ok {
			s = &MostTradedStock{SecurityID: p.SecurityID, TotalQuantity: decimal.Zero}
			byID[p.SecurityID] = s
		}
		s.HolderCount++
		s.TotalQuantity = s.TotalQuantity.Add(p.Quantity)
	})
	if err != nil {
		return nil, err
	}

	px := newPrices(a.market)
	stocks := make([]MostTradedStock, 0, len(byID))
	for id, s := range byID {
		sec, err := px.get(ctx, id)
		if err != nil {
			return nil, err
		}
		if sec != nil {
			s.Symbol, s.Name, s.CurrentPrice = sec.Symbol, sec.Name, sec.Price
		}
		stocks = append(stocks, *s)
	}

	slices.SortFunc(stocks, func(x, y MostTradedStock) int {
		if x.HolderCount != y.HolderCount {
			return y.HolderCount - x.HolderCount
		}
		if c := y.TotalQuantity.Cmp(x.TotalQuantity); c != 0 {
			return c
		}
		return strings.Compare(x.SecurityID, y.SecurityID)
	})
	return truncate(stocks, limit), nil
}
