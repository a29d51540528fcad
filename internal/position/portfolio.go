package position

import (
	"slices"
	"time"

	"github.com/sheikh-saqib/brokerage-ledger/internal/models"
	"github.com/shopspring/decimal"
)

// Performer names the best or worst open position of a portfolio.
type Performer struct {
	SecurityID       string          `json:"security_id"`
	Name             string          `json:"name"`
	ReturnPercentage decimal.Decimal `json:"return_percentage"`
}

// PortfolioSummary aggregates the open positions of one account.
type PortfolioSummary struct {
	AccountID           string             `json:"account_id"`
	TotalPositions      int                `json:"total_positions"`
	TotalInvested       decimal.Decimal    `json:"total_invested"`
	CurrentValue        decimal.Decimal    `json:"current_portfolio_value"`
	UnrealizedPL        decimal.Decimal    `json:"total_unrealized_pl"`
	UnrealizedPLPercent decimal.Decimal    `json:"total_unrealized_pl_percent"`
	BestPerformer       *Performer         `json:"best_performer"`
	WorstPerformer      *Performer         `json:"worst_performer"`
	Positions           []models.Valuation `json:"positions"`
	CalculatedAt        time.Time          `json:"calculated_at"`
}

// Summarize builds the portfolio summary from position valuations. Closed
// positions are left out.
func Summarize(accountID string, valuations []models.Valuation, now time.Time) PortfolioSummary {
	s := PortfolioSummary{
		AccountID:     accountID,
		TotalInvested: decimal.Zero,
		CurrentValue:  decimal.Zero,
		UnrealizedPL:  decimal.Zero,
		Positions:     []models.Valuation{},
		CalculatedAt:  now,
	}
	for _, v := range valuations {
		if v.Open() {
			s.Positions = append(s.Positions, v)
		}
	}
	if len(s.Positions) == 0 {
		s.UnrealizedPLPercent = decimal.Zero
		return s
	}

	slices.SortStableFunc(s.Positions, func(a, b models.Valuation) int {
		return b.CurrentValue.Cmp(a.CurrentValue)
	})

	best, worst := s.Positions[0], s.Positions[0]
	for _, v := range s.Positions {
		s.TotalInvested = s.TotalInvested.Add(v.TotalInvested)
		s.CurrentValue = s.CurrentValue.Add(v.CurrentValue)
		if v.UnrealizedPLPercent.GreaterThan(best.UnrealizedPLPercent) {
			best = v
		}
		if v.UnrealizedPLPercent.LessThan(worst.UnrealizedPLPercent) {
			worst = v
		}
	}
	s.TotalPositions = len(s.Positions)
	s.UnrealizedPL = s.CurrentValue.Sub(s.TotalInvested)
	s.UnrealizedPLPercent = Percent(s.UnrealizedPL, s.TotalInvested)
	s.BestPerformer = performer(best)
	s.WorstPerformer = performer(worst)
	return s
}

func performer(v models.Valuation) *Performer {
	return &Performer{SecurityID: v.SecurityID, Name: v.Name, ReturnPercentage: v.UnrealizedPLPercent}
}

// AccountSummary is the cash plus securities view of one account.
type AccountSummary struct {
	Account        models.Account  `json:"account"`
	CashBalance    decimal.Decimal `json:"cash_balance"`
	PortfolioValue decimal.Decimal `json:"portfolio_value"`
	TotalValue     decimal.Decimal `json:"total_account_value"`
	NumPositions   int             `json:"num_positions"`
	UnrealizedPL   decimal.Decimal `json:"unrealized_pl"`
}

// SummarizeAccount combines a cash balance with a portfolio summary.
func SummarizeAccount(account models.Account, cash decimal.Decimal, p PortfolioSummary) AccountSummary {
	return AccountSummary{
		Account:        account,
		CashBalance:    cash,
		PortfolioValue: p.CurrentValue,
		TotalValue:     cash.Add(p.CurrentValue),
		NumPositions:   p.TotalPositions,
		UnrealizedPL:   p.UnrealizedPL,
	}
}

// TradeHistory lists the trades of one account in one security.
type TradeHistory struct {
	AccountID       string               `json:"account_id"`
	SecurityID      string               `json:"security_id"`
	CurrentQuantity decimal.Decimal      `json:"current_quantity"`
	AverageCost     decimal.Decimal      `json:"average_cost"`
	TotalBought     decimal.Decimal      `json:"total_shares_bought"`
	TotalSold       decimal.Decimal      `json:"total_shares_sold"`
	Trades          []models.LedgerEntry `json:"trades"`
}

// History builds the trade history from entries in ledger order. Trades are
// returned newest first.
func History(accountID, securityID string, current models.Position, entries []models.LedgerEntry) TradeHistory {
	h := TradeHistory{
		AccountID:       accountID,
		SecurityID:      securityID,
		CurrentQuantity: current.Quantity,
		AverageCost:     current.AverageCost,
		TotalBought:     decimal.Zero,
		TotalSold:       decimal.Zero,
		Trades:          []models.LedgerEntry{},
	}
	for _, e := range entries {
		if e.AccountID != accountID || e.SecurityID != securityID || !e.Kind.IsTrade() {
			continue
		}
		switch e.Kind {
		case models.KindBuyStock:
			h.TotalBought = h.TotalBought.Add(e.Quantity.Decimal)
		case models.KindSellStock:
			h.TotalSold = h.TotalSold.Add(e.Quantity.Decimal)
		}
		h.Trades = append(h.Trades, e)
	}
	slices.Reverse(h.Trades)
	return h
}

// Performance is the return of one open position since its first purchase.
type Performance struct {
	AccountID          string          `json:"account_id"`
	SecurityID         string          `json:"security_id"`
	Name               string          `json:"stock_name"`
	TotalReturn        decimal.Decimal `json:"total_return"`
	TotalReturnPercent decimal.Decimal `json:"total_return_percentage"`
	DaysHeld           int             `json:"days_held"`
	FirstPurchaseDate  time.Time       `json:"first_purchase_date"`
}

// PerformanceOf reports a valuation against the first buy of the security.
// Days held counts whole days and is never negative.
func PerformanceOf(v models.Valuation, firstBuy, now time.Time) Performance {
	days := int(now.Sub(firstBuy) / (24 * time.Hour))
	if days < 0 {
		days = 0
	}
	return Performance{
		AccountID:          v.AccountID,
		SecurityID:         v.SecurityID,
		Name:               v.Name,
		TotalReturn:        v.UnrealizedPL,
		TotalReturnPercent: v.UnrealizedPLPercent,
		DaysHeld:           days,
		FirstPurchaseDate:  firstBuy,
	}
}
