// Package position maintains weighted-average cost positions and values
// them at a given market price. Every function here is pure: the same ledger
// entries always produce the same position, which is what makes replay a
// usable reconciliation check.
package position

import (
	"fmt"
	"time"

	"github.com/sheikh-saqib/brokerage-ledger/internal/models"
	"github.com/shopspring/decimal"
)

const (
	// CostPlaces is the scale average costs are rounded to.
	CostPlaces = 12
	// PercentPlaces is the scale P/L percentages are rounded to.
	PercentPlaces = 4
)

var hundred = decimal.NewFromInt(100)

// ApplyBuy adds qty shares bought at price to p.
func ApplyBuy(p models.Position, qty, price decimal.Decimal) (models.Position, error) {
	if !qty.IsPositive() {
		return p, models.Errorf(models.ErrInvalidQuantity, "buy quantity must be positive").With("quantity", qty)
	}
	if !price.IsPositive() {
		return p, models.Errorf(models.ErrInvalidAmount, "buy price must be positive").With("price", price)
	}

	if p.Quantity.IsZero() {
		p.AverageCost = price
	} else {
		cost := p.Quantity.Mul(p.AverageCost).Add(qty.Mul(price))
		p.AverageCost = cost.DivRound(p.Quantity.Add(qty), CostPlaces)
	}
	p.Quantity = p.Quantity.Add(qty)
	return p, nil
}

// ApplySell removes qty shares sold at price from p and returns the realized
// gain. The average cost is left untouched.
func ApplySell(p models.Position, qty, price decimal.Decimal) (models.Position, decimal.Decimal, error) {
	if !qty.IsPositive() {
		return p, decimal.Zero, models.Errorf(models.ErrInvalidQuantity, "sell quantity must be positive").With("quantity", qty)
	}
	if qty.GreaterThan(p.Quantity) {
		return p, decimal.Zero, models.Errorf(models.ErrInsufficientPosition, "cannot sell more than held").
			With("requested", qty).
			With("available", p.Quantity)
	}

	realized := price.Sub(p.AverageCost).Mul(qty)
	p.Quantity = p.Quantity.Sub(qty)
	return p, realized, nil
}

// Apply folds one trade entry into p.
func Apply(p models.Position, e models.LedgerEntry) (models.Position, error) {
	if !e.Quantity.Valid || !e.Price.Valid {
		return p, fmt.Errorf("entry %d: trade without quantity or price", e.ID)
	}
	switch e.Kind {
	case models.KindBuyStock:
		return ApplyBuy(p, e.Quantity.Decimal, e.Price.Decimal)
	case models.KindSellStock:
		next, _, err := ApplySell(p, e.Quantity.Decimal, e.Price.Decimal)
		return next, err
	}
	return p, nil
}

// Replay rebuilds the position of one account in one security from its
// trade entries, which must be in ledger order. Entries of other securities
// or non-trade kinds are skipped.
func Replay(accountID, securityID string, entries []models.LedgerEntry) (models.Position, bool, error) {
	p := models.Position{AccountID: accountID, SecurityID: securityID}
	seen := false
	for _, e := range entries {
		if e.AccountID != accountID || e.SecurityID != securityID || !e.Kind.IsTrade() {
			continue
		}
		var err error
		if p, err = Apply(p, e); err != nil {
			return p, seen, fmt.Errorf("replay %s/%s: %w", accountID, securityID, err)
		}
		p.UpdatedAt = e.CreatedAt
		seen = true
	}
	return p, seen, nil
}

// ReplayAccount rebuilds every position of an account.
func ReplayAccount(accountID string, entries []models.LedgerEntry) (map[string]models.Position, error) {
	result := make(map[string]models.Position)
	for _, e := range entries {
		if e.AccountID != accountID || !e.Kind.IsTrade() {
			continue
		}
		p, ok := result[e.SecurityID]
		if !ok {
			p = models.Position{AccountID: accountID, SecurityID: e.SecurityID}
		}
		next, err := Apply(p, e)
		if err != nil {
			return nil, fmt.Errorf("replay %s/%s: %w", accountID, e.SecurityID, err)
		}
		next.UpdatedAt = e.CreatedAt
		result[e.SecurityID] = next
	}
	return result, nil
}

// Reconcile compares a stored position with its replay.
func Reconcile(stored models.Position, storedFound bool, replayed models.Position, replayedFound bool) error {
	if !storedFound && !replayedFound {
		return nil
	}
	if storedFound != replayedFound || !stored.Equal(replayed) {
		return models.Errorf(models.ErrReconciliationMismatch, "position diverges from ledger replay").
			With("account_id", replayed.AccountID).
			With("security_id", replayed.SecurityID).
			With("stored_quantity", stored.Quantity).
			With("stored_average_cost", stored.AverageCost).
			With("replayed_quantity", replayed.Quantity).
			With("replayed_average_cost", replayed.AverageCost)
	}
	return nil
}

// Valuation prices p at currentPrice.
func Valuation(p models.Position, currentPrice decimal.Decimal) models.Valuation {
	invested := p.Quantity.Mul(p.AverageCost)
	value := p.Quantity.Mul(currentPrice)
	pl := currentPrice.Sub(p.AverageCost).Mul(p.Quantity)

	pct := decimal.Zero
	if !p.Quantity.IsZero() {
		pct = Percent(pl, invested)
	}
	return models.Valuation{
		Position:            p,
		CurrentPrice:        currentPrice,
		TotalInvested:       invested,
		CurrentValue:        value,
		UnrealizedPL:        pl,
		UnrealizedPLPercent: pct,
	}
}

// Percent returns part/whole*100, or zero when whole is zero.
func Percent(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred).Round(PercentPlaces)
}

// Touch stamps p with the time of the entry that changed it.
func Touch(p models.Position, at time.Time) models.Position {
	p.UpdatedAt = at
	return p
}
