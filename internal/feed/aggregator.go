// Package feed computes read-side analytics over the ledger: trader
// leaderboards, recent trades and trending securities. Results are derived
// on demand and are never used to authorize a write.
package feed

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	interfaces "github.com/sheikh-saqib/brokerage-ledger/internal/interfaces"
	"github.com/sheikh-saqib/brokerage-ledger/internal/models"
	"github.com/sheikh-saqib/brokerage-ledger/internal/position"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type TraderPerformance struct {
	UserID           string          `json:"user_id"`
	UserName         string          `json:"user_name"`
	TotalAccounts    int             `json:"total_accounts"`
	TotalPositions   int             `json:"total_positions"`
	TotalInvested    decimal.Decimal `json:"total_invested"`
	CurrentValue     decimal.Decimal `json:"current_value"`
	ProfitLoss       decimal.Decimal `json:"profit_loss"`
	ReturnPercentage decimal.Decimal `json:"return_percentage"`
}

type RecentTrade struct {
	EntryID      int64            `json:"trade_id"`
	AccountID    string           `json:"account_id"`
	TraderID     string           `json:"trader_id"`
	TraderName   string           `json:"trader_name"`
	TraderReturn decimal.Decimal  `json:"trader_return"`
	Kind         models.EntryKind `json:"type"`
	SecurityID   string           `json:"stock_id"`
	Symbol       string           `json:"stock_symbol"`
	Name         string           `json:"stock_name"`
	Quantity     decimal.Decimal  `json:"quantity"`
	Price        decimal.Decimal  `json:"price"`
	Amount       decimal.Decimal  `json:"total_amount"`
	Description  string           `json:"description,omitempty"`
	CreatedAt    time.Time        `json:"timestamp"`
}

type TrendingStock struct {
	SecurityID    string          `json:"stock_id"`
	Symbol        string          `json:"stock_symbol"`
	Name          string          `json:"stock_name"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	TradersBuying int             `json:"traders_buying"`
	PurchaseCount int             `json:"purchase_count"`
	TotalInvested decimal.Decimal `json:"total_invested"`
}

type ProfilePosition struct {
	AccountID         string          `json:"account_id"`
	SecurityID        string          `json:"stock_id"`
	Symbol            string          `json:"stock_ticker"`
	Name              string          `json:"stock_name"`
	Quantity          decimal.Decimal `json:"quantity"`
	ProfitLossPercent decimal.Decimal `json:"profit_loss_percentage"`
}

type TraderProfile struct {
	TraderPerformance
	MemberSince       time.Time         `json:"member_since"`
	Positions         []ProfilePosition `json:"positions"`
	RecentTradesCount int               `json:"recent_trades_count"`
}

// Aggregator reads the ledger store and the two collaborators. It holds no
// state between calls.
type Aggregator struct {
	store     interfaces.LedgerStore
	directory interfaces.AccountDirectory
	market    interfaces.MarketData
	now       func() time.Time
	log       logrus.FieldLogger
}

func NewAggregator(store interfaces.LedgerStore, directory interfaces.AccountDirectory, market interfaces.MarketData, log logrus.FieldLogger) *Aggregator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Aggregator{store: store, directory: directory, market: market, now: time.Now, log: log}
}

// WithClock returns a copy of a that reads the time from now.
func (a *Aggregator) WithClock(now func() time.Time) *Aggregator {
	c := *a
	c.now = now
	return &c
}

// prices memoizes market lookups so one computation values every position
// at the same price.
type prices struct {
	market interfaces.MarketData
	seen   map[string]*models.Security
}

func newPrices(market interfaces.MarketData) *prices {
	return &prices{market: market, seen: make(map[string]*models.Security)}
}

// get returns nil for securities the market no longer knows.
func (p *prices) get(ctx context.Context, securityID string) (*models.Security, error) {
	if s, ok := p.seen[securityID]; ok {
		return s, nil
	}
	s, err := p.market.Security(ctx, securityID)
	if errors.Is(err, models.ErrUnknownSecurity) {
		p.seen[securityID] = nil
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.seen[securityID] = &s
	return &s, nil
}

// TopTraders ranks users by return on invested capital across all their
// accounts. Ties go to the larger absolute profit, then the lower user id.
func (a *Aggregator) TopTraders(ctx context.Context, limit int) ([]TraderPerformance, error) {
	ranked, err := a.rankTraders(ctx, newPrices(a.market))
	if err != nil {
		return nil, err
	}
	return truncate(ranked, limit), nil
}

func (a *Aggregator) rankTraders(ctx context.Context, px *prices) ([]TraderPerformance, error) {
	users, err := a.directory.Users(ctx)
	if err != nil {
		return nil, err
	}

	ranked := make([]TraderPerformance, 0, len(users))
	for _, u := range users {
		perf, _, err := a.performance(ctx, px, u)
		if err != nil {
			return nil, err
		}
		if perf.TotalAccounts == 0 {
			continue
		}
		ranked = append(ranked, perf)
	}

	slices.SortFunc(ranked, func(x, y TraderPerformance) int {
		if c := compareReturns(y, x); c != 0 {
			return c
		}
		if c := y.ProfitLoss.Abs().Cmp(x.ProfitLoss.Abs()); c != 0 {
			return c
		}
		return strings.Compare(x.UserID, y.UserID)
	})
	return ranked, nil
}

// compareReturns orders x and y by exact return on invested capital.
// ReturnPercentage is rounded for display, so near-equal returns are
// compared by cross multiplication instead.
func compareReturns(x, y TraderPerformance) int {
	switch {
	case x.TotalInvested.IsZero() && y.TotalInvested.IsZero():
		return 0
	case x.TotalInvested.IsZero():
		return -y.ProfitLoss.Sign()
	case y.TotalInvested.IsZero():
		return x.ProfitLoss.Sign()
	}
	return x.ProfitLoss.Mul(y.TotalInvested).Cmp(y.ProfitLoss.Mul(x.TotalInvested))
}

// performance values every open position of a user.
func (a *Aggregator) performance(ctx context.Context, px *prices, u models.User) (TraderPerformance, []ProfilePosition, error) {
	perf := TraderPerformance{
		UserID:           u.ID,
		UserName:         u.Name,
		TotalInvested:    decimal.Zero,
		CurrentValue:     decimal.Zero,
		ProfitLoss:       decimal.Zero,
		ReturnPercentage: decimal.Zero,
	}
	accounts, err := a.directory.AccountsOf(ctx, u.ID)
	if err != nil {
		return perf, nil, err
	}
	perf.TotalAccounts = len(accounts)

	var held []ProfilePosition
	for _, acc := range accounts {
		positions, err := a.store.Positions(ctx, acc.ID)
		if err != nil {
			return perf, nil, err
		}
		for _, p := range positions {
			if !p.Open() {
				continue
			}
			sec, err := px.get(ctx, p.SecurityID)
			if err != nil {
				return perf, nil, err
			}
			if sec == nil {
				a.log.WithFields(logrus.Fields{"account_id": acc.ID, "security_id": p.SecurityID}).
					Warn("position in unknown security left out of feed")
				continue
			}
			v := position.Valuation(p, sec.Price)
			perf.TotalPositions++
			perf.TotalInvested = perf.TotalInvested.Add(v.TotalInvested)
			perf.CurrentValue = perf.CurrentValue.Add(v.CurrentValue)
			held = append(held, ProfilePosition{
				AccountID:         acc.ID,
				SecurityID:        p.SecurityID,
				Symbol:            sec.Symbol,
				Name:              sec.Name,
				Quantity:          p.Quantity,
				ProfitLossPercent: v.UnrealizedPLPercent,
			})
		}
	}
	perf.ProfitLoss = perf.CurrentValue.Sub(perf.TotalInvested)
	perf.ReturnPercentage = position.Percent(perf.ProfitLoss, perf.TotalInvested)
	return perf, held, nil
}

// owners maps account ids to their owning user, across all users.
func (a *Aggregator) owners(ctx context.Context, ranked []TraderPerformance) (map[string]TraderPerformance, error) {
	byAccount := make(map[string]TraderPerformance)
	for _, t := range ranked {
		accounts, err := a.directory.AccountsOf(ctx, t.UserID)
		if err != nil {
			return nil, err
		}
		for _, acc := range accounts {
			byAccount[acc.ID] = t
		}
	}
	return byAccount, nil
}

// RecentTrades lists buys and sells across all accounts in the trailing
// window, newest first, each tagged with its trader's current return.
func (a *Aggregator) RecentTrades(ctx context.Context, limit, days int) ([]RecentTrade, error) {
	px := newPrices(a.market)
	ranked, err := a.rankTraders(ctx, px)
	if err != nil {
		return nil, err
	}
	owners, err := a.owners(ctx, ranked)
	if err != nil {
		return nil, err
	}

	filter := models.LastDays(a.now(), days)
	filter.Kinds = []models.EntryKind{models.KindBuyStock, models.KindSellStock}
	filter.Descending = true

	trades := []RecentTrade{}
	for e, err := range a.store.Entries(ctx, filter) {
		if err != nil {
			return nil, err
		}
		trader, ok := owners[e.AccountID]
		if !ok {
			a.log.WithFields(logrus.Fields{"account_id": e.AccountID, "entry_id": e.ID}).
				Debug("trade on account without owner left out of feed")
			continue
		}
		t := RecentTrade{
			EntryID:      e.ID,
			AccountID:    e.AccountID,
			TraderID:     trader.UserID,
			TraderName:   trader.UserName,
			TraderReturn: trader.ReturnPercentage,
			Kind:         e.Kind,
			SecurityID:   e.SecurityID,
			Quantity:     e.Quantity.Decimal,
			Price:        e.Price.Decimal,
			Amount:       e.Amount,
			Description:  e.Description,
			CreatedAt:    e.CreatedAt,
		}
		sec, err := px.get(ctx, e.SecurityID)
		if err != nil {
			return nil, err
		}
		if sec != nil {
			t.Symbol, t.Name = sec.Symbol, sec.Name
		}
		trades = append(trades, t)
		if limit > 0 && len(trades) == limit {
			break
		}
	}
	return trades, nil
}

// TrendingStocks groups buys in the trailing window by security and ranks
// them by distinct buyers, then by number of purchases.
func (a *Aggregator) TrendingStocks(ctx context.Context, days, limit int) ([]TrendingStock, error) {
	users, err := a.directory.Users(ctx)
	if err != nil {
		return nil, err
	}
	owner := make(map[string]string)
	for _, u := range users {
		accounts, err := a.directory.AccountsOf(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		for _, acc := range accounts {
			owner[acc.ID] = u.ID
		}
	}

	filter := models.LastDays(a.now(), days)
	filter.Kinds = []models.EntryKind{models.KindBuyStock}

	type bucket struct {
		stock   TrendingStock
		traders map[string]bool
	}
	buckets := make(map[string]*bucket)
	for e, err := range a.store.Entries(ctx, filter) {
		if err != nil {
			return nil, err
		}
		b, ok := buckets[e.SecurityID]
		if !ok {
			b = &bucket{
				stock:   TrendingStock{SecurityID: e.SecurityID, TotalInvested: decimal.Zero},
				traders: make(map[string]bool),
			}
			buckets[e.SecurityID] = b
		}
		trader := owner[e.AccountID]
		if trader == "" {
			trader = "account:" + e.AccountID
		}
		b.traders[trader] = true
		b.stock.PurchaseCount++
		b.stock.TotalInvested = b.stock.TotalInvested.Add(e.Amount)
	}

	px := newPrices(a.market)
	trending := make([]TrendingStock, 0, len(buckets))
	for id, b := range buckets {
		b.stock.TradersBuying = len(b.traders)
		sec, err := px.get(ctx, id)
		if err != nil {
			return nil, err
		}
		if sec != nil {
			b.stock.Symbol, b.stock.Name, b.stock.CurrentPrice = sec.Symbol, sec.Name, sec.Price
		}
		trending = append(trending, b.stock)
	}

	slices.SortFunc(trending, func(x, y TrendingStock) int {
		if x.TradersBuying != y.TradersBuying {
			return y.TradersBuying - x.TradersBuying
		}
		if x.PurchaseCount != y.PurchaseCount {
			return y.PurchaseCount - x.PurchaseCount
		}
		return strings.Compare(x.SecurityID, y.SecurityID)
	})
	return truncate(trending, limit), nil
}

// TraderProfile returns one user's performance, open positions and the
// number of their latest trades (at most ten).
func (a *Aggregator) TraderProfile(ctx context.Context, userID string) (TraderProfile, error) {
	u, err := a.directory.User(ctx, userID)
	if err != nil {
		return TraderProfile{}, err
	}
	perf, held, err := a.performance(ctx, newPrices(a.market), u)
	if err != nil {
		return TraderProfile{}, err
	}

	accounts, err := a.directory.AccountsOf(ctx, userID)
	if err != nil {
		return TraderProfile{}, err
	}
	ids := make([]string, len(accounts))
	for i, acc := range accounts {
		ids[i] = acc.ID
	}

	count := 0
	if len(ids) > 0 {
		for _, err := range a.store.Entries(ctx, models.EntryFilter{
			AccountIDs: ids,
			Kinds:      []models.EntryKind{models.KindBuyStock, models.KindSellStock},
			Descending: true,
			Limit:      10,
		}) {
			if err != nil {
				return TraderProfile{}, err
			}
			count++
		}
	}
	if held == nil {
		held = []ProfilePosition{}
	}
	return TraderProfile{
		TraderPerformance: perf,
		MemberSince:       u.CreatedAt,
		Positions:         held,
		RecentTradesCount: count,
	}, nil
}

func truncate[T any](xs []T, limit int) []T {
	if limit > 0 && len(xs) > limit {
		return xs[:limit]
	}
	return xs
}
