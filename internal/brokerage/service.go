// Package brokerage exposes the ledger operations used by the HTTP API and
// the command line tool, and publishes integration events once a write has
// committed.
package brokerage

import (
	"context"
	"errors"
	"time"

	"github.com/sheikh-saqib/brokerage-ledger/internal/feed"
	interfaces "github.com/sheikh-saqib/brokerage-ledger/internal/interfaces"
	"github.com/sheikh-saqib/brokerage-ledger/internal/ledger"
	"github.com/sheikh-saqib/brokerage-ledger/internal/models"
	"github.com/sheikh-saqib/brokerage-ledger/internal/models/events"
	"github.com/sheikh-saqib/brokerage-ledger/internal/position"
	"github.com/sheikh-saqib/brokerage-ledger/internal/trade"
	"github.com/sheikh-saqib/brokerage-ledger/internal/transfer"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type Service struct {
	ledger    *ledger.Ledger
	trades    *trade.Engine
	transfers *transfer.Coordinator
	feed      *feed.Aggregator
	directory interfaces.AccountDirectory
	market    interfaces.MarketData
	publisher interfaces.EventPublisher
	now       func() time.Time
	log       logrus.FieldLogger
}

type Option func(*Service)

// WithPublisher sets the sink for post-commit events. Without one, events
// are dropped.
func WithPublisher(p interfaces.EventPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Service) { s.log = log }
}

// WithClock sets the clock used for valuation timestamps and feed windows.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(l *ledger.Ledger, directory interfaces.AccountDirectory, market interfaces.MarketData, opts ...Option) *Service {
	s := &Service{
		ledger:    l,
		directory: directory,
		market:    market,
		now:       time.Now,
		log:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.trades = trade.NewEngine(l, directory, market, s.log)
	s.transfers = transfer.NewCoordinator(l, directory, s.log)
	s.feed = feed.NewAggregator(l.Store(), directory, market, s.log).WithClock(s.now)
	return s
}

func (s *Service) Deposit(ctx context.Context, accountID string, amount decimal.Decimal, description string) (models.LedgerEntry, error) {
	entry, err := s.ledger.Deposit(ctx, accountID, amount, description)
	if err != nil {
		return entry, err
	}
	s.publish(ctx, events.TopicEntryAppended, entryAppended(entry))
	return entry, nil
}

func (s *Service) Withdraw(ctx context.Context, accountID string, amount decimal.Decimal, description string) (models.LedgerEntry, error) {
	entry, err := s.ledger.Withdraw(ctx, accountID, amount, description)
	if err != nil {
		return entry, err
	}
	s.publish(ctx, events.TopicEntryAppended, entryAppended(entry))
	return entry, nil
}

func (s *Service) ExecuteTrade(ctx context.Context, req models.TradeRequest) (models.TradeResult, error) {
	result, err := s.trades.Execute(ctx, req)
	if err != nil {
		return result, err
	}
	s.publish(ctx, events.TopicTradeExecuted, events.TradeExecuted{
		TradeID:      result.TradeID,
		EntryID:      result.Entry.ID,
		AccountID:    result.Entry.AccountID,
		SecurityID:   result.Entry.SecurityID,
		Side:         string(req.Side),
		Quantity:     result.Quantity,
		Price:        result.Price,
		Amount:       result.Entry.Amount,
		RealizedGain: result.RealizedGain,
		OccurredAt:   result.Entry.CreatedAt,
	})
	return result, nil
}

func (s *Service) Transfer(ctx context.Context, req models.TransferRequest) (models.TransferReceipt, error) {
	receipt, err := s.transfers.Transfer(ctx, req)
	if err != nil {
		return receipt, err
	}
	s.publish(ctx, events.TopicTransferCompleted, events.TransferCompleted{
		CorrelationID: receipt.CorrelationID,
		FromAccount:   receipt.Out.AccountID,
		ToAccount:     receipt.In.AccountID,
		Amount:        receipt.Out.Amount,
		OccurredAt:    receipt.Out.CreatedAt,
	})
	return receipt, nil
}

// Balance returns the cached balance counter.
func (s *Service) Balance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	return s.ledger.BalanceOf(ctx, accountID)
}

// Positions values every open position of an account at the current price.
func (s *Service) Positions(ctx context.Context, accountID string) ([]models.Valuation, error) {
	if _, err := s.directory.Account(ctx, accountID); err != nil {
		return nil, err
	}
	positions, err := s.ledger.Store().Positions(ctx, accountID)
	if err != nil {
		return nil, err
	}
	valued := make([]models.Valuation, 0, len(positions))
	for _, p := range positions {
		if !p.Open() {
			continue
		}
		sec, err := s.market.Security(ctx, p.SecurityID)
		if err != nil {
			return nil, err
		}
		v := position.Valuation(p, sec.Price)
		v.Symbol, v.Name = sec.Symbol, sec.Name
		valued = append(valued, v)
	}
	return valued, nil
}

// History collects the entries of an account matching filter.
func (s *Service) History(ctx context.Context, accountID string, filter models.EntryFilter) ([]models.LedgerEntry, error) {
	if _, err := s.directory.Account(ctx, accountID); err != nil {
		return nil, err
	}
	entries := []models.LedgerEntry{}
	for e, err := range s.ledger.HistoryOf(ctx, accountID, filter) {
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *Service) Transfers(ctx context.Context, accountID string) ([]models.Transfer, error) {
	return s.transfers.TransfersOf(ctx, accountID)
}

func (s *Service) Portfolio(ctx context.Context, accountID string) (position.PortfolioSummary, error) {
	valued, err := s.Positions(ctx, accountID)
	if err != nil {
		return position.PortfolioSummary{}, err
	}
	return position.Summarize(accountID, valued, s.now().UTC()), nil
}

func (s *Service) Summary(ctx context.Context, accountID string) (position.AccountSummary, error) {
	account, err := s.directory.Account(ctx, accountID)
	if err != nil {
		return position.AccountSummary{}, err
	}
	cash, err := s.ledger.BalanceOf(ctx, accountID)
	if err != nil {
		return position.AccountSummary{}, err
	}
	portfolio, err := s.Portfolio(ctx, accountID)
	if err != nil {
		return position.AccountSummary{}, err
	}
	return position.SummarizeAccount(account, cash, portfolio), nil
}

func (s *Service) PositionHistory(ctx context.Context, accountID, securityID string) (position.TradeHistory, error) {
	if _, err := s.directory.Account(ctx, accountID); err != nil {
		return position.TradeHistory{}, err
	}
	if _, err := s.market.Security(ctx, securityID); err != nil {
		return position.TradeHistory{}, err
	}
	current, _, err := s.ledger.Store().Position(ctx, accountID, securityID)
	if err != nil {
		return position.TradeHistory{}, err
	}
	entries, err := s.History(ctx, accountID, models.EntryFilter{
		SecurityID: securityID,
		Kinds:      []models.EntryKind{models.KindBuyStock, models.KindSellStock},
	})
	if err != nil {
		return position.TradeHistory{}, err
	}
	return position.History(accountID, securityID, current, entries), nil
}

// PositionPerformance values an open position and dates it from the first
// buy of the security on the account.
func (s *Service) PositionPerformance(ctx context.Context, accountID, securityID string) (position.Performance, error) {
	if _, err := s.directory.Account(ctx, accountID); err != nil {
		return position.Performance{}, err
	}
	sec, err := s.market.Security(ctx, securityID)
	if err != nil {
		return position.Performance{}, err
	}
	current, found, err := s.ledger.Store().Position(ctx, accountID, securityID)
	if err != nil {
		return position.Performance{}, err
	}
	if !found || !current.Open() {
		return position.Performance{}, models.Errorf(models.ErrUnknownSecurity, "no open position in %s", securityID).
			With("account_id", accountID).
			With("security_id", securityID)
	}

	now := s.now().UTC()
	firstBuy := now
	for e, err := range s.ledger.HistoryOf(ctx, accountID, models.EntryFilter{
		SecurityID: securityID,
		Kinds:      []models.EntryKind{models.KindBuyStock},
		Limit:      1,
	}) {
		if err != nil {
			return position.Performance{}, err
		}
		firstBuy = e.CreatedAt
	}

	v := position.Valuation(current, sec.Price)
	v.Symbol, v.Name = sec.Symbol, sec.Name
	return position.PerformanceOf(v, firstBuy, now), nil
}

func (s *Service) StockHolders(ctx context.Context, securityID string) (feed.SecurityHolders, error) {
	return s.feed.StockHolders(ctx, securityID)
}

func (s *Service) MostTradedStocks(ctx context.Context, limit int) ([]feed.MostTradedStock, error) {
	return s.feed.MostTradedStocks(ctx, limit)
}

func (s *Service) TopTraders(ctx context.Context, limit int) ([]feed.TraderPerformance, error) {
	return s.feed.TopTraders(ctx, limit)
}

func (s *Service) RecentTrades(ctx context.Context, limit, days int) ([]feed.RecentTrade, error) {
	return s.feed.RecentTrades(ctx, limit, days)
}

func (s *Service) TrendingStocks(ctx context.Context, days, limit int) ([]feed.TrendingStock, error) {
	return s.feed.TrendingStocks(ctx, days, limit)
}

func (s *Service) TraderProfile(ctx context.Context, userID string) (feed.TraderProfile, error) {
	return s.feed.TraderProfile(ctx, userID)
}

// Reconcile verifies one account, or every account with activity when
// accountID is empty.
func (s *Service) Reconcile(ctx context.Context, accountID string) ([]ledger.Report, error) {
	if accountID == "" {
		return s.ledger.ReconcileAll(ctx)
	}
	if _, err := s.directory.Account(ctx, accountID); err != nil {
		return nil, err
	}
	report, err := s.ledger.Verify(ctx, accountID)
	if err != nil && !errors.Is(err, models.ErrReconciliationMismatch) {
		return nil, err
	}
	return []ledger.Report{report}, nil
}

// publish runs after commit. A failure is logged and the write stands.
func (s *Service) publish(ctx context.Context, topic string, event interfaces.Keyed) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(context.WithoutCancel(ctx), topic, event); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"topic": topic, "key": event.Key()}).
			Warn("failed to publish event")
	}
}

func entryAppended(e models.LedgerEntry) events.EntryAppended {
	return events.EntryAppended{
		EntryID:     e.ID,
		AccountID:   e.AccountID,
		Kind:        string(e.Kind),
		Amount:      e.Amount,
		Description: e.Description,
		OccurredAt:  e.CreatedAt,
	}
}
