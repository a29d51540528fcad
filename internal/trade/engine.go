package trade

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	interfaces "github.com/sheikh-saqib/brokerage-ledger/internal/interfaces"
	"github.com/sheikh-saqib/brokerage-ledger/internal/ledger"
	"github.com/sheikh-saqib/brokerage-ledger/internal/models"
	"github.com/sheikh-saqib/brokerage-ledger/internal/position"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// QuantityPlaces is the scale of quantities derived from a money amount.
// Derived quantities are truncated, never rounded up, so the money leg
// never exceeds the requested amount.
const QuantityPlaces = 8

// Engine validates, prices and commits buy and sell orders.
type Engine struct {
	ledger    *ledger.Ledger
	directory interfaces.AccountDirectory
	market    interfaces.MarketData
	log       logrus.FieldLogger
}

func NewEngine(l *ledger.Ledger, directory interfaces.AccountDirectory, market interfaces.MarketData, log logrus.FieldLogger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{ledger: l, directory: directory, market: market, log: log}
}

// order carries a request through the trade states.
type order struct {
	id       string
	req      models.TradeRequest
	state    models.TradeState
	security models.Security
	quantity decimal.Decimal
	price    decimal.Decimal
	leg      decimal.Decimal
}

// Execute runs a trade to Committed or Rejected. The ledger entry and the
// position update are written in one transaction.
func (e *Engine) Execute(ctx context.Context, req models.TradeRequest) (models.TradeResult, error) {
	o := &order{id: uuid.NewString(), req: req}
	log := e.log.WithFields(logrus.Fields{
		"trade_id":    o.id,
		"account_id":  req.AccountID,
		"security_id": req.SecurityID,
		"side":        req.Side,
	})

	result, err := e.execute(ctx, o)
	if err != nil {
		o.state = models.TradeRejected
		log.WithError(err).WithField("state", o.state).Warn("trade rejected")
		return models.TradeResult{}, err
	}
	log.WithFields(logrus.Fields{
		"state":    result.State,
		"entry_id": result.Entry.ID,
		"quantity": result.Quantity.String(),
		"price":    result.Price.String(),
	}).Info("trade committed")
	return result, nil
}

func (e *Engine) execute(ctx context.Context, o *order) (models.TradeResult, error) {
	if err := e.validate(ctx, o); err != nil {
		return models.TradeResult{}, err
	}
	if err := e.price(o); err != nil {
		return models.TradeResult{}, err
	}
	return e.commit(ctx, o)
}

func (e *Engine) validate(ctx context.Context, o *order) error {
	req := o.req
	if req.Side != models.SideBuy && req.Side != models.SideSell {
		return models.Errorf(models.ErrInvalidQuantity, "unknown side %q", req.Side)
	}
	if req.Amount.Valid == req.Quantity.Valid {
		return models.Errorf(models.ErrInvalidQuantity, "exactly one of amount and quantity is required")
	}
	if req.Quantity.Valid && !req.Quantity.Decimal.IsPositive() {
		return models.Errorf(models.ErrInvalidQuantity, "quantity must be positive").With("quantity", req.Quantity.Decimal)
	}
	if req.Amount.Valid && !req.Amount.Decimal.IsPositive() {
		return models.Errorf(models.ErrInvalidAmount, "amount must be positive").With("amount", req.Amount.Decimal)
	}
	if req.Price.Valid && !req.Price.Decimal.IsPositive() {
		return models.Errorf(models.ErrInvalidAmount, "price must be positive").With("price", req.Price.Decimal)
	}

	if _, err := e.directory.Account(ctx, req.AccountID); err != nil {
		return err
	}
	security, err := e.market.Security(ctx, req.SecurityID)
	if err != nil {
		return err
	}
	o.security = security
	o.state = models.TradeValidated
	e.log.WithFields(logrus.Fields{"trade_id": o.id, "state": o.state}).Debug("trade state")
	return nil
}

// price fixes the execution price and the quantity. Sells always execute at
// the market price; a client supplied sell price is ignored.
func (e *Engine) price(o *order) error {
	market := o.security.Price
	switch {
	case o.req.Side == models.SideBuy && o.req.Price.Valid:
		o.price = o.req.Price.Decimal
	default:
		if o.req.Side == models.SideSell && o.req.Price.Valid && !o.req.Price.Decimal.Equal(market) {
			e.log.WithFields(logrus.Fields{
				"trade_id":     o.id,
				"client_price": o.req.Price.Decimal.String(),
				"market_price": market.String(),
			}).Debug("ignoring client sell price")
		}
		o.price = market
	}
	if !o.price.IsPositive() {
		return models.Errorf(models.ErrInvalidAmount, "no market price for %s", o.security.ID).
			With("security_id", o.security.ID)
	}

	if o.req.Quantity.Valid {
		o.quantity = o.req.Quantity.Decimal
	} else {
		o.quantity = o.req.Amount.Decimal.Div(o.price).Truncate(QuantityPlaces)
	}
	if !o.quantity.IsPositive() {
		return models.Errorf(models.ErrInvalidQuantity, "amount %s buys no shares at %s", o.req.Amount.Decimal, o.price)
	}
	o.leg = o.quantity.Mul(o.price)
	o.state = models.TradePriced
	e.log.WithFields(logrus.Fields{"trade_id": o.id, "state": o.state}).Debug("trade state")
	return nil
}

func (e *Engine) commit(ctx context.Context, o *order) (models.TradeResult, error) {
	req := o.req
	result := models.TradeResult{TradeID: o.id, Quantity: o.quantity, Price: o.price}

	err := e.ledger.Write(ctx, []string{req.AccountID}, func(ctx context.Context, w *ledger.Writer) error {
		current, err := w.Position(ctx, req.AccountID, req.SecurityID)
		if err != nil {
			return err
		}

		var next models.Position
		switch req.Side {
		case models.SideBuy:
			next, err = position.ApplyBuy(current, o.quantity, o.price)
		case models.SideSell:
			var gain decimal.Decimal
			next, gain, err = position.ApplySell(current, o.quantity, o.price)
			result.RealizedGain = decimal.NewNullDecimal(gain)
		}
		if err != nil {
			return err
		}

		entry, err := w.Append(ctx, models.LedgerEntry{
			AccountID:     req.AccountID,
			Kind:          req.Side.EntryKind(),
			Amount:        o.leg,
			SecurityID:    req.SecurityID,
			Quantity:      decimal.NewNullDecimal(o.quantity),
			Price:         decimal.NewNullDecimal(o.price),
			Description:   description(req, o),
			CorrelationID: o.id,
		})
		if err != nil {
			return err
		}

		next = position.Touch(next, entry.CreatedAt)
		if err := w.PutPosition(ctx, next); err != nil {
			return err
		}
		result.Entry = entry
		result.Position = next
		return nil
	})
	if err != nil {
		return models.TradeResult{}, err
	}
	o.state = models.TradeCommitted
	result.State = o.state
	return result, nil
}

func description(req models.TradeRequest, o *order) string {
	if req.Description != "" {
		return req.Description
	}
	verb := "Bought"
	if req.Side == models.SideSell {
		verb = "Sold"
	}
	symbol := o.security.Symbol
	if symbol == "" {
		symbol = o.security.ID
	}
	return fmt.Sprintf("%s %s %s @ %s", verb, o.quantity, symbol, o.price)
}
