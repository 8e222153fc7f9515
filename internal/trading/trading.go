// Package trading executes simulated buys and sells against the ledger,
// priced at the live quote supplied by the cache coherency engine.
package trading

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/SSDP-StockSim/stock-market-simulator-server-manager/internal/database"
	"github.com/SSDP-StockSim/stock-market-simulator-server-manager/internal/histcache"
	"github.com/SSDP-StockSim/stock-market-simulator-server-manager/internal/kafka"
	"github.com/SSDP-StockSim/stock-market-simulator-server-manager/internal/models"
)

// ErrInvalid indicates a trade or query rejected by its preconditions:
// unknown user or ticker, non-positive amount, insufficient funds or shares.
// No mutation happens on a rejection. Callers distinguish it from store and
// provider failures with errors.Is.
var ErrInvalid = errors.New("trading: invalid")

// PriceService supplies live prices and ticker existence checks; satisfied
// by the histcache engine.
type PriceService interface {
	CurrentPrice(ctx context.Context, ticker string) (decimal.Decimal, error)
	TickerExists(ctx context.Context, ticker string) (bool, error)
}

// Engine applies buy and sell state transitions to the ledger. Each
// operation performs its balance read, holding write, and balance write
// inside a single ledger transaction so concurrent trades on the same user
// cannot interleave.
type Engine struct {
	ledger *database.Ledger
	prices PriceService
	events *kafka.Producer // optional, nil disables publishing
	log    *zap.Logger
}

// New creates a trading engine. events may be nil.
func New(ledger *database.Ledger, prices PriceService, events *kafka.Producer, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{ledger: ledger, prices: prices, events: events, log: log}
}

// checkTicker rejects trades on tickers with no recorded data.
func (e *Engine) checkTicker(ctx context.Context, ticker string) error {
	exists, err := e.prices.TickerExists(ctx, ticker)
	if err != nil {
		return fmt.Errorf("check ticker %s: %w", ticker, err)
	}
	if !exists {
		return fmt.Errorf("%w: unknown ticker %s", ErrInvalid, ticker)
	}
	return nil
}

// executionPrice fetches the live price a trade executes at.
func (e *Engine) executionPrice(ctx context.Context, ticker string) (decimal.Decimal, error) {
	price, err := e.prices.CurrentPrice(ctx, ticker)
	if errors.Is(err, histcache.ErrNoData) {
		return decimal.Zero, fmt.Errorf("%w: no price for %s", ErrInvalid, ticker)
	}
	if err != nil {
		return decimal.Zero, err
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: non-positive price for %s", ErrInvalid, ticker)
	}
	return price, nil
}

// Buy purchases amount shares of ticker for the user identified by id at
// the current price. Rejected with ErrInvalid when the user is unknown, the
// amount is not positive, or the balance does not cover the cost.
func (e *Engine) Buy(ctx context.Context, id, ticker string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: share amount must be positive", ErrInvalid)
	}
	if err := e.checkTicker(ctx, ticker); err != nil {
		return err
	}
	price, err := e.executionPrice(ctx, ticker)
	if err != nil {
		return err
	}

	var username string
	err = e.ledger.WithTx(func(tx *sql.Tx) error {
		username, err = e.ledger.UsernameByID(tx, id)
		if errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("%w: unknown user id", ErrInvalid)
		}
		if err != nil {
			return err
		}

		balance, err := e.ledger.Balance(tx, username)
		if err != nil {
			return err
		}
		cost := amount.Mul(price)
		if !balance.IsPositive() || balance.LessThan(cost) {
			return fmt.Errorf("%w: balance %s does not cover cost %s", ErrInvalid, balance, cost)
		}

		held := decimal.Zero
		holding, err := e.ledger.Holding(tx, username, ticker)
		if err == nil {
			held = holding.Amount
		} else if !errors.Is(err, database.ErrNotFound) {
			return err
		}

		err = e.ledger.UpsertHolding(tx, models.Holding{
			Username: username,
			Ticker:   ticker,
			Amount:   held.Add(amount),
		})
		if err != nil {
			return err
		}
		return e.ledger.SetBalance(tx, username, balance.Sub(cost))
	})
	if err != nil {
		return err
	}

	e.publish(ctx, models.TradeEvent{
		EventType: "TRADE_BUY",
		Username:  username,
		Ticker:    ticker,
		Amount:    amount,
		Price:     price,
		Timestamp: time.Now(),
	})
	return nil
}

// Sell disposes of amount shares of ticker for the user identified by id at
// the current price. Rejected with ErrInvalid when the user is unknown or
// holds fewer than amount shares. A sell down to zero keeps the holding row
// with amount 0.
func (e *Engine) Sell(ctx context.Context, id, ticker string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: share amount must be positive", ErrInvalid)
	}
	if err := e.checkTicker(ctx, ticker); err != nil {
		return err
	}
	price, err := e.executionPrice(ctx, ticker)
	if err != nil {
		return err
	}

	var username string
	err = e.ledger.WithTx(func(tx *sql.Tx) error {
		username, err = e.ledger.UsernameByID(tx, id)
		if errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("%w: unknown user id", ErrInvalid)
		}
		if err != nil {
			return err
		}

		holding, err := e.ledger.Holding(tx, username, ticker)
		if errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("%w: no holding in %s", ErrInvalid, ticker)
		}
		if err != nil {
			return err
		}
		if holding.Amount.LessThan(amount) {
			return fmt.Errorf("%w: holding %s does not cover %s shares", ErrInvalid, holding.Amount, amount)
		}

		holding.Amount = holding.Amount.Sub(amount)
		if err := e.ledger.UpsertHolding(tx, holding); err != nil {
			return err
		}

		balance, err := e.ledger.Balance(tx, username)
		if err != nil {
			return err
		}
		return e.ledger.SetBalance(tx, username, balance.Add(amount.Mul(price)))
	})
	if err != nil {
		return err
	}

	e.publish(ctx, models.TradeEvent{
		EventType: "TRADE_SELL",
		Username:  username,
		Ticker:    ticker,
		Amount:    amount,
		Price:     price,
		Timestamp: time.Now(),
	})
	return nil
}

// Balance returns the balance of the user identified by id.
func (e *Engine) Balance(ctx context.Context, id string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := e.ledger.WithTx(func(tx *sql.Tx) error {
		username, err := e.ledger.UsernameByID(tx, id)
		if errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("%w: unknown user id", ErrInvalid)
		}
		if err != nil {
			return err
		}
		balance, err = e.ledger.Balance(tx, username)
		return err
	})
	if err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

// Holdings returns every holding row of the user identified by id,
// including rows left at zero by a full sell.
func (e *Engine) Holdings(ctx context.Context, id string) ([]models.Holding, error) {
	var holdings []models.Holding
	err := e.ledger.WithTx(func(tx *sql.Tx) error {
		username, err := e.ledger.UsernameByID(tx, id)
		if errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("%w: unknown user id", ErrInvalid)
		}
		if err != nil {
			return err
		}
		holdings, err = e.ledger.Holdings(tx, username)
		return err
	})
	if err != nil {
		return nil, err
	}
	return holdings, nil
}

// publish sends a trade event if a producer is configured. Publish failures
// are logged, never surfaced: the trade has already committed.
func (e *Engine) publish(ctx context.Context, event models.TradeEvent) {
	if e.events == nil {
		return
	}
	if err := e.events.PublishTrade(ctx, event); err != nil {
		e.log.Warn("failed to publish trade event",
			zap.String("ticker", event.Ticker), zap.Error(err))
	}
}
