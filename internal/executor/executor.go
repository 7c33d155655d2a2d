package executor

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"tradebot/internal/ledger"
	"tradebot/internal/ledger/model"
	"tradebot/internal/logger"
)

// quantityScale is the fixed-point scale for derived trade quantities.
// Quantities are truncated, never rounded up past what is affordable or held.
const quantityScale = 8

// moneyScale is the fixed-point scale for proceeds and PnL, rounded half up.
const moneyScale = 8

// sizingFraction is the fixed 10% position sizing on both sides. It
// guarantees spend <= cash and sellQty <= positionQty, so the cash and
// quantity invariants cannot be violated by this logic alone.
var sizingFraction = decimal.NewFromFloat(0.10)

// SkipReason says why a buy or sell was skipped without executing.
type SkipReason string

const (
	SkipNonPositivePrice SkipReason = "non_positive_price"
	SkipNonPositiveSpend SkipReason = "non_positive_spend"
	SkipZeroQuantity     SkipReason = "zero_quantity"
	SkipNoPosition       SkipReason = "no_position"
	SkipPositionChanged  SkipReason = "position_changed"
)

// Outcome is the result of one buy or sell attempt. A skipped attempt is not
// an error: the ledger is untouched and Reason says why.
type Outcome struct {
	Executed bool       `json:"executed"`
	Reason   SkipReason `json:"reason,omitempty"`
}

func executed() Outcome { return Outcome{Executed: true} }

func skipped(r SkipReason) Outcome { return Outcome{Reason: r} }

// Executor runs single buy/sell operations against the ledger. Each call is
// self-contained and atomic: one account-locked transaction spans the cash
// read, position read/write, cash write and trade insert.
type Executor struct {
	store ledger.Store
}

func New(store ledger.Store) *Executor {
	return &Executor{store: store}
}

// Buy spends 10% of the account's cash on symbol at price.
func (e *Executor) Buy(ctx context.Context, accountID int64, symbol string, price decimal.Decimal, mode model.Mode) (Outcome, error) {
	return e.BuyAt(ctx, accountID, symbol, price, mode, time.Time{})
}

// BuyAt is Buy with an explicit trade timestamp; a zero at uses wall-clock
// time. Backtests pass the candle time so persisted records reflect simulated
// time.
func (e *Executor) BuyAt(ctx context.Context, accountID int64, symbol string, price decimal.Decimal, mode model.Mode, at time.Time) (Outcome, error) {
	if !price.IsPositive() {
		return skipped(SkipNonPositivePrice), nil
	}

	tx, err := e.store.BeginAccount(ctx, accountID)
	if err != nil {
		return Outcome{}, err
	}
	defer tx.Rollback()

	cash, err := tx.CashForUpdate()
	if err != nil {
		return Outcome{}, err
	}

	spend := cash.Mul(sizingFraction)
	if !spend.IsPositive() {
		return skipped(SkipNonPositiveSpend), nil
	}

	// QuoRem gives the quotient truncated at the quantity scale: the exact
	// round-down division the sizing contract requires.
	qty, _ := spend.QuoRem(price, quantityScale)
	if !qty.IsPositive() {
		return skipped(SkipZeroQuantity), nil
	}

	if err := tx.InsertTrade(mode, symbol, model.SideBuy, qty, price, nil, nil, at); err != nil {
		return Outcome{}, err
	}
	if err := tx.SetCash(cash.Sub(spend)); err != nil {
		return Outcome{}, err
	}
	if err := tx.UpsertBuyPosition(symbol, qty, price, at); err != nil {
		return Outcome{}, err
	}
	if err := tx.Commit(); err != nil {
		return Outcome{}, err
	}

	logger.Debugf("buy executed account=%d symbol=%s qty=%s price=%s mode=%s",
		accountID, symbol, qty, price, mode)
	return executed(), nil
}

// Sell liquidates 10% of the open position at price.
func (e *Executor) Sell(ctx context.Context, accountID int64, symbol string, price decimal.Decimal, mode model.Mode) (Outcome, error) {
	return e.SellAt(ctx, accountID, symbol, price, mode, time.Time{})
}

// SellAt is Sell with an explicit trade timestamp, see BuyAt.
func (e *Executor) SellAt(ctx context.Context, accountID int64, symbol string, price decimal.Decimal, mode model.Mode, at time.Time) (Outcome, error) {
	if !price.IsPositive() {
		return skipped(SkipNonPositivePrice), nil
	}

	tx, err := e.store.BeginAccount(ctx, accountID)
	if err != nil {
		return Outcome{}, err
	}
	defer tx.Rollback()

	pos, found, err := tx.PositionForUpdate(symbol)
	if err != nil || !found || !pos.Quantity.IsPositive() {
		// A failed lookup is treated the same as no position held.
		return skipped(SkipNoPosition), nil
	}
	avgEntry := pos.AvgEntryPrice

	sellQty := pos.Quantity.Mul(sizingFraction).Truncate(quantityScale)
	if !sellQty.IsPositive() {
		return skipped(SkipZeroQuantity), nil
	}

	affected, err := tx.ReducePosition(symbol, sellQty, at)
	if err != nil {
		return Outcome{}, err
	}
	if affected == 0 {
		// Quantity fell below sellQty between read and write.
		return skipped(SkipPositionChanged), nil
	}

	cash, err := tx.CashForUpdate()
	if err != nil {
		return Outcome{}, err
	}
	proceeds := sellQty.Mul(price).Round(moneyScale)
	if err := tx.SetCash(cash.Add(proceeds)); err != nil {
		return Outcome{}, err
	}

	pnl := price.Sub(avgEntry).Mul(sellQty).Round(moneyScale)
	if err := tx.InsertTrade(mode, symbol, model.SideSell, sellQty, price, nil, &pnl, at); err != nil {
		return Outcome{}, err
	}
	if err := tx.DeletePositionIfZero(symbol); err != nil {
		return Outcome{}, err
	}
	if err := tx.Commit(); err != nil {
		return Outcome{}, err
	}

	logger.Debugf("sell executed account=%d symbol=%s qty=%s price=%s pnl=%s mode=%s",
		accountID, symbol, sellQty, price, pnl, mode)
	return executed(), nil
}
