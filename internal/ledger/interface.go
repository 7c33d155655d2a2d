package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"tradebot/internal/ledger/model"
)

// Tx is one transactional unit of work over a single account's rows. Every
// accessor operates under the exclusive account lock acquired by
// Store.BeginAccount; the lock is released by Commit or Rollback.
type Tx interface {
	// Commit commits the transaction and releases the account lock.
	Commit() error
	// Rollback rolls back the transaction and releases the account lock.
	Rollback() error

	// CashForUpdate reads the cash balance under the exclusive account lock.
	CashForUpdate() (decimal.Decimal, error)
	// SetCash overwrites the cash balance.
	SetCash(cash decimal.Decimal) error

	// PositionForUpdate reads the open position for symbol under the exclusive
	// account lock. found is false when no row exists.
	PositionForUpdate(symbol string) (pos model.Position, found bool, err error)
	// UpsertBuyPosition inserts the position on first buy, otherwise folds the
	// new lot into the quantity-weighted average entry price.
	UpsertBuyPosition(symbol string, addQty, price decimal.Decimal, at time.Time) error
	// ReducePosition decrements the position quantity if and only if at least
	// subQty is held; returns the number of rows affected (0 when the guard
	// fails, 1 otherwise).
	ReducePosition(symbol string, subQty decimal.Decimal, at time.Time) (int64, error)
	// DeletePositionIfZero removes the position row when its quantity has
	// dropped to or below zero.
	DeletePositionIfZero(symbol string) error

	// InsertTrade appends an immutable trade record. fee and pnl may be nil.
	InsertTrade(mode model.Mode, symbol string, side model.Side, qty, price decimal.Decimal, fee, pnl *decimal.Decimal, at time.Time) error
}

// Store is the entry point for ledger access. Operations on the same account
// are linearized by a per-account exclusive lock; different accounts proceed
// independently.
type Store interface {
	// BeginAccount locks accountID and opens a transaction scoped to it.
	BeginAccount(ctx context.Context, accountID int64) (Tx, error)

	// CreateAccount inserts a new account with the given starting cash.
	CreateAccount(ctx context.Context, startingCash decimal.Decimal) (int64, error)
	// ResetAccount deletes the account's trades and positions and restores the
	// cash balance, all in one transaction.
	ResetAccount(ctx context.Context, accountID int64, startingCash decimal.Decimal) error

	// GetAccount returns the account row.
	GetAccount(ctx context.Context, accountID int64) (model.Account, error)
	// ListPositions returns the account's open positions ordered by symbol.
	ListPositions(ctx context.Context, accountID int64) ([]model.Position, error)
	// ListTrades returns the account's most recent trades, newest first.
	ListTrades(ctx context.Context, accountID int64, limit int) ([]model.Trade, error)
	// HasOpenPosition reports whether a position row exists for the pair.
	HasOpenPosition(ctx context.Context, accountID int64, symbol string) (bool, error)
	// LastTradeTime returns the timestamp of the most recent trade for the
	// (account, mode, symbol) triple. found is false when no trade exists.
	LastTradeTime(ctx context.Context, accountID int64, mode model.Mode, symbol string) (t time.Time, found bool, err error)

	// Close closes the underlying store.
	Close() error
}
