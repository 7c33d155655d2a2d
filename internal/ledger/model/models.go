package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Mode tags a trade with the context it was executed in.
type Mode string

const (
	ModeTraining Mode = "TRAINING"
	ModeTrading  Mode = "TRADING"
)

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Account holds the cash balance for one bot account. CashBalance never goes
// negative: a buy always spends a fraction of the current balance.
type Account struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	CashBalance decimal.Decimal `gorm:"type:decimal(32,8);not null" json:"cash_balance"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (Account) TableName() string { return "account" }

// Position is the open holding for one (account, symbol) pair. A row with
// quantity <= 0 must not persist; sells that drain it delete the row.
type Position struct {
	AccountID     int64           `gorm:"primaryKey;autoIncrement:false" json:"account_id"`
	Symbol        string          `gorm:"primaryKey;size:32" json:"symbol"`
	Quantity      decimal.Decimal `gorm:"type:decimal(32,8);not null" json:"quantity"`
	AvgEntryPrice decimal.Decimal `gorm:"type:decimal(32,8);not null" json:"avg_entry_price"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (Position) TableName() string { return "portfolio" }

// Trade is an append-only execution record. Fee is reserved and currently
// always nil; PnL is populated on sells only.
type Trade struct {
	ID        int64            `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID int64            `gorm:"index;not null" json:"account_id"`
	Mode      Mode             `gorm:"size:16;not null" json:"mode"`
	Symbol    string           `gorm:"size:32;not null" json:"symbol"`
	Side      Side             `gorm:"size:8;not null" json:"side"`
	Quantity  decimal.Decimal  `gorm:"type:decimal(32,8);not null" json:"quantity"`
	Price     decimal.Decimal  `gorm:"type:decimal(32,8);not null" json:"price"`
	Fee       *decimal.Decimal `gorm:"type:decimal(32,8)" json:"fee"`
	PnL       *decimal.Decimal `gorm:"type:decimal(32,8)" json:"pnl"`
	Timestamp time.Time        `gorm:"index" json:"timestamp"`
}

func (Trade) TableName() string { return "trade" }
