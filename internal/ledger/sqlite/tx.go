package sqlite

import (
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"tradebot/internal/ledger"
	"tradebot/internal/ledger/model"
)

// moneyScale is the persisted fixed-point scale for averages and PnL.
const moneyScale = 8

type accountTx struct {
	tx        *gorm.DB
	accountID int64
	unlock    func()
	once      sync.Once
}

var _ ledger.Tx = (*accountTx)(nil)

func (t *accountTx) release() {
	t.once.Do(t.unlock)
}

func (t *accountTx) Commit() error {
	defer t.release()
	return t.tx.Commit().Error
}

func (t *accountTx) Rollback() error {
	defer t.release()
	return t.tx.Rollback().Error
}

// CashForUpdate reads under the account lock held by this Tx; SQLite has no
// SELECT ... FOR UPDATE, the keyed mutex is the exclusive lock here.
func (t *accountTx) CashForUpdate() (decimal.Decimal, error) {
	var acc model.Account
	if err := t.tx.First(&acc, t.accountID).Error; err != nil {
		return decimal.Zero, err
	}
	return acc.CashBalance, nil
}

func (t *accountTx) SetCash(cash decimal.Decimal) error {
	return t.tx.Model(&model.Account{}).
		Where("id = ?", t.accountID).
		Update("cash_balance", cash).Error
}

func (t *accountTx) PositionForUpdate(symbol string) (model.Position, bool, error) {
	var pos model.Position
	err := t.tx.
		Where("account_id = ? AND symbol = ?", t.accountID, symbol).
		First(&pos).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Position{}, false, nil
	}
	if err != nil {
		return model.Position{}, false, err
	}
	return pos, true, nil
}

func (t *accountTx) UpsertBuyPosition(symbol string, addQty, price decimal.Decimal, at time.Time) error {
	if at.IsZero() {
		at = time.Now()
	}
	pos, found, err := t.PositionForUpdate(symbol)
	if err != nil {
		return err
	}
	if !found {
		return t.tx.Create(&model.Position{
			AccountID:     t.accountID,
			Symbol:        symbol,
			Quantity:      addQty,
			AvgEntryPrice: price,
			UpdatedAt:     at,
		}).Error
	}

	newQty := pos.Quantity.Add(addQty)
	numerator := pos.Quantity.Mul(pos.AvgEntryPrice).Add(addQty.Mul(price))
	newAvg := numerator.DivRound(newQty, moneyScale)

	return t.tx.Model(&model.Position{}).
		Where("account_id = ? AND symbol = ?", t.accountID, symbol).
		Updates(map[string]any{
			"quantity":        newQty,
			"avg_entry_price": newAvg,
			"updated_at":      at,
		}).Error
}

// ReducePosition re-reads the row under the lock and applies the decrement as
// a compare-and-swap on the previous quantity. The arithmetic stays in Go so
// the stored decimals never round-trip through SQL expressions; the CAS keeps
// the quantity >= subQty guard effective even without real row locks.
func (t *accountTx) ReducePosition(symbol string, subQty decimal.Decimal, at time.Time) (int64, error) {
	if at.IsZero() {
		at = time.Now()
	}
	pos, found, err := t.PositionForUpdate(symbol)
	if err != nil {
		return 0, err
	}
	if !found || pos.Quantity.Cmp(subQty) < 0 {
		return 0, nil
	}

	res := t.tx.Model(&model.Position{}).
		Where("account_id = ? AND symbol = ? AND quantity = ?", t.accountID, symbol, pos.Quantity).
		Updates(map[string]any{
			"quantity":   pos.Quantity.Sub(subQty),
			"updated_at": at,
		})
	return res.RowsAffected, res.Error
}

func (t *accountTx) DeletePositionIfZero(symbol string) error {
	return t.tx.
		Where("account_id = ? AND symbol = ? AND quantity <= 0", t.accountID, symbol).
		Delete(&model.Position{}).Error
}

func (t *accountTx) InsertTrade(mode model.Mode, symbol string, side model.Side, qty, price decimal.Decimal, fee, pnl *decimal.Decimal, at time.Time) error {
	if at.IsZero() {
		at = time.Now()
	}
	return t.tx.Create(&model.Trade{
		AccountID: t.accountID,
		Mode:      mode,
		Symbol:    symbol,
		Side:      side,
		Quantity:  qty,
		Price:     price,
		Fee:       fee,
		PnL:       pnl,
		Timestamp: at,
	}).Error
}
