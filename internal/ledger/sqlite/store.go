package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"tradebot/internal/ledger"
	"tradebot/internal/ledger/model"
)

// SqliteStore implements ledger.Store on gorm + SQLite. Same-account
// operations are serialized by a per-account mutex held for the duration of
// each transaction; SQLite itself ignores SELECT ... FOR UPDATE, so the mutex
// carries the row-lock guarantee that a server-grade database would provide.
type SqliteStore struct {
	db *gorm.DB

	lockMu sync.Mutex
	locks  map[int64]*sync.Mutex
}

// NewSqliteStore opens (or creates) the database at path and migrates the
// ledger schema.
func NewSqliteStore(path string) (*SqliteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	return newStore(db)
}

// NewSqliteStoreFromDB wraps an existing gorm handle, mainly for tests.
func NewSqliteStoreFromDB(db *gorm.DB) (*SqliteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm db cannot be nil")
	}
	return newStore(db)
}

func newStore(db *gorm.DB) (*SqliteStore, error) {
	if err := db.AutoMigrate(&model.Account{}, &model.Position{}, &model.Trade{}); err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(2)
		sqlDB.SetMaxIdleConns(2)
	}
	return &SqliteStore{
		db:    db,
		locks: map[int64]*sync.Mutex{},
	}, nil
}

func (s *SqliteStore) accountLock(accountID int64) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	mu, ok := s.locks[accountID]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[accountID] = mu
	}
	return mu
}

// BeginAccount locks accountID and opens a transaction. The lock is released
// when the returned Tx commits or rolls back.
func (s *SqliteStore) BeginAccount(ctx context.Context, accountID int64) (ledger.Tx, error) {
	mu := s.accountLock(accountID)
	mu.Lock()
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		mu.Unlock()
		return nil, tx.Error
	}
	return &accountTx{tx: tx, accountID: accountID, unlock: mu.Unlock}, nil
}

func (s *SqliteStore) CreateAccount(ctx context.Context, startingCash decimal.Decimal) (int64, error) {
	acc := model.Account{CashBalance: startingCash}
	if err := s.db.WithContext(ctx).Create(&acc).Error; err != nil {
		return 0, err
	}
	return acc.ID, nil
}

func (s *SqliteStore) ResetAccount(ctx context.Context, accountID int64, startingCash decimal.Decimal) error {
	mu := s.accountLock(accountID)
	mu.Lock()
	defer mu.Unlock()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var acc model.Account
		if err := tx.First(&acc, accountID).Error; err != nil {
			return err
		}
		if err := tx.Where("account_id = ?", accountID).Delete(&model.Trade{}).Error; err != nil {
			return err
		}
		if err := tx.Where("account_id = ?", accountID).Delete(&model.Position{}).Error; err != nil {
			return err
		}
		return tx.Model(&model.Account{}).Where("id = ?", accountID).
			Update("cash_balance", startingCash).Error
	})
}

func (s *SqliteStore) GetAccount(ctx context.Context, accountID int64) (model.Account, error) {
	var acc model.Account
	err := s.db.WithContext(ctx).First(&acc, accountID).Error
	return acc, err
}

func (s *SqliteStore) ListPositions(ctx context.Context, accountID int64) ([]model.Position, error) {
	var positions []model.Position
	err := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("symbol").
		Find(&positions).Error
	return positions, err
}

func (s *SqliteStore) ListTrades(ctx context.Context, accountID int64, limit int) ([]model.Trade, error) {
	if limit <= 0 {
		limit = 100
	}
	var trades []model.Trade
	err := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("timestamp DESC, id DESC").
		Limit(limit).
		Find(&trades).Error
	return trades, err
}

func (s *SqliteStore) HasOpenPosition(ctx context.Context, accountID int64, symbol string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Position{}).
		Where("account_id = ? AND symbol = ?", accountID, symbol).
		Count(&count).Error
	return count > 0, err
}

func (s *SqliteStore) LastTradeTime(ctx context.Context, accountID int64, mode model.Mode, symbol string) (time.Time, bool, error) {
	var trade model.Trade
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND mode = ? AND symbol = ?", accountID, mode, symbol).
		Order("timestamp DESC, id DESC").
		First(&trade).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return trade.Timestamp, true, nil
}

func (s *SqliteStore) Close() error {
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
