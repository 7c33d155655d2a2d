package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradebot/internal/ledger/model"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newTestStore(t *testing.T) *SqliteStore {
	t.Helper()
	store, err := NewSqliteStore(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestAccount(t *testing.T, store *SqliteStore, cash string) int64 {
	t.Helper()
	id, err := store.CreateAccount(context.Background(), dec(cash))
	require.NoError(t, err)
	return id
}

func TestCreateAndGetAccount(t *testing.T) {
	store := newTestStore(t)
	id := newTestAccount(t, store, "10000")

	acc, err := store.GetAccount(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, acc.ID)
	assert.True(t, acc.CashBalance.Equal(dec("10000")), "got %s", acc.CashBalance)
	assert.False(t, acc.CreatedAt.IsZero())
}

func TestCashRoundTrip(t *testing.T) {
	store := newTestStore(t)
	id := newTestAccount(t, store, "10000")
	ctx := context.Background()

	tx, err := store.BeginAccount(ctx, id)
	require.NoError(t, err)
	cash, err := tx.CashForUpdate()
	require.NoError(t, err)
	assert.True(t, cash.Equal(dec("10000")))
	require.NoError(t, tx.SetCash(dec("9000")))
	require.NoError(t, tx.Commit())

	acc, err := store.GetAccount(ctx, id)
	require.NoError(t, err)
	assert.True(t, acc.CashBalance.Equal(dec("9000")), "got %s", acc.CashBalance)
}

func TestRollbackLeavesNoTrace(t *testing.T) {
	store := newTestStore(t)
	id := newTestAccount(t, store, "10000")
	ctx := context.Background()

	tx, err := store.BeginAccount(ctx, id)
	require.NoError(t, err)
	require.NoError(t, tx.SetCash(dec("1")))
	require.NoError(t, tx.InsertTrade(model.ModeTrading, "BTCUSDT", model.SideBuy, dec("1"), dec("100"), nil, nil, time.Time{}))
	require.NoError(t, tx.Rollback())

	acc, err := store.GetAccount(ctx, id)
	require.NoError(t, err)
	assert.True(t, acc.CashBalance.Equal(dec("10000")))

	trades, err := store.ListTrades(ctx, id, 10)
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestUpsertBuyPositionAverages(t *testing.T) {
	store := newTestStore(t)
	id := newTestAccount(t, store, "10000")
	ctx := context.Background()

	tx, err := store.BeginAccount(ctx, id)
	require.NoError(t, err)
	require.NoError(t, tx.UpsertBuyPosition("BTCUSDT", dec("10"), dec("100"), time.Time{}))
	require.NoError(t, tx.Commit())

	tx, err = store.BeginAccount(ctx, id)
	require.NoError(t, err)
	require.NoError(t, tx.UpsertBuyPosition("BTCUSDT", dec("4.5"), dec("200"), time.Time{}))
	require.NoError(t, tx.Commit())

	positions, err := store.ListPositions(ctx, id)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.True(t, positions[0].Quantity.Equal(dec("14.5")), "got %s", positions[0].Quantity)
	// (10*100 + 4.5*200) / 14.5 = 131.03448276 at scale 8, half up.
	assert.True(t, positions[0].AvgEntryPrice.Equal(dec("131.03448276")), "got %s", positions[0].AvgEntryPrice)
}

func TestReducePositionGuard(t *testing.T) {
	store := newTestStore(t)
	id := newTestAccount(t, store, "10000")
	ctx := context.Background()

	tx, err := store.BeginAccount(ctx, id)
	require.NoError(t, err)
	require.NoError(t, tx.UpsertBuyPosition("BTCUSDT", dec("5"), dec("100"), time.Time{}))

	affected, err := tx.ReducePosition("BTCUSDT", dec("6"), time.Time{})
	require.NoError(t, err)
	assert.Zero(t, affected, "oversell must not touch the row")

	affected, err = tx.ReducePosition("BTCUSDT", dec("2"), time.Time{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, affected)

	affected, err = tx.ReducePosition("ETHUSDT", dec("1"), time.Time{})
	require.NoError(t, err)
	assert.Zero(t, affected, "absent position reduces zero rows")
	require.NoError(t, tx.Commit())

	positions, err := store.ListPositions(ctx, id)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.True(t, positions[0].Quantity.Equal(dec("3")), "got %s", positions[0].Quantity)
}

func TestDeletePositionIfZero(t *testing.T) {
	store := newTestStore(t)
	id := newTestAccount(t, store, "10000")
	ctx := context.Background()

	tx, err := store.BeginAccount(ctx, id)
	require.NoError(t, err)
	require.NoError(t, tx.UpsertBuyPosition("BTCUSDT", dec("5"), dec("100"), time.Time{}))

	// Positive quantity survives.
	require.NoError(t, tx.DeletePositionIfZero("BTCUSDT"))
	_, found, err := tx.PositionForUpdate("BTCUSDT")
	require.NoError(t, err)
	assert.True(t, found)

	affected, err := tx.ReducePosition("BTCUSDT", dec("5"), time.Time{})
	require.NoError(t, err)
	require.EqualValues(t, 1, affected)
	require.NoError(t, tx.DeletePositionIfZero("BTCUSDT"))
	_, found, err = tx.PositionForUpdate("BTCUSDT")
	require.NoError(t, err)
	assert.False(t, found)
	require.NoError(t, tx.Commit())
}

func TestLastTradeTimeByModeAndSymbol(t *testing.T) {
	store := newTestStore(t)
	id := newTestAccount(t, store, "10000")
	ctx := context.Background()

	_, found, err := store.LastTradeTime(ctx, id, model.ModeTrading, "BTCUSDT")
	require.NoError(t, err)
	assert.False(t, found)

	earlier := time.Now().Add(-time.Hour).Truncate(time.Second)
	later := time.Now().Truncate(time.Second)

	tx, err := store.BeginAccount(ctx, id)
	require.NoError(t, err)
	require.NoError(t, tx.InsertTrade(model.ModeTrading, "BTCUSDT", model.SideBuy, dec("1"), dec("100"), nil, nil, earlier))
	require.NoError(t, tx.InsertTrade(model.ModeTrading, "BTCUSDT", model.SideSell, dec("1"), dec("110"), nil, nil, later))
	require.NoError(t, tx.InsertTrade(model.ModeTraining, "BTCUSDT", model.SideBuy, dec("1"), dec("90"), nil, nil, later.Add(time.Minute)))
	require.NoError(t, tx.Commit())

	got, found, err := store.LastTradeTime(ctx, id, model.ModeTrading, "BTCUSDT")
	require.NoError(t, err)
	require.True(t, found)
	assert.WithinDuration(t, later, got, time.Second)

	_, found, err = store.LastTradeTime(ctx, id, model.ModeTrading, "ETHUSDT")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestHasOpenPosition(t *testing.T) {
	store := newTestStore(t)
	id := newTestAccount(t, store, "10000")
	ctx := context.Background()

	has, err := store.HasOpenPosition(ctx, id, "BTCUSDT")
	require.NoError(t, err)
	assert.False(t, has)

	tx, err := store.BeginAccount(ctx, id)
	require.NoError(t, err)
	require.NoError(t, tx.UpsertBuyPosition("BTCUSDT", dec("1"), dec("100"), time.Time{}))
	require.NoError(t, tx.Commit())

	has, err = store.HasOpenPosition(ctx, id, "BTCUSDT")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestResetAccount(t *testing.T) {
	store := newTestStore(t)
	id := newTestAccount(t, store, "10000")
	ctx := context.Background()

	tx, err := store.BeginAccount(ctx, id)
	require.NoError(t, err)
	require.NoError(t, tx.SetCash(dec("5000")))
	require.NoError(t, tx.UpsertBuyPosition("BTCUSDT", dec("1"), dec("100"), time.Time{}))
	require.NoError(t, tx.InsertTrade(model.ModeTrading, "BTCUSDT", model.SideBuy, dec("1"), dec("100"), nil, nil, time.Time{}))
	require.NoError(t, tx.Commit())

	require.NoError(t, store.ResetAccount(ctx, id, dec("10000")))

	acc, err := store.GetAccount(ctx, id)
	require.NoError(t, err)
	assert.True(t, acc.CashBalance.Equal(dec("10000")))

	positions, err := store.ListPositions(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, positions)

	trades, err := store.ListTrades(ctx, id, 10)
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestAccountsAreIndependent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	first := newTestAccount(t, store, "10000")
	second := newTestAccount(t, store, "500")

	// Holding one account's lock must not block the other account.
	tx1, err := store.BeginAccount(ctx, first)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		tx2, err := store.BeginAccount(ctx, second)
		if err != nil {
			done <- err
			return
		}
		done <- tx2.Commit()
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("second account blocked behind first account's lock")
	}
	require.NoError(t, tx1.Commit())
}
