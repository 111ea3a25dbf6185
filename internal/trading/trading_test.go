package trading

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/lifestock/lifestock-api/internal/database/migrations"
	"github.com/lifestock/lifestock-api/internal/portfolio"
	"github.com/lifestock/lifestock-api/internal/types"
)

const testStartingCash = 10_000_000.0

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, migrations.Apply(db))
	return db
}

func newTestService(t *testing.T) (*Service, *portfolio.Service, string) {
	t.Helper()
	db := newTestDB(t)
	accounts := portfolio.NewService(db, testStartingCash, time.Minute, time.Minute)
	service := NewService(db, accounts, 20, 0.0003)

	stock, err := accounts.CreateStock("user-1", "Health", 1, 80)
	require.NoError(t, err)
	return service, accounts, stock.StockID
}

func TestBuyOpensHolding(t *testing.T) {
	service, _, stockID := newTestService(t)

	trade, err := service.Buy("user-1", stockID, 10, 100, uuid.New().String())
	require.NoError(t, err)

	// 10 x 100 = 1000 notional, brokerage floored at 20.
	assert.Equal(t, 20.0, trade.BrokerageFee)
	assert.InDelta(t, testStartingCash-1020, trade.CashBalance, 1e-9)
	require.NotNil(t, trade.Holding)
	assert.Equal(t, 10.0, trade.Holding.Quantity)
	assert.Equal(t, 100.0, trade.Holding.AvgBuyPrice)
	assert.Equal(t, types.TransactionBuy, trade.Type)
}

func TestBuyRecomputesWeightedAverage(t *testing.T) {
	service, _, stockID := newTestService(t)

	_, err := service.Buy("user-1", stockID, 10, 100, uuid.New().String())
	require.NoError(t, err)

	trade, err := service.Buy("user-1", stockID, 10, 200, uuid.New().String())
	require.NoError(t, err)

	require.NotNil(t, trade.Holding)
	assert.Equal(t, 20.0, trade.Holding.Quantity)
	assert.InDelta(t, 150.0, trade.Holding.AvgBuyPrice, 1e-9)
}

func TestBuyInsufficientFunds(t *testing.T) {
	service, _, stockID := newTestService(t)

	_, err := service.Buy("user-1", stockID, 1_000_000, 100, uuid.New().String())
	assert.ErrorIs(t, err, types.ErrInsufficientFunds)
}

func TestBuyUnknownStock(t *testing.T) {
	service, _, _ := newTestService(t)

	_, err := service.Buy("user-1", "STK_missing", 1, 100, uuid.New().String())
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestBuyRejectsBadOrder(t *testing.T) {
	service, _, stockID := newTestService(t)

	_, err := service.Buy("user-1", stockID, 0, 100, uuid.New().String())
	assert.True(t, types.IsValidation(err))

	_, err = service.Buy("user-1", stockID, 10, -1, uuid.New().String())
	assert.True(t, types.IsValidation(err))
}

func TestSellKeepsAverageAndNetsBrokerage(t *testing.T) {
	service, _, stockID := newTestService(t)

	_, err := service.Buy("user-1", stockID, 10, 100, uuid.New().String())
	require.NoError(t, err)

	trade, err := service.Sell("user-1", stockID, 4, 150, uuid.New().String())
	require.NoError(t, err)

	// Proceeds 600 less the 20 floor nets 580.
	assert.Equal(t, 20.0, trade.BrokerageFee)
	assert.InDelta(t, testStartingCash-1020+580, trade.CashBalance, 1e-9)
	require.NotNil(t, trade.Holding)
	assert.Equal(t, 6.0, trade.Holding.Quantity)
	assert.Equal(t, 100.0, trade.Holding.AvgBuyPrice, "selling must not move the average")
}

func TestSellFullPositionRemovesHolding(t *testing.T) {
	service, _, stockID := newTestService(t)

	_, err := service.Buy("user-1", stockID, 10, 100, uuid.New().String())
	require.NoError(t, err)

	trade, err := service.Sell("user-1", stockID, 10, 100, uuid.New().String())
	require.NoError(t, err)
	assert.Nil(t, trade.Holding)

	holding, err := service.db.GetHolding("user-1", stockID)
	require.NoError(t, err)
	assert.Nil(t, holding)

	// Position gone, so another sell is rejected.
	_, err = service.Sell("user-1", stockID, 1, 100, uuid.New().String())
	assert.ErrorIs(t, err, types.ErrInsufficientHolding)
}

func TestSellMoreThanHeld(t *testing.T) {
	service, _, stockID := newTestService(t)

	_, err := service.Buy("user-1", stockID, 5, 100, uuid.New().String())
	require.NoError(t, err)

	_, err = service.Sell("user-1", stockID, 6, 100, uuid.New().String())
	assert.ErrorIs(t, err, types.ErrInsufficientHolding)
}

func TestAddFunds(t *testing.T) {
	service, _, _ := newTestService(t)

	trade, err := service.AddFunds("user-1", 500, uuid.New().String())
	require.NoError(t, err)
	assert.Equal(t, types.TransactionDeposit, trade.Type)
	assert.InDelta(t, testStartingCash+500, trade.CashBalance, 1e-9)

	_, err = service.AddFunds("user-1", -5, uuid.New().String())
	assert.True(t, types.IsValidation(err))
}

func TestIdempotentReplay(t *testing.T) {
	service, _, stockID := newTestService(t)

	key := uuid.New().String()
	first, err := service.Buy("user-1", stockID, 10, 100, key)
	require.NoError(t, err)

	// Same key replays the original trade; nothing executes twice.
	second, err := service.Buy("user-1", stockID, 10, 100, key)
	require.NoError(t, err)
	assert.Equal(t, first.TransactionID, second.TransactionID)
	assert.Equal(t, first.CashBalance, second.CashBalance)

	holding, err := service.db.GetHolding("user-1", stockID)
	require.NoError(t, err)
	require.NotNil(t, holding)
	assert.Equal(t, 10.0, holding.Quantity)

	txns, err := service.ListTransactions("user-1")
	require.NoError(t, err)
	assert.Len(t, txns, 1)
}

func TestListTransactions(t *testing.T) {
	service, _, stockID := newTestService(t)

	_, err := service.Buy("user-1", stockID, 10, 100, uuid.New().String())
	require.NoError(t, err)
	_, err = service.Sell("user-1", stockID, 4, 150, uuid.New().String())
	require.NoError(t, err)

	txns, err := service.ListTransactions("user-1")
	require.NoError(t, err)
	require.Len(t, txns, 2)

	kinds := []string{txns[0].Type, txns[1].Type}
	assert.Contains(t, kinds, types.TransactionBuy)
	assert.Contains(t, kinds, types.TransactionSell)
}
