package options

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

// newTestService seeds one life stock scored 98 so the index sits at exactly
// 9800 and the ladder centers there.
func newTestService(t *testing.T) (*Service, *portfolio.Service) {
	t.Helper()
	db := newTestDB(t)
	portfolioService := portfolio.NewService(db, testStartingCash, time.Minute, time.Minute)
	service := NewService(db, portfolioService)

	_, err := portfolioService.CreateStock("user-1", "Health", 1, 98)
	require.NoError(t, err)
	return service, portfolioService
}

func findContract(t *testing.T, chain *types.ChainResponse, strike float64, optionType string) string {
	t.Helper()
	for _, rung := range chain.Strikes {
		if rung.StrikePrice != strike {
			continue
		}
		if optionType == types.OptionTypeCE && rung.Call != nil {
			return rung.Call.ContractID
		}
		if optionType == types.OptionTypePE && rung.Put != nil {
			return rung.Put.ContractID
		}
	}
	t.Fatalf("no %s contract at strike %v", optionType, strike)
	return ""
}

func cashBalance(t *testing.T, accounts *portfolio.Service, userID string) float64 {
	t.Helper()
	account, err := accounts.EnsureCashAccount(userID)
	require.NoError(t, err)
	return account.Balance
}

func TestGetChainGeneratesLadder(t *testing.T) {
	service, _ := newTestService(t)

	chain, err := service.GetChain("user-1")
	require.NoError(t, err)

	assert.Equal(t, 9800.0, chain.IndexValue)
	require.Len(t, chain.Strikes, 5)

	strikes := make([]float64, 0, 5)
	for _, rung := range chain.Strikes {
		strikes = append(strikes, rung.StrikePrice)
		require.NotNil(t, rung.Call, "strike %v missing call", rung.StrikePrice)
		require.NotNil(t, rung.Put, "strike %v missing put", rung.StrikePrice)
		assert.GreaterOrEqual(t, rung.Call.Premium, MinimumPremium)
		assert.GreaterOrEqual(t, rung.Put.Premium, MinimumPremium)
	}
	assert.ElementsMatch(t, []float64{9600, 9700, 9800, 9900, 10000}, strikes)

	// A second fetch must not duplicate the ladder.
	_, err = service.GetChain("user-1")
	require.NoError(t, err)

	monday, sunday := WeekBounds(time.Now())
	contracts, err := service.db.ListContractsExpiring(monday, sunday)
	require.NoError(t, err)
	assert.Len(t, contracts, 10)
}

func TestBuyDebitsPremium(t *testing.T) {
	service, accounts := newTestService(t)

	chain, err := service.GetChain("user-1")
	require.NoError(t, err)
	contractID := findContract(t, chain, 9900, types.OptionTypeCE)

	trade, err := service.Buy("user-1", contractID, 3, 12, uuid.New().String())
	require.NoError(t, err)

	assert.Equal(t, types.PositionLongCE, trade.PositionType)
	assert.InDelta(t, -36, trade.CashDelta, 1e-9)
	assert.InDelta(t, testStartingCash-36, cashBalance(t, accounts, "user-1"), 1e-9)
	require.NotNil(t, trade.Holding)
	assert.Equal(t, 3.0, trade.Holding.Quantity)
	assert.Equal(t, 12.0, trade.Holding.AvgPremium)
}

func TestBuyInsufficientFunds(t *testing.T) {
	service, _ := newTestService(t)

	chain, err := service.GetChain("user-1")
	require.NoError(t, err)
	contractID := findContract(t, chain, 9900, types.OptionTypeCE)

	_, err = service.Buy("user-1", contractID, 1_000_000, 100, uuid.New().String())
	assert.ErrorIs(t, err, types.ErrInsufficientFunds)
}

func TestWriteReservesCollateralAndCreditsPremium(t *testing.T) {
	service, accounts := newTestService(t)

	chain, err := service.GetChain("user-1")
	require.NoError(t, err)
	contractID := findContract(t, chain, 9800, types.OptionTypePE)

	trade, err := service.Write("user-1", contractID, 5, 12, uuid.New().String())
	require.NoError(t, err)

	// 5 x 9800 collateral out, 5 x 12 premium in.
	assert.Equal(t, types.PositionShortPE, trade.PositionType)
	assert.InDelta(t, -48_940, trade.CashDelta, 1e-9)
	assert.InDelta(t, testStartingCash-48_940, cashBalance(t, accounts, "user-1"), 1e-9)
	require.NotNil(t, trade.Holding)
	assert.Equal(t, 5.0, trade.Holding.Quantity)
}

func TestWriteInsufficientCollateral(t *testing.T) {
	service, _ := newTestService(t)

	chain, err := service.GetChain("user-1")
	require.NoError(t, err)
	contractID := findContract(t, chain, 9800, types.OptionTypePE)

	_, err = service.Write("user-1", contractID, 2000, 12, uuid.New().String())
	assert.ErrorIs(t, err, types.ErrInsufficientFunds)
}

func TestExitShortReleasesCollateral(t *testing.T) {
	service, accounts := newTestService(t)

	chain, err := service.GetChain("user-1")
	require.NoError(t, err)
	contractID := findContract(t, chain, 9800, types.OptionTypePE)

	_, err = service.Write("user-1", contractID, 5, 12, uuid.New().String())
	require.NoError(t, err)

	trade, err := service.Exit("user-1", contractID, types.PositionShortPE, 5, uuid.New().String())
	require.NoError(t, err)

	// Full collateral comes back; the premium collected at write stays.
	assert.InDelta(t, 49_000, trade.CashDelta, 1e-9)
	assert.InDelta(t, testStartingCash+60, cashBalance(t, accounts, "user-1"), 1e-9)
	assert.Nil(t, trade.Holding)

	holding, err := service.db.GetHolding("user-1", contractID, types.PositionShortPE)
	require.NoError(t, err)
	assert.Nil(t, holding)
}

func TestExitPartialLong(t *testing.T) {
	service, accounts := newTestService(t)

	chain, err := service.GetChain("user-1")
	require.NoError(t, err)
	contractID := findContract(t, chain, 9900, types.OptionTypeCE)

	_, err = service.Buy("user-1", contractID, 4, 12, uuid.New().String())
	require.NoError(t, err)
	balanceAfterBuy := cashBalance(t, accounts, "user-1")

	trade, err := service.Exit("user-1", contractID, types.PositionLongCE, 2, uuid.New().String())
	require.NoError(t, err)

	// Long exits realize the current quote.
	assert.Equal(t, types.OptionActionExit, trade.Action)
	assert.GreaterOrEqual(t, trade.PremiumPerUnit, MinimumPremium)
	assert.InDelta(t, trade.PremiumPerUnit*2, trade.CashDelta, 1e-9)
	assert.InDelta(t, balanceAfterBuy+trade.CashDelta, cashBalance(t, accounts, "user-1"), 1e-9)

	require.NotNil(t, trade.Holding)
	assert.Equal(t, 2.0, trade.Holding.Quantity)
	assert.Equal(t, 12.0, trade.Holding.AvgPremium)
}

func TestExitMoreThanHeld(t *testing.T) {
	service, _ := newTestService(t)

	chain, err := service.GetChain("user-1")
	require.NoError(t, err)
	contractID := findContract(t, chain, 9900, types.OptionTypeCE)

	_, err = service.Buy("user-1", contractID, 2, 12, uuid.New().String())
	require.NoError(t, err)

	_, err = service.Exit("user-1", contractID, types.PositionLongCE, 3, uuid.New().String())
	assert.ErrorIs(t, err, types.ErrInsufficientHolding)

	// Wrong position type counts as no holding.
	_, err = service.Exit("user-1", contractID, types.PositionShortCE, 1, uuid.New().String())
	assert.ErrorIs(t, err, types.ErrInsufficientHolding)
}

func TestDeleteContractGuardedByOpenPositions(t *testing.T) {
	service, _ := newTestService(t)

	chain, err := service.GetChain("user-1")
	require.NoError(t, err)
	contractID := findContract(t, chain, 9900, types.OptionTypeCE)

	_, err = service.Buy("user-1", contractID, 2, 12, uuid.New().String())
	require.NoError(t, err)

	assert.ErrorIs(t, service.DeleteContract(contractID), types.ErrContractInUse)

	_, err = service.Exit("user-1", contractID, types.PositionLongCE, 2, uuid.New().String())
	require.NoError(t, err)

	require.NoError(t, service.DeleteContract(contractID))

	contract, err := service.db.GetContract(contractID)
	require.NoError(t, err)
	assert.Nil(t, contract)

	assert.ErrorIs(t, service.DeleteContract(contractID), types.ErrNotFound)
}

func TestOptionIdempotentReplay(t *testing.T) {
	service, accounts := newTestService(t)

	chain, err := service.GetChain("user-1")
	require.NoError(t, err)
	contractID := findContract(t, chain, 9900, types.OptionTypeCE)

	key := uuid.New().String()
	first, err := service.Buy("user-1", contractID, 3, 12, key)
	require.NoError(t, err)

	second, err := service.Buy("user-1", contractID, 3, 12, key)
	require.NoError(t, err)
	assert.Equal(t, first.TransactionID, second.TransactionID)
	assert.InDelta(t, testStartingCash-36, cashBalance(t, accounts, "user-1"), 1e-9)

	txns, err := service.ListTransactions("user-1")
	require.NoError(t, err)
	assert.Len(t, txns, 1)
}

func TestGenerateWeeklyLadders(t *testing.T) {
	service, _ := newTestService(t)

	require.NoError(t, service.GenerateWeeklyLadders())

	monday, sunday := WeekBounds(time.Now())
	contracts, err := service.db.ListContractsExpiring(monday, sunday)
	require.NoError(t, err)
	assert.Len(t, contracts, 10)

	// Re-running stays idempotent.
	require.NoError(t, service.GenerateWeeklyLadders())
	contracts, err = service.db.ListContractsExpiring(monday, sunday)
	require.NoError(t, err)
	assert.Len(t, contracts, 10)
}
