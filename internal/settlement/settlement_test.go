package settlement

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
	"github.com/lifestock/lifestock-api/internal/types"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, migrations.Apply(db))
	return db
}

type fixture struct {
	db      *gorm.DB
	service *Service
	now     time.Time
	expiry  time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	now := time.Now()
	f := &fixture{
		db:      db,
		service: NewService(db),
		now:     now,
		expiry:  now.Add(-24 * time.Hour),
	}

	require.NoError(t, db.Create(&types.CashAccount{
		UserID:  "user-1",
		Balance: 100_000,
	}).Error)
	return f
}

func (f *fixture) addContract(t *testing.T, strike float64, optionType string) string {
	t.Helper()
	contract := &types.OptionContract{
		ContractID:           "OPT_" + uuid.New().String(),
		StrikePrice:          strike,
		ExpiryDate:           f.expiry,
		OptionType:           optionType,
		UnderlyingAtCreation: 9800,
		CreatedAt:            f.expiry.AddDate(0, 0, -6),
	}
	require.NoError(t, f.db.Create(contract).Error)
	return contract.ContractID
}

func (f *fixture) addHolding(t *testing.T, contractID, positionType string, quantity float64) {
	t.Helper()
	require.NoError(t, f.db.Create(&types.OptionHolding{
		UserID:       "user-1",
		ContractID:   contractID,
		PositionType: positionType,
		Quantity:     quantity,
		AvgPremium:   12,
	}).Error)
}

func (f *fixture) addSnapshot(t *testing.T, value float64, at time.Time) {
	t.Helper()
	require.NoError(t, f.db.Create(&types.IndexSnapshot{
		UserID:     "user-1",
		Value:      value,
		RecordedAt: at,
	}).Error)
}

func (f *fixture) balance(t *testing.T) float64 {
	t.Helper()
	account, err := f.service.db.GetCashAccount("user-1")
	require.NoError(t, err)
	require.NotNil(t, account)
	return account.Balance
}

func TestSettleLongPaysPayoff(t *testing.T) {
	f := newFixture(t)
	contractID := f.addContract(t, 9800, types.OptionTypeCE)
	f.addHolding(t, contractID, types.PositionLongCE, 2)
	f.addSnapshot(t, 9900, f.expiry.Add(-time.Hour))

	sweep, err := f.service.SettleExpired(f.now)
	require.NoError(t, err)

	// Settle value 9900 against strike 9800 pays 100 per unit.
	assert.Equal(t, 1, sweep.HoldingsSettled)
	assert.InDelta(t, 200, sweep.TotalCashCredit, 1e-9)
	assert.InDelta(t, 100_200, f.balance(t), 1e-9)

	holdings, err := f.service.db.ListHoldingsForContract(contractID)
	require.NoError(t, err)
	assert.Empty(t, holdings)

	settlements, err := f.service.ListSettlements()
	require.NoError(t, err)
	require.Len(t, settlements, 1)
	assert.Equal(t, 9900.0, settlements[0].SettleValue)
	assert.Equal(t, 100.0, settlements[0].Payoff)
	assert.Equal(t, types.PositionLongCE, settlements[0].PositionType)
}

func TestSettleLongOutOfTheMoney(t *testing.T) {
	f := newFixture(t)
	contractID := f.addContract(t, 10000, types.OptionTypeCE)
	f.addHolding(t, contractID, types.PositionLongCE, 3)
	f.addSnapshot(t, 9900, f.expiry.Add(-time.Hour))

	sweep, err := f.service.SettleExpired(f.now)
	require.NoError(t, err)

	// Worthless at expiry: the position closes with no credit.
	assert.Equal(t, 1, sweep.HoldingsSettled)
	assert.Zero(t, sweep.TotalCashCredit)
	assert.InDelta(t, 100_000, f.balance(t), 1e-9)
}

func TestSettleShortReturnsCollateralNetOfPayoff(t *testing.T) {
	f := newFixture(t)
	contractID := f.addContract(t, 9700, types.OptionTypeCE)
	f.addHolding(t, contractID, types.PositionShortCE, 2)
	f.addSnapshot(t, 9900, f.expiry.Add(-time.Hour))

	sweep, err := f.service.SettleExpired(f.now)
	require.NoError(t, err)

	// Assigned at payoff 200, so each unit returns 9700 - 200 of the
	// reserved collateral.
	assert.InDelta(t, (9700-200)*2, sweep.TotalCashCredit, 1e-9)
	assert.InDelta(t, 100_000+19_000, f.balance(t), 1e-9)
}

func TestSettleShortOutOfTheMoneyReturnsFullCollateral(t *testing.T) {
	f := newFixture(t)
	contractID := f.addContract(t, 9800, types.OptionTypePE)
	f.addHolding(t, contractID, types.PositionShortPE, 5)
	f.addSnapshot(t, 9900, f.expiry.Add(-time.Hour))

	sweep, err := f.service.SettleExpired(f.now)
	require.NoError(t, err)

	assert.InDelta(t, 9800*5, sweep.TotalCashCredit, 1e-9)
	assert.InDelta(t, 100_000+49_000, f.balance(t), 1e-9)
}

func TestSettleFallsBackToUnderlyingAtCreation(t *testing.T) {
	f := newFixture(t)
	contractID := f.addContract(t, 9700, types.OptionTypeCE)
	f.addHolding(t, contractID, types.PositionLongCE, 1)

	// No snapshots at all: the underlying captured at creation (9800)
	// settles the contract.
	_, err := f.service.SettleExpired(f.now)
	require.NoError(t, err)

	settlements, err := f.service.ListSettlements()
	require.NoError(t, err)
	require.Len(t, settlements, 1)
	assert.Equal(t, 9800.0, settlements[0].SettleValue)
	assert.Equal(t, 100.0, settlements[0].Payoff)
}

func TestSettleIgnoresSnapshotsAfterExpiry(t *testing.T) {
	f := newFixture(t)
	contractID := f.addContract(t, 9800, types.OptionTypeCE)
	f.addHolding(t, contractID, types.PositionLongCE, 1)
	f.addSnapshot(t, 9900, f.expiry.Add(-time.Hour))
	f.addSnapshot(t, 12_000, f.expiry.Add(time.Hour))

	_, err := f.service.SettleExpired(f.now)
	require.NoError(t, err)

	settlements, err := f.service.ListSettlements()
	require.NoError(t, err)
	require.Len(t, settlements, 1)
	assert.Equal(t, 9900.0, settlements[0].SettleValue)
}

func TestSettleLeavesLiveContractsAlone(t *testing.T) {
	f := newFixture(t)

	live := &types.OptionContract{
		ContractID:           "OPT_" + uuid.New().String(),
		StrikePrice:          9800,
		ExpiryDate:           f.now.AddDate(0, 0, 3),
		OptionType:           types.OptionTypeCE,
		UnderlyingAtCreation: 9800,
		CreatedAt:            f.now.AddDate(0, 0, -3),
	}
	require.NoError(t, f.db.Create(live).Error)
	f.addHolding(t, live.ContractID, types.PositionLongCE, 2)

	sweep, err := f.service.SettleExpired(f.now)
	require.NoError(t, err)
	assert.Zero(t, sweep.HoldingsSettled)

	holdings, err := f.service.db.ListHoldingsForContract(live.ContractID)
	require.NoError(t, err)
	assert.Len(t, holdings, 1)
}

func TestSettleWritesTradeLogEntry(t *testing.T) {
	f := newFixture(t)
	contractID := f.addContract(t, 9800, types.OptionTypeCE)
	f.addHolding(t, contractID, types.PositionLongCE, 2)
	f.addSnapshot(t, 9900, f.expiry.Add(-time.Hour))

	_, err := f.service.SettleExpired(f.now)
	require.NoError(t, err)

	var txns []types.OptionTransaction
	require.NoError(t, f.db.Where("user_id = ?", "user-1").Find(&txns).Error)
	require.Len(t, txns, 1)
	assert.Equal(t, types.OptionActionSettle, txns[0].Action)
	assert.Equal(t, contractID, txns[0].ContractID)
	assert.Equal(t, 100.0, txns[0].PremiumPerUnit)
	assert.InDelta(t, 200, txns[0].CashDelta, 1e-9)
}
