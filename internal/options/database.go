package options

import (
	"errors"
	"time"

	"github.com/lifestock/lifestock-api/internal/types"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) GetContract(contractID string) (*types.OptionContract, error) {
	var contract types.OptionContract
	if err := d.db.Where("contract_id = ?", contractID).First(&contract).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &contract, nil
}

// InsertContractIfAbsent persists the contract unless a row already exists
// for the same (strike, expiry, type) triple. Reports whether a row was
// inserted.
func (d *Database) InsertContractIfAbsent(contract *types.OptionContract) (bool, error) {
	var existing types.OptionContract
	err := d.db.Where(
		"strike_price = ? AND expiry_date = ? AND option_type = ?",
		contract.StrikePrice, contract.ExpiryDate, contract.OptionType,
	).First(&existing).Error
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}
	if err := d.db.Create(contract).Error; err != nil {
		return false, err
	}
	return true, nil
}

// ListContractsExpiring returns contracts whose expiry falls inside the
// window, ordered by strike.
func (d *Database) ListContractsExpiring(from, to time.Time) ([]types.OptionContract, error) {
	var contracts []types.OptionContract
	err := d.db.Where("expiry_date BETWEEN ? AND ?", from, to).
		Order("strike_price ASC, option_type ASC").
		Find(&contracts).Error
	if err != nil {
		return nil, err
	}
	return contracts, nil
}

func (d *Database) DeleteContract(contractID string) error {
	result := d.db.Unscoped().Where("contract_id = ?", contractID).Delete(&types.OptionContract{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return types.ErrNotFound
	}
	return nil
}

// CountHoldingsForContract counts open positions, across all users and
// position types, that reference the contract.
func (d *Database) CountHoldingsForContract(contractID string) (int64, error) {
	var count int64
	err := d.db.Model(&types.OptionHolding{}).
		Where("contract_id = ? AND quantity > 0", contractID).
		Count(&count).Error
	return count, err
}

func (d *Database) GetHolding(userID, contractID, positionType string) (*types.OptionHolding, error) {
	var holding types.OptionHolding
	err := d.db.Where(
		"user_id = ? AND contract_id = ? AND position_type = ?",
		userID, contractID, positionType,
	).First(&holding).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &holding, nil
}

func (d *Database) ListHoldings(userID string) ([]types.OptionHolding, error) {
	var holdings []types.OptionHolding
	if err := d.db.Where("user_id = ?", userID).Find(&holdings).Error; err != nil {
		return nil, err
	}
	return holdings, nil
}

func (d *Database) GetCashAccount(userID string) (*types.CashAccount, error) {
	var account types.CashAccount
	if err := d.db.Where("user_id = ?", userID).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (d *Database) GetTransaction(transactionID string) (*types.OptionTransaction, error) {
	var txn types.OptionTransaction
	if err := d.db.Where("transaction_id = ?", transactionID).First(&txn).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

func (d *Database) ListTransactions(userID string) ([]types.OptionTransaction, error) {
	var txns []types.OptionTransaction
	if err := d.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

// GetIdempotencyRecord retrieves an idempotency record by key
func (d *Database) GetIdempotencyRecord(key string) (*types.IdempotencyRecord, error) {
	var record types.IdempotencyRecord
	if err := d.db.Where("idempotency_key = ?", key).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// ListStockUsers returns the distinct user IDs that own life stocks, for the
// weekly ladder generation job.
func (d *Database) ListStockUsers() ([]string, error) {
	var userIDs []string
	err := d.db.Model(&types.LifeStock{}).
		Distinct("user_id").
		Pluck("user_id", &userIDs).Error
	if err != nil {
		return nil, err
	}
	return userIDs, nil
}

// SaveOptionTrade persists a complete option ledger mutation in one
// transaction: the cash balance, the holding (updated, created or removed),
// the option trade log entry and the idempotency record.
func (d *Database) SaveOptionTrade(account *types.CashAccount, holding *types.OptionHolding, removeHolding bool, txn *types.OptionTransaction, idempotencyKey string) error {
	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := tx.Save(account).Error; err != nil {
		tx.Rollback()
		return err
	}

	if removeHolding {
		if err := tx.Unscoped().Delete(holding).Error; err != nil {
			tx.Rollback()
			return err
		}
	} else if err := tx.Save(holding).Error; err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Create(txn).Error; err != nil {
		tx.Rollback()
		return err
	}

	record := types.IdempotencyRecord{
		IdempotencyKey: idempotencyKey,
		ResourceID:     txn.TransactionID,
		ResourceType:   "option_transaction",
		ExpiresAt:      time.Now().Add(24 * time.Hour),
	}
	if err := tx.Create(&record).Error; err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}
