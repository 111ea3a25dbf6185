package trading

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

func (d *Database) GetStock(userID, stockID string) (*types.LifeStock, error) {
	var stock types.LifeStock
	if err := d.db.Where("user_id = ? AND stock_id = ?", userID, stockID).First(&stock).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &stock, nil
}

func (d *Database) GetHolding(userID, stockID string) (*types.Holding, error) {
	var holding types.Holding
	if err := d.db.Where("user_id = ? AND stock_id = ?", userID, stockID).First(&holding).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &holding, nil
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

func (d *Database) GetTransaction(transactionID string) (*types.Transaction, error) {
	var txn types.Transaction
	if err := d.db.Where("transaction_id = ?", transactionID).First(&txn).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

func (d *Database) ListTransactions(userID string) ([]types.Transaction, error) {
	var txns []types.Transaction
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

// SaveTrade persists a complete ledger mutation in one transaction: the cash
// balance, the holding (updated, created or removed), the append-only trade
// log entry and the idempotency record.
func (d *Database) SaveTrade(account *types.CashAccount, holding *types.Holding, removeHolding bool, txn *types.Transaction, idempotencyKey string) error {
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

	if holding != nil {
		if removeHolding {
			if err := tx.Unscoped().Delete(holding).Error; err != nil {
				tx.Rollback()
				return err
			}
		} else if err := tx.Save(holding).Error; err != nil {
			tx.Rollback()
			return err
		}
	}

	if err := tx.Create(txn).Error; err != nil {
		tx.Rollback()
		return err
	}

	record := types.IdempotencyRecord{
		IdempotencyKey: idempotencyKey,
		ResourceID:     txn.TransactionID,
		ResourceType:   "transaction",
		ExpiresAt:      time.Now().Add(24 * time.Hour),
	}
	if err := tx.Create(&record).Error; err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}
