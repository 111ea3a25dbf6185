package settlement

import (
	"errors"
	"fmt"
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

// ListExpiredContracts returns every contract whose expiry has passed.
func (d *Database) ListExpiredContracts(now time.Time) ([]types.OptionContract, error) {
	var contracts []types.OptionContract
	if err := d.db.Where("expiry_date < ?", now).Find(&contracts).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch expired contracts: %w", err)
	}
	return contracts, nil
}

// ListHoldingsForContract returns all open positions on the contract, across
// users and position types.
func (d *Database) ListHoldingsForContract(contractID string) ([]types.OptionHolding, error) {
	var holdings []types.OptionHolding
	if err := d.db.Where("contract_id = ?", contractID).Find(&holdings).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch holdings: %w", err)
	}
	return holdings, nil
}

// LatestSnapshotAt returns the most recent index snapshot for the user at or
// before t, or nil when none exists.
func (d *Database) LatestSnapshotAt(userID string, t time.Time) (*types.IndexSnapshot, error) {
	var snapshot types.IndexSnapshot
	err := d.db.Where("user_id = ? AND recorded_at <= ?", userID, t).
		Order("recorded_at DESC").
		First(&snapshot).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &snapshot, nil
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

// SettleHolding closes an expired position in one transaction: credits the
// cash account, removes the holding row and writes the settlement audit
// record plus the SETTLE trade log entry.
func (d *Database) SettleHolding(account *types.CashAccount, holding *types.OptionHolding, record *types.OptionSettlement, txn *types.OptionTransaction) error {
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

	if err := tx.Unscoped().Delete(holding).Error; err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Create(record).Error; err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Create(txn).Error; err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}

// ListSettlements returns settlement audit records, newest first.
func (d *Database) ListSettlements() ([]types.OptionSettlement, error) {
	var settlements []types.OptionSettlement
	if err := d.db.Order("created_at DESC").Find(&settlements).Error; err != nil {
		return nil, err
	}
	return settlements, nil
}
