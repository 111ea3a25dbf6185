package portfolio

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

func (d *Database) CreateStock(stock *types.LifeStock) error {
	return d.db.Create(stock).Error
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

func (d *Database) ListStocks(userID string) ([]types.LifeStock, error) {
	var stocks []types.LifeStock
	if err := d.db.Where("user_id = ?", userID).Order("created_at ASC").Find(&stocks).Error; err != nil {
		return nil, err
	}
	return stocks, nil
}

func (d *Database) UpdateStock(stock *types.LifeStock) error {
	return d.db.Save(stock).Error
}

func (d *Database) DeleteStock(userID, stockID string) error {
	return d.db.Unscoped().
		Where("user_id = ? AND stock_id = ?", userID, stockID).
		Delete(&types.LifeStock{}).Error
}

// CountHoldingsForStock reports how many equity holdings reference the stock.
func (d *Database) CountHoldingsForStock(userID, stockID string) (int64, error) {
	var count int64
	err := d.db.Model(&types.Holding{}).
		Where("user_id = ? AND stock_id = ? AND quantity > 0", userID, stockID).
		Count(&count).Error
	return count, err
}

func (d *Database) CreateSnapshot(snapshot *types.IndexSnapshot) error {
	return d.db.Create(snapshot).Error
}

// LatestSnapshotAt returns the most recent index snapshot at or before t,
// or nil when no snapshot exists yet.
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

func (d *Database) CreateCashAccount(account *types.CashAccount) error {
	return d.db.Create(account).Error
}

func (d *Database) ListHoldings(userID string) ([]types.Holding, error) {
	var holdings []types.Holding
	if err := d.db.Where("user_id = ?", userID).Find(&holdings).Error; err != nil {
		return nil, err
	}
	return holdings, nil
}

func (d *Database) ListOptionHoldings(userID string) ([]types.OptionHolding, error) {
	var holdings []types.OptionHolding
	if err := d.db.Where("user_id = ?", userID).Find(&holdings).Error; err != nil {
		return nil, err
	}
	return holdings, nil
}
