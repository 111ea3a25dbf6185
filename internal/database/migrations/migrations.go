package migrations

import (
	"fmt"
	"time"

	"github.com/lifestock/lifestock-api/internal/types"
	"gorm.io/gorm"
)

// Step is a single schema migration. Steps must be idempotent: Apply records
// each version in schema_migrations and skips versions already applied, but a
// re-run of a step (after a partial failure) must also be safe.
type Step struct {
	Version int
	Name    string
	Run     func(db *gorm.DB) error
}

// Steps is the ordered migration list. Append only; never renumber.
var Steps = []Step{
	{Version: 1, Name: "create_portfolio_tables", Run: createPortfolioTables},
	{Version: 2, Name: "create_option_tables", Run: createOptionTables},
	{Version: 3, Name: "add_ledger_indexes", Run: addLedgerIndexes},
}

// Apply runs every step newer than the stored schema version, in order.
func Apply(db *gorm.DB) error {
	if err := db.AutoMigrate(&types.SchemaMigration{}); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	for _, step := range Steps {
		var applied int64
		if err := db.Model(&types.SchemaMigration{}).
			Where("version = ?", step.Version).
			Count(&applied).Error; err != nil {
			return err
		}
		if applied > 0 {
			continue
		}

		if err := step.Run(db); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", step.Version, step.Name, err)
		}

		record := types.SchemaMigration{
			Version:   step.Version,
			Name:      step.Name,
			AppliedAt: time.Now(),
		}
		if err := db.Create(&record).Error; err != nil {
			return fmt.Errorf("failed to record migration %d: %w", step.Version, err)
		}
	}

	return nil
}

func createPortfolioTables(db *gorm.DB) error {
	return db.AutoMigrate(
		&types.CashAccount{},
		&types.LifeStock{},
		&types.IndexSnapshot{},
		&types.Holding{},
		&types.Transaction{},
		&types.IdempotencyRecord{},
	)
}

func createOptionTables(db *gorm.DB) error {
	return db.AutoMigrate(
		&types.OptionContract{},
		&types.OptionHolding{},
		&types.OptionTransaction{},
		&types.OptionSettlement{},
	)
}

func addLedgerIndexes(db *gorm.DB) error {
	// Raw SQL for index creation to have more control over index types.
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_transactions_user_created
		 ON transactions(user_id, created_at)`,

		`CREATE INDEX IF NOT EXISTS idx_option_transactions_user_created
		 ON option_transactions(user_id, created_at)`,

		`CREATE INDEX IF NOT EXISTS idx_option_contracts_expiry
		 ON option_contracts(expiry_date)`,

		`CREATE INDEX IF NOT EXISTS idx_option_holdings_contract
		 ON option_holdings(contract_id)`,

		`CREATE INDEX IF NOT EXISTS idx_index_snapshots_user_recorded
		 ON index_snapshots(user_id, recorded_at)`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}

	return nil
}
