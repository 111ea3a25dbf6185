package migrations

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/lifestock/lifestock-api/internal/types"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)
	return db
}

func TestApplyCreatesSchema(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, Apply(db))

	migrator := db.Migrator()
	for _, model := range []interface{}{
		&types.CashAccount{},
		&types.LifeStock{},
		&types.IndexSnapshot{},
		&types.Holding{},
		&types.Transaction{},
		&types.OptionContract{},
		&types.OptionHolding{},
		&types.OptionTransaction{},
		&types.OptionSettlement{},
		&types.IdempotencyRecord{},
	} {
		assert.True(t, migrator.HasTable(model), "missing table for %T", model)
	}

	var records []types.SchemaMigration
	require.NoError(t, db.Order("version").Find(&records).Error)
	require.Len(t, records, len(Steps))
	for i, record := range records {
		assert.Equal(t, Steps[i].Version, record.Version)
		assert.Equal(t, Steps[i].Name, record.Name)
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, Apply(db))
	require.NoError(t, Apply(db))

	var count int64
	require.NoError(t, db.Model(&types.SchemaMigration{}).Count(&count).Error)
	assert.EqualValues(t, len(Steps), count)
}

func TestStepVersionsAreOrdered(t *testing.T) {
	for i := 1; i < len(Steps); i++ {
		assert.Greater(t, Steps[i].Version, Steps[i-1].Version)
	}
}
