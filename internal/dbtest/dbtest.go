// Package dbtest, testler için bellek içi SQLite üzerinde gorm bağlantısı ve
// küçük fixture yardımcıları sağlar.
package dbtest

import (
	"testing"
	"time"

	"restoran-menu/internal/database"
	"restoran-menu/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open: her test için ayrı, migrate edilmiş bir veritabanı.
// Tek bağlantı kullanılır; bellek içi SQLite her bağlantıda yeni bir veritabanı açar.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

func Category(t *testing.T, db *gorm.DB, name string) models.Category {
	t.Helper()
	c := models.Category{Name: name}
	require.NoError(t, db.Create(&c).Error)
	return c
}

func Ingredient(t *testing.T, db *gorm.DB, name string, costPerUnit, minimum float64) models.Ingredient {
	t.Helper()
	i := models.Ingredient{Name: name, Unit: "kg", CostPerUnit: costPerUnit, MinimumStockLevel: minimum}
	require.NoError(t, db.Create(&i).Error)
	return i
}

// Batch, durum türetmesi yapmadan doğrudan parti satırı ekler.
func Batch(t *testing.T, db *gorm.DB, ingredientID uint, remaining float64, expiry time.Time) models.IngredientBatch {
	t.Helper()
	b := models.IngredientBatch{
		IngredientID:      ingredientID,
		OriginalQuantity:  remaining,
		RemainingQuantity: remaining,
		PurchaseDate:      expiry.AddDate(0, 0, -30),
		ExpiryDate:        expiry,
		Status:            models.BatchStatusAvailable,
	}
	require.NoError(t, db.Create(&b).Error)
	return b
}

func Count(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}
