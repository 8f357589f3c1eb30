package analytics

import (
	"bytes"
	"context"
	"testing"

	"restoran-menu/internal/dbtest"
	"restoran-menu/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

func addDish(t *testing.T, db *gorm.DB, categoryID uint, name string, price float64, parts map[uint]float64) models.Dish {
	t.Helper()
	d := models.Dish{Name: name, CategoryID: categoryID, SellingPrice: price, IsAvailable: true}
	require.NoError(t, db.Omit("Category").Create(&d).Error)
	for ingID, qty := range parts {
		require.NoError(t, db.Omit("Ingredient").Create(&models.DishIngredient{DishID: d.ID, IngredientID: ingID, QuantityNeeded: qty, Unit: "kg"}).Error)
	}
	return d
}

func ids(list []DishProfit) []uint {
	out := make([]uint, 0, len(list))
	for _, p := range list {
		out = append(out, p.DishID)
	}
	return out
}

func TestProfitRanking(t *testing.T) {
	db := dbtest.Open(t)
	cat := dbtest.Category(t, db, "Ana Yemek")
	meat := dbtest.Ingredient(t, db, "Et", 10, 0)
	rice := dbtest.Ingredient(t, db, "Pirinç", 2, 0)

	// marjlar: A=20-(1×10)=10, B=15-(0.5×10)=10, C=30-(1×10+2×2)=16
	a := addDish(t, db, cat.ID, "A", 20, map[uint]float64{meat.ID: 1})
	b := addDish(t, db, cat.ID, "B", 15, map[uint]float64{meat.ID: 0.5})
	c := addDish(t, db, cat.ID, "C", 30, map[uint]float64{meat.ID: 1, rice.ID: 2})
	deleted := addDish(t, db, cat.ID, "Silinmiş", 500, nil)
	require.NoError(t, db.Model(&deleted).Update("deleted", true).Error)

	s := NewService(db, nil)
	ctx := context.Background()

	most, err := s.MostProfitableDishes(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint{c.ID, a.ID, b.ID}, ids(most))
	assert.InDelta(t, 16.0, most[0].Margin, 1e-9)
	assert.InDelta(t, 14.0, most[0].IngredientCost, 1e-9)

	least, err := s.LeastProfitableDishes(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint{a.ID, b.ID, c.ID}, ids(least), "eşit marjda küçük id önce")

	top, err := s.MostProfitableDishes(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint{c.ID}, ids(top))
}

func TestHighIngredientCost(t *testing.T) {
	db := dbtest.Open(t)
	cat := dbtest.Category(t, db, "Meze")
	unit := dbtest.Ingredient(t, db, "Karışım", 1, 0)

	sixty := addDish(t, db, cat.ID, "Yüzde 60", 10, map[uint]float64{unit.ID: 6})
	eighty := addDish(t, db, cat.ID, "Yüzde 80", 10, map[uint]float64{unit.ID: 8})
	ninety := addDish(t, db, cat.ID, "Yüzde 90", 20, map[uint]float64{unit.ID: 18})

	list, err := NewService(db, nil).HighIngredientCostDishes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uint{ninety.ID, eighty.ID}, ids(list))
	assert.NotContains(t, ids(list), sixty.ID)
}

func TestEmptyCompositionCostsZero(t *testing.T) {
	db := dbtest.Open(t)
	cat := dbtest.Category(t, db, "İçecek")
	water := addDish(t, db, cat.ID, "Su", 5, nil)

	snap, err := NewService(db, nil).Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snap, 1)
	assert.Equal(t, water.ID, snap[0].DishID)
	assert.Equal(t, 0.0, snap[0].IngredientCost)
	assert.Equal(t, 5.0, snap[0].Margin)
}

func TestRankingHelpers_DefaultLimit(t *testing.T) {
	var snap []DishProfit
	for i := 1; i <= 15; i++ {
		snap = append(snap, newDishProfit(uint(i), "d", float64(i), 0))
	}
	most := MostProfitable(snap, 0)
	require.Len(t, most, DefaultLimit)
	assert.Equal(t, uint(15), most[0].DishID)
	assert.Equal(t, uint(1), snap[0].DishID, "girdi dilimi değişmez")
	assert.Error(t, ValidateLimit(-1))
}

func TestWriteWorkbook(t *testing.T) {
	r := &Report{
		MostProfitable:  []DishProfit{newDishProfit(1, "Kebap", 300, 120)},
		LeastProfitable: []DishProfit{newDishProfit(2, "Çorba", 60, 45)},
		HighCost:        []DishProfit{newDishProfit(2, "Çorba", 60, 45)},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteWorkbook(&buf, r))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"En Karli", "En Az Karli", "Yuksek Maliyet"}, f.GetSheetList())
	rows, err := f.GetRows("En Karli")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Yemek", rows[0][1])
	assert.Equal(t, "Kebap", rows[1][1])
	assert.Equal(t, "180", rows[1][4])
}
