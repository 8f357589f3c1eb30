package ingredient

import (
	"context"
	"errors"
	"testing"
	"time"

	"restoran-menu/internal/apperr"
	"restoran-menu/internal/composition"
	"restoran-menu/internal/dbtest"
	"restoran-menu/internal/inventory"
	"restoran-menu/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	db      *gorm.DB
	ledger  *inventory.Ledger
	catalog *Catalog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	ledger := inventory.NewLedger(db, inventory.WithClock(func() time.Time { return now }))
	return &fixture{db: db, ledger: ledger, catalog: NewCatalog(db, ledger, nil)}
}

func (f *fixture) receive(t *testing.T, ingredientID uint, qty float64) {
	t.Helper()
	_, err := f.ledger.ReceiveBatch(context.Background(), inventory.ReceiveInput{
		IngredientID: ingredientID,
		Quantity:     qty,
		PurchaseDate: now,
		ExpiryDate:   now.AddDate(0, 1, 0),
	})
	require.NoError(t, err)
}

func (f *fixture) dishUsing(t *testing.T, ingredientID uint) models.Dish {
	t.Helper()
	cat := dbtest.Category(t, f.db, "Ana Yemek")
	dish := models.Dish{Name: "Mantı", CategoryID: cat.ID, SellingPrice: 250, IsAvailable: true}
	require.NoError(t, f.db.Omit("Category").Create(&dish).Error)
	require.NoError(t, composition.NewStore(f.db).SetComposition(context.Background(), dish.ID, []composition.Item{
		{IngredientID: ingredientID, Quantity: 0.2},
	}))
	return dish
}

func TestIsLowAndReorder(t *testing.T) {
	cases := []struct {
		stock, min float64
		low        bool
		reorder    float64
	}{
		{stock: 10, min: 10, low: true, reorder: 10},
		{stock: 10.5, min: 10, low: false, reorder: 9.5},
		{stock: 0, min: 4, low: true, reorder: 8},
		{stock: 30, min: 10, low: false, reorder: 0},
		{stock: 0, min: 0, low: true, reorder: 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.low, IsLow(tc.stock, tc.min), "stock=%v min=%v", tc.stock, tc.min)
		assert.InDelta(t, tc.reorder, ReorderQuantity(tc.stock, tc.min), 1e-9, "stock=%v min=%v", tc.stock, tc.min)
	}
}

func TestCreate_ValidationAndUniqueName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.catalog.Create(ctx, Input{Name: "  ", Unit: "kg"})
	var v *apperr.ValidationError
	require.ErrorAs(t, err, &v)

	_, err = f.catalog.Create(ctx, Input{Name: "Un", Unit: "kg", CostPerUnit: -1})
	require.ErrorAs(t, err, &v)

	ing, err := f.catalog.Create(ctx, Input{Name: " Un ", Unit: "kg", MinimumStockLevel: 5, CostPerUnit: 12})
	require.NoError(t, err)
	assert.Equal(t, "Un", ing.Name)

	_, err = f.catalog.Create(ctx, Input{Name: "un", Unit: "kg"})
	require.ErrorAs(t, err, &v)
	assert.Equal(t, int64(1), dbtest.Count(t, f.db, &models.Ingredient{}))
}

func TestUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ing := dbtest.Ingredient(t, f.db, "Şeker", 3, 2)
	dbtest.Ingredient(t, f.db, "Tuz", 1, 1)

	updated, err := f.catalog.Update(ctx, ing.ID, Input{Name: "Toz Şeker", Unit: "kg", MinimumStockLevel: 4, CostPerUnit: 3.5})
	require.NoError(t, err)
	assert.Equal(t, "Toz Şeker", updated.Name)
	assert.Equal(t, 4.0, updated.MinimumStockLevel)

	_, err = f.catalog.Update(ctx, ing.ID, Input{Name: "TUZ", Unit: "kg"})
	var v *apperr.ValidationError
	require.ErrorAs(t, err, &v)

	_, err = f.catalog.Update(ctx, 999, Input{Name: "Yok", Unit: "kg"})
	var nf *apperr.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestStockStatus_UsesLiveBatchSum(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ing := dbtest.Ingredient(t, f.db, "Süt", 20, 10)

	low, err := f.catalog.IsLowStock(ctx, ing.ID)
	require.NoError(t, err)
	assert.True(t, low)

	f.receive(t, ing.ID, 6)
	f.receive(t, ing.ID, 4)

	st, err := f.catalog.StockStatus(ctx, ing.ID)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, st.QuantityInStock, 1e-9)
	assert.True(t, st.IsLowStock, "stok minimuma eşitse düşük sayılır")
	assert.InDelta(t, 10.0, st.ReorderQuantity, 1e-9)

	f.receive(t, ing.ID, 15)
	low, err = f.catalog.IsLowStock(ctx, ing.ID)
	require.NoError(t, err)
	assert.False(t, low)

	reorder, err := f.catalog.ReorderQuantity(ctx, ing.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, reorder)
}

func TestLowStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := dbtest.Ingredient(t, f.db, "Biber", 5, 10)
	b := dbtest.Ingredient(t, f.db, "Domates", 4, 3)
	c := dbtest.Ingredient(t, f.db, "Ayran", 2, 8)

	f.receive(t, a.ID, 4)
	f.receive(t, b.ID, 20)
	f.receive(t, c.ID, 8)

	list, err := f.catalog.LowStock(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Ayran", list[0].Name)
	assert.InDelta(t, 8.0, list[0].ReorderQuantity, 1e-9)
	assert.Equal(t, "Biber", list[1].Name)
	assert.InDelta(t, 16.0, list[1].ReorderQuantity, 1e-9)
}

func TestDelete_BlockedWhileUsedByDish(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ing := dbtest.Ingredient(t, f.db, "Kıyma", 300, 1)
	dish := f.dishUsing(t, ing.ID)

	err := f.catalog.Delete(ctx, ing.ID)
	var ri *apperr.ReferentialIntegrityError
	require.ErrorAs(t, err, &ri)
	assert.Equal(t, int64(1), ri.References)

	got, err := f.catalog.GetByID(ctx, ing.ID)
	require.NoError(t, err)
	assert.False(t, got.Deleted)
	assert.Equal(t, int64(1), dbtest.Count(t, f.db, &models.DishIngredient{}))

	usage, err := f.catalog.Usage(ctx, ing.ID)
	require.NoError(t, err)
	require.Len(t, usage, 1)
	assert.Equal(t, dish.ID, usage[0].DishID)
	assert.Equal(t, "Mantı", usage[0].DishName)
}

func TestDelete_Unused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ing := dbtest.Ingredient(t, f.db, "Maydanoz", 1, 0)

	require.NoError(t, f.catalog.Delete(ctx, ing.ID))

	got, err := f.catalog.GetByID(ctx, ing.ID)
	require.NoError(t, err)
	assert.True(t, got.Deleted)
	assert.NotNil(t, got.DeletedAt)

	active, err := f.catalog.ListAll(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := f.catalog.ListAll(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	err = f.catalog.Delete(ctx, ing.ID)
	var nf *apperr.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestLockActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := dbtest.Ingredient(t, f.db, "Pirinç", 2, 0)
	b := dbtest.Ingredient(t, f.db, "Tereyağı", 2, 0)
	require.NoError(t, f.catalog.Delete(ctx, b.ID))

	require.NoError(t, f.catalog.LockActive(ctx, []uint{a.ID}))

	err := f.catalog.LockActive(ctx, []uint{a.ID, b.ID})
	assert.True(t, errors.Is(err, apperr.ErrUnknownIngredient))

	err = f.catalog.LockActive(ctx, []uint{a.ID, 999})
	assert.True(t, errors.Is(err, apperr.ErrUnknownIngredient))
}
