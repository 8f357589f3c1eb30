package menu

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"restoran-menu/internal/apperr"
	"restoran-menu/internal/composition"
	"restoran-menu/internal/dbtest"
	"restoran-menu/internal/events"
	"restoran-menu/internal/ingredient"
	"restoran-menu/internal/inventory"
	"restoran-menu/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db      *gorm.DB
	catalog *ingredient.Catalog
	co      *Coordinator
	events  *events.Recorder

	category models.Category
	flour    models.Ingredient
	cheese   models.Ingredient
	tomato   models.Ingredient
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	ledger := inventory.NewLedger(db, inventory.WithClock(func() time.Time { return time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC) }))
	f := &fixture{db: db, events: &events.Recorder{}}
	f.catalog = ingredient.NewCatalog(db, ledger, nil)
	f.co = NewCoordinator(db, f.catalog, f.events, nil)

	f.category = dbtest.Category(t, db, "Pizza")
	f.flour = dbtest.Ingredient(t, db, "Un", 20, 5)
	f.cheese = dbtest.Ingredient(t, db, "Mozzarella", 300, 2)
	f.tomato = dbtest.Ingredient(t, db, "Domates Sosu", 60, 2)
	return f
}

func (f *fixture) margherita() DishInput {
	return DishInput{
		Name:         "Margherita",
		CategoryID:   f.category.ID,
		SellingPrice: 280,
		IsAvailable:  true,
		Composition: []composition.Item{
			{IngredientID: f.flour.ID, Quantity: 0.25},
			{IngredientID: f.cheese.ID, Quantity: 0.12},
			{IngredientID: f.tomato.ID, Quantity: 0.08},
		},
	}
}

func (f *fixture) items(t *testing.T, dishID uint) []composition.Item {
	t.Helper()
	rows, err := composition.NewStore(f.db).GetComposition(context.Background(), dishID)
	require.NoError(t, err)
	return composition.ToItems(rows)
}

func TestCreateDish(t *testing.T) {
	f := newFixture(t)

	dish, err := f.co.CreateDish(context.Background(), f.margherita())
	require.NoError(t, err)
	require.NotZero(t, dish.ID)

	detail, err := f.co.GetDish(context.Background(), dish.ID)
	require.NoError(t, err)
	assert.Equal(t, "Margherita", detail.Dish.Name)
	assert.Equal(t, "Pizza", detail.Dish.Category.Name)
	assert.Len(t, detail.Composition, 3)
	assert.Equal(t, "kg", detail.Composition[0].Unit)

	assert.Equal(t, []string{events.DishCreated}, f.events.Types())

	var log models.AuditLog
	require.NoError(t, f.db.Where("entity_type = ? AND entity_id = ?", "dish", dish.ID).First(&log).Error)
	assert.Equal(t, models.AuditActionCreate, log.Action)
	assert.Equal(t, "system", log.UserName)
	assert.NotEmpty(t, log.OperationID)
}

func TestCreateDish_UnknownIngredientLeavesNothing(t *testing.T) {
	f := newFixture(t)
	in := f.margherita()
	in.Composition = append(in.Composition, composition.Item{IngredientID: 999, Quantity: 1})

	dish, err := f.co.CreateDish(context.Background(), in)
	assert.Nil(t, dish)

	var v *apperr.ValidationError
	require.ErrorAs(t, err, &v)
	assert.True(t, errors.Is(err, apperr.ErrUnknownIngredient))
	var failed *apperr.DishCreationFailedError
	assert.False(t, errors.As(err, &failed))

	assert.Equal(t, int64(0), dbtest.Count(t, f.db, &models.Dish{}))
	assert.Equal(t, int64(0), dbtest.Count(t, f.db, &models.DishIngredient{}))
	assert.Equal(t, int64(0), dbtest.Count(t, f.db, &models.AuditLog{}))
	assert.Empty(t, f.events.Events)
}

func TestCreateDish_DeletedIngredientRejected(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.catalog.Delete(context.Background(), f.tomato.ID))
	before := dbtest.Count(t, f.db, &models.AuditLog{})

	_, err := f.co.CreateDish(context.Background(), f.margherita())

	assert.True(t, errors.Is(err, apperr.ErrUnknownIngredient))
	assert.Equal(t, int64(0), dbtest.Count(t, f.db, &models.Dish{}))
	assert.Equal(t, int64(0), dbtest.Count(t, f.db, &models.DishIngredient{}))
	assert.Equal(t, before, dbtest.Count(t, f.db, &models.AuditLog{}))
}

func TestCreateDish_CompositionWriteFailureRollsBackDishRow(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Callback().Create().Before("gorm:create").Register("fail_dish_ingredients_create", func(tx *gorm.DB) {
		if tx.Statement.Table == "dish_ingredients" {
			tx.AddError(errors.New("disk dolu"))
		}
	}))

	_, err := f.co.CreateDish(context.Background(), f.margherita())

	var failed *apperr.DishCreationFailedError
	require.ErrorAs(t, err, &failed)
	assert.NotEmpty(t, failed.Reason)
	assert.Equal(t, int64(0), dbtest.Count(t, f.db, &models.Dish{}))
	assert.Equal(t, int64(0), dbtest.Count(t, f.db, &models.DishIngredient{}))
	assert.Empty(t, f.events.Events)
}

func TestCreateDish_Validation(t *testing.T) {
	f := newFixture(t)
	cases := map[string]func(*DishInput){
		"empty name":        func(in *DishInput) { in.Name = " " },
		"zero price":        func(in *DishInput) { in.SellingPrice = 0 },
		"empty composition": func(in *DishInput) { in.Composition = nil },
		"zero quantity":     func(in *DishInput) { in.Composition[0].Quantity = 0 },
		"duplicate":         func(in *DishInput) { in.Composition[1].IngredientID = in.Composition[0].IngredientID },
		"unknown category":  func(in *DishInput) { in.CategoryID = 42 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := f.margherita()
			mutate(&in)
			_, err := f.co.CreateDish(context.Background(), in)
			var v *apperr.ValidationError
			require.ErrorAs(t, err, &v)
			var failed *apperr.DishCreationFailedError
			assert.False(t, errors.As(err, &failed), "girdi hatası hiçbir yazmadan önce döner")
		})
	}
	assert.Equal(t, int64(0), dbtest.Count(t, f.db, &models.Dish{}))
}

func TestUpdateDish_ReplacesComposition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dish, err := f.co.CreateDish(ctx, f.margherita())
	require.NoError(t, err)

	in := f.margherita()
	in.Name = "Margherita Büyük"
	in.SellingPrice = 340
	in.Composition = []composition.Item{
		{IngredientID: f.flour.ID, Quantity: 0.35},
		{IngredientID: f.cheese.ID, Quantity: 0.18, Unit: "kg"},
	}
	updated, err := f.co.UpdateDish(ctx, dish.ID, in)
	require.NoError(t, err)
	assert.Equal(t, "Margherita Büyük", updated.Name)

	assert.Equal(t, []composition.Item{
		{IngredientID: f.flour.ID, Quantity: 0.35, Unit: "kg"},
		{IngredientID: f.cheese.ID, Quantity: 0.18, Unit: "kg"},
	}, f.items(t, dish.ID))
	assert.Equal(t, []string{events.DishCreated, events.DishUpdated}, f.events.Types())

	var log models.AuditLog
	require.NoError(t, f.db.Where("entity_type = ? AND action = ?", "dish", models.AuditActionUpdate).First(&log).Error)
	var before DishSnapshot
	require.NoError(t, json.Unmarshal([]byte(log.BeforeData), &before))
	assert.Equal(t, "Margherita", before.Dish.Name)
	assert.Len(t, before.Composition, 3)
}

func TestUpdateDish_DeletedIngredientKeepsPreviousState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dish, err := f.co.CreateDish(ctx, f.margherita())
	require.NoError(t, err)
	original := f.items(t, dish.ID)

	other := dbtest.Ingredient(t, f.db, "Fesleğen", 500, 0)
	require.NoError(t, f.catalog.Delete(ctx, other.ID))

	in := f.margherita()
	in.Name = "Değişmemeli"
	in.Composition = []composition.Item{{IngredientID: other.ID, Quantity: 0.01}}
	_, err = f.co.UpdateDish(ctx, dish.ID, in)

	var v *apperr.ValidationError
	require.ErrorAs(t, err, &v)
	assert.True(t, errors.Is(err, apperr.ErrUnknownIngredient))

	assert.Equal(t, original, f.items(t, dish.ID))
	detail, err := f.co.GetDish(ctx, dish.ID)
	require.NoError(t, err)
	assert.Equal(t, "Margherita", detail.Dish.Name)
}

func TestUpdateDish_FailureKeepsPreviousState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dish, err := f.co.CreateDish(ctx, f.margherita())
	require.NoError(t, err)
	original := f.items(t, dish.ID)

	require.NoError(t, f.db.Callback().Create().Before("gorm:create").Register("fail_dish_ingredients_create", func(tx *gorm.DB) {
		if tx.Statement.Table == "dish_ingredients" {
			tx.AddError(errors.New("disk dolu"))
		}
	}))

	in := f.margherita()
	in.Name = "Değişmemeli"
	in.Composition = in.Composition[:1]
	_, err = f.co.UpdateDish(ctx, dish.ID, in)

	var failed *apperr.DishUpdateFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, dish.ID, failed.DishID)

	assert.Equal(t, original, f.items(t, dish.ID))
	detail, err := f.co.GetDish(ctx, dish.ID)
	require.NoError(t, err)
	assert.Equal(t, "Margherita", detail.Dish.Name)
}

func TestUpdateDish_TransientErrorIsRetryable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dish, err := f.co.CreateDish(ctx, f.margherita())
	require.NoError(t, err)

	require.NoError(t, f.db.Callback().Update().Before("gorm:update").Register("deadlock_dishes_update", func(tx *gorm.DB) {
		if tx.Statement.Table == "dishes" {
			tx.AddError(&pgconn.PgError{Code: "40P01"})
		}
	}))

	in := f.margherita()
	in.Name = "Yeni Ad"
	_, err = f.co.UpdateDish(ctx, dish.ID, in)
	require.Error(t, err)
	assert.True(t, apperr.Retryable(err))

	detail, err := f.co.GetDish(ctx, dish.ID)
	require.NoError(t, err)
	assert.Equal(t, "Margherita", detail.Dish.Name)
}

func TestUpdateDish_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.co.UpdateDish(context.Background(), 77, f.margherita())
	var nf *apperr.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestUpdateDish_ConcurrentSameDish(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dish, err := f.co.CreateDish(ctx, f.margherita())
	require.NoError(t, err)

	a := f.margherita()
	a.Composition = []composition.Item{
		{IngredientID: f.flour.ID, Quantity: 0.3, Unit: "kg"},
		{IngredientID: f.cheese.ID, Quantity: 0.1, Unit: "kg"},
	}
	b := f.margherita()
	b.Composition = []composition.Item{
		{IngredientID: f.tomato.ID, Quantity: 0.2, Unit: "kg"},
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, in := range []DishInput{a, b} {
		wg.Add(1)
		go func(i int, in DishInput) {
			defer wg.Done()
			_, errs[i] = f.co.UpdateDish(ctx, dish.ID, in)
		}(i, in)
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	got := f.items(t, dish.ID)
	if len(got) == len(a.Composition) {
		assert.Equal(t, a.Composition, got)
	} else {
		assert.Equal(t, b.Composition, got)
	}
}

func TestDeleteDish(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dish, err := f.co.CreateDish(ctx, f.margherita())
	require.NoError(t, err)

	err = f.catalog.Delete(ctx, f.cheese.ID)
	var ri *apperr.ReferentialIntegrityError
	require.ErrorAs(t, err, &ri)

	require.NoError(t, f.co.DeleteDish(ctx, dish.ID))
	assert.Equal(t, int64(0), dbtest.Count(t, f.db, &models.DishIngredient{}))

	detail, err := f.co.GetDish(ctx, dish.ID)
	require.NoError(t, err)
	assert.True(t, detail.Dish.Deleted)

	list, err := f.co.ListDishes(ctx, DishFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)

	// Yemek silindikten sonra malzeme silinebilir
	require.NoError(t, f.catalog.Delete(ctx, f.cheese.ID))

	err = f.co.DeleteDish(ctx, dish.ID)
	var nf *apperr.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestDeleteDish_FailureKeepsDishAndLinks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dish, err := f.co.CreateDish(ctx, f.margherita())
	require.NoError(t, err)
	published := len(f.events.Types())

	require.NoError(t, f.db.Callback().Update().Before("gorm:update").Register("fail_dishes_update", func(tx *gorm.DB) {
		if tx.Statement.Table == "dishes" {
			tx.AddError(errors.New("boom"))
		}
	}))

	err = f.co.DeleteDish(ctx, dish.ID)
	require.Error(t, err)
	assert.False(t, apperr.Retryable(err))

	assert.Equal(t, int64(3), dbtest.Count(t, f.db, &models.DishIngredient{}))
	var d models.Dish
	require.NoError(t, f.db.First(&d, dish.ID).Error)
	assert.False(t, d.Deleted)
	assert.Len(t, f.events.Types(), published)
}

func TestListDishes_Filter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	soup := dbtest.Category(t, f.db, "Çorba")
	_, err := f.co.CreateDish(ctx, f.margherita())
	require.NoError(t, err)
	in := f.margherita()
	in.Name = "Domates Çorbası"
	in.CategoryID = soup.ID
	in.Composition = []composition.Item{{IngredientID: f.tomato.ID, Quantity: 0.3}}
	_, err = f.co.CreateDish(ctx, in)
	require.NoError(t, err)

	all, err := f.co.ListDishes(ctx, DishFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	soups, err := f.co.ListDishes(ctx, DishFilter{CategoryID: soup.ID})
	require.NoError(t, err)
	require.Len(t, soups, 1)
	assert.Equal(t, "Domates Çorbası", soups[0].Name)
}

func TestCategories(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cat, err := f.co.CreateCategory(ctx, CategoryInput{Name: " Tatlı ", Description: "Sütlü tatlılar"})
	require.NoError(t, err)
	assert.Equal(t, "Tatlı", cat.Name)

	_, err = f.co.CreateCategory(ctx, CategoryInput{Name: "pizza"})
	var v *apperr.ValidationError
	require.ErrorAs(t, err, &v)

	cat, err = f.co.UpdateCategory(ctx, cat.ID, CategoryInput{Name: "Tatlılar"})
	require.NoError(t, err)
	assert.Equal(t, "Tatlılar", cat.Name)

	dish, err := f.co.CreateDish(ctx, f.margherita())
	require.NoError(t, err)

	err = f.co.DeleteCategory(ctx, f.category.ID)
	var ri *apperr.ReferentialIntegrityError
	require.ErrorAs(t, err, &ri)
	assert.Equal(t, int64(1), ri.References)

	require.NoError(t, f.co.DeleteDish(ctx, dish.ID))
	require.NoError(t, f.co.DeleteCategory(ctx, f.category.ID))

	active, err := f.co.ListCategories(ctx, false)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "Tatlılar", active[0].Name)

	// Silinmiş kategoriye yemek eklenemez
	_, err = f.co.CreateDish(ctx, f.margherita())
	require.ErrorAs(t, err, &v)
	assert.Equal(t, apperr.CodeUnknownCategory, v.Code)
}

func TestUndoDishChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	dish, err := f.co.CreateDish(ctx, f.margherita())
	require.NoError(t, err)
	original := f.items(t, dish.ID)

	in := f.margherita()
	in.SellingPrice = 999
	in.Composition = []composition.Item{{IngredientID: f.flour.ID, Quantity: 1}}
	_, err = f.co.UpdateDish(ctx, dish.ID, in)
	require.NoError(t, err)

	logID := func(action models.AuditAction) uint {
		var log models.AuditLog
		require.NoError(t, f.db.Where("entity_type = ? AND entity_id = ? AND action = ? AND is_undone = ?", "dish", dish.ID, action, false).
			Order("id DESC").First(&log).Error)
		return log.ID
	}

	// update geri alınır: fiyat ve reçete eski haline döner
	updateLog := logID(models.AuditActionUpdate)
	require.NoError(t, f.co.UndoDishChange(ctx, updateLog))
	assert.Equal(t, original, f.items(t, dish.ID))
	detail, err := f.co.GetDish(ctx, dish.ID)
	require.NoError(t, err)
	assert.Equal(t, 280.0, detail.Dish.SellingPrice)

	err = f.co.UndoDishChange(ctx, updateLog)
	var v *apperr.ValidationError
	require.ErrorAs(t, err, &v, "aynı kayıt iki kez geri alınamaz")

	// delete geri alınır: yemek reçetesiyle döner
	require.NoError(t, f.co.DeleteDish(ctx, dish.ID))
	require.NoError(t, f.co.UndoDishChange(ctx, logID(models.AuditActionDelete)))
	detail, err = f.co.GetDish(ctx, dish.ID)
	require.NoError(t, err)
	assert.False(t, detail.Dish.Deleted)
	assert.Equal(t, original, f.items(t, dish.ID))

	// create geri alınır: yemek silinir
	require.NoError(t, f.co.UndoDishChange(ctx, logID(models.AuditActionCreate)))
	detail, err = f.co.GetDish(ctx, dish.ID)
	require.NoError(t, err)
	assert.True(t, detail.Dish.Deleted)
	assert.Equal(t, int64(0), dbtest.Count(t, f.db, &models.DishIngredient{}))
}

func TestUndoDishChange_OnlyDishLogs(t *testing.T) {
	f := newFixture(t)
	var log models.AuditLog
	require.NoError(t, f.db.Create(&models.AuditLog{EntityType: "ingredient", EntityID: f.flour.ID, Action: models.AuditActionCreate, BeforeData: "null", AfterData: "null"}).Error)
	require.NoError(t, f.db.Last(&log).Error)

	err := f.co.UndoDishChange(context.Background(), log.ID)
	var v *apperr.ValidationError
	assert.ErrorAs(t, err, &v)

	err = f.co.UndoDishChange(context.Background(), 12345)
	var nf *apperr.NotFoundError
	assert.ErrorAs(t, err, &nf)
}
