// Package menu, yemek ve reçete değişikliklerinin tek giriş noktasıdır.
// Her çok adımlı işlem tek bir transaction içinde çalışır: ya hepsi commit
// edilir ya da hiçbiri görünmez.
package menu

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"restoran-menu/internal/apperr"
	"restoran-menu/internal/audit"
	"restoran-menu/internal/composition"
	"restoran-menu/internal/database"
	"restoran-menu/internal/events"
	"restoran-menu/internal/ingredient"
	"restoran-menu/internal/metrics"
	"restoran-menu/internal/models"
	"restoran-menu/internal/observability"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("restoran-menu/menu")

type Coordinator struct {
	db      *gorm.DB
	store   *composition.Store
	catalog *ingredient.Catalog
	events  events.Publisher
	log     *zap.Logger
}

func NewCoordinator(db *gorm.DB, catalog *ingredient.Catalog, publisher events.Publisher, log *zap.Logger) *Coordinator {
	if publisher == nil {
		publisher = events.Nop()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		db:      db,
		store:   composition.NewStore(db),
		catalog: catalog,
		events:  publisher,
		log:     log,
	}
}

type DishInput struct {
	Name               string
	CategoryID         uint
	SellingPrice       float64
	RecipeInstructions string
	IsAvailable        bool
	Composition        []composition.Item
}

func (in *DishInput) validate() error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return apperr.Validation("name", "yemek adı zorunlu")
	}
	if in.CategoryID == 0 {
		return apperr.ValidationCode(apperr.CodeUnknownCategory, "category_id", "kategori zorunlu")
	}
	if !(in.SellingPrice > 0) {
		return apperr.Validation("selling_price", "satış fiyatı sıfırdan büyük olmalı")
	}
	if len(in.Composition) == 0 {
		return apperr.ValidationCode(apperr.CodeEmptyComposition, "composition", "reçete en az bir malzeme içermeli")
	}
	return composition.ValidateItems(in.Composition)
}

func (in *DishInput) ingredientIDs() []uint {
	ids := make([]uint, 0, len(in.Composition))
	for _, it := range in.Composition {
		ids = append(ids, it.IngredientID)
	}
	return ids
}

// DishSnapshot: audit kaydında ve undo'da kullanılan yemek + reçete hali.
type DishSnapshot struct {
	Dish        models.Dish        `json:"dish"`
	Composition []composition.Item `json:"composition"`
}

func (s DishSnapshot) input() DishInput {
	return DishInput{
		Name:               s.Dish.Name,
		CategoryID:         s.Dish.CategoryID,
		SellingPrice:       s.Dish.SellingPrice,
		RecipeInstructions: s.Dish.RecipeInstructions,
		IsAvailable:        s.Dish.IsAvailable,
		Composition:        s.Composition,
	}
}

// DishDetail: yemek ve reçetesi
type DishDetail struct {
	Dish        models.Dish
	Composition []models.DishIngredient
}

// CreateDish, yemeği reçetesiyle birlikte oluşturur. Reçete yazımı herhangi
// bir satırda başarısız olursa önceden yazılan yemek satırı da geri alınır ve
// DishCreationFailedError döner; okuyucular hiçbir zaman reçetesiz yemek görmez.
func (co *Coordinator) CreateDish(ctx context.Context, in DishInput) (dish *models.Dish, err error) {
	ctx, span := tracer.Start(ctx, "Coordinator.CreateDish")
	defer observability.End(span, &err)
	defer metrics.Observe("create_dish", time.Now(), &err)

	if err := in.validate(); err != nil {
		return nil, err
	}

	ctx = audit.WithOperation(ctx)
	err = database.Transaction(ctx, co.db, "create_dish", func(tx *gorm.DB) error {
		d, err := co.createDishTx(ctx, tx, in)
		dish = d
		return err
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("dish.id", int(dish.ID)))
	co.log.Info("yemek oluşturuldu", zap.Uint("dish_id", dish.ID), zap.String("name", dish.Name), zap.Int("ingredients", len(in.Composition)))
	co.publish(ctx, events.Event{Type: events.DishCreated, EntityID: dish.ID, OccurredAt: time.Now(), Payload: DishSnapshot{Dish: *dish, Composition: in.Composition}})
	return dish, nil
}

func (co *Coordinator) createDishTx(ctx context.Context, tx *gorm.DB, in DishInput) (*models.Dish, error) {
	if err := lockCategory(tx, in.CategoryID); err != nil {
		return nil, err
	}
	// Bilinmeyen ya da silinmiş malzeme, yemek satırı yazılmadan reddedilir
	if err := co.catalog.WithTx(tx).LockActive(ctx, in.ingredientIDs()); err != nil {
		return nil, err
	}

	fail := func(reason string, cause error) error {
		return &apperr.DishCreationFailedError{Reason: reason, Cause: apperr.FromStore("create_dish", cause)}
	}

	dish := models.Dish{
		Name:               in.Name,
		CategoryID:         in.CategoryID,
		SellingPrice:       in.SellingPrice,
		RecipeInstructions: in.RecipeInstructions,
		IsAvailable:        in.IsAvailable,
	}
	if err := tx.Omit("Category").Create(&dish).Error; err != nil {
		return nil, fail("yemek kaydı yazılamadı", err)
	}

	// Bu noktadan sonraki her hata, yukarıdaki satırla birlikte geri alınır
	if err := co.store.WithTx(tx).SetComposition(ctx, dish.ID, in.Composition); err != nil {
		return nil, fail(apperr.Reason(err), err)
	}

	if err := audit.WriteLog(ctx, tx, audit.LogOptions{
		EntityType:  "dish",
		EntityID:    dish.ID,
		Action:      models.AuditActionCreate,
		Description: fmt.Sprintf("Yemek oluşturuldu: %s", dish.Name),
		After:       DishSnapshot{Dish: dish, Composition: in.Composition},
	}); err != nil {
		return nil, fail("audit kaydı yazılamadı", err)
	}
	return &dish, nil
}

// UpdateDish, yemek alanlarını günceller ve reçeteyi tamamen değiştirir.
// Reçete değişimi başarısız olursa DishUpdateFailedError döner; yemek ve
// önceki reçetesi olduğu gibi kalır.
func (co *Coordinator) UpdateDish(ctx context.Context, dishID uint, in DishInput) (dish *models.Dish, err error) {
	ctx, span := tracer.Start(ctx, "Coordinator.UpdateDish", trace.WithAttributes(attribute.Int("dish.id", int(dishID))))
	defer observability.End(span, &err)
	defer metrics.Observe("update_dish", time.Now(), &err)

	if err := in.validate(); err != nil {
		return nil, err
	}

	ctx = audit.WithOperation(ctx)
	err = database.Transaction(ctx, co.db, "update_dish", func(tx *gorm.DB) error {
		d, err := co.updateDishTx(ctx, tx, dishID, in)
		dish = d
		return err
	})
	if err != nil {
		return nil, err
	}

	co.log.Info("yemek güncellendi", zap.Uint("dish_id", dishID), zap.Int("ingredients", len(in.Composition)))
	co.publish(ctx, events.Event{Type: events.DishUpdated, EntityID: dishID, OccurredAt: time.Now(), Payload: DishSnapshot{Dish: *dish, Composition: in.Composition}})
	return dish, nil
}

func (co *Coordinator) updateDishTx(ctx context.Context, tx *gorm.DB, dishID uint, in DishInput) (*models.Dish, error) {
	// Aynı yemek üzerindeki eşzamanlı işlemler bu kilitte sıraya girer
	current, err := lockDish(tx, dishID, false)
	if err != nil {
		return nil, err
	}
	if err := lockCategory(tx, in.CategoryID); err != nil {
		return nil, err
	}
	if err := co.catalog.WithTx(tx).LockActive(ctx, in.ingredientIDs()); err != nil {
		return nil, err
	}

	store := co.store.WithTx(tx)
	before, err := snapshot(ctx, store, current)
	if err != nil {
		return nil, err
	}

	fail := func(reason string, cause error) error {
		return &apperr.DishUpdateFailedError{DishID: dishID, Reason: reason, Cause: apperr.FromStore("update_dish", cause)}
	}

	now := time.Now()
	if err := tx.Model(&models.Dish{}).Where("id = ?", dishID).Updates(map[string]interface{}{
		"name":                in.Name,
		"category_id":         in.CategoryID,
		"selling_price":       in.SellingPrice,
		"recipe_instructions": in.RecipeInstructions,
		"is_available":        in.IsAvailable,
		"updated_at":          now,
	}).Error; err != nil {
		return nil, fail("yemek alanları güncellenemedi", err)
	}

	if err := store.SetComposition(ctx, dishID, in.Composition); err != nil {
		return nil, fail(apperr.Reason(err), err)
	}

	updated := *current
	updated.Name = in.Name
	updated.CategoryID = in.CategoryID
	updated.SellingPrice = in.SellingPrice
	updated.RecipeInstructions = in.RecipeInstructions
	updated.IsAvailable = in.IsAvailable
	updated.UpdatedAt = now

	if err := audit.WriteLog(ctx, tx, audit.LogOptions{
		EntityType:  "dish",
		EntityID:    dishID,
		Action:      models.AuditActionUpdate,
		Description: fmt.Sprintf("Yemek güncellendi: %s", updated.Name),
		Before:      before,
		After:       DishSnapshot{Dish: updated, Composition: in.Composition},
	}); err != nil {
		return nil, fail("audit kaydı yazılamadı", err)
	}
	return &updated, nil
}

// DeleteDish önce reçete bağlantılarını siler, sonra yemeği soft-delete eder.
// Adımlardan biri başarısız olursa yemek çağrı öncesindeki haliyle kalır.
func (co *Coordinator) DeleteDish(ctx context.Context, dishID uint) (err error) {
	ctx, span := tracer.Start(ctx, "Coordinator.DeleteDish", trace.WithAttributes(attribute.Int("dish.id", int(dishID))))
	defer observability.End(span, &err)
	defer metrics.Observe("delete_dish", time.Now(), &err)

	ctx = audit.WithOperation(ctx)
	err = database.Transaction(ctx, co.db, "delete_dish", func(tx *gorm.DB) error {
		return co.deleteDishTx(ctx, tx, dishID)
	})
	if err != nil {
		return err
	}

	co.log.Info("yemek silindi", zap.Uint("dish_id", dishID))
	co.publish(ctx, events.Event{Type: events.DishDeleted, EntityID: dishID, OccurredAt: time.Now()})
	return nil
}

func (co *Coordinator) deleteDishTx(ctx context.Context, tx *gorm.DB, dishID uint) error {
	current, err := lockDish(tx, dishID, false)
	if err != nil {
		return err
	}
	store := co.store.WithTx(tx)
	before, err := snapshot(ctx, store, current)
	if err != nil {
		return err
	}

	if err := store.RemoveAllForDish(ctx, dishID); err != nil {
		return err
	}
	now := time.Now()
	if err := tx.Model(&models.Dish{}).Where("id = ?", dishID).Updates(map[string]interface{}{
		"deleted":    true,
		"deleted_at": now,
		"updated_at": now,
	}).Error; err != nil {
		return err
	}

	return audit.WriteLog(ctx, tx, audit.LogOptions{
		EntityType:  "dish",
		EntityID:    dishID,
		Action:      models.AuditActionDelete,
		Description: fmt.Sprintf("Yemek silindi: %s", current.Name),
		Before:      before,
	})
}

// restoreDishTx, silinmiş bir yemeği kayıtlı haliyle (reçetesi dahil) geri getirir.
func (co *Coordinator) restoreDishTx(ctx context.Context, tx *gorm.DB, snap DishSnapshot) (*models.Dish, error) {
	current, err := lockDish(tx, snap.Dish.ID, true)
	if err != nil {
		return nil, err
	}
	if !current.Deleted {
		return nil, apperr.Validation("dish_id", "yemek zaten aktif")
	}
	in := snap.input()
	if err := in.validate(); err != nil {
		return nil, err
	}
	if err := lockCategory(tx, in.CategoryID); err != nil {
		return nil, err
	}

	fail := func(reason string, cause error) error {
		return &apperr.DishUpdateFailedError{DishID: current.ID, Reason: reason, Cause: apperr.FromStore("restore_dish", cause)}
	}

	if err := tx.Model(&models.Dish{}).Where("id = ?", current.ID).Updates(map[string]interface{}{
		"name":                in.Name,
		"category_id":         in.CategoryID,
		"selling_price":       in.SellingPrice,
		"recipe_instructions": in.RecipeInstructions,
		"is_available":        in.IsAvailable,
		"deleted":             false,
		"deleted_at":          nil,
		"updated_at":          time.Now(),
	}).Error; err != nil {
		return nil, fail("yemek geri getirilemedi", err)
	}
	if err := co.catalog.WithTx(tx).LockActive(ctx, in.ingredientIDs()); err != nil {
		return nil, fail(apperr.Reason(err), err)
	}
	if err := co.store.WithTx(tx).SetComposition(ctx, current.ID, in.Composition); err != nil {
		return nil, fail(apperr.Reason(err), err)
	}

	restored := snap.Dish
	restored.Deleted = false
	restored.DeletedAt = nil
	return &restored, nil
}

// GetDish: yemek ve reçetesi. Yemek satırı okunurken paylaşımlı kilitlenir;
// böylece eşzamanlı bir güncellemenin yarısı okunamaz.
func (co *Coordinator) GetDish(ctx context.Context, dishID uint) (*DishDetail, error) {
	var detail *DishDetail
	err := database.Transaction(ctx, co.db, "get_dish", func(tx *gorm.DB) error {
		var dish models.Dish
		err := database.ForShare(tx).Preload("Category").First(&dish, dishID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("dish", dishID)
		}
		if err != nil {
			return err
		}
		rows, err := co.store.WithTx(tx).GetComposition(ctx, dishID)
		if err != nil {
			return err
		}
		detail = &DishDetail{Dish: dish, Composition: rows}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

type DishFilter struct {
	IncludeDeleted bool
	CategoryID     uint
}

func (co *Coordinator) ListDishes(ctx context.Context, f DishFilter) ([]models.Dish, error) {
	q := co.db.WithContext(ctx).Preload("Category").Order("name ASC").Order("id ASC")
	if !f.IncludeDeleted {
		q = q.Where("deleted = ?", false)
	}
	if f.CategoryID > 0 {
		q = q.Where("category_id = ?", f.CategoryID)
	}
	var dishes []models.Dish
	if err := q.Find(&dishes).Error; err != nil {
		return nil, apperr.FromStore("list_dishes", err)
	}
	return dishes, nil
}

func (co *Coordinator) publish(ctx context.Context, evs ...events.Event) {
	if err := co.events.Publish(ctx, evs...); err != nil {
		co.log.Warn("olay yayınlanamadı", zap.Error(err))
	}
}

func snapshot(ctx context.Context, store *composition.Store, dish *models.Dish) (DishSnapshot, error) {
	rows, err := store.GetComposition(ctx, dish.ID)
	if err != nil {
		return DishSnapshot{}, err
	}
	return DishSnapshot{Dish: *dish, Composition: composition.ToItems(rows)}, nil
}

// lockDish: yemek satırını FOR UPDATE kilitler. includeDeleted false ise
// silinmiş yemek bulunamamış sayılır.
func lockDish(tx *gorm.DB, id uint, includeDeleted bool) (*models.Dish, error) {
	q := database.ForUpdate(tx).Where("id = ?", id)
	if !includeDeleted {
		q = q.Where("deleted = ?", false)
	}
	var dish models.Dish
	err := q.First(&dish).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("dish", id)
	}
	if err != nil {
		return nil, err
	}
	return &dish, nil
}

// lockCategory: kategori aktif olmalı; paylaşımlı kilit eşzamanlı silmeyi engeller.
func lockCategory(tx *gorm.DB, id uint) error {
	var ids []uint
	if err := database.ForShare(tx.Model(&models.Category{})).
		Where("id = ? AND deleted = ?", id, false).
		Pluck("id", &ids).Error; err != nil {
		return err
	}
	if len(ids) == 0 {
		return apperr.ValidationCode(apperr.CodeUnknownCategory, "category_id", "kategori bulunamadı veya silinmiş (id=%d)", id)
	}
	return nil
}
