// Package composition, yemek ile malzeme arasındaki reçete bağlantılarının
// (bill of materials) tek sahibidir. Yazma işlemleri menü koordinatörü
// üzerinden, onun transaction'ı içinde yapılır.
package composition

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"restoran-menu/internal/apperr"
	"restoran-menu/internal/models"

	"gorm.io/gorm"
)

// Item: reçetenin tek satırı için girdi.
type Item struct {
	IngredientID uint    `json:"ingredient_id"`
	Quantity     float64 `json:"quantity"`
	Unit         string  `json:"unit"` // Boşsa malzemenin birimi kullanılır
}

// Usage: bir malzemeyi kullanan aktif yemek.
type Usage struct {
	DishID   uint    `json:"dish_id"`
	DishName string  `json:"dish_name"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
}

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) WithTx(tx *gorm.DB) *Store {
	return &Store{db: tx}
}

// ValidateItems, veritabanına dokunmadan yapılabilen kontrolleri yapar.
func ValidateItems(items []Item) error {
	seen := make(map[uint]struct{}, len(items))
	for _, it := range items {
		if it.IngredientID == 0 {
			return apperr.ValidationCode(apperr.CodeUnknownIngredient, "ingredient_id", "malzeme zorunlu")
		}
		if !(it.Quantity > 0) {
			return apperr.ValidationCode(apperr.CodeInvalidQuantity, "quantity", "malzeme %d için miktar sıfırdan büyük olmalı", it.IngredientID)
		}
		if _, dup := seen[it.IngredientID]; dup {
			return apperr.ValidationCode(apperr.CodeDuplicateIngredient, "ingredient_id", "malzeme %d reçetede birden fazla kez geçiyor", it.IngredientID)
		}
		seen[it.IngredientID] = struct{}{}
	}
	return nil
}

// SetComposition, yemeğin reçetesini tamamen değiştirir. Yeni liste önce
// bütünüyle doğrulanır, eski satırlar ancak ondan sonra silinir; bu yüzden bir
// doğrulama hatası eski reçeteyi asla silmez. Aynı girdiyle tekrar çağrılması
// aynı sonucu verir. Atomiklik için çağıran transaction içinde olmalıdır.
func (s *Store) SetComposition(ctx context.Context, dishID uint, items []Item) error {
	if err := ValidateItems(items); err != nil {
		return err
	}
	db := s.db.WithContext(ctx)

	var dishCount int64
	if err := db.Model(&models.Dish{}).Where("id = ? AND deleted = ?", dishID, false).Count(&dishCount).Error; err != nil {
		return apperr.FromStore("set_composition", err)
	}
	if dishCount == 0 {
		return apperr.NotFound("dish", dishID)
	}

	units, err := s.activeIngredientUnits(db, items)
	if err != nil {
		return err
	}

	// Buradan sonrası yazma: önce hepsini sil, sonra ekle
	if err := db.Where("dish_id = ?", dishID).Delete(&models.DishIngredient{}).Error; err != nil {
		return apperr.FromStore("set_composition", err)
	}
	if len(items) == 0 {
		return nil
	}

	now := time.Now()
	rows := make([]models.DishIngredient, 0, len(items))
	for _, it := range items {
		unit := strings.TrimSpace(it.Unit)
		if unit == "" {
			unit = units[it.IngredientID]
		}
		rows = append(rows, models.DishIngredient{
			DishID:         dishID,
			IngredientID:   it.IngredientID,
			QuantityNeeded: it.Quantity,
			Unit:           unit,
			CreatedAt:      now,
		})
	}
	if err := db.Omit("Ingredient").Create(&rows).Error; err != nil {
		return apperr.FromStore("set_composition", err)
	}
	return nil
}

// activeIngredientUnits, listedeki tüm malzemelerin var ve silinmemiş
// olduğunu doğrular; birimlerini döner.
func (s *Store) activeIngredientUnits(db *gorm.DB, items []Item) (map[uint]string, error) {
	units := make(map[uint]string, len(items))
	if len(items) == 0 {
		return units, nil
	}
	ids := make([]uint, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.IngredientID)
	}

	var found []models.Ingredient
	if err := db.Select("id", "unit").Where("id IN ? AND deleted = ?", ids, false).Find(&found).Error; err != nil {
		return nil, apperr.FromStore("set_composition", err)
	}
	for _, ing := range found {
		units[ing.ID] = ing.Unit
	}
	for _, id := range ids {
		if _, ok := units[id]; !ok {
			return nil, apperr.ValidationCode(apperr.CodeUnknownIngredient, "ingredient_id", "malzeme bulunamadı veya silinmiş (id=%d)", id)
		}
	}
	return units, nil
}

// GetComposition: yemeğin reçetesi, malzeme id sırasıyla.
func (s *Store) GetComposition(ctx context.Context, dishID uint) ([]models.DishIngredient, error) {
	var rows []models.DishIngredient
	err := s.db.WithContext(ctx).
		Preload("Ingredient").
		Where("dish_id = ?", dishID).
		Order("ingredient_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, apperr.FromStore("get_composition", err)
	}
	return rows, nil
}

func (s *Store) RemoveAllForDish(ctx context.Context, dishID uint) error {
	if err := s.db.WithContext(ctx).Where("dish_id = ?", dishID).Delete(&models.DishIngredient{}).Error; err != nil {
		return apperr.FromStore("remove_composition", err)
	}
	return nil
}

// UsageOf: "bu malzeme hangi yemeklerde kullanılıyor" sorgusu (sadece aktif yemekler).
func (s *Store) UsageOf(ctx context.Context, ingredientID uint) ([]Usage, error) {
	var usage []Usage
	err := s.db.WithContext(ctx).
		Table("dish_ingredients AS di").
		Select("di.dish_id AS dish_id, d.name AS dish_name, di.quantity_needed AS quantity, di.unit AS unit").
		Joins("JOIN dishes d ON d.id = di.dish_id").
		Where("di.ingredient_id = ? AND d.deleted = ?", ingredientID, false).
		Order("di.dish_id ASC").
		Scan(&usage).Error
	if err != nil {
		return nil, apperr.FromStore("usage_of", err)
	}
	return usage, nil
}

// ToItems: kayıtlı reçeteyi tekrar SetComposition'a verilebilecek biçime çevirir.
func ToItems(rows []models.DishIngredient) []Item {
	items := make([]Item, 0, len(rows))
	for _, r := range rows {
		items = append(items, Item{IngredientID: r.IngredientID, Quantity: r.QuantityNeeded, Unit: r.Unit})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].IngredientID < items[j].IngredientID })
	return items
}

// IsUnknownIngredient: hata zincirinde bilinmeyen malzeme hatası var mı?
func IsUnknownIngredient(err error) bool {
	return errors.Is(err, apperr.ErrUnknownIngredient)
}
