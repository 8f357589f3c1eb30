package ingredient

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"restoran-menu/internal/apperr"
	"restoran-menu/internal/audit"
	"restoran-menu/internal/composition"
	"restoran-menu/internal/database"
	"restoran-menu/internal/inventory"
	"restoran-menu/internal/metrics"
	"restoran-menu/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Catalog, malzeme ana kayıtlarını yönetir. Stok seviyesi her sorguda
// partilerden canlı okunur; önbellekteki quantity_in_stock değerine güvenilmez.
type Catalog struct {
	db     *gorm.DB
	ledger *inventory.Ledger
	store  *composition.Store
	log    *zap.Logger
}

func NewCatalog(db *gorm.DB, ledger *inventory.Ledger, log *zap.Logger) *Catalog {
	if log == nil {
		log = zap.NewNop()
	}
	return &Catalog{db: db, ledger: ledger, store: composition.NewStore(db), log: log}
}

func (c *Catalog) WithTx(tx *gorm.DB) *Catalog {
	return &Catalog{db: tx, ledger: c.ledger.WithTx(tx), store: c.store.WithTx(tx), log: c.log}
}

type Input struct {
	Name              string
	Unit              string
	MinimumStockLevel float64
	CostPerUnit       float64
}

func (in *Input) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Unit = strings.TrimSpace(in.Unit)
	if in.Name == "" {
		return apperr.Validation("name", "malzeme adı zorunlu")
	}
	if in.Unit == "" {
		return apperr.Validation("unit", "birim zorunlu")
	}
	if in.MinimumStockLevel < 0 {
		return apperr.Validation("minimum_stock_level", "minimum stok seviyesi negatif olamaz")
	}
	if in.CostPerUnit < 0 {
		return apperr.Validation("cost_per_unit", "birim maliyet negatif olamaz")
	}
	return nil
}

// StockStatus: malzemenin anlık stok durumu
type StockStatus struct {
	IngredientID      uint    `json:"ingredient_id"`
	Name              string  `json:"name"`
	Unit              string  `json:"unit"`
	QuantityInStock   float64 `json:"quantity_in_stock"`
	MinimumStockLevel float64 `json:"minimum_stock_level"`
	IsLowStock        bool    `json:"is_low_stock"`
	ReorderQuantity   float64 `json:"reorder_quantity"`
}

// IsLow: toplam stok minimum seviyeye eşit ya da altındaysa true.
func IsLow(stock, minimum float64) bool {
	return stock <= minimum
}

// ReorderQuantity: stoğu minimum seviyenin iki katına tamamlayan miktar.
func ReorderQuantity(stock, minimum float64) float64 {
	return math.Max(0, 2*minimum-stock)
}

func (c *Catalog) Create(ctx context.Context, in Input) (ing *models.Ingredient, err error) {
	defer metrics.Observe("create_ingredient", time.Now(), &err)

	if err := in.normalize(); err != nil {
		return nil, err
	}
	err = database.Transaction(ctx, c.db, "create_ingredient", func(tx *gorm.DB) error {
		if err := ensureUniqueName(tx, in.Name, 0); err != nil {
			return err
		}
		row := models.Ingredient{
			Name:              in.Name,
			Unit:              in.Unit,
			MinimumStockLevel: in.MinimumStockLevel,
			CostPerUnit:       in.CostPerUnit,
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		ing = &row
		return audit.WriteLog(ctx, tx, audit.LogOptions{
			EntityType:  "ingredient",
			EntityID:    row.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Malzeme eklendi: %s", row.Name),
			After:       row,
		})
	})
	if err != nil {
		return nil, err
	}
	return ing, nil
}

// Update: ad, birim, minimum seviye ve birim maliyet. Stok miktarı buradan değişmez.
func (c *Catalog) Update(ctx context.Context, id uint, in Input) (ing *models.Ingredient, err error) {
	defer metrics.Observe("update_ingredient", time.Now(), &err)

	if err := in.normalize(); err != nil {
		return nil, err
	}
	err = database.Transaction(ctx, c.db, "update_ingredient", func(tx *gorm.DB) error {
		row, err := lockActive(tx, id)
		if err != nil {
			return err
		}
		if err := ensureUniqueName(tx, in.Name, id); err != nil {
			return err
		}
		before := *row
		if err := tx.Model(&models.Ingredient{}).Where("id = ?", id).Updates(map[string]interface{}{
			"name":                in.Name,
			"unit":                in.Unit,
			"minimum_stock_level": in.MinimumStockLevel,
			"cost_per_unit":       in.CostPerUnit,
		}).Error; err != nil {
			return err
		}
		row.Name, row.Unit = in.Name, in.Unit
		row.MinimumStockLevel, row.CostPerUnit = in.MinimumStockLevel, in.CostPerUnit
		ing = row
		return audit.WriteLog(ctx, tx, audit.LogOptions{
			EntityType:  "ingredient",
			EntityID:    id,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("Malzeme güncellendi: %s", row.Name),
			Before:      before,
			After:       row,
		})
	})
	if err != nil {
		return nil, err
	}
	return ing, nil
}

// GetByID, silinmiş malzemeleri de döner (Deleted alanıyla).
func (c *Catalog) GetByID(ctx context.Context, id uint) (*models.Ingredient, error) {
	var ing models.Ingredient
	err := c.db.WithContext(ctx).First(&ing, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("ingredient", id)
	}
	if err != nil {
		return nil, apperr.FromStore("get_ingredient", err)
	}
	return &ing, nil
}

func (c *Catalog) ListAll(ctx context.Context, includeDeleted bool) ([]models.Ingredient, error) {
	q := c.db.WithContext(ctx).Order("name ASC").Order("id ASC")
	if !includeDeleted {
		q = q.Where("deleted = ?", false)
	}
	var list []models.Ingredient
	if err := q.Find(&list).Error; err != nil {
		return nil, apperr.FromStore("list_ingredients", err)
	}
	return list, nil
}

// IsLowStock: canlı toplam stok <= minimum seviye.
func (c *Catalog) IsLowStock(ctx context.Context, id uint) (bool, error) {
	st, err := c.StockStatus(ctx, id)
	if err != nil {
		return false, err
	}
	return st.IsLowStock, nil
}

// ReorderQuantity: max(0, 2×minimum − canlı toplam stok).
func (c *Catalog) ReorderQuantity(ctx context.Context, id uint) (float64, error) {
	st, err := c.StockStatus(ctx, id)
	if err != nil {
		return 0, err
	}
	return st.ReorderQuantity, nil
}

func (c *Catalog) StockStatus(ctx context.Context, id uint) (*StockStatus, error) {
	ing, err := c.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	stock, err := c.ledger.StockLevel(ctx, id)
	if err != nil {
		return nil, err
	}
	return newStockStatus(ing, stock), nil
}

// LowStock: minimum seviyenin altındaki tüm aktif malzemeler, sipariş miktarıyla.
// Tek bir toplama sorgusuyla okunur.
func (c *Catalog) LowStock(ctx context.Context) ([]StockStatus, error) {
	type row struct {
		models.Ingredient
		Stock float64
	}
	var rows []row
	err := c.db.WithContext(ctx).
		Table("ingredients AS i").
		Select("i.*, COALESCE(SUM(CASE WHEN b.deleted = ? THEN b.remaining_quantity ELSE 0 END), 0) AS stock", false).
		Joins("LEFT JOIN ingredient_batches b ON b.ingredient_id = i.id").
		Where("i.deleted = ?", false).
		Group("i.id").
		Order("i.name ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, apperr.FromStore("low_stock", err)
	}

	out := make([]StockStatus, 0)
	for i := range rows {
		st := newStockStatus(&rows[i].Ingredient, rows[i].Stock)
		if st.IsLowStock {
			out = append(out, *st)
		}
	}
	return out, nil
}

// Usage: malzemeyi kullanan aktif yemekler.
func (c *Catalog) Usage(ctx context.Context, id uint) ([]composition.Usage, error) {
	if _, err := c.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return c.store.UsageOf(ctx, id)
}

// Delete, malzemeyi soft-delete eder. Aktif bir yemeğin reçetesinde geçiyorsa
// ReferentialIntegrityError döner ve hiçbir şey değişmez.
func (c *Catalog) Delete(ctx context.Context, id uint) (err error) {
	defer metrics.Observe("delete_ingredient", time.Now(), &err)

	return database.Transaction(ctx, c.db, "delete_ingredient", func(tx *gorm.DB) error {
		// Satır kilidi: eşzamanlı bir reçete yazımı bu malzemeyi paylaşımlı kilitler
		row, err := lockActive(tx, id)
		if err != nil {
			return err
		}

		usage, err := c.store.WithTx(tx).UsageOf(ctx, id)
		if err != nil {
			return err
		}
		if len(usage) > 0 {
			return &apperr.ReferentialIntegrityError{Entity: "ingredient", ID: id, References: int64(len(usage)), ReferredBy: "yemek"}
		}

		now := time.Now()
		if err := tx.Model(&models.Ingredient{}).Where("id = ?", id).Updates(map[string]interface{}{
			"deleted":    true,
			"deleted_at": now,
		}).Error; err != nil {
			return err
		}
		c.log.Info("malzeme silindi", zap.Uint("ingredient_id", id), zap.String("name", row.Name))
		return audit.WriteLog(ctx, tx, audit.LogOptions{
			EntityType:  "ingredient",
			EntityID:    id,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("Malzeme silindi: %s", row.Name),
			Before:      row,
		})
	})
}

// LockActive, reçetede kullanılacak malzemeleri transaction sonuna kadar
// paylaşımlı kilitler; böylece eşzamanlı bir Delete araya giremez.
// Bulunamayan ya da silinmiş malzeme için ErrUnknownIngredient döner.
func (c *Catalog) LockActive(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	var found []uint
	if err := database.ForShare(c.db.WithContext(ctx).Model(&models.Ingredient{})).
		Where("id IN ? AND deleted = ?", ids, false).
		Pluck("id", &found).Error; err != nil {
		return apperr.FromStore("lock_ingredients", err)
	}
	have := make(map[uint]bool, len(found))
	for _, id := range found {
		have[id] = true
	}
	for _, id := range ids {
		if !have[id] {
			return apperr.ValidationCode(apperr.CodeUnknownIngredient, "ingredient_id", "malzeme bulunamadı veya silinmiş (id=%d)", id)
		}
	}
	return nil
}

func newStockStatus(ing *models.Ingredient, stock float64) *StockStatus {
	return &StockStatus{
		IngredientID:      ing.ID,
		Name:              ing.Name,
		Unit:              ing.Unit,
		QuantityInStock:   stock,
		MinimumStockLevel: ing.MinimumStockLevel,
		IsLowStock:        IsLow(stock, ing.MinimumStockLevel),
		ReorderQuantity:   ReorderQuantity(stock, ing.MinimumStockLevel),
	}
}

func lockActive(tx *gorm.DB, id uint) (*models.Ingredient, error) {
	var ing models.Ingredient
	err := database.ForUpdate(tx).Where("id = ? AND deleted = ?", id, false).First(&ing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("ingredient", id)
	}
	if err != nil {
		return nil, err
	}
	return &ing, nil
}

func ensureUniqueName(tx *gorm.DB, name string, exceptID uint) error {
	var n int64
	if err := tx.Model(&models.Ingredient{}).
		Where("LOWER(name) = LOWER(?) AND deleted = ? AND id <> ?", name, false, exceptID).
		Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return apperr.Validation("name", "bu isimde bir malzeme zaten var")
	}
	return nil
}
