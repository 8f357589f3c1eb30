package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"restoran-menu/internal/apperr"
	"restoran-menu/internal/audit"
	"restoran-menu/internal/database"
	"restoran-menu/internal/events"
	"restoran-menu/internal/metrics"
	"restoran-menu/internal/models"
	"restoran-menu/internal/observability"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("restoran-menu/inventory")

// Ledger, malzeme partilerinin tek sahibidir: stok girişi, FIFO tüketim,
// durum türetme ve malzemenin toplam stok alanının senkronu.
type Ledger struct {
	db     *gorm.DB
	now    func() time.Time
	events events.Publisher
	log    *zap.Logger
}

type Option func(*Ledger)

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func WithPublisher(p events.Publisher) Option {
	return func(l *Ledger) { l.events = p }
}

func WithLogger(log *zap.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

func NewLedger(db *gorm.DB, opts ...Option) *Ledger {
	l := &Ledger{db: db, now: time.Now, events: events.Nop(), log: zap.NewNop()}
	for _, o := range opts {
		o(l)
	}
	return l
}

// WithTx, dışarıdaki bir transaction'a bağlı kopya döner. Olaylar dış işlem
// commit edilmeden yayınlanmamalı, bu yüzden kopyada yayın kapalıdır.
func (l *Ledger) WithTx(tx *gorm.DB) *Ledger {
	cp := *l
	cp.db = tx
	cp.events = events.Nop()
	return &cp
}

type ReceiveInput struct {
	IngredientID  uint
	Quantity      float64
	PurchaseDate  time.Time
	ExpiryDate    time.Time
	PurchasePrice float64
	SupplierID    *uint
}

func (in ReceiveInput) validate() error {
	if in.IngredientID == 0 {
		return apperr.Validation("ingredient_id", "malzeme zorunlu")
	}
	if !(in.Quantity > 0) {
		return apperr.ValidationCode(apperr.CodeInvalidQuantity, "quantity", "miktar sıfırdan büyük olmalı")
	}
	if in.PurchasePrice < 0 {
		return apperr.Validation("purchase_price", "alış fiyatı negatif olamaz")
	}
	if in.PurchaseDate.IsZero() || in.ExpiryDate.IsZero() {
		return apperr.Validation("expiry_date", "alış ve son kullanma tarihi zorunlu")
	}
	if in.ExpiryDate.Before(in.PurchaseDate) {
		return apperr.Validation("expiry_date", "son kullanma tarihi alış tarihinden önce olamaz")
	}
	return nil
}

// ConsumedBatch: bir tüketimde tek bir partiden düşülen miktar.
type ConsumedBatch struct {
	BatchID        uint               `json:"batch_id"`
	Quantity       float64            `json:"quantity"`
	RemainingAfter float64            `json:"remaining_after"`
	Status         models.BatchStatus `json:"status"`
}

// ReceiveBatch, yeni bir stok partisi kaydeder ve malzemenin toplam stoğunu günceller.
func (l *Ledger) ReceiveBatch(ctx context.Context, in ReceiveInput) (batch *models.IngredientBatch, err error) {
	ctx, span := tracer.Start(ctx, "Ledger.ReceiveBatch", trace.WithAttributes(attribute.Int("ingredient.id", int(in.IngredientID))))
	defer observability.End(span, &err)
	defer metrics.Observe("receive_batch", time.Now(), &err)

	if err := in.validate(); err != nil {
		return nil, err
	}

	now := l.now()
	err = database.Transaction(ctx, l.db, "receive_batch", func(tx *gorm.DB) error {
		ing, err := lockIngredient(tx, in.IngredientID)
		if err != nil {
			return err
		}

		if in.SupplierID != nil {
			var n int64
			if err := tx.Model(&models.Supplier{}).Where("id = ?", *in.SupplierID).Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				return apperr.ValidationCode(apperr.CodeUnknownSupplier, "supplier_id", "tedarikçi bulunamadı (id=%d)", *in.SupplierID)
			}
		}

		b := models.IngredientBatch{
			IngredientID:      ing.ID,
			OriginalQuantity:  in.Quantity,
			RemainingQuantity: in.Quantity,
			PurchaseDate:      in.PurchaseDate,
			ExpiryDate:        in.ExpiryDate,
			PurchasePrice:     in.PurchasePrice,
			SupplierID:        in.SupplierID,
			Status:            DeriveStatus(in.Quantity, in.Quantity, in.ExpiryDate, now),
		}
		if err := tx.Omit("Ingredient").Create(&b).Error; err != nil {
			return err
		}
		if err := syncStock(tx, ing.ID, now); err != nil {
			return err
		}

		batch = &b
		return audit.WriteLog(ctx, tx, audit.LogOptions{
			EntityType:  "ingredient_batch",
			EntityID:    b.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("%s için %.3f %s stok girişi", ing.Name, in.Quantity, ing.Unit),
			After:       b,
		})
	})
	if err != nil {
		return nil, err
	}

	l.log.Info("stok partisi alındı",
		zap.Uint("batch_id", batch.ID),
		zap.Uint("ingredient_id", batch.IngredientID),
		zap.Float64("quantity", batch.OriginalQuantity),
		zap.String("status", string(batch.Status)),
	)
	l.publish(ctx, events.Event{Type: events.BatchReceived, EntityID: batch.ID, OccurredAt: now, Payload: batch})
	return batch, nil
}

// Consume, istenen miktarı son kullanma tarihi en yakın partiden başlayarak düşer
// (eşitlikte küçük id önce). Süresi geçmiş, tükenmiş ya da iptal edilmiş partiler atlanır.
// Kullanılabilir toplam yetmezse hiçbir şey yazılmaz ve InsufficientStockError döner.
func (l *Ledger) Consume(ctx context.Context, ingredientID uint, quantity float64) (consumed []ConsumedBatch, err error) {
	ctx, span := tracer.Start(ctx, "Ledger.Consume", trace.WithAttributes(
		attribute.Int("ingredient.id", int(ingredientID)),
		attribute.Float64("quantity", quantity),
	))
	defer observability.End(span, &err)
	defer metrics.Observe("consume", time.Now(), &err)

	if !(quantity > 0) {
		return nil, apperr.ValidationCode(apperr.CodeInvalidQuantity, "quantity", "miktar sıfırdan büyük olmalı")
	}

	now := l.now()
	var (
		ing        *models.Ingredient
		stockAfter float64
	)
	err = database.Transaction(ctx, l.db, "consume", func(tx *gorm.DB) error {
		var err error
		ing, err = lockIngredient(tx, ingredientID)
		if err != nil {
			return err
		}

		var batches []models.IngredientBatch
		if err := database.ForUpdate(tx).
			Where("ingredient_id = ? AND deleted = ? AND remaining_quantity > ?", ingredientID, false, 0).
			Order("expiry_date ASC").Order("id ASC").
			Find(&batches).Error; err != nil {
			return err
		}

		candidates := batches[:0]
		available := 0.0
		for _, b := range batches {
			if usable(&b, now) {
				candidates = append(candidates, b)
				available += b.RemainingQuantity
			}
		}
		if available+epsilon < quantity {
			return &apperr.InsufficientStockError{IngredientID: ingredientID, Requested: quantity, Available: available}
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			if !candidates[i].ExpiryDate.Equal(candidates[j].ExpiryDate) {
				return candidates[i].ExpiryDate.Before(candidates[j].ExpiryDate)
			}
			return candidates[i].ID < candidates[j].ID
		})

		left := quantity
		consumed = consumed[:0]
		for i := range candidates {
			if left <= epsilon {
				break
			}
			b := &candidates[i]
			take := min(b.RemainingQuantity, left)
			b.RemainingQuantity -= take
			if b.RemainingQuantity <= epsilon {
				b.RemainingQuantity = 0
			}
			left -= take
			b.Status = DeriveStatus(b.RemainingQuantity, b.OriginalQuantity, b.ExpiryDate, now)
			if err := saveQuantity(tx, b, now); err != nil {
				return err
			}
			consumed = append(consumed, ConsumedBatch{
				BatchID:        b.ID,
				Quantity:       take,
				RemainingAfter: b.RemainingQuantity,
				Status:         b.Status,
			})
		}

		if err := syncStock(tx, ingredientID, now); err != nil {
			return err
		}
		if stockAfter, err = l.WithTx(tx).StockLevel(ctx, ingredientID); err != nil {
			return err
		}
		return audit.WriteLog(ctx, tx, audit.LogOptions{
			EntityType:  "ingredient",
			EntityID:    ingredientID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("%s stoğundan %.3f %s tüketildi", ing.Name, quantity, ing.Unit),
			After:       consumed,
		})
	})
	if err != nil {
		return nil, err
	}

	metrics.BatchesTouched.Add(float64(len(consumed)))
	metrics.QuantityConsumed.Add(quantity)
	l.log.Info("stok tüketildi",
		zap.Uint("ingredient_id", ingredientID),
		zap.Float64("quantity", quantity),
		zap.Int("batches", len(consumed)),
	)
	evs := []events.Event{{Type: events.StockConsumed, EntityID: ingredientID, OccurredAt: now, Payload: consumed}}
	if stockAfter <= ing.MinimumStockLevel {
		evs = append(evs, events.Event{Type: events.IngredientLow, EntityID: ingredientID, OccurredAt: now, Payload: map[string]float64{
			"quantity_in_stock":   stockAfter,
			"minimum_stock_level": ing.MinimumStockLevel,
		}})
	}
	l.publish(ctx, evs...)
	return consumed, nil
}

// RecomputeStatus, partinin durumunu kurallara göre yeniden türetir.
// Varsa yönetici ataması bu noktada düşer.
func (l *Ledger) RecomputeStatus(ctx context.Context, batchID uint) (batch *models.IngredientBatch, err error) {
	now := l.now()
	err = database.Transaction(ctx, l.db, "recompute_status", func(tx *gorm.DB) error {
		b, err := lockBatch(tx, batchID)
		if err != nil {
			return err
		}
		b.Status = DeriveStatus(b.RemainingQuantity, b.OriginalQuantity, b.ExpiryDate, now)
		if err := saveQuantity(tx, b, now); err != nil {
			return err
		}
		batch = b
		return nil
	})
	return batch, err
}

// RefreshStatuses, iptal edilmemiş tüm partileri yeniden türetir ve değişen sayısını döner.
// Zamanla süresi dolan partiler ancak bu çağrıyla (ya da bir sonraki mutasyonla) Expired olur.
func (l *Ledger) RefreshStatuses(ctx context.Context) (changed int, err error) {
	defer metrics.Observe("refresh_statuses", time.Now(), &err)

	now := l.now()
	err = database.Transaction(ctx, l.db, "refresh_statuses", func(tx *gorm.DB) error {
		var batches []models.IngredientBatch
		if err := database.ForUpdate(tx).Where("deleted = ?", false).Order("id ASC").Find(&batches).Error; err != nil {
			return err
		}
		for i := range batches {
			b := &batches[i]
			status := DeriveStatus(b.RemainingQuantity, b.OriginalQuantity, b.ExpiryDate, now)
			if status == b.Status && !b.StatusOverridden {
				continue
			}
			b.Status = status
			if err := saveQuantity(tx, b, now); err != nil {
				return err
			}
			changed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	l.log.Info("parti durumları yenilendi", zap.Int("changed", changed))
	return changed, nil
}

// OverrideStatus: yönetici ataması. Sadece dört tanımlı durumdan biri olabilir,
// audit'e yazılır ve bir sonraki miktar/tarih değişikliğinde türetilmiş değere döner.
func (l *Ledger) OverrideStatus(ctx context.Context, batchID uint, status models.BatchStatus) (batch *models.IngredientBatch, err error) {
	defer metrics.Observe("override_status", time.Now(), &err)

	if !status.Valid() {
		return nil, apperr.ValidationCode(apperr.CodeInvalidStatus, "status", "geçersiz durum: %q", status)
	}

	err = database.Transaction(ctx, l.db, "override_status", func(tx *gorm.DB) error {
		b, err := lockBatch(tx, batchID)
		if err != nil {
			return err
		}
		before := *b
		b.Status = status
		b.StatusOverridden = true
		if err := tx.Model(&models.IngredientBatch{}).Where("id = ?", b.ID).Updates(map[string]interface{}{
			"status":            b.Status,
			"status_overridden": true,
			"updated_at":        l.now(),
		}).Error; err != nil {
			return err
		}
		batch = b
		return audit.WriteLog(ctx, tx, audit.LogOptions{
			EntityType:  "ingredient_batch",
			EntityID:    b.ID,
			Action:      models.AuditActionOverride,
			Description: fmt.Sprintf("Parti durumu elle atandı: %s -> %s", before.Status, status),
			Before:      before,
			After:       b,
		})
	})
	if err != nil {
		return nil, err
	}
	l.log.Warn("parti durumu elle atandı", zap.Uint("batch_id", batchID), zap.String("status", string(status)))
	return batch, nil
}

type CorrectionInput struct {
	RemainingQuantity float64
	ExpiryDate        *time.Time
}

// CorrectBatch: sayım düzeltmesi. Kalan miktarın artabildiği tek yol budur.
func (l *Ledger) CorrectBatch(ctx context.Context, batchID uint, in CorrectionInput) (batch *models.IngredientBatch, err error) {
	defer metrics.Observe("correct_batch", time.Now(), &err)

	if in.RemainingQuantity < 0 {
		return nil, apperr.ValidationCode(apperr.CodeInvalidQuantity, "remaining_quantity", "kalan miktar negatif olamaz")
	}

	now := l.now()
	err = database.Transaction(ctx, l.db, "correct_batch", func(tx *gorm.DB) error {
		b, err := lockBatch(tx, batchID)
		if err != nil {
			return err
		}
		if b.Deleted {
			return apperr.Validation("batch_id", "iptal edilmiş parti düzeltilemez")
		}
		if in.RemainingQuantity > b.OriginalQuantity+epsilon {
			return apperr.ValidationCode(apperr.CodeInvalidQuantity, "remaining_quantity", "kalan miktar orijinal miktarı (%.3f) aşamaz", b.OriginalQuantity)
		}
		if in.ExpiryDate != nil && in.ExpiryDate.Before(b.PurchaseDate) {
			return apperr.Validation("expiry_date", "son kullanma tarihi alış tarihinden önce olamaz")
		}

		before := *b
		b.RemainingQuantity = in.RemainingQuantity
		if in.ExpiryDate != nil {
			b.ExpiryDate = *in.ExpiryDate
		}
		b.Status = DeriveStatus(b.RemainingQuantity, b.OriginalQuantity, b.ExpiryDate, now)
		if err := tx.Model(&models.IngredientBatch{}).Where("id = ?", b.ID).Updates(map[string]interface{}{
			"remaining_quantity": b.RemainingQuantity,
			"expiry_date":        b.ExpiryDate,
			"status":             b.Status,
			"status_overridden":  false,
			"updated_at":         now,
		}).Error; err != nil {
			return err
		}
		b.StatusOverridden = false
		if err := syncStock(tx, b.IngredientID, now); err != nil {
			return err
		}
		batch = b
		return audit.WriteLog(ctx, tx, audit.LogOptions{
			EntityType:  "ingredient_batch",
			EntityID:    b.ID,
			Action:      models.AuditActionUpdate,
			Description: "Parti düzeltmesi",
			Before:      before,
			After:       b,
		})
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

// VoidBatch: hatalı girilmiş partiyi iptal eder. Satır silinmez, stok toplamından çıkar.
func (l *Ledger) VoidBatch(ctx context.Context, batchID uint) (err error) {
	defer metrics.Observe("void_batch", time.Now(), &err)

	now := l.now()
	return database.Transaction(ctx, l.db, "void_batch", func(tx *gorm.DB) error {
		b, err := lockBatch(tx, batchID)
		if err != nil {
			return err
		}
		if b.Deleted {
			return apperr.Validation("batch_id", "parti zaten iptal edilmiş")
		}
		if err := tx.Model(&models.IngredientBatch{}).Where("id = ?", b.ID).Updates(map[string]interface{}{
			"deleted":    true,
			"updated_at": now,
		}).Error; err != nil {
			return err
		}
		if err := syncStock(tx, b.IngredientID, now); err != nil {
			return err
		}
		return audit.WriteLog(ctx, tx, audit.LogOptions{
			EntityType:  "ingredient_batch",
			EntityID:    b.ID,
			Action:      models.AuditActionDelete,
			Description: "Parti iptal edildi",
			Before:      b,
		})
	})
}

// StockLevel: malzemenin anlık toplam stoğu (iptal edilmemiş partilerin kalanları).
func (l *Ledger) StockLevel(ctx context.Context, ingredientID uint) (float64, error) {
	var total float64
	err := l.db.WithContext(ctx).Model(&models.IngredientBatch{}).
		Select("COALESCE(SUM(remaining_quantity), 0)").
		Where("ingredient_id = ? AND deleted = ?", ingredientID, false).
		Scan(&total).Error
	if err != nil {
		return 0, apperr.FromStore("stock_level", err)
	}
	return total, nil
}

func (l *Ledger) ListBatches(ctx context.Context, ingredientID uint, includeVoided bool) ([]models.IngredientBatch, error) {
	q := l.db.WithContext(ctx).Where("ingredient_id = ?", ingredientID)
	if !includeVoided {
		q = q.Where("deleted = ?", false)
	}
	var batches []models.IngredientBatch
	if err := q.Order("expiry_date ASC").Order("id ASC").Find(&batches).Error; err != nil {
		return nil, apperr.FromStore("list_batches", err)
	}
	return batches, nil
}

func (l *Ledger) publish(ctx context.Context, evs ...events.Event) {
	if err := l.events.Publish(ctx, evs...); err != nil {
		l.log.Warn("olay yayınlanamadı", zap.Error(err))
	}
}

func lockIngredient(tx *gorm.DB, id uint) (*models.Ingredient, error) {
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

func lockBatch(tx *gorm.DB, id uint) (*models.IngredientBatch, error) {
	var b models.IngredientBatch
	err := database.ForUpdate(tx).Where("id = ?", id).First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("ingredient_batch", id)
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// saveQuantity kalan miktarı ve türetilmiş durumu yazar; yönetici ataması düşer.
func saveQuantity(tx *gorm.DB, b *models.IngredientBatch, now time.Time) error {
	b.StatusOverridden = false
	return tx.Model(&models.IngredientBatch{}).Where("id = ?", b.ID).Updates(map[string]interface{}{
		"remaining_quantity": b.RemainingQuantity,
		"status":             b.Status,
		"status_overridden":  false,
		"updated_at":         now,
	}).Error
}

// syncStock, malzemenin quantity_in_stock alanını parti toplamından yeniden yazar.
func syncStock(tx *gorm.DB, ingredientID uint, now time.Time) error {
	return tx.Exec(`
		UPDATE ingredients
		SET quantity_in_stock = (
			SELECT COALESCE(SUM(remaining_quantity), 0)
			FROM ingredient_batches
			WHERE ingredient_id = ? AND deleted = ?
		), updated_at = ?
		WHERE id = ?`, ingredientID, false, now, ingredientID).Error
}
