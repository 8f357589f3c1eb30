package menu

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"restoran-menu/internal/apperr"
	"restoran-menu/internal/audit"
	"restoran-menu/internal/database"
	"restoran-menu/internal/metrics"
	"restoran-menu/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type CategoryInput struct {
	Name        string
	Description string
}

func (in *CategoryInput) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	if in.Name == "" {
		return apperr.Validation("name", "kategori adı zorunlu")
	}
	return nil
}

func (co *Coordinator) CreateCategory(ctx context.Context, in CategoryInput) (cat *models.Category, err error) {
	defer metrics.Observe("create_category", time.Now(), &err)
	if err := in.normalize(); err != nil {
		return nil, err
	}

	ctx = audit.WithOperation(ctx)
	err = database.Transaction(ctx, co.db, "create_category", func(tx *gorm.DB) error {
		if err := ensureUniqueCategory(tx, in.Name, 0); err != nil {
			return err
		}
		row := models.Category{Name: in.Name, Description: in.Description}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		cat = &row
		return audit.WriteLog(ctx, tx, audit.LogOptions{
			EntityType:  "category",
			EntityID:    row.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Kategori oluşturuldu: %s", row.Name),
			After:       row,
		})
	})
	if err != nil {
		return nil, err
	}
	co.log.Info("kategori oluşturuldu", zap.Uint("category_id", cat.ID), zap.String("name", cat.Name))
	return cat, nil
}

func (co *Coordinator) UpdateCategory(ctx context.Context, id uint, in CategoryInput) (cat *models.Category, err error) {
	defer metrics.Observe("update_category", time.Now(), &err)
	if err := in.normalize(); err != nil {
		return nil, err
	}

	ctx = audit.WithOperation(ctx)
	err = database.Transaction(ctx, co.db, "update_category", func(tx *gorm.DB) error {
		row, err := lockActiveCategory(tx, id)
		if err != nil {
			return err
		}
		if err := ensureUniqueCategory(tx, in.Name, id); err != nil {
			return err
		}
		before := *row
		row.Name = in.Name
		row.Description = in.Description
		if err := tx.Save(row).Error; err != nil {
			return err
		}
		cat = row
		return audit.WriteLog(ctx, tx, audit.LogOptions{
			EntityType:  "category",
			EntityID:    id,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("Kategori güncellendi: %s", row.Name),
			Before:      before,
			After:       *row,
		})
	})
	if err != nil {
		return nil, err
	}
	return cat, nil
}

func (co *Coordinator) ListCategories(ctx context.Context, includeDeleted bool) ([]models.Category, error) {
	q := co.db.WithContext(ctx).Order("name ASC")
	if !includeDeleted {
		q = q.Where("deleted = ?", false)
	}
	var list []models.Category
	if err := q.Find(&list).Error; err != nil {
		return nil, apperr.FromStore("list_categories", err)
	}
	return list, nil
}

// DeleteCategory: aktif yemeği olan kategori silinemez (ReferentialIntegrityError).
func (co *Coordinator) DeleteCategory(ctx context.Context, id uint) (err error) {
	defer metrics.Observe("delete_category", time.Now(), &err)

	ctx = audit.WithOperation(ctx)
	return database.Transaction(ctx, co.db, "delete_category", func(tx *gorm.DB) error {
		row, err := lockActiveCategory(tx, id)
		if err != nil {
			return err
		}
		var n int64
		if err := tx.Model(&models.Dish{}).
			Where("category_id = ? AND deleted = ?", id, false).
			Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return &apperr.ReferentialIntegrityError{Entity: "category", ID: id, References: n, ReferredBy: "yemek"}
		}

		now := time.Now()
		if err := tx.Model(&models.Category{}).Where("id = ?", id).Updates(map[string]interface{}{
			"deleted":    true,
			"deleted_at": now,
		}).Error; err != nil {
			return err
		}
		return audit.WriteLog(ctx, tx, audit.LogOptions{
			EntityType:  "category",
			EntityID:    id,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("Kategori silindi: %s", row.Name),
			Before:      *row,
		})
	})
}

func lockActiveCategory(tx *gorm.DB, id uint) (*models.Category, error) {
	var row models.Category
	err := database.ForUpdate(tx).Where("id = ? AND deleted = ?", id, false).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("category", id)
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func ensureUniqueCategory(tx *gorm.DB, name string, exceptID uint) error {
	var n int64
	if err := tx.Model(&models.Category{}).
		Where("LOWER(name) = LOWER(?) AND deleted = ? AND id <> ?", name, false, exceptID).
		Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return apperr.Validation("name", "bu isimde bir kategori zaten var")
	}
	return nil
}
