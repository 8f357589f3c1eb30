package inventory

import (
	"context"
	"strings"

	"restoran-menu/internal/apperr"
	"restoran-menu/internal/models"
)

type SupplierInput struct {
	Name        string
	Phone       string
	Description string
}

func (l *Ledger) CreateSupplier(ctx context.Context, in SupplierInput) (*models.Supplier, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, apperr.Validation("name", "tedarikçi adı zorunlu")
	}

	var n int64
	if err := l.db.WithContext(ctx).Model(&models.Supplier{}).Where("name = ?", in.Name).Count(&n).Error; err != nil {
		return nil, apperr.FromStore("create_supplier", err)
	}
	if n > 0 {
		return nil, apperr.Validation("name", "bu isimde bir tedarikçi zaten var")
	}

	s := models.Supplier{Name: in.Name, Phone: strings.TrimSpace(in.Phone), Description: strings.TrimSpace(in.Description)}
	if err := l.db.WithContext(ctx).Create(&s).Error; err != nil {
		return nil, apperr.FromStore("create_supplier", err)
	}
	return &s, nil
}

func (l *Ledger) ListSuppliers(ctx context.Context) ([]models.Supplier, error) {
	var suppliers []models.Supplier
	if err := l.db.WithContext(ctx).Order("name asc").Find(&suppliers).Error; err != nil {
		return nil, apperr.FromStore("list_suppliers", err)
	}
	return suppliers, nil
}
