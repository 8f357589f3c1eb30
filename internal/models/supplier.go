package models

import "time"

// Supplier - Ham madde tedarikçisi
type Supplier struct {
	ID          uint   `gorm:"primaryKey"`
	Name        string `gorm:"size:200;not null;unique"`
	Phone       string `gorm:"size:50"`
	Description string `gorm:"size:500"` // Açıklama (opsiyonel)
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
