package models

import "time"

// Ingredient: Ham madde ana kaydı. QuantityInStock her zaman partilerden türetilir.
type Ingredient struct {
	ID                uint    `gorm:"primaryKey"`
	Name              string  `gorm:"size:100;not null;index"`
	Unit              string  `gorm:"size:20;not null"` // kg, lt, adet vs.
	QuantityInStock   float64 `gorm:"not null;default:0"`
	MinimumStockLevel float64 `gorm:"not null;default:0"`
	CostPerUnit       float64 `gorm:"not null;default:0"`
	Deleted           bool    `gorm:"not null;index"`
	DeletedAt         *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
