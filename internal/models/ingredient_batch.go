package models

import "time"

type BatchStatus string

const (
	BatchStatusAvailable BatchStatus = "Available"
	BatchStatusLow       BatchStatus = "Low"
	BatchStatusExpired   BatchStatus = "Expired"
	BatchStatusDepleted  BatchStatus = "Depleted"
)

// Valid: sadece dört tanımlı durumdan biri mi?
func (s BatchStatus) Valid() bool {
	switch s {
	case BatchStatusAvailable, BatchStatusLow, BatchStatusExpired, BatchStatusDepleted:
		return true
	}
	return false
}

// IngredientBatch: Tek bir stok girişi (parti). Fiziksel olarak silinmez.
type IngredientBatch struct {
	ID                uint `gorm:"primaryKey"`
	IngredientID      uint `gorm:"index;not null"`
	Ingredient        Ingredient
	OriginalQuantity  float64     `gorm:"not null"`
	RemainingQuantity float64     `gorm:"not null"`
	PurchaseDate      time.Time   `gorm:"not null"`
	ExpiryDate        time.Time   `gorm:"index;not null"`
	PurchasePrice     float64     `gorm:"not null;default:0"`
	SupplierID        *uint       `gorm:"index"`
	Status            BatchStatus `gorm:"size:20;not null;index"`
	StatusOverridden  bool        `gorm:"not null"`       // Yönetici elle durum atadıysa true
	Deleted           bool        `gorm:"not null;index"` // Hatalı giriş iptali (stok toplamına girmez)
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
