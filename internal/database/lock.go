package database

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ForUpdate: okunan satırları transaction sonuna kadar yazmaya karşı kilitler.
func ForUpdate(db *gorm.DB) *gorm.DB {
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

// ForShare: okunan satırların eşzamanlı olarak silinmesini/değiştirilmesini engeller.
func ForShare(db *gorm.DB) *gorm.DB {
	return db.Clauses(clause.Locking{Strength: "SHARE"})
}
