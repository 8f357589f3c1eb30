package models

import "time"

type Dish struct {
	ID                 uint   `gorm:"primaryKey"`
	Name               string `gorm:"size:150;not null"`
	CategoryID         uint   `gorm:"index;not null"`
	Category           Category
	SellingPrice       float64 `gorm:"not null"`
	RecipeInstructions string  `gorm:"type:text"`
	IsAvailable        bool    `gorm:"not null"`
	Deleted            bool    `gorm:"not null;index"`
	DeletedAt          *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// DishIngredient: Yemek reçetesindeki bir satır (bill of materials).
// (dish_id, ingredient_id) ikilisi tekildir.
type DishIngredient struct {
	DishID         uint `gorm:"primaryKey;autoIncrement:false"`
	IngredientID   uint `gorm:"primaryKey;autoIncrement:false;index"`
	Ingredient     Ingredient
	QuantityNeeded float64 `gorm:"not null"`
	Unit           string  `gorm:"size:20;not null"`
	CreatedAt      time.Time
}
