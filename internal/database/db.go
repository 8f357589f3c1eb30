package database

import (
	"context"
	"fmt"
	"time"

	"restoran-menu/internal/apperr"
	"restoran-menu/internal/config"
	"restoran-menu/internal/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var DB *gorm.DB

// Satır kilidi bekleme üst sınırı (sadece PostgreSQL'de uygulanır)
var lockTimeout time.Duration

func Init(cfg *config.Config, log *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{
		Logger: gormlogger.New(zap.NewStdLog(log.Named("gorm")), gormlogger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("veritabanına bağlanılamadı: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("AutoMigrate hatası: %w", err)
	}

	lockTimeout = cfg.LockTimeout
	DB = db
	log.Info("Veritabanı bağlantısı başarılı. Migration tamamlandı.")
	return db, nil
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.AuditLog{},
		&models.Supplier{},
		&models.Category{},
		&models.Ingredient{},
		&models.IngredientBatch{},
		&models.Dish{},
		&models.DishIngredient{},
	)
}

// Transaction, fn'i tek bir transaction içinde çalıştırır: fn hata dönerse
// ya da panic olursa her şey geri alınır. db zaten bir transaction ise
// savepoint kullanılır. Dönen hata her zaman çekirdek hata tiplerindendir.
func Transaction(ctx context.Context, db *gorm.DB, op string, fn func(tx *gorm.DB) error) error {
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if lockTimeout > 0 && tx.Dialector.Name() == "postgres" {
			if err := tx.Exec(fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", lockTimeout.Milliseconds())).Error; err != nil {
				return err
			}
		}
		return fn(tx)
	})
	return apperr.FromStore(op, err)
}
