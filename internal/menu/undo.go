package menu

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"restoran-menu/internal/apperr"
	"restoran-menu/internal/audit"
	"restoran-menu/internal/database"
	"restoran-menu/internal/events"
	"restoran-menu/internal/metrics"
	"restoran-menu/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// UndoDishChange, bir yemek audit kaydını geri alır. Geri alma ve logun
// işaretlenmesi aynı transaction içinde yapılır.
//   - create -> yemek silinir
//   - update -> önceki hal (reçete dahil) geri yüklenir
//   - delete -> yemek ve reçetesi geri getirilir
func (co *Coordinator) UndoDishChange(ctx context.Context, logID uint) (err error) {
	defer metrics.Observe("undo_dish_change", time.Now(), &err)

	ctx = audit.WithOperation(ctx)
	var ev events.Event
	err = database.Transaction(ctx, co.db, "undo_dish_change", func(tx *gorm.DB) error {
		var log models.AuditLog
		err := database.ForUpdate(tx).First(&log, logID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("audit_log", logID)
		}
		if err != nil {
			return err
		}
		if log.EntityType != "dish" {
			return apperr.Validation("entity_type", "sadece yemek kayıtları geri alınabilir")
		}
		if log.IsUndone {
			return apperr.Validation("id", "bu işlem zaten geri alınmış")
		}

		switch log.Action {
		case models.AuditActionCreate:
			if err := co.deleteDishTx(ctx, tx, log.EntityID); err != nil {
				return err
			}
			ev = events.Event{Type: events.DishDeleted, EntityID: log.EntityID}

		case models.AuditActionUpdate:
			snap, err := decodeSnapshot(log.BeforeData)
			if err != nil {
				return err
			}
			in := snap.input()
			if err := in.validate(); err != nil {
				return err
			}
			dish, err := co.updateDishTx(ctx, tx, log.EntityID, in)
			if err != nil {
				return err
			}
			ev = events.Event{Type: events.DishUpdated, EntityID: dish.ID, Payload: DishSnapshot{Dish: *dish, Composition: in.Composition}}

		case models.AuditActionDelete:
			snap, err := decodeSnapshot(log.BeforeData)
			if err != nil {
				return err
			}
			snap.Dish.ID = log.EntityID
			dish, err := co.restoreDishTx(ctx, tx, snap)
			if err != nil {
				return err
			}
			ev = events.Event{Type: events.DishCreated, EntityID: dish.ID, Payload: DishSnapshot{Dish: *dish, Composition: snap.Composition}}

		default:
			return apperr.Validation("action", "bu işlem türü geri alınamaz")
		}

		return audit.MarkUndone(ctx, tx, &log)
	})
	if err != nil {
		return err
	}

	co.log.Info("yemek değişikliği geri alındı", zap.Uint("log_id", logID), zap.Uint("dish_id", ev.EntityID))
	ev.OccurredAt = time.Now()
	co.publish(ctx, ev)
	return nil
}

func decodeSnapshot(data string) (DishSnapshot, error) {
	var snap DishSnapshot
	if data == "" || data == "null" {
		return snap, apperr.Validation("before_data", "geri alınacak önceki hal kaydı yok")
	}
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return snap, apperr.Validation("before_data", "önceki hal okunamadı: %v", err)
	}
	return snap, nil
}
