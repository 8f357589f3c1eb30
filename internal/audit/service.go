package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"restoran-menu/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Actor: işlemi yapan kullanıcı. HTTP katmanı context'e koyar.
type Actor struct {
	UserID   uint
	UserName string
}

type actorKey struct{}
type operationKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

func ActorFrom(ctx context.Context) Actor {
	if a, ok := ctx.Value(actorKey{}).(Actor); ok {
		return a
	}
	return Actor{UserName: "system"}
}

// WithOperation: aynı işlemin ürettiği tüm log satırları tek bir operation id paylaşır.
func WithOperation(ctx context.Context) context.Context {
	if _, ok := ctx.Value(operationKey{}).(string); ok {
		return ctx
	}
	return context.WithValue(ctx, operationKey{}, uuid.NewString())
}

func operationFrom(ctx context.Context) string {
	if id, ok := ctx.Value(operationKey{}).(string); ok {
		return id
	}
	return uuid.NewString()
}

type LogOptions struct {
	EntityType  string
	EntityID    uint
	Action      models.AuditAction
	Description string
	Before      any
	After       any
}

// WriteLog, audit kaydını verilen transaction içinde yazar; böylece kayıt
// ancak asıl değişiklik commit edilirse görünür olur.
func WriteLog(ctx context.Context, tx *gorm.DB, opts LogOptions) error {
	actor := ActorFrom(ctx)

	log := models.AuditLog{
		OperationID: operationFrom(ctx),
		UserID:      actor.UserID,
		UserName:    actor.UserName,
		EntityType:  opts.EntityType,
		EntityID:    opts.EntityID,
		Action:      opts.Action,
		Description: opts.Description,
		BeforeData:  marshalOrNull(opts.Before),
		AfterData:   marshalOrNull(opts.After),
	}

	if err := tx.Create(&log).Error; err != nil {
		return fmt.Errorf("audit log kaydedilemedi: %w", err)
	}
	return nil
}

// PostgreSQL jsonb için boş string yerine "null" JSON string'i kullanmalıyız
func marshalOrNull(v any) string {
	if v == nil {
		return "null"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

// MarkUndone: logu geri alınmış olarak işaretler ve undo kaydını yazar.
func MarkUndone(ctx context.Context, tx *gorm.DB, log *models.AuditLog) error {
	actor := ActorFrom(ctx)
	now := time.Now()
	log.IsUndone = true
	log.UndoneBy = &actor.UserID
	log.UndoneAt = &now

	if err := tx.Save(log).Error; err != nil {
		return fmt.Errorf("log güncellenemedi: %w", err)
	}

	undoLog := models.AuditLog{
		OperationID: operationFrom(ctx),
		UserID:      actor.UserID,
		UserName:    actor.UserName,
		EntityType:  log.EntityType,
		EntityID:    log.EntityID,
		Action:      models.AuditActionUndo,
		Description: fmt.Sprintf("Geri alındı: %s", log.Description),
		BeforeData:  log.AfterData,
		AfterData:   log.BeforeData,
		Undone:      true,
	}
	if err := tx.Create(&undoLog).Error; err != nil {
		return fmt.Errorf("undo log kaydedilemedi: %w", err)
	}
	return nil
}

type Filter struct {
	EntityType string
	EntityID   uint
	UserID     uint
	Limit      int
}

func List(ctx context.Context, db *gorm.DB, f Filter) ([]models.AuditLog, error) {
	q := db.WithContext(ctx).Model(&models.AuditLog{})
	if f.EntityType != "" {
		q = q.Where("entity_type = ?", f.EntityType)
	}
	if f.EntityID > 0 {
		q = q.Where("entity_id = ?", f.EntityID)
	}
	if f.UserID > 0 {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var logs []models.AuditLog
	if err := q.Order("created_at DESC").Order("id DESC").Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
