// Package apperr, çekirdek işlemlerin döndürdüğü hata türlerini tanımlar.
// Ham veritabanı hataları bu paketin dışına sızmaz; FromStore ile sınıflanır.
package apperr

import (
	"errors"
	"fmt"
)

// Validation kodları
const (
	CodeInvalidInput        = "invalid_input"
	CodeUnknownIngredient   = "unknown_ingredient"
	CodeInvalidQuantity     = "invalid_quantity"
	CodeDuplicateIngredient = "duplicate_ingredient"
	CodeEmptyComposition    = "empty_composition"
	CodeUnknownCategory     = "unknown_category"
	CodeUnknownSupplier     = "unknown_supplier"
	CodeInvalidStatus       = "invalid_status"
)

// coreError tüm çekirdek hata tiplerini işaretler.
type coreError interface {
	error
	coreError()
}

// ValidationError: hatalı girdi. Hiçbir yazma yapılmadan reddedilir.
type ValidationError struct {
	Code    string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (*ValidationError) coreError() {}

// Is, aynı koda sahip ValidationError'ları eşler (errors.Is(err, ErrUnknownIngredient)).
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	if !ok {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

var (
	ErrUnknownIngredient = &ValidationError{Code: CodeUnknownIngredient, Message: "bilinmeyen malzeme"}
	ErrInvalidQuantity   = &ValidationError{Code: CodeInvalidQuantity, Message: "miktar sıfırdan büyük olmalı"}
)

func Validation(field, format string, args ...any) *ValidationError {
	return &ValidationError{Code: CodeInvalidInput, Field: field, Message: fmt.Sprintf(format, args...)}
}

func ValidationCode(code, field, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Field: field, Message: fmt.Sprintf(format, args...)}
}

type NotFoundError struct {
	Entity string
	ID     uint
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s bulunamadı (id=%d)", e.Entity, e.ID)
}

func (*NotFoundError) coreError() {}

func NotFound(entity string, id uint) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// InsufficientStockError: istenen miktar, süresi geçmemiş ve tükenmemiş partilerin toplamını aşıyor.
type InsufficientStockError struct {
	IngredientID uint
	Requested    float64
	Available    float64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("yetersiz stok (malzeme=%d, istenen=%.3f, kullanılabilir=%.3f)", e.IngredientID, e.Requested, e.Available)
}

func (*InsufficientStockError) coreError() {}

// ReferentialIntegrityError: hâlâ aktif referansı olan bir kaydı silme denemesi.
type ReferentialIntegrityError struct {
	Entity     string
	ID         uint
	References int64
	ReferredBy string
}

func (e *ReferentialIntegrityError) Error() string {
	return fmt.Sprintf("%s (id=%d) silinemez: %d aktif %s tarafından kullanılıyor", e.Entity, e.ID, e.References, e.ReferredBy)
}

func (*ReferentialIntegrityError) coreError() {}

// DishCreationFailedError: çok adımlı yemek oluşturma yarıda kaldı, hiçbir şey yazılmadı.
type DishCreationFailedError struct {
	Reason string
	Cause  error
}

func (e *DishCreationFailedError) Error() string {
	return fmt.Sprintf("yemek oluşturulamadı: %s", e.Reason)
}

func (e *DishCreationFailedError) Unwrap() error { return e.Cause }

func (*DishCreationFailedError) coreError() {}

// DishUpdateFailedError: güncelleme yarıda kaldı, önceki hal korunuyor.
type DishUpdateFailedError struct {
	DishID uint
	Reason string
	Cause  error
}

func (e *DishUpdateFailedError) Error() string {
	return fmt.Sprintf("yemek güncellenemedi (id=%d): %s", e.DishID, e.Reason)
}

func (e *DishUpdateFailedError) Unwrap() error { return e.Cause }

func (*DishUpdateFailedError) coreError() {}

// TransientStoreError: kilit zaman aşımı, deadlock veya bağlantı hatası.
// İşlemin tamamı güvenle tekrar denenebilir.
type TransientStoreError struct {
	Op    string
	Cause error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("geçici veritabanı hatası (%s): %v", e.Op, e.Cause)
}

func (e *TransientStoreError) Unwrap() error { return e.Cause }

func (*TransientStoreError) coreError() {}

// StoreError: tekrar denenmesi anlamsız veritabanı hatası.
type StoreError struct {
	Op    string
	Cause error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("veritabanı hatası (%s): %v", e.Op, e.Cause)
}

func (e *StoreError) Unwrap() error { return e.Cause }

func (*StoreError) coreError() {}

// Retryable: hata, tüm işlemin tekrar denenmesiyle çözülebilir mi?
func Retryable(err error) bool {
	var t *TransientStoreError
	return errors.As(err, &t)
}

// Reason: sarmalayıcı hatalar için kısa neden metni.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var v *ValidationError
	if errors.As(err, &v) {
		return v.Error()
	}
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return nf.Error()
	}
	if Retryable(err) {
		return "geçici veritabanı hatası"
	}
	return err.Error()
}
