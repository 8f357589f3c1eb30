package apperr

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// ToFiber, çekirdek hatasını HTTP durum koduna eşler.
func ToFiber(err error) *fiber.Error {
	var (
		fe  *fiber.Error
		v   *ValidationError
		nf  *NotFoundError
		is  *InsufficientStockError
		ri  *ReferentialIntegrityError
		dcf *DishCreationFailedError
		duf *DishUpdateFailedError
	)
	switch {
	case errors.As(err, &fe):
		return fe
	case errors.As(err, &dcf):
		return fiber.NewError(statusForCause(dcf.Cause, fiber.StatusUnprocessableEntity), dcf.Error())
	case errors.As(err, &duf):
		return fiber.NewError(statusForCause(duf.Cause, fiber.StatusUnprocessableEntity), duf.Error())
	case errors.As(err, &v):
		return fiber.NewError(fiber.StatusBadRequest, v.Error())
	case errors.As(err, &nf):
		return fiber.NewError(fiber.StatusNotFound, nf.Error())
	case errors.As(err, &is):
		return fiber.NewError(fiber.StatusConflict, is.Error())
	case errors.As(err, &ri):
		return fiber.NewError(fiber.StatusConflict, ri.Error())
	case Retryable(err):
		return fiber.NewError(fiber.StatusServiceUnavailable, "Geçici veritabanı hatası, lütfen tekrar deneyin")
	default:
		return fiber.NewError(fiber.StatusInternalServerError, "Beklenmeyen sunucu hatası")
	}
}

// Sarmalanmış hatalarda asıl nedenin durum kodunu koru (ör. geçici hata 503 kalsın).
func statusForCause(cause error, def int) int {
	if Retryable(cause) {
		return fiber.StatusServiceUnavailable
	}
	var nf *NotFoundError
	if errors.As(cause, &nf) {
		return fiber.StatusNotFound
	}
	return def
}
