package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestFromStore(t *testing.T) {
	assert.NoError(t, FromStore("op", nil))

	v := Validation("name", "zorunlu")
	assert.Same(t, v, FromStore("op", v), "çekirdek hatası olduğu gibi döner")

	var nf *NotFoundError
	assert.ErrorAs(t, FromStore("get_dish", gorm.ErrRecordNotFound), &nf)

	transient := []error{
		&pgconn.PgError{Code: "40P01"},
		&pgconn.PgError{Code: "55P03"},
		fmt.Errorf("sarılmış: %w", &pgconn.PgError{Code: "08006"}),
		context.DeadlineExceeded,
		errors.New("database is locked (5) (SQLITE_BUSY)"),
	}
	for _, err := range transient {
		got := FromStore("op", err)
		assert.True(t, Retryable(got), "%v", err)
		assert.ErrorIs(t, got, err)
	}

	var se *StoreError
	got := FromStore("op", &pgconn.PgError{Code: "23505"})
	assert.ErrorAs(t, got, &se)
	assert.False(t, Retryable(got))
}

func TestValidationIsByCode(t *testing.T) {
	err := ValidationCode(CodeUnknownIngredient, "ingredient_id", "malzeme bulunamadı (id=%d)", 9)
	assert.ErrorIs(t, err, ErrUnknownIngredient)
	assert.NotErrorIs(t, err, ErrInvalidQuantity)

	wrapped := &DishCreationFailedError{Reason: Reason(err), Cause: err}
	assert.ErrorIs(t, wrapped, ErrUnknownIngredient)
	assert.Equal(t, err.Error(), wrapped.Reason)
}

func TestToFiber(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{Validation("x", "hatalı"), fiber.StatusBadRequest},
		{NotFound("dish", 1), fiber.StatusNotFound},
		{&InsufficientStockError{IngredientID: 1, Requested: 5, Available: 2}, fiber.StatusConflict},
		{&ReferentialIntegrityError{Entity: "ingredient", ID: 1, References: 2, ReferredBy: "yemek"}, fiber.StatusConflict},
		{&DishCreationFailedError{Reason: "x", Cause: ErrUnknownIngredient}, fiber.StatusUnprocessableEntity},
		{&DishUpdateFailedError{DishID: 1, Reason: "x", Cause: &TransientStoreError{Op: "op", Cause: context.DeadlineExceeded}}, fiber.StatusServiceUnavailable},
		{&TransientStoreError{Op: "op", Cause: context.DeadlineExceeded}, fiber.StatusServiceUnavailable},
		{&StoreError{Op: "op", Cause: errors.New("boom")}, fiber.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.code, ToFiber(tc.err).Code, "%T", tc.err)
	}
}
