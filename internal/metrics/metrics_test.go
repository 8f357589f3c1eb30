package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"restoran-menu/internal/apperr"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestOutcome(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{apperr.Validation("name", "zorunlu"), "validation"},
		{apperr.NotFound("dish", 1), "not_found"},
		{&apperr.InsufficientStockError{IngredientID: 1}, "insufficient_stock"},
		{&apperr.ReferentialIntegrityError{Entity: "ingredient"}, "referential_integrity"},
		{&apperr.TransientStoreError{Op: "x", Cause: errors.New("deadlock")}, "transient"},
		{&apperr.DishCreationFailedError{Cause: apperr.ErrUnknownIngredient}, "validation"},
		{fmt.Errorf("wrapped: %w", errors.New("boom")), "error"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Outcome(tc.err))
	}
}

func TestObserve_CountsOutcome(t *testing.T) {
	before := testutil.ToFloat64(Operations.WithLabelValues("test_op", "validation"))

	err := error(apperr.Validation("x", "y"))
	Observe("test_op", time.Now(), &err)

	after := testutil.ToFloat64(Operations.WithLabelValues("test_op", "validation"))
	assert.Equal(t, before+1, after)
}
