package ingredient

import (
	"fmt"

	"restoran-menu/internal/apperr"
	"restoran-menu/internal/auth"
	"restoran-menu/internal/models"

	"github.com/gofiber/fiber/v2"
)

type IngredientResponse struct {
	ID                uint    `json:"id"`
	Name              string  `json:"name"`
	Unit              string  `json:"unit"`
	QuantityInStock   float64 `json:"quantity_in_stock"`
	MinimumStockLevel float64 `json:"minimum_stock_level"`
	CostPerUnit       float64 `json:"cost_per_unit"`
	Deleted           bool    `json:"deleted"`
	CreatedAt         string  `json:"created_at"`
}

type IngredientRequest struct {
	Name              string  `json:"name"`
	Unit              string  `json:"unit"`
	MinimumStockLevel float64 `json:"minimum_stock_level"`
	CostPerUnit       float64 `json:"cost_per_unit"`
}

func toResponse(i *models.Ingredient) IngredientResponse {
	return IngredientResponse{
		ID:                i.ID,
		Name:              i.Name,
		Unit:              i.Unit,
		QuantityInStock:   i.QuantityInStock,
		MinimumStockLevel: i.MinimumStockLevel,
		CostPerUnit:       i.CostPerUnit,
		Deleted:           i.Deleted,
		CreatedAt:         i.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}

func idParam(c *fiber.Ctx) (uint, error) {
	var id uint
	if _, err := fmt.Sscan(c.Params("id"), &id); err != nil || id == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "Geçersiz malzeme ID")
	}
	return id, nil
}

// GET /api/ingredients?include_deleted=true
func ListIngredientsHandler(cat *Catalog) fiber.Handler {
	return func(c *fiber.Ctx) error {
		list, err := cat.ListAll(c.UserContext(), c.QueryBool("include_deleted", false))
		if err != nil {
			return apperr.ToFiber(err)
		}
		res := make([]IngredientResponse, 0, len(list))
		for i := range list {
			res = append(res, toResponse(&list[i]))
		}
		return c.JSON(res)
	}
}

// GET /api/ingredients/:id
func GetIngredientHandler(cat *Catalog) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := idParam(c)
		if err != nil {
			return err
		}
		ing, err := cat.GetByID(c.UserContext(), id)
		if err != nil {
			return apperr.ToFiber(err)
		}
		return c.JSON(toResponse(ing))
	}
}

// POST /api/ingredients
func CreateIngredientHandler(cat *Catalog) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body IngredientRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz veri")
		}
		ing, err := cat.Create(auth.RequestContext(c), Input(body))
		if err != nil {
			return apperr.ToFiber(err)
		}
		return c.Status(fiber.StatusCreated).JSON(toResponse(ing))
	}
}

// PUT /api/ingredients/:id
func UpdateIngredientHandler(cat *Catalog) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := idParam(c)
		if err != nil {
			return err
		}
		var body IngredientRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz veri")
		}
		ing, err := cat.Update(auth.RequestContext(c), id, Input(body))
		if err != nil {
			return apperr.ToFiber(err)
		}
		return c.JSON(toResponse(ing))
	}
}

// DELETE /api/ingredients/:id
func DeleteIngredientHandler(cat *Catalog) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := idParam(c)
		if err != nil {
			return err
		}
		if err := cat.Delete(auth.RequestContext(c), id); err != nil {
			return apperr.ToFiber(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// GET /api/ingredients/:id/stock-status
func StockStatusHandler(cat *Catalog) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := idParam(c)
		if err != nil {
			return err
		}
		st, err := cat.StockStatus(c.UserContext(), id)
		if err != nil {
			return apperr.ToFiber(err)
		}
		return c.JSON(st)
	}
}

// GET /api/ingredients/low-stock
func LowStockHandler(cat *Catalog) fiber.Handler {
	return func(c *fiber.Ctx) error {
		list, err := cat.LowStock(c.UserContext())
		if err != nil {
			return apperr.ToFiber(err)
		}
		return c.JSON(list)
	}
}

// GET /api/ingredients/:id/usage
func UsageHandler(cat *Catalog) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := idParam(c)
		if err != nil {
			return err
		}
		usage, err := cat.Usage(c.UserContext(), id)
		if err != nil {
			return apperr.ToFiber(err)
		}
		return c.JSON(usage)
	}
}
