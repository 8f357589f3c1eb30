package menu

import (
	"fmt"

	"restoran-menu/internal/apperr"
	"restoran-menu/internal/auth"
	"restoran-menu/internal/composition"
	"restoran-menu/internal/models"

	"github.com/gofiber/fiber/v2"
)

type CompositionLine struct {
	IngredientID   uint    `json:"ingredient_id"`
	IngredientName string  `json:"ingredient_name,omitempty"`
	Quantity       float64 `json:"quantity"`
	Unit           string  `json:"unit"`
}

type DishRequest struct {
	Name               string            `json:"name"`
	CategoryID         uint              `json:"category_id"`
	SellingPrice       float64           `json:"selling_price"`
	RecipeInstructions string            `json:"recipe_instructions"`
	IsAvailable        *bool             `json:"is_available"` // verilmezse true
	Composition        []CompositionLine `json:"composition"`
}

func (r DishRequest) input() DishInput {
	in := DishInput{
		Name:               r.Name,
		CategoryID:         r.CategoryID,
		SellingPrice:       r.SellingPrice,
		RecipeInstructions: r.RecipeInstructions,
		IsAvailable:        true,
		Composition:        make([]composition.Item, 0, len(r.Composition)),
	}
	if r.IsAvailable != nil {
		in.IsAvailable = *r.IsAvailable
	}
	for _, l := range r.Composition {
		in.Composition = append(in.Composition, composition.Item{IngredientID: l.IngredientID, Quantity: l.Quantity, Unit: l.Unit})
	}
	return in
}

type DishResponse struct {
	ID                 uint              `json:"id"`
	Name               string            `json:"name"`
	CategoryID         uint              `json:"category_id"`
	CategoryName       string            `json:"category_name,omitempty"`
	SellingPrice       float64           `json:"selling_price"`
	RecipeInstructions string            `json:"recipe_instructions"`
	IsAvailable        bool              `json:"is_available"`
	Deleted            bool              `json:"deleted"`
	Composition        []CompositionLine `json:"composition,omitempty"`
	CreatedAt          string            `json:"created_at"`
	UpdatedAt          string            `json:"updated_at"`
}

func toDishResponse(d *models.Dish) DishResponse {
	return DishResponse{
		ID:                 d.ID,
		Name:               d.Name,
		CategoryID:         d.CategoryID,
		CategoryName:       d.Category.Name,
		SellingPrice:       d.SellingPrice,
		RecipeInstructions: d.RecipeInstructions,
		IsAvailable:        d.IsAvailable,
		Deleted:            d.Deleted,
		CreatedAt:          d.CreatedAt.Format("2006-01-02 15:04:05"),
		UpdatedAt:          d.UpdatedAt.Format("2006-01-02 15:04:05"),
	}
}

type CategoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type CategoryResponse struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Deleted     bool   `json:"deleted"`
}

func toCategoryResponse(c *models.Category) CategoryResponse {
	return CategoryResponse{ID: c.ID, Name: c.Name, Description: c.Description, Deleted: c.Deleted}
}

func idParam(c *fiber.Ctx) (uint, error) {
	var id uint
	if _, err := fmt.Sscan(c.Params("id"), &id); err != nil || id == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "Geçersiz ID")
	}
	return id, nil
}

// POST /api/dishes
func CreateDishHandler(co *Coordinator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body DishRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz veri")
		}
		dish, err := co.CreateDish(auth.RequestContext(c), body.input())
		if err != nil {
			return apperr.ToFiber(err)
		}
		resp := toDishResponse(dish)
		resp.Composition = body.Composition
		return c.Status(fiber.StatusCreated).JSON(resp)
	}
}

// GET /api/dishes?include_deleted=true&category_id=1
func ListDishesHandler(co *Coordinator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		f := DishFilter{IncludeDeleted: c.QueryBool("include_deleted", false)}
		if s := c.Query("category_id"); s != "" {
			if _, err := fmt.Sscan(s, &f.CategoryID); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "category_id geçersiz")
			}
		}
		dishes, err := co.ListDishes(c.UserContext(), f)
		if err != nil {
			return apperr.ToFiber(err)
		}
		res := make([]DishResponse, 0, len(dishes))
		for i := range dishes {
			res = append(res, toDishResponse(&dishes[i]))
		}
		return c.JSON(res)
	}
}

// GET /api/dishes/:id
func GetDishHandler(co *Coordinator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := idParam(c)
		if err != nil {
			return err
		}
		detail, err := co.GetDish(c.UserContext(), id)
		if err != nil {
			return apperr.ToFiber(err)
		}
		resp := toDishResponse(&detail.Dish)
		resp.Composition = make([]CompositionLine, 0, len(detail.Composition))
		for _, row := range detail.Composition {
			resp.Composition = append(resp.Composition, CompositionLine{
				IngredientID:   row.IngredientID,
				IngredientName: row.Ingredient.Name,
				Quantity:       row.QuantityNeeded,
				Unit:           row.Unit,
			})
		}
		return c.JSON(resp)
	}
}

// PUT /api/dishes/:id
func UpdateDishHandler(co *Coordinator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := idParam(c)
		if err != nil {
			return err
		}
		var body DishRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz veri")
		}
		dish, err := co.UpdateDish(auth.RequestContext(c), id, body.input())
		if err != nil {
			return apperr.ToFiber(err)
		}
		resp := toDishResponse(dish)
		resp.Composition = body.Composition
		return c.JSON(resp)
	}
}

// DELETE /api/dishes/:id
func DeleteDishHandler(co *Coordinator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := idParam(c)
		if err != nil {
			return err
		}
		if err := co.DeleteDish(auth.RequestContext(c), id); err != nil {
			return apperr.ToFiber(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// POST /api/categories
func CreateCategoryHandler(co *Coordinator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CategoryRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz veri")
		}
		cat, err := co.CreateCategory(auth.RequestContext(c), CategoryInput(body))
		if err != nil {
			return apperr.ToFiber(err)
		}
		return c.Status(fiber.StatusCreated).JSON(toCategoryResponse(cat))
	}
}

// GET /api/categories
func ListCategoriesHandler(co *Coordinator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		list, err := co.ListCategories(c.UserContext(), c.QueryBool("include_deleted", false))
		if err != nil {
			return apperr.ToFiber(err)
		}
		res := make([]CategoryResponse, 0, len(list))
		for i := range list {
			res = append(res, toCategoryResponse(&list[i]))
		}
		return c.JSON(res)
	}
}

// PUT /api/categories/:id
func UpdateCategoryHandler(co *Coordinator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := idParam(c)
		if err != nil {
			return err
		}
		var body CategoryRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz veri")
		}
		cat, err := co.UpdateCategory(auth.RequestContext(c), id, CategoryInput(body))
		if err != nil {
			return apperr.ToFiber(err)
		}
		return c.JSON(toCategoryResponse(cat))
	}
}

// DELETE /api/categories/:id
func DeleteCategoryHandler(co *Coordinator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := idParam(c)
		if err != nil {
			return err
		}
		if err := co.DeleteCategory(auth.RequestContext(c), id); err != nil {
			return apperr.ToFiber(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// POST /api/audit-logs/:id/undo
func UndoAuditLogHandler(co *Coordinator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := idParam(c)
		if err != nil {
			return err
		}
		if err := co.UndoDishChange(auth.RequestContext(c), id); err != nil {
			return apperr.ToFiber(err)
		}
		return c.JSON(fiber.Map{
			"message": "İşlem başarıyla geri alındı",
		})
	}
}
