package analytics

import (
	"bytes"
	"fmt"
	"time"

	"restoran-menu/internal/apperr"

	"github.com/gofiber/fiber/v2"
)

func limitQuery(c *fiber.Ctx) (int, error) {
	limit := c.QueryInt("limit", DefaultLimit)
	if err := ValidateLimit(limit); err != nil {
		return 0, apperr.ToFiber(err)
	}
	return limit, nil
}

// GET /api/analytics/most-profitable?limit=10
func MostProfitableHandler(s *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit, err := limitQuery(c)
		if err != nil {
			return err
		}
		list, err := s.MostProfitableDishes(c.UserContext(), limit)
		if err != nil {
			return apperr.ToFiber(err)
		}
		return c.JSON(nonNil(list))
	}
}

// GET /api/analytics/least-profitable?limit=10
func LeastProfitableHandler(s *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit, err := limitQuery(c)
		if err != nil {
			return err
		}
		list, err := s.LeastProfitableDishes(c.UserContext(), limit)
		if err != nil {
			return apperr.ToFiber(err)
		}
		return c.JSON(nonNil(list))
	}
}

// GET /api/analytics/high-cost
func HighCostHandler(s *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		list, err := s.HighIngredientCostDishes(c.UserContext())
		if err != nil {
			return apperr.ToFiber(err)
		}
		return c.JSON(nonNil(list))
	}
}

// GET /api/analytics/export
func ExportHandler(s *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit, err := limitQuery(c)
		if err != nil {
			return err
		}
		report, err := s.Report(c.UserContext(), limit)
		if err != nil {
			return apperr.ToFiber(err)
		}
		var buf bytes.Buffer
		if err := WriteWorkbook(&buf, report); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Excel dosyası oluşturulamadı")
		}
		name := fmt.Sprintf("menu_analiz_%s.xlsx", time.Now().Format("20060102_150405"))
		c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, name))
		return c.Send(buf.Bytes())
	}
}

func nonNil(list []DishProfit) []DishProfit {
	if list == nil {
		return []DishProfit{}
	}
	return list
}
