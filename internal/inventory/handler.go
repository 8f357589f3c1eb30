package inventory

import (
	"fmt"
	"strings"
	"time"

	"restoran-menu/internal/apperr"
	"restoran-menu/internal/auth"
	"restoran-menu/internal/models"

	"github.com/gofiber/fiber/v2"
)

type BatchResponse struct {
	ID                uint               `json:"id"`
	IngredientID      uint               `json:"ingredient_id"`
	OriginalQuantity  float64            `json:"original_quantity"`
	RemainingQuantity float64            `json:"remaining_quantity"`
	PurchaseDate      string             `json:"purchase_date"`
	ExpiryDate        string             `json:"expiry_date"`
	PurchasePrice     float64            `json:"purchase_price"`
	SupplierID        *uint              `json:"supplier_id"`
	Status            models.BatchStatus `json:"status"`
	StatusOverridden  bool               `json:"status_overridden"`
	Voided            bool               `json:"voided"`
}

func toBatchResponse(b *models.IngredientBatch) BatchResponse {
	return BatchResponse{
		ID:                b.ID,
		IngredientID:      b.IngredientID,
		OriginalQuantity:  b.OriginalQuantity,
		RemainingQuantity: b.RemainingQuantity,
		PurchaseDate:      b.PurchaseDate.Format("2006-01-02"),
		ExpiryDate:        b.ExpiryDate.Format("2006-01-02"),
		PurchasePrice:     b.PurchasePrice,
		SupplierID:        b.SupplierID,
		Status:            b.Status,
		StatusOverridden:  b.StatusOverridden,
		Voided:            b.Deleted,
	}
}

type ReceiveBatchRequest struct {
	Quantity      float64 `json:"quantity"`
	PurchaseDate  string  `json:"purchase_date"` // YYYY-MM-DD
	ExpiryDate    string  `json:"expiry_date"`   // YYYY-MM-DD
	PurchasePrice float64 `json:"purchase_price"`
	SupplierID    *uint   `json:"supplier_id"`
}

type ConsumeRequest struct {
	Quantity float64 `json:"quantity"`
}

type OverrideStatusRequest struct {
	Status models.BatchStatus `json:"status"`
}

type CorrectionRequest struct {
	RemainingQuantity float64 `json:"remaining_quantity"`
	ExpiryDate        *string `json:"expiry_date"`
}

type CreateSupplierRequest struct {
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	Description string `json:"description"`
}

func idParam(c *fiber.Ctx, name string) (uint, error) {
	var id uint
	if _, err := fmt.Sscan(c.Params(name), &id); err != nil || id == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "Geçersiz ID")
	}
	return id, nil
}

// POST /api/ingredients/:id/batches
func ReceiveBatchHandler(l *Ledger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ingredientID, err := idParam(c, "id")
		if err != nil {
			return err
		}

		var body ReceiveBatchRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz veri")
		}

		purchase, err := time.Parse("2006-01-02", body.PurchaseDate)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "purchase_date formatı YYYY-MM-DD olmalı")
		}
		expiry, err := time.Parse("2006-01-02", body.ExpiryDate)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "expiry_date formatı YYYY-MM-DD olmalı")
		}

		b, err := l.ReceiveBatch(auth.RequestContext(c), ReceiveInput{
			IngredientID:  ingredientID,
			Quantity:      body.Quantity,
			PurchaseDate:  purchase,
			ExpiryDate:    expiry,
			PurchasePrice: body.PurchasePrice,
			SupplierID:    body.SupplierID,
		})
		if err != nil {
			return apperr.ToFiber(err)
		}
		return c.Status(fiber.StatusCreated).JSON(toBatchResponse(b))
	}
}

// GET /api/ingredients/:id/batches?include_voided=true
func ListBatchesHandler(l *Ledger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ingredientID, err := idParam(c, "id")
		if err != nil {
			return err
		}
		batches, err := l.ListBatches(c.UserContext(), ingredientID, c.QueryBool("include_voided", false))
		if err != nil {
			return apperr.ToFiber(err)
		}
		res := make([]BatchResponse, 0, len(batches))
		for i := range batches {
			res = append(res, toBatchResponse(&batches[i]))
		}
		return c.JSON(res)
	}
}

// POST /api/ingredients/:id/consume
func ConsumeHandler(l *Ledger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ingredientID, err := idParam(c, "id")
		if err != nil {
			return err
		}
		var body ConsumeRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz veri")
		}

		ctx := auth.RequestContext(c)
		consumed, err := l.Consume(ctx, ingredientID, body.Quantity)
		if err != nil {
			return apperr.ToFiber(err)
		}
		stock, err := l.StockLevel(ctx, ingredientID)
		if err != nil {
			return apperr.ToFiber(err)
		}
		return c.JSON(fiber.Map{
			"consumed":          consumed,
			"quantity_in_stock": stock,
		})
	}
}

// POST /api/batches/:id/recompute-status
func RecomputeStatusHandler(l *Ledger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		batchID, err := idParam(c, "id")
		if err != nil {
			return err
		}
		b, err := l.RecomputeStatus(auth.RequestContext(c), batchID)
		if err != nil {
			return apperr.ToFiber(err)
		}
		return c.JSON(toBatchResponse(b))
	}
}

// POST /api/batches/refresh-statuses
func RefreshStatusesHandler(l *Ledger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		changed, err := l.RefreshStatuses(auth.RequestContext(c))
		if err != nil {
			return apperr.ToFiber(err)
		}
		return c.JSON(fiber.Map{"changed": changed})
	}
}

// PUT /api/batches/:id/status (super_admin)
func OverrideStatusHandler(l *Ledger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		batchID, err := idParam(c, "id")
		if err != nil {
			return err
		}
		var body OverrideStatusRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz veri")
		}
		b, err := l.OverrideStatus(auth.RequestContext(c), batchID, body.Status)
		if err != nil {
			return apperr.ToFiber(err)
		}
		return c.JSON(toBatchResponse(b))
	}
}

// PUT /api/batches/:id/correction (super_admin)
func CorrectBatchHandler(l *Ledger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		batchID, err := idParam(c, "id")
		if err != nil {
			return err
		}
		var body CorrectionRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz veri")
		}

		in := CorrectionInput{RemainingQuantity: body.RemainingQuantity}
		if body.ExpiryDate != nil {
			expiry, err := time.Parse("2006-01-02", *body.ExpiryDate)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "expiry_date formatı YYYY-MM-DD olmalı")
			}
			in.ExpiryDate = &expiry
		}

		b, err := l.CorrectBatch(auth.RequestContext(c), batchID, in)
		if err != nil {
			return apperr.ToFiber(err)
		}
		return c.JSON(toBatchResponse(b))
	}
}

// DELETE /api/batches/:id (super_admin)
func VoidBatchHandler(l *Ledger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		batchID, err := idParam(c, "id")
		if err != nil {
			return err
		}
		if err := l.VoidBatch(auth.RequestContext(c), batchID); err != nil {
			return apperr.ToFiber(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// POST /api/batches/import (multipart, "file" alanında .xlsx)
func ImportBatchesHandler(l *Ledger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Dosya yüklenemedi: "+err.Error())
		}
		if !strings.HasSuffix(strings.ToLower(fileHeader.Filename), ".xlsx") {
			return fiber.NewError(fiber.StatusBadRequest, "Sadece .xlsx dosyaları yüklenebilir")
		}

		file, err := fileHeader.Open()
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Dosya açılamadı: "+err.Error())
		}
		defer file.Close()

		res, err := l.ImportBatches(auth.RequestContext(c), file)
		if err != nil {
			return apperr.ToFiber(err)
		}
		return c.JSON(res)
	}
}

// GET /api/suppliers
func ListSuppliersHandler(l *Ledger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		suppliers, err := l.ListSuppliers(c.UserContext())
		if err != nil {
			return apperr.ToFiber(err)
		}
		res := make([]fiber.Map, 0, len(suppliers))
		for _, s := range suppliers {
			res = append(res, fiber.Map{
				"id":          s.ID,
				"name":        s.Name,
				"phone":       s.Phone,
				"description": s.Description,
				"created_at":  s.CreatedAt.Format("2006-01-02 15:04:05"),
			})
		}
		return c.JSON(res)
	}
}

// POST /api/suppliers
func CreateSupplierHandler(l *Ledger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateSupplierRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz veri")
		}
		s, err := l.CreateSupplier(c.UserContext(), SupplierInput(body))
		if err != nil {
			return apperr.ToFiber(err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"id":          s.ID,
			"name":        s.Name,
			"phone":       s.Phone,
			"description": s.Description,
		})
	}
}
