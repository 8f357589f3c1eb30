package menu

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(f *fixture) *fiber.App {
	app := fiber.New()
	api := app.Group("/api")
	api.Get("/dishes", ListDishesHandler(f.co))
	api.Post("/dishes", CreateDishHandler(f.co))
	api.Get("/dishes/:id", GetDishHandler(f.co))
	api.Put("/dishes/:id", UpdateDishHandler(f.co))
	api.Delete("/dishes/:id", DeleteDishHandler(f.co))
	api.Delete("/categories/:id", DeleteCategoryHandler(f.co))
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestDishHandlers(t *testing.T) {
	f := newFixture(t)
	app := newTestApp(f)

	body := DishRequest{
		Name:         "Karışık Pizza",
		CategoryID:   f.category.ID,
		SellingPrice: 320,
		Composition: []CompositionLine{
			{IngredientID: f.flour.ID, Quantity: 0.25},
			{IngredientID: f.cheese.ID, Quantity: 0.15},
		},
	}
	resp := doJSON(t, app, http.MethodPost, "/api/dishes", body)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var created DishResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.True(t, created.IsAvailable)
	assert.Len(t, created.Composition, 2)

	resp = doJSON(t, app, http.MethodGet, fmt.Sprintf("/api/dishes/%d", created.ID), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var got DishResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "Pizza", got.CategoryName)
	require.Len(t, got.Composition, 2)
	assert.Equal(t, "Un", got.Composition[0].IngredientName)

	// Bilinmeyen malzeme: 400, hiçbir şey yazılmaz
	body.Name = "Hatalı"
	body.Composition = append(body.Composition, CompositionLine{IngredientID: 404, Quantity: 1})
	resp = doJSON(t, app, http.MethodPost, "/api/dishes", body)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	// Girdi hatası: 400
	body.Composition = nil
	resp = doJSON(t, app, http.MethodPost, "/api/dishes", body)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, app, http.MethodDelete, fmt.Sprintf("/api/categories/%d", f.category.ID), nil)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp = doJSON(t, app, http.MethodGet, "/api/dishes/abc", nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, app, http.MethodGet, "/api/dishes/999", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp = doJSON(t, app, http.MethodDelete, fmt.Sprintf("/api/dishes/%d", created.ID), nil)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, app, http.MethodGet, "/api/dishes", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var list []DishResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Empty(t, list)
}
