package dashboard

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"coverdesk/internal/httpx"
	"coverdesk/internal/store"
)

type Handler struct {
	model *Model
	store *store.Store
}

func NewHandler(model *Model, s *store.Store) *Handler {
	return &Handler{model: model, store: s}
}

// RegisterDashboardRoutes mounts dashboard CRUD and execution. Must be
// registered before the generic /api/:entity routes so "dashboards" paths
// with sub-resources resolve here.
func RegisterDashboardRoutes(app *fiber.App, h *Handler) {
	api := app.Group("/api/dashboards")

	api.Get("/", h.List)
	api.Get("/:id", h.Get)
	api.Post("/", h.Create)
	api.Put("/:id", h.Update)
	api.Delete("/:id", h.Delete)
	api.Post("/:id/run", h.Run)
}

func (h *Handler) List(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 20)
	items, total, err := h.model.List(c.Context(), page, limit)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": items, "page": page, "limit": limit, "total": total})
}

func (h *Handler) Get(c *fiber.Ctx) error {
	d, err := h.model.Get(c.Context(), c.Params("id"))
	if errors.Is(err, store.ErrNotFound) {
		return httpx.NotFound("dashboard")
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": d})
}

func (h *Handler) Create(c *fiber.Ctx) error {
	var d Dashboard
	if err := c.BodyParser(&d); err != nil {
		return httpx.BadRequest("Invalid JSON body")
	}
	if d.Name == "" {
		return httpx.Validation([]string{"name is required"})
	}
	created, err := h.model.Create(c.Context(), &d)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": created})
}

func (h *Handler) Update(c *fiber.Ctx) error {
	var d Dashboard
	if err := c.BodyParser(&d); err != nil {
		return httpx.BadRequest("Invalid JSON body")
	}
	if d.Name == "" {
		return httpx.Validation([]string{"name is required"})
	}
	updated, err := h.model.Update(c.Context(), c.Params("id"), &d)
	if errors.Is(err, store.ErrNotFound) {
		return httpx.NotFound("dashboard")
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": updated})
}

func (h *Handler) Delete(c *fiber.Ctx) error {
	if err := h.model.Delete(c.Context(), c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"deleted": true}})
}

// Run executes every widget of the dashboard. The request body may carry a
// filter override: {"filters": [...]}; absent, the saved filters apply.
func (h *Handler) Run(c *fiber.Ctx) error {
	d, err := h.model.Get(c.Context(), c.Params("id"))
	if errors.Is(err, store.ErrNotFound) {
		return httpx.NotFound("dashboard")
	}
	if err != nil {
		return err
	}

	filters := d.Config.Filters
	if len(c.Body()) > 0 {
		var body struct {
			Filters []Filter `json:"filters"`
		}
		if err := c.BodyParser(&body); err != nil {
			return httpx.BadRequest("Invalid JSON body")
		}
		if body.Filters != nil {
			filters = body.Filters
		}
	}

	results := RunAll(c.Context(), h.store.DB, h.store.Dialect, d.Config.Widgets, filters)
	return c.JSON(fiber.Map{"data": fiber.Map{
		"dashboard_id": d.ID,
		"results":      results,
	}})
}
