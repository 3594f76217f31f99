// Package entity exposes the generic per-entity CRUD and bulk-import routes.
// One handler serves every registered entity; there is no per-entity code.
package entity

import (
	"errors"
	"io"

	"github.com/gofiber/fiber/v2"

	"coverdesk/internal/dyndb"
	"coverdesk/internal/httpx"
	"coverdesk/internal/importer"
	"coverdesk/internal/store"
	"coverdesk/internal/tabfile"
)

type Handler struct {
	repo        *dyndb.Repo
	engine      *importer.Engine
	maxFileSize int64
}

func NewHandler(repo *dyndb.Repo, engine *importer.Engine, maxFileSize int64) *Handler {
	return &Handler{repo: repo, engine: engine, maxFileSize: maxFileSize}
}

// RegisterEntityRoutes mounts the generic entity surface. The import route
// must be registered before the :id routes so "import" is not captured as an
// id.
func RegisterEntityRoutes(app *fiber.App, h *Handler) {
	api := app.Group("/api")

	api.Post("/:entity/import", h.Import)
	api.Get("/:entity", h.List)
	api.Get("/:entity/:id", h.Get)
	api.Post("/:entity", h.Create)
	api.Put("/:entity/:id", h.Update)
	api.Delete("/:entity/:id", h.Delete)
}

func (h *Handler) config(c *fiber.Ctx) (*importer.EntityConfig, error) {
	cfg, ok := h.engine.Registry()[c.Params("entity")]
	if !ok {
		return nil, httpx.NotFound("entity " + c.Params("entity"))
	}
	return cfg, nil
}

func (h *Handler) List(c *fiber.Ctx) error {
	cfg, err := h.config(c)
	if err != nil {
		return err
	}
	page, err := h.repo.ListRowsOrdered(c.Context(), cfg.Table, cfg.IDColumn,
		c.QueryInt("page", 1), c.QueryInt("limit", 20))
	if err != nil {
		return err
	}
	return c.JSON(page)
}

func (h *Handler) Get(c *fiber.Ctx) error {
	cfg, err := h.config(c)
	if err != nil {
		return err
	}
	row, err := h.repo.FetchRow(c.Context(), cfg.Table, cfg.IDColumn, c.Params("id"))
	if errors.Is(err, store.ErrNotFound) {
		return httpx.NotFound(cfg.Name + " record")
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": row})
}

func (h *Handler) Create(c *fiber.Ctx) error {
	cfg, err := h.config(c)
	if err != nil {
		return err
	}
	var body map[string]any
	if err := c.BodyParser(&body); err != nil {
		return httpx.BadRequest("Invalid JSON body")
	}
	payload, verrs := importer.Validate(cfg, body)
	if len(verrs) > 0 {
		return httpx.Validation(verrs)
	}
	id, row, err := h.repo.InsertRow(c.Context(), cfg.Table, payload)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": row, "id": id})
}

func (h *Handler) Update(c *fiber.Ctx) error {
	cfg, err := h.config(c)
	if err != nil {
		return err
	}
	var body map[string]any
	if err := c.BodyParser(&body); err != nil {
		return httpx.BadRequest("Invalid JSON body")
	}
	row, err := h.repo.UpdateRow(c.Context(), cfg.Table, cfg.IDColumn, c.Params("id"), body)
	if errors.Is(err, store.ErrNotFound) {
		return httpx.NotFound(cfg.Name + " record")
	}
	if errors.Is(err, dyndb.ErrNoUpdatableColumns) {
		return httpx.BadRequest(err.Error())
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": row})
}

func (h *Handler) Delete(c *fiber.Ctx) error {
	cfg, err := h.config(c)
	if err != nil {
		return err
	}
	if err := h.repo.DeleteRow(c.Context(), cfg.Table, cfg.IDColumn, c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"deleted": true}})
}

func (h *Handler) Import(c *fiber.Ctx) error {
	cfg, err := h.config(c)
	if err != nil {
		return err
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return httpx.BadRequest("file is required")
	}
	if h.maxFileSize > 0 && fh.Size > h.maxFileSize {
		return httpx.BadRequest("file exceeds the maximum upload size")
	}
	f, err := fh.Open()
	if err != nil {
		return httpx.BadRequest("could not read uploaded file")
	}
	defer f.Close()
	buf, err := io.ReadAll(f)
	if err != nil {
		return httpx.BadRequest("could not read uploaded file")
	}

	records, err := tabfile.Parse(buf, fh.Filename)
	if err != nil {
		return httpx.BadRequest(err.Error())
	}
	result, err := h.engine.Run(c.Context(), cfg.Name, records)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": result})
}
