package dyndb

import (
	"errors"
	"io"

	"github.com/gofiber/fiber/v2"

	"coverdesk/internal/httpx"
	"coverdesk/internal/store"
	"coverdesk/internal/tabfile"
)

// Handler exposes the dynamic database surface: table introspection, DDL and
// generic row CRUD plus file import against any table.
type Handler struct {
	repo        *Repo
	ddl         *DDL
	maxFileSize int64
	previewRows int
}

func NewHandler(repo *Repo, ddl *DDL, maxFileSize int64, previewRows int) *Handler {
	return &Handler{repo: repo, ddl: ddl, maxFileSize: maxFileSize, previewRows: previewRows}
}

func RegisterDBRoutes(app *fiber.App, h *Handler) {
	db := app.Group("/api/db")

	db.Get("/tables", h.ListTables)
	db.Post("/tables", h.CreateTable)
	db.Get("/tables/:table/schema", h.GetSchema)
	db.Delete("/tables/:table", h.DropTable)

	db.Get("/tables/:table/rows", h.ListRows)
	db.Post("/tables/:table/rows", h.InsertRow)
	db.Put("/tables/:table/rows/:id", h.UpdateRow)
	db.Delete("/tables/:table/rows/:id", h.DeleteRow)

	db.Post("/tables/:table/preview-import", h.PreviewImport)
	db.Post("/tables/:table/import", h.Import)
}

func (h *Handler) ListTables(c *fiber.Ctx) error {
	tables, err := h.repo.Catalog().ListTables(c.Context())
	if err != nil {
		return mapError(err)
	}
	if tables == nil {
		tables = []string{}
	}
	return c.JSON(fiber.Map{"data": tables})
}

func (h *Handler) GetSchema(c *fiber.Ctx) error {
	schema, err := h.repo.Catalog().GetSchema(c.Context(), c.Params("table"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(fiber.Map{"data": schema})
}

func (h *Handler) CreateTable(c *fiber.Ctx) error {
	var body struct {
		Table   string       `json:"table"`
		Columns []ColumnSpec `json:"columns"`
	}
	if err := c.BodyParser(&body); err != nil {
		return httpx.BadRequest("Invalid JSON body")
	}
	if body.Table == "" || len(body.Columns) == 0 {
		return httpx.BadRequest("table and columns are required")
	}
	if err := h.ddl.CreateTable(c.Context(), body.Table, body.Columns); err != nil {
		return mapError(err)
	}
	schema, err := h.repo.Catalog().GetSchema(c.Context(), body.Table)
	if err != nil {
		return mapError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": schema})
}

func (h *Handler) DropTable(c *fiber.Ctx) error {
	if err := h.ddl.DropTable(c.Context(), c.Params("table")); err != nil {
		return mapError(err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"dropped": true}})
}

func (h *Handler) ListRows(c *fiber.Ctx) error {
	page, err := h.repo.ListRows(c.Context(),
		c.Params("table"), c.QueryInt("page", 1), c.QueryInt("limit", 20))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(page)
}

func (h *Handler) InsertRow(c *fiber.Ctx) error {
	var data map[string]any
	if err := c.BodyParser(&data); err != nil {
		return httpx.BadRequest("Invalid JSON body")
	}
	id, row, err := h.repo.InsertRow(c.Context(), c.Params("table"), data)
	if err != nil {
		return mapError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": row, "id": id})
}

func (h *Handler) UpdateRow(c *fiber.Ctx) error {
	table := c.Params("table")
	var data map[string]any
	if err := c.BodyParser(&data); err != nil {
		return httpx.BadRequest("Invalid JSON body")
	}
	key, err := h.keyColumn(c, table)
	if err != nil {
		return err
	}
	row, err := h.repo.UpdateRow(c.Context(), table, key, c.Params("id"), data)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(fiber.Map{"data": row})
}

func (h *Handler) DeleteRow(c *fiber.Ctx) error {
	table := c.Params("table")
	key, err := h.keyColumn(c, table)
	if err != nil {
		return err
	}
	if err := h.repo.DeleteRow(c.Context(), table, key, c.Params("id")); err != nil {
		return mapError(err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"deleted": true}})
}

// keyColumn resolves the row-addressing column: the ?key= query parameter
// when given, else the table's primary key.
func (h *Handler) keyColumn(c *fiber.Ctx, table string) (string, error) {
	if key := c.Query("key"); key != "" {
		return key, nil
	}
	schema, err := h.repo.Catalog().GetSchema(c.Context(), table)
	if err != nil {
		return "", mapError(err)
	}
	if schema.PrimaryKey == "" {
		return "", httpx.BadRequest("table has no primary key; pass ?key=<column>")
	}
	return schema.PrimaryKey, nil
}

func (h *Handler) PreviewImport(c *fiber.Ctx) error {
	records, err := h.uploadedRecords(c)
	if err != nil {
		return err
	}
	preview, err := h.repo.PreviewImport(c.Context(), c.Params("table"), records, h.previewRows)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(fiber.Map{"data": preview})
}

func (h *Handler) Import(c *fiber.Ctx) error {
	records, err := h.uploadedRecords(c)
	if err != nil {
		return err
	}
	result, err := h.repo.ImportRecords(c.Context(), c.Params("table"), records)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(fiber.Map{"data": result})
}

func (h *Handler) uploadedRecords(c *fiber.Ctx) ([]tabfile.Record, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return nil, httpx.BadRequest("file is required")
	}
	if h.maxFileSize > 0 && fh.Size > h.maxFileSize {
		return nil, httpx.BadRequest("file exceeds the maximum upload size")
	}
	f, err := fh.Open()
	if err != nil {
		return nil, httpx.BadRequest("could not read uploaded file")
	}
	defer f.Close()

	buf, err := io.ReadAll(f)
	if err != nil {
		return nil, httpx.BadRequest("could not read uploaded file")
	}
	records, err := tabfile.Parse(buf, fh.Filename)
	if err != nil {
		return nil, httpx.BadRequest(err.Error())
	}
	return records, nil
}

// mapError translates engine errors into HTTP error envelopes; anything
// unrecognized escalates to the central handler as a 500.
func mapError(err error) error {
	var identErr *InvalidIdentifierError
	if errors.As(err, &identErr) {
		return httpx.New("INVALID_IDENTIFIER", fiber.StatusBadRequest, identErr.Error())
	}
	var coerceErr *CoercionError
	if errors.As(err, &coerceErr) {
		return httpx.New("COERCION_FAILED", fiber.StatusUnprocessableEntity, coerceErr.Error())
	}
	if errors.Is(err, store.ErrNotFound) {
		return httpx.NotFound("table or row")
	}
	if errors.Is(err, store.ErrUniqueViolation) {
		return httpx.New("CONFLICT", fiber.StatusConflict, "unique constraint violation")
	}
	if errors.Is(err, ErrNoUpdatableColumns) {
		return httpx.BadRequest(err.Error())
	}
	return err
}
