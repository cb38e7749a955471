package records

import (
	"context"
	"net/http"
	"slices"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/WilliamDuke02/databaseProject/pkg/export"
	"github.com/WilliamDuke02/databaseProject/pkg/frame"
	"github.com/WilliamDuke02/databaseProject/pkg/models"
	"github.com/WilliamDuke02/databaseProject/pkg/recordstore"
	"github.com/WilliamDuke02/databaseProject/pkg/tracing"
)

var validate = validator.New()

// Store is satisfied by *recordstore.Store.
type Store interface {
	Insert(ctx context.Context, table models.Table, values models.Values) (recordstore.Record, error)
	Get(ctx context.Context, table models.Table, id string) (recordstore.Record, error)
	Update(ctx context.Context, table models.Table, id string, values models.Values) (recordstore.Record, error)
	Delete(ctx context.Context, table models.Table, id string) error
	Export(ctx context.Context, table models.Table, filters []models.Filter) (*frame.Frame, error)
	DistinctValues(ctx context.Context, table models.Table) ([]models.ColumnValues, error)
	CountBy(ctx context.Context, table models.Table, groupColumn, filterColumn, filterValue string) ([]models.CategoryCount, error)
}

// WriteRequest carries the column values of an insert or update. List is the
// positional form accepted for unmerged_vins updates.
type WriteRequest struct {
	Values models.Values `json:"values" validate:"required_without=List"`
	List   []string      `json:"list" validate:"required_without=Values"`
}

type TableInfo struct {
	Name     string   `json:"name"`
	IDColumn string   `json:"id_column"`
	Columns  []string `json:"columns"`
}

type ListResponse struct {
	Table   string              `json:"table"`
	Columns []string            `json:"columns"`
	Rows    []map[string]string `json:"rows"`
	Count   int                 `json:"count"`
}

type DistinctResponse struct {
	Table   string                `json:"table"`
	Columns []models.ColumnValues `json:"columns"`
}

type CountsResponse struct {
	Table  string                 `json:"table"`
	Group  string                 `json:"group"`
	Filter *models.Filter         `json:"filter,omitempty"`
	Counts []models.CategoryCount `json:"counts"`
}

type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// Register registers table and record routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("", h.Tables)
	g.GET("/:table/records", h.List)
	g.POST("/:table/records", h.Create)
	g.GET("/:table/records/:id", h.Get)
	g.PUT("/:table/records/:id", h.Update)
	g.DELETE("/:table/records/:id", h.Delete)
	g.GET("/:table/export", h.Export)
	g.GET("/:table/distinct", h.Distinct)
	g.GET("/:table/counts", h.Counts)
}

// Tables lists the managed tables and their columns
func (h *Handler) Tables(c echo.Context) error {
	out := make([]TableInfo, 0, len(models.Tables()))
	for _, t := range models.Tables() {
		out = append(out, TableInfo{Name: t.String(), IDColumn: t.IDColumn(), Columns: t.Columns()})
	}
	return c.JSON(http.StatusOK, out)
}

// List returns the rows of a table, filtered by column=value query parameters
func (h *Handler) List(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "records_handler.List")
	defer span.End()

	table, err := models.ParseTable(c.Param("table"))
	if err != nil {
		return err
	}

	snapshot, err := h.store.Export(ctx, table, queryFilters(c))
	if err != nil {
		return err
	}

	rows := make([]map[string]string, 0, snapshot.Len())
	for _, row := range snapshot.Rows {
		m := make(map[string]string, len(row))
		for i, col := range snapshot.Header {
			m[col] = row[i]
		}
		rows = append(rows, m)
	}

	return c.JSON(http.StatusOK, ListResponse{
		Table:   table.String(),
		Columns: snapshot.Header,
		Rows:    rows,
		Count:   len(rows),
	})
}

// Create inserts a row
func (h *Handler) Create(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "records_handler.Create")
	defer span.End()

	table, err := models.ParseTable(c.Param("table"))
	if err != nil {
		return err
	}

	req, err := bindWrite(c)
	if err != nil {
		return err
	}
	if req.Values == nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "values are required")
	}

	rec, err := h.store.Insert(ctx, table, req.Values)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, rec)
}

// Get returns a single row by VIN, or by surrogate key for merged_nonadmin
func (h *Handler) Get(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "records_handler.Get")
	defer span.End()

	table, err := models.ParseTable(c.Param("table"))
	if err != nil {
		return err
	}

	rec, err := h.store.Get(ctx, table, c.Param("id"))
	if err != nil {
		return err
	}
	if rec == nil {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "%s row %s not found", table, c.Param("id"))
	}

	return c.JSON(http.StatusOK, rec)
}

// Update overwrites the given columns of a row
func (h *Handler) Update(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "records_handler.Update")
	defer span.End()

	table, err := models.ParseTable(c.Param("table"))
	if err != nil {
		return err
	}

	req, err := bindWrite(c)
	if err != nil {
		return err
	}

	values := req.Values
	if req.List != nil {
		if table != models.TableUnmergedVINs {
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "positional values are only accepted for %s", models.TableUnmergedVINs)
		}
		if values, err = models.UnmergedValuesFromList(req.List); err != nil {
			return err
		}
	}

	rec, err := h.store.Update(ctx, table, c.Param("id"), values)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, rec)
}

// Delete removes a row
func (h *Handler) Delete(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "records_handler.Delete")
	defer span.End()

	table, err := models.ParseTable(c.Param("table"))
	if err != nil {
		return err
	}

	if err := h.store.Delete(ctx, table, c.Param("id")); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}

// Export streams a headerless CSV snapshot of a table
func (h *Handler) Export(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "records_handler.Export")
	defer span.End()

	table, err := models.ParseTable(c.Param("table"))
	if err != nil {
		return err
	}

	snapshot, err := h.store.Export(ctx, table, queryFilters(c))
	if err != nil {
		return err
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/csv; charset=utf-8")
	res.Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+export.FileName(table)+`"`)
	res.WriteHeader(http.StatusOK)
	return export.WriteCSV(res, snapshot)
}

// Distinct lists the distinct values of every column of a table
func (h *Handler) Distinct(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "records_handler.Distinct")
	defer span.End()

	table, err := models.ParseTable(c.Param("table"))
	if err != nil {
		return err
	}

	values, err := h.store.DistinctValues(ctx, table)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, DistinctResponse{Table: table.String(), Columns: values})
}

// Counts groups rows by ?group=, optionally filtered by ?column=&value=
func (h *Handler) Counts(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "records_handler.Counts")
	defer span.End()

	table, err := models.ParseTable(c.Param("table"))
	if err != nil {
		return err
	}

	group := c.QueryParam("group")
	if group == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "group is required")
	}
	filterColumn, filterValue := c.QueryParam("column"), c.QueryParam("value")

	counts, err := h.store.CountBy(ctx, table, group, filterColumn, filterValue)
	if err != nil {
		return err
	}

	resp := CountsResponse{Table: table.String(), Group: group, Counts: counts}
	if filterColumn != "" {
		resp.Filter = &models.Filter{Column: filterColumn, Value: filterValue}
	}
	return c.JSON(http.StatusOK, resp)
}

func bindWrite(c echo.Context) (*WriteRequest, error) {
	var req WriteRequest
	if err := c.Bind(&req); err != nil {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return &req, nil
}

// queryFilters turns every query parameter into an equality filter, in key
// order so results are stable.
func queryFilters(c echo.Context) []models.Filter {
	params := c.QueryParams()
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	slices.Sort(names)

	filters := make([]models.Filter, 0, len(names))
	for _, name := range names {
		filters = append(filters, models.Filter{Column: name, Value: params.Get(name)})
	}
	return filters
}
