package reconcile

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/WilliamDuke02/databaseProject/pkg/ingest"
	"github.com/WilliamDuke02/databaseProject/pkg/pipeline"
	"github.com/WilliamDuke02/databaseProject/pkg/tracing"
)

var validate = validator.New()

// Runner is satisfied by *pipeline.Pipeline.
type Runner interface {
	Run(ctx context.Context, opts pipeline.Options) (*pipeline.Report, error)
}

// RunRequest overrides the configured run options. Omitted fields keep
// their configured value.
type RunRequest struct {
	SourcePath        string `json:"source_path"`
	DecoderPath       string `json:"decoder_path"`
	SourceEncoding    string `json:"source_encoding" validate:"omitempty,oneof=utf-8 utf8 latin-1 latin1 iso-8859-1"`
	DecoderEncoding   string `json:"decoder_encoding" validate:"omitempty,oneof=utf-8 utf8 latin-1 latin1 iso-8859-1"`
	Reset             *bool  `json:"reset"`
	KeepIntermediates *bool  `json:"keep_intermediates"`
}

type Handler struct {
	runner   Runner
	defaults pipeline.Options
}

func NewHandler(runner Runner, defaults pipeline.Options) *Handler {
	return &Handler{runner: runner, defaults: defaults}
}

// Register registers reconciliation routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("", h.Run)
}

// Run executes one reconciliation run and returns its report
func (h *Handler) Run(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "reconcile_handler.Run")
	defer span.End()

	var req RunRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	opts, err := h.options(req)
	if err != nil {
		return err
	}

	report, err := h.runner.Run(ctx, opts)
	if err != nil {
		if httperror.IsHTTPError(err) {
			return err
		}
		return c.JSON(http.StatusInternalServerError, report)
	}

	return c.JSON(http.StatusOK, report)
}

func (h *Handler) options(req RunRequest) (pipeline.Options, error) {
	opts := h.defaults
	if req.SourcePath != "" {
		opts.SourcePath = req.SourcePath
	}
	if req.DecoderPath != "" {
		opts.DecoderPath = req.DecoderPath
	}
	if req.SourceEncoding != "" {
		enc, err := ingest.ParseEncoding(req.SourceEncoding)
		if err != nil {
			return opts, httperror.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		opts.SourceEncoding = enc
	}
	if req.DecoderEncoding != "" {
		enc, err := ingest.ParseEncoding(req.DecoderEncoding)
		if err != nil {
			return opts, httperror.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		opts.DecoderEncoding = enc
	}
	if req.Reset != nil {
		opts.Reset = *req.Reset
	}
	if req.KeepIntermediates != nil {
		opts.KeepIntermediates = *req.KeepIntermediates
	}
	return opts, nil
}
