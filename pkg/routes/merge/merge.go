package merge

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/models"
)

// Merger runs one merge. It is resolved from the request's dependency
// container.
type Merger interface {
	Merge(ctx context.Context, req models.MergeRequest) (*models.MergeReport, error)
}

type Handler struct {
	defaultForward bool
}

// NewHandler creates the merge handler. defaultForward applies when the body
// omits forward.
func NewHandler(defaultForward bool) *Handler {
	return &Handler{defaultForward: defaultForward}
}

// Register registers merge routes
func Register(g *echo.Group, h *Handler) {
	g.POST("/merges", h.CreateMerge)
}

type createMergeBody struct {
	AbsorberID string `json:"absorber_id"`
	AbsorbeeID string `json:"absorbee_id"`
	Forward    *bool  `json:"forward"`
	Deactivate bool   `json:"deactivate"`
}

// CreateMerge merges the absorbee into the absorber and returns the report.
func (h *Handler) CreateMerge(c echo.Context) error {
	ctx := c.Request().Context()

	var body createMergeBody
	if err := c.Bind(&body); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	forward := h.defaultForward
	if body.Forward != nil {
		forward = *body.Forward
	}

	ctx, merger, err := ectoinject.GetContext[Merger](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	ctx, logger, _ := ectoinject.GetContext[ectologger.Logger](ctx)
	if logger != nil {
		logger.WithContext(ctx).WithFields(map[string]any{
			"absorber_id": body.AbsorberID,
			"absorbee_id": body.AbsorbeeID,
			"forward":     forward,
			"deactivate":  body.Deactivate,
		}).Debug("Merge requested")
	}

	report, err := merger.Merge(ctx, models.MergeRequest{
		AbsorberID: body.AbsorberID,
		AbsorbeeID: body.AbsorbeeID,
		Forward:    forward,
		Deactivate: body.Deactivate,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, report)
}
