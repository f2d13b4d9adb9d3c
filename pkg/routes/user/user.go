package user

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/graph"
	"github.com/Ramsey-B/clover/pkg/models"
)

// RelatedLister lists what points at a user.
type RelatedLister interface {
	Related(ctx context.Context, userID string) ([]models.RelatedObject, error)
}

// Resolver follows forwarders.
type Resolver interface {
	Resolve(ctx context.Context, userID string) (*models.Resolution, error)
}

// LineageReader lists the accounts merged into a user. It is only registered
// when the lineage graph is enabled.
type LineageReader interface {
	Lineage(ctx context.Context, userID string) ([]graph.LineageEntry, error)
}

// Register registers user routes
func Register(g *echo.Group) {
	g.GET("/users/:id/related", GetRelated)
	g.GET("/users/:id/resolve", Resolve)
	g.GET("/users/:id/lineage", GetLineage)
}

// GetRelated lists every relation instance pointing at the user.
func GetRelated(c echo.Context) error {
	ctx := c.Request().Context()

	ctx, lister, err := ectoinject.GetContext[RelatedLister](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	related, err := lister.Related(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, related)
}

// Resolve follows the user's forwarders to the account that absorbed it.
func Resolve(c echo.Context) error {
	ctx := c.Request().Context()

	ctx, resolver, err := ectoinject.GetContext[Resolver](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	resolution, err := resolver.Resolve(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resolution)
}

func GetLineage(c echo.Context) error {
	ctx := c.Request().Context()
	userID := c.Param("id")

	ctx, lineage, err := ectoinject.GetContext[LineageReader](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusServiceUnavailable, "lineage graph is not configured")
	}

	entries, err := lineage.Lineage(ctx, userID)
	if err != nil {
		ctx, logger, _ := ectoinject.GetContext[ectologger.Logger](ctx)
		if logger != nil {
			logger.WithContext(ctx).WithError(err).WithField("user_id", userID).Error("Failed to read lineage")
		}
		return httperror.NewHTTPError(http.StatusBadGateway, "failed to read lineage graph")
	}
	return c.JSON(http.StatusOK, entries)
}
