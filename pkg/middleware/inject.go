package middleware

import (
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"
)

// Container makes the dependency container registered under id the one
// handlers resolve from.
func Container(id string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ctx, err := ectoinject.SetActiveContainer(req.Context(), id)
			if err != nil {
				return err
			}
			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}
