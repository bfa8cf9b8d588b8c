package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestTimeout puts a deadline on every request context. If the deadline
// passes before the handler completes, the client gets a 504 with a coarse
// message; the handler observes ctx.Done through the stores and unwinds on
// its own. Handlers never hang past the deadline from the client's view.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()

			c.SetRequest(c.Request().WithContext(ctx))

			// Run the handler in a goroutine so the deadline can win the
			// select even if the handler ignores its context.
			done := make(chan error, 1)
			go func() {
				done <- next(c)
			}()

			select {
			case err := <-done:
				return err
			case <-ctx.Done():
				if ctx.Err() == context.DeadlineExceeded {
					if !c.Response().Committed {
						return c.JSON(http.StatusGatewayTimeout, map[string]string{
							"error": "the request took too long, please try again",
						})
					}
					return nil
				}
				// Client went away; nothing useful left to write.
				return ctx.Err()
			}
		}
	}
}
